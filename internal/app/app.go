// Package app wires configuration, connections and services into the
// runtime shared by the binaries under cmd/.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/tutor-booking/internal/booking"
	"github.com/hackgods/tutor-booking/internal/config"
	"github.com/hackgods/tutor-booking/internal/db"
	"github.com/hackgods/tutor-booking/internal/events"
	"github.com/hackgods/tutor-booking/internal/obs"
	"github.com/hackgods/tutor-booking/internal/payment"
	redisclient "github.com/hackgods/tutor-booking/internal/redis"
	"github.com/hackgods/tutor-booking/internal/schedule"
	"github.com/hackgods/tutor-booking/internal/store/postgres"
	"github.com/hackgods/tutor-booking/internal/wallet"
)

// DevGatewaySecret signs confirmations for the in-process gateway used when
// no Razorpay keys are configured outside production.
const DevGatewaySecret = "dev-gateway-secret"

type Options struct {
	ServiceName string
	// WithRedis connects the booking lock. Binaries that never book skip it.
	WithRedis bool
}

// App holds the process-wide dependencies. Close releases them in reverse
// order of acquisition.
type App struct {
	Config config.Config
	Log    *logrus.Logger

	Pool  *pgxpool.Pool
	Redis *redis.Client
	Store *postgres.Store

	Events   *events.Dispatcher
	Gateway  payment.Gateway
	Schedule *schedule.Service
	Wallet   *wallet.Service
	Booking  *booking.Orchestrator

	cancelEvents context.CancelFunc
	closers      []func(context.Context) error
}

func Open(ctx context.Context, cfg config.Config, log *logrus.Logger, opts Options) (_ *App, err error) {
	a := &App{Config: cfg, Log: log}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	shutdownTracer, err := obs.InitTracer(ctx, opts.ServiceName, cfg.Env, cfg.OTLPEndpoint)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.closers = append(a.closers, shutdownTracer)

	pgCtx, cancelPg := context.WithTimeout(ctx, 10*time.Second)
	a.Pool, err = db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.PostgresMaxConns, log)
	cancelPg()
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error {
		a.Pool.Close()
		return nil
	})

	a.Store = postgres.New(a.Pool)
	if err := a.Store.Migrate(ctx); err != nil {
		return nil, err
	}

	var locker booking.Locker = booking.NoLock{}
	if opts.WithRedis {
		a.Redis, err = redisclient.NewRedisClient(ctx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
			PoolSize: cfg.RedisPoolSize,
		}, log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return a.Redis.Close() })
		locker = redisclient.NewLocker(a.Redis, cfg.LockTTL)
	}

	pub, err := a.publisher()
	if err != nil {
		return nil, err
	}
	a.Events = events.NewDispatcher(pub, cfg.EventBuffer, log)
	eventsCtx, cancelEvents := context.WithCancel(context.WithoutCancel(ctx))
	a.cancelEvents = cancelEvents
	go a.Events.Run(eventsCtx)

	a.Gateway, err = a.gateway()
	if err != nil {
		return nil, err
	}

	a.Schedule = schedule.NewService(a.Store, log)
	a.Wallet = wallet.NewService(a.Store, cfg.PlatformFeePercent, log, wallet.WithEmitter(a.Events))
	a.Booking = booking.NewOrchestrator(a.Store, a.Schedule, a.Gateway, a.Wallet, a.Store, log,
		booking.WithLocker(locker),
		booking.WithEmitter(a.Events),
		booking.WithCancellationWindow(cfg.CancellationWindow),
	)
	return a, nil
}

// publisher fans events out to the event log, the broker when configured,
// and the application log.
func (a *App) publisher() (events.Publisher, error) {
	pubs := events.Multi{a.Store.EventLog(), events.LogPublisher{Log: a.Log}}
	if a.Config.AMQPURL == "" {
		return pubs, nil
	}
	amqpPub, err := events.NewAMQPPublisher(a.Config.AMQPURL, a.Config.AMQPExchange)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return amqpPub.Close() })
	a.Log.WithField("exchange", a.Config.AMQPExchange).Info("publishing events to rabbitmq")
	return append(pubs, amqpPub), nil
}

func (a *App) gateway() (payment.Gateway, error) {
	if a.Config.RazorpayKeyID != "" && a.Config.RazorpayKeySecret != "" {
		return payment.NewRazorpayGateway(a.Config.RazorpayKeyID, a.Config.RazorpayKeySecret), nil
	}
	if a.Config.Env == "prod" {
		return nil, errors.New("RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET are required in prod")
	}
	a.Log.Warn("razorpay keys not set, using the in-process fake gateway")
	return payment.NewFakeGateway(DevGatewaySecret), nil
}

// Close drains queued events, then releases connections.
func (a *App) Close(ctx context.Context) error {
	if a.cancelEvents != nil {
		a.cancelEvents()
		a.Events.Wait()
		a.cancelEvents = nil
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// PingRedis pings Redis for readiness checks.
func (a *App) PingRedis(ctx context.Context) error {
	if a.Redis == nil {
		return nil
	}
	return a.Redis.Ping(ctx).Err()
}
