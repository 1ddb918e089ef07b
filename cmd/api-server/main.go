package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hackgods/tutor-booking/internal/api"
	"github.com/hackgods/tutor-booking/internal/app"
	"github.com/hackgods/tutor-booking/internal/config"
	"github.com/hackgods/tutor-booking/internal/logger"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info").WithError(err).Fatal("config load error")
	}
	log := logger.New(cfg.LogLevel)
	log.WithFields(logrus.Fields{"env": cfg.Env, "http_port": cfg.HTTPPort}).Info("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(rootCtx, cfg, log, app.Options{ServiceName: "tutor-booking-api", WithRedis: true})
	if err != nil {
		log.WithError(err).Fatal("startup failed")
	}

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: api.NewRouter(api.RouterConfig{
			Schedule:        a.Schedule,
			Booking:         a.Booking,
			Wallet:          a.Wallet,
			Log:             log,
			Postgres:        a.Store.Ping,
			Redis:           a.PingRedis,
			DefaultCurrency: cfg.DefaultCurrency,
			ReconcileBatch:  cfg.ReconcileBatch,
			Env:             cfg.Env,
			Version:         version,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-rootCtx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Error("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown")
	}
	if err := a.Close(shutdownCtx); err != nil {
		log.WithError(err).Error("release resources")
	}
	log.Info("api-server stopped")
}
