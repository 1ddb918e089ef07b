package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/tutor-booking/internal/app"
	"github.com/hackgods/tutor-booking/internal/config"
	"github.com/hackgods/tutor-booking/internal/logger"
	"github.com/hackgods/tutor-booking/internal/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info").WithError(err).Fatal("config load error")
	}
	log := logger.New(cfg.LogLevel)
	log.WithFields(logrus.Fields{
		"env":      cfg.Env,
		"schedule": cfg.ReconcileSchedule,
		"batch":    cfg.ReconcileBatch,
	}).Info("reconcile-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(rootCtx, cfg, log, app.Options{ServiceName: "tutor-booking-reconcile"})
	if err != nil {
		log.WithError(err).Fatal("startup failed")
	}

	// Run once at startup
	runOnce(rootCtx, a.Wallet, cfg.ReconcileBatch, log)

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(cfg.ReconcileSchedule, func() {
		runOnce(rootCtx, a.Wallet, cfg.ReconcileBatch, log)
	}); err != nil {
		log.WithError(err).Fatal("invalid RECONCILE_SCHEDULE")
	}
	c.Start()

	<-rootCtx.Done()
	log.Info("shutdown signal received, stopping reconcile worker")

	// Stop returns a context that is done once running jobs finish.
	<-c.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := a.Close(shutdownCtx); err != nil {
		log.WithError(err).Error("release resources")
	}
}

func runOnce(ctx context.Context, svc *wallet.Service, batch int, log logrus.FieldLogger) {
	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	start := time.Now()
	report, err := svc.ReconcileCredits(runCtx, batch)
	if err != nil {
		log.WithError(err).Error("reconcile run error")
		return
	}
	log.WithFields(logrus.Fields{
		"attempted":   report.Attempted,
		"resolved":    report.Resolved,
		"failed":      report.Failed,
		"skipped":     report.Skipped,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("reconcile run complete")
}
