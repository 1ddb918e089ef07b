package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/tutor-booking/internal/booking"
	"github.com/hackgods/tutor-booking/internal/schedule"
	"github.com/hackgods/tutor-booking/internal/wallet"
)

type RouterConfig struct {
	Schedule *schedule.Service
	Booking  *booking.Orchestrator
	Wallet   *wallet.Service
	Log      logrus.FieldLogger

	Postgres CheckFunc
	Redis    CheckFunc

	AllowedOrigins  []string
	DefaultCurrency string
	ReconcileBatch  int
	Env             string
	Version         string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))
	r.Use(middleware.Recoverer)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Route("/instructors/{instructorID}", func(r chi.Router) {
		r.Get("/availability", availabilityHandler(cfg.Schedule))

		r.Get("/rules", listRulesHandler(cfg.Schedule))
		r.Post("/rules", createRuleHandler(cfg.Schedule))
		r.Post("/slots", createSlotHandler(cfg.Schedule))
		r.Get("/time-off", listTimeOffHandler(cfg.Schedule))
		r.Get("/sessions", listSessionsHandler(cfg.Booking))
		r.Post("/time-off", createTimeOffHandler(cfg.Schedule))

		r.Post("/wallet", openWalletHandler(cfg.Wallet, cfg.DefaultCurrency))
		r.Get("/wallet", getWalletHandler(cfg.Wallet))
		r.Get("/wallet/transactions", listTransactionsHandler(cfg.Wallet))
		r.Get("/wallet/ledger", verifyLedgerHandler(cfg.Wallet))
		r.Post("/wallet/withdrawals", requestWithdrawalHandler(cfg.Wallet))
		r.Post("/wallet/freeze", walletActionHandler(cfg.Wallet.Freeze))
		r.Post("/wallet/unfreeze", walletActionHandler(cfg.Wallet.Unfreeze))
		r.Post("/wallet/suspend", walletActionHandler(cfg.Wallet.Suspend))
		r.Post("/wallet/reactivate", walletActionHandler(cfg.Wallet.Reactivate))
	})

	r.Route("/rules/{id}", func(r chi.Router) {
		r.Put("/", updateRuleHandler(cfg.Schedule))
		r.Delete("/", deleteRuleHandler(cfg.Schedule))
		r.Post("/activate", idActionHandler(cfg.Schedule.ActivateRule))
		r.Post("/deactivate", idActionHandler(cfg.Schedule.DeactivateRule))
	})

	r.Route("/slots/{id}", func(r chi.Router) {
		r.Get("/", getSlotHandler(cfg.Schedule))
		r.Put("/", resizeSlotHandler(cfg.Schedule))
		r.Delete("/", deleteSlotHandler(cfg.Schedule))
		r.Post("/block", slotActionHandler(cfg.Schedule.BlockSlot))
		r.Post("/unblock", slotActionHandler(cfg.Schedule.UnblockSlot))
	})

	r.Delete("/time-off/{id}", deleteTimeOffHandler(cfg.Schedule))

	r.Post("/bookings/initiate", initiateHandler(cfg.Booking))
	r.Post("/bookings/confirm", confirmHandler(cfg.Booking))

	r.Get("/payments/{id}", getPaymentHandler(cfg.Booking))
	r.Post("/payments/{id}/cancel", cancelPaymentHandler(cfg.Booking))

	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", getSessionHandler(cfg.Booking))
		r.Post("/cancel", cancelSessionHandler(cfg.Booking))
		r.Post("/start", sessionActionHandler(cfg.Booking.StartSession))
		r.Post("/complete", sessionActionHandler(cfg.Booking.CompleteSession))
		r.Post("/no-show", sessionActionHandler(cfg.Booking.MarkNoShow))
	})

	r.Post("/withdrawals/{id}/complete", completeWithdrawalHandler(cfg.Wallet))
	r.Post("/withdrawals/{id}/fail", failWithdrawalHandler(cfg.Wallet))
	r.Post("/wallets/reconcile", reconcileHandler(cfg.Wallet, cfg.ReconcileBatch))

	return r
}
