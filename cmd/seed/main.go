package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/tutor-booking/internal/app"
	"github.com/hackgods/tutor-booking/internal/booking"
	"github.com/hackgods/tutor-booking/internal/config"
	"github.com/hackgods/tutor-booking/internal/logger"
	"github.com/hackgods/tutor-booking/internal/money"
	"github.com/hackgods/tutor-booking/internal/schedule"
	"github.com/hackgods/tutor-booking/internal/wallet"
)

// Manifest lists the seeded ids so the simulator can target them.
type Manifest struct {
	Instructors []uuid.UUID `json:"instructors"`
	Students    []uuid.UUID `json:"students"`
}

// teachingBlocks are the daily windows seeded instructors pick from.
var teachingBlocks = [][2]string{
	{"07:00", "09:00"},
	{"09:00", "12:00"},
	{"13:00", "16:00"},
	{"16:00", "19:00"},
	{"19:00", "22:00"},
}

func main() {
	instructors := flag.Int("instructors", 50, "number of instructors to seed")
	students := flag.Int("students", 2000, "number of students to seed")
	out := flag.String("out", "seed.json", "where to write the seeded ids")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.New("info").WithError(err).Fatal("config load error")
	}
	log := logger.New(cfg.LogLevel)
	log.Info("seed starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, log, app.Options{ServiceName: "tutor-booking-seed"})
	if err != nil {
		log.WithError(err).Fatal("startup failed")
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = a.Close(closeCtx)
	}()

	_ = gofakeit.Seed(time.Now().UnixNano())

	var m Manifest
	if m.Instructors, err = seedInstructors(ctx, a, *instructors, log); err != nil {
		log.WithError(err).Error("seed instructors")
		return
	}
	if m.Students, err = seedStudents(ctx, a, *students, log); err != nil {
		log.WithError(err).Error("seed students")
		return
	}

	body, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		log.WithError(err).Error("encode manifest")
		return
	}
	if err := os.WriteFile(*out, body, 0o644); err != nil {
		log.WithError(err).Error("write manifest")
		return
	}
	log.WithField("manifest", *out).Info("seed complete")
}

func seedInstructors(ctx context.Context, a *app.App, count int, log logrus.FieldLogger) ([]uuid.UUID, error) {
	log.WithField("count", count).Info("seeding instructors")
	currency := a.Config.DefaultCurrency
	ids := make([]uuid.UUID, 0, count)

	for i := 0; i < count; i++ {
		regular, err := money.New(decimal.NewFromInt(int64(gofakeit.Number(4, 30)*50)), currency)
		if err != nil {
			return nil, err
		}
		profile := booking.InstructorProfile{
			ID:              uuid.New(),
			DisplayName:     gofakeit.Name(),
			AcceptsBookings: gofakeit.Number(1, 10) > 1,
			Pricing:         booking.Pricing{RegularPrice: regular},
		}
		if gofakeit.Bool() {
			trial := regular.Percent(decimal.NewFromInt(40))
			profile.Pricing.TrialPrice = &trial
		}
		if err := a.Store.UpsertInstructor(ctx, profile, gofakeit.Email()); err != nil {
			return nil, err
		}
		if _, err := a.Wallet.OpenWallet(ctx, profile.ID, currency); err != nil && !errors.Is(err, wallet.ErrExists) {
			return nil, fmt.Errorf("open wallet: %w", err)
		}
		if err := seedRules(ctx, a.Schedule, profile.ID); err != nil {
			return nil, fmt.Errorf("instructor %s rules: %w", profile.ID, err)
		}
		ids = append(ids, profile.ID)
	}

	log.Info("instructors seeded")
	return ids, nil
}

// seedRules gives the instructor a weekly block on a few distinct days.
func seedRules(ctx context.Context, svc *schedule.Service, instructorID uuid.UUID) error {
	days := []int{1, 2, 3, 4, 5, 6, 0}
	gofakeit.ShuffleInts(days)
	for _, d := range days[:gofakeit.Number(2, 4)] {
		block := teachingBlocks[gofakeit.Number(0, len(teachingBlocks)-1)]
		day := time.Weekday(d)
		_, err := svc.CreateRule(ctx, instructorID, schedule.RuleInput{
			Type:         schedule.RuleRecurring,
			DayOfWeek:    &day,
			StartTime:    schedule.MustTimeOfDay(block[0]),
			EndTime:      schedule.MustTimeOfDay(block[1]),
			SlotMinutes:  50,
			BreakMinutes: 10,
			ValidFrom:    time.Now().UTC(),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func seedStudents(ctx context.Context, a *app.App, count int, log logrus.FieldLogger) ([]uuid.UUID, error) {
	log.WithField("count", count).Info("seeding students")
	const progressEvery = 500
	ids := make([]uuid.UUID, 0, count)

	for i := 0; i < count; i++ {
		id := uuid.New()
		if err := a.Store.UpsertUser(ctx, id, gofakeit.Name(), gofakeit.Email(), "student"); err != nil {
			return nil, err
		}
		ids = append(ids, id)
		if (i+1)%progressEvery == 0 {
			log.WithField("seeded", i+1).Info("students progress")
		}
	}

	log.Info("students seeded")
	return ids, nil
}
