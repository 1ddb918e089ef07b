package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/tutor-booking/internal/api"
	"github.com/hackgods/tutor-booking/internal/app"
	"github.com/hackgods/tutor-booking/internal/logger"
	"github.com/hackgods/tutor-booking/internal/payment"
)

type SimConfig struct {
	APIBaseURL   string        `envconfig:"API_BASE_URL" default:"http://localhost:8080"`
	Manifest     string        `envconfig:"MANIFEST" default:"seed.json"`
	Duration     time.Duration `envconfig:"DURATION" default:"30s"`
	Workers      int           `envconfig:"WORKERS" default:"10"`
	BookingRatio float64       `envconfig:"BOOKING_RATIO" default:"0.5"`
	ConfirmRatio float64       `envconfig:"CONFIRM_RATIO" default:"0.8"`
	ReadRatio    float64       `envconfig:"READ_RATIO" default:"0.5"`
	TrialRatio   float64       `envconfig:"TRIAL_RATIO" default:"0.2"`
	HorizonDays  int           `envconfig:"HORIZON_DAYS" default:"14"`
	// GatewaySecret must match the secret of the server's fake gateway.
	GatewaySecret string `envconfig:"GATEWAY_SECRET"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
}

// target is one bookable opening, either a stored slot or a rule occurrence.
type target struct {
	InstructorID uuid.UUID
	SlotID       *uuid.UUID
	RuleID       *uuid.UUID
	StartAt      time.Time
}

type DataPool struct {
	Students []uuid.UUID
	Targets  []target
	mu       sync.RWMutex
	payments []uuid.UUID
}

func (dp *DataPool) AddPayment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.payments = append(dp.payments, id)
}

func (dp *DataPool) RandomPayment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.payments) == 0 {
		return uuid.Nil, false
	}
	return dp.payments[rng.Intn(len(dp.payments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, pct int) int {
	idx := n * pct / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Initiate     OperationMetrics
	Confirm      OperationMetrics
	ReadPayment  OperationMetrics
	Availability OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	signer  *payment.FakeGateway
	metrics Metrics
	log     logrus.FieldLogger

	// instructors is read-only after load.
	instructors []uuid.UUID
}

type manifest struct {
	Instructors []uuid.UUID `json:"instructors"`
	Students    []uuid.UUID `json:"students"`
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		logger.New("info").WithError(err).Fatal("invalid config")
	}
	log := logger.New(cfg.LogLevel)
	log.WithFields(logrus.Fields{
		"duration": cfg.Duration,
		"workers":  cfg.Workers,
		"booking":  cfg.BookingRatio,
		"confirm":  cfg.ConfirmRatio,
		"read":     cfg.ReadRatio,
	}).Info("simulator starting")

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		signer: payment.NewFakeGateway(cfg.GatewaySecret),
		log:    log,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if err := sim.load(ctx); err != nil {
		log.WithError(err).Fatal("load data pool")
	}
	log.WithFields(logrus.Fields{
		"students": len(sim.pool.Students),
		"targets":  len(sim.pool.Targets),
	}).Info("data pool loaded")

	sim.Run()
	sim.PrintReport()
}

func loadConfig() (SimConfig, error) {
	_ = godotenv.Load()

	var cfg SimConfig
	if err := envconfig.Process("SIM", &cfg); err != nil {
		return cfg, err
	}
	if cfg.GatewaySecret == "" {
		cfg.GatewaySecret = app.DevGatewaySecret
	}
	if cfg.Workers <= 0 {
		return cfg, fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return cfg, fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.BookingRatio+cfg.ReadRatio <= 0 {
		return cfg, fmt.Errorf("SIM_BOOKING_RATIO and SIM_READ_RATIO cannot both be 0")
	}

	total := cfg.BookingRatio + cfg.ReadRatio
	cfg.BookingRatio /= total
	cfg.ReadRatio /= total
	return cfg, nil
}

// load reads the seed manifest and snapshots every instructor's openings
// over the horizon.
func (s *Simulator) load(ctx context.Context) error {
	raw, err := os.ReadFile(s.config.Manifest)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("decode manifest: %w", err)
	}
	if len(m.Students) == 0 || len(m.Instructors) == 0 {
		return fmt.Errorf("manifest %s has no students or instructors", s.config.Manifest)
	}

	s.instructors = m.Instructors
	s.pool = &DataPool{Students: m.Students}
	for _, id := range m.Instructors {
		openings, err := s.fetchAvailability(ctx, id)
		if err != nil {
			return fmt.Errorf("availability for %s: %w", id, err)
		}
		for _, o := range openings {
			s.pool.Targets = append(s.pool.Targets, target{
				InstructorID: id,
				SlotID:       o.SlotID,
				RuleID:       o.RuleID,
				StartAt:      o.StartAt,
			})
		}
	}
	if len(s.pool.Targets) == 0 {
		return fmt.Errorf("no open slots within %d days", s.config.HorizonDays)
	}
	return nil
}

func (s *Simulator) fetchAvailability(ctx context.Context, instructorID uuid.UUID) ([]api.AvailableSlotResponse, error) {
	from := time.Now().UTC().Add(time.Hour)
	to := from.AddDate(0, 0, s.config.HorizonDays)
	url := fmt.Sprintf("%s/instructors/%s/availability?from=%s&to=%s",
		s.config.APIBaseURL, instructorID, from.Format(time.RFC3339), to.Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var out []api.AvailableSlotResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.WithField("duration", s.config.Duration).Info("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if rng.Float64() < s.config.BookingRatio {
				s.doBooking(ctx, rng)
				continue
			}
			if rng.Intn(2) == 0 {
				s.doReadPayment(ctx, rng)
			} else {
				s.doAvailability(ctx, rng)
			}
		}
	}
}

// doBooking initiates a random opening and, most of the time, completes
// checkout. Abandoned payments are left for the server's timeout.
func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	t := s.pool.Targets[rng.Intn(len(s.pool.Targets))]
	studentID := s.pool.Students[rng.Intn(len(s.pool.Students))]

	lessonType := "single"
	if rng.Float64() < s.config.TrialRatio {
		lessonType = "trial"
	}
	in := api.InitiateRequest{
		StudentID:    studentID,
		InstructorID: t.InstructorID,
		SlotID:       t.SlotID,
		LessonType:   lessonType,
	}
	if t.SlotID == nil {
		in.RuleID = t.RuleID
		in.StartAt = t.StartAt
	}

	var initiated api.InitiateResponse
	status, latency, err := s.post(ctx, "/bookings/initiate", in, &initiated)
	s.metrics.Initiate.Record(latency, err == nil && status == http.StatusCreated, status == http.StatusConflict)
	if err != nil || status != http.StatusCreated || initiated.PaymentID == nil {
		return
	}
	s.pool.AddPayment(*initiated.PaymentID)

	if rng.Float64() >= s.config.ConfirmRatio {
		return
	}

	gatewayPaymentID := "pay_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
	confirm := api.ConfirmRequest{
		PaymentID:        *initiated.PaymentID,
		StudentID:        studentID,
		GatewayOrderID:   initiated.OrderID,
		GatewayPaymentID: gatewayPaymentID,
		Signature:        s.signer.Sign(initiated.OrderID, gatewayPaymentID),
	}
	var confirmed api.ConfirmResponse
	status, latency, err = s.post(ctx, "/bookings/confirm", confirm, &confirmed)
	s.metrics.Confirm.Record(latency, err == nil && status == http.StatusOK, status == http.StatusConflict)
	if err == nil && status == http.StatusConflict {
		s.log.WithFields(logrus.Fields{
			"payment_id": confirm.PaymentID,
			"message":    confirmed.Message,
		}).Debug("confirm rejected")
	}
}

func (s *Simulator) doReadPayment(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomPayment(rng)
	if !ok {
		return
	}
	s.get(ctx, fmt.Sprintf("/payments/%s", id), &s.metrics.ReadPayment)
}

func (s *Simulator) doAvailability(ctx context.Context, rng *rand.Rand) {
	id := s.instructors[rng.Intn(len(s.instructors))]
	s.get(ctx, fmt.Sprintf("/instructors/%s/availability", id), &s.metrics.Availability)
}

func (s *Simulator) post(ctx context.Context, path string, in, out any) (int, time.Duration, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return 0, 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusConflict {
		// Failed business results carry the same body shape.
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode, latency, nil
}

func (s *Simulator) get(ctx context.Context, path string, om *OperationMetrics) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.APIBaseURL+path, nil)
	if err != nil {
		return
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}
	om.Record(latency, success, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Openings: %d\n", len(s.pool.Targets))
	fmt.Println()

	printOperationReport("Initiate", &s.metrics.Initiate)
	printOperationReport("Confirm", &s.metrics.Confirm)
	printOperationReport("Read payment", &s.metrics.ReadPayment)
	printOperationReport("Availability", &s.metrics.Availability)

	// Every opening books at most once, however many students raced for it.
	booked := atomic.LoadInt64(&s.metrics.Confirm.Success)
	if booked > int64(len(s.pool.Targets)) {
		fmt.Printf("DOUBLE BOOKING: %d confirmed sessions for %d openings\n", booked, len(s.pool.Targets))
	}
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}
