package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/doctor-booking/internal/config"
	"github.com/hackgods/doctor-booking/internal/db"
	"github.com/hackgods/doctor-booking/internal/logging"
	"github.com/hackgods/doctor-booking/internal/timeconv"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	StormSize    int // concurrent bookings fired at one slot
	BookingRatio float64
	CancelRatio  float64
	ReadRatio    float64
	DaysAhead    int
	DoctorLimit  int
	PatientLimit int
	PostgresDSN  string
	Zone         timeconv.Zone
}

type DataPool struct {
	Doctors  []uuid.UUID
	Patients []uuid.UUID

	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict, status == http.StatusUnprocessableEntity:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, lo, hi, p50, p95 time.Duration) {
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

	percentile := func(p int) time.Duration {
		idx := len(latencies) * p / 100
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		return latencies[idx]
	}

	return sum / time.Duration(len(latencies)), latencies[0], latencies[len(latencies)-1], percentile(50), percentile(95)
}

type Metrics struct {
	Storm     OperationMetrics
	Booking   OperationMetrics
	Cancel    OperationMetrics
	ReadSlots OperationMetrics
	ReadByID  OperationMetrics

	stormRounds   int64
	stormWinners  int64
	stormOverbook int64
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	logger  *zap.Logger

	touchedMu sync.Mutex
	touched   map[uuid.UUID]map[string]struct{} // doctor -> local dates booked
}

type slotJSON struct {
	Time time.Time `json:"time"`
}

type appointmentJSON struct {
	ID               uuid.UUID `json:"id"`
	ScheduledInstant time.Time `json:"scheduledInstant"`
	Status           string    `json:"status"`
}

func main() {
	cfg, logger := loadConfig()
	defer func() { _ = logger.Sync() }()

	if err := validateConfig(cfg); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	logger.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Int("storm_size", cfg.StormSize),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal("load data pool", zap.Error(err))
	}
	logger.Info("data loaded", zap.Int("doctors", len(dataPool.Doctors)), zap.Int("patients", len(dataPool.Patients)))

	sim := &Simulator{
		config:  cfg,
		pool:    dataPool,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
		touched: make(map[uuid.UUID]map[string]struct{}),
	}

	sim.Run()
	overlaps := sim.VerifyNoOverlap(context.Background())
	sim.PrintReport(overlaps)

	if overlaps > 0 || atomic.LoadInt64(&sim.metrics.stormOverbook) > 0 {
		os.Exit(1)
	}
}

func loadConfig() (SimConfig, *zap.Logger) {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	logger, err := logging.New(baseCfg.Env, "simulate")
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		StormSize:    getInt("SIM_STORM_SIZE", 25),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.4),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.1),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.5),
		DaysAhead:    getInt("SIM_DAYS_AHEAD", 14),
		DoctorLimit:  getInt("SIM_DOCTOR_LIMIT", 50),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 2000),
		PostgresDSN:  baseCfg.PostgresDSN,
		Zone:         timeconv.Fixed(baseCfg.LocalOffset),
	}

	total := cfg.BookingRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg, logger
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.StormSize < 2 {
		return fmt.Errorf("SIM_STORM_SIZE must be >= 2")
	}
	if cfg.DaysAhead <= 0 {
		return fmt.Errorf("SIM_DAYS_AHEAD must be > 0")
	}
	return nil
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool, query string, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	doctors, err := loadIDs(ctx, pool, `
		SELECT DISTINCT doctor_id FROM availability_windows WHERE is_active LIMIT $1
	`, cfg.DoctorLimit)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}

	patients, err := loadIDs(ctx, pool, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}

	if len(doctors) == 0 {
		return nil, fmt.Errorf("no doctors with availability loaded, run cmd/seed first")
	}
	if len(patients) < 2 {
		return nil, fmt.Errorf("need at least two patients, run cmd/seed first")
	}

	return &DataPool{Doctors: doctors, Patients: patients}, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info("starting simulation")

	var wg sync.WaitGroup

	// one dedicated storm loop, the rest generate mixed traffic
	wg.Add(1)
	go func() {
		defer wg.Done()
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		for ctx.Err() == nil {
			s.stormRound(ctx, rng)
		}
	}()

	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.CancelRatio:
			s.doCancel(ctx, rng)
		default:
			if rng.Intn(2) == 0 {
				s.doReadSlots(ctx, rng)
			} else {
				s.doReadByID(ctx, rng)
			}
		}
	}
}

func (s *Simulator) randomDate(rng *rand.Rand) timeconv.Date {
	today := s.config.Zone.LocalDate(time.Now())
	return today.AddDays(1 + rng.Intn(s.config.DaysAhead))
}

func (s *Simulator) markTouched(doctorID uuid.UUID, date timeconv.Date) {
	s.touchedMu.Lock()
	defer s.touchedMu.Unlock()
	if s.touched[doctorID] == nil {
		s.touched[doctorID] = make(map[string]struct{})
	}
	s.touched[doctorID][date.String()] = struct{}{}
}

func (s *Simulator) fetchSlots(ctx context.Context, doctorID uuid.UUID, date timeconv.Date) ([]slotJSON, int, time.Duration) {
	start := time.Now()
	url := fmt.Sprintf("%s/doctors/%s/slots?date=%s", s.config.APIBaseURL, doctorID, date)

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return nil, 0, latency
	}
	defer resp.Body.Close()

	var body struct {
		Slots []slotJSON `json:"slots"`
	}
	if resp.StatusCode == http.StatusOK {
		_ = json.NewDecoder(resp.Body).Decode(&body)
	}
	return body.Slots, resp.StatusCode, latency
}

func (s *Simulator) book(ctx context.Context, doctorID, patientID uuid.UUID, at time.Time) (int, time.Duration) {
	start := time.Now()

	payload, _ := json.Marshal(map[string]string{
		"doctorId":         doctorID.String(),
		"patientId":        patientID.String(),
		"scheduledInstant": at.UTC().Format(time.RFC3339),
		"type":             "VIDEO",
	})

	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/appointments", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusCreated {
		var appt appointmentJSON
		if json.NewDecoder(resp.Body).Decode(&appt) == nil && appt.ID != uuid.Nil {
			s.pool.AddAppointment(appt.ID)
		}
	}
	return resp.StatusCode, latency
}

// stormRound fires StormSize simultaneous bookings at one free slot. Exactly one may win.
func (s *Simulator) stormRound(ctx context.Context, rng *rand.Rand) {
	doctorID := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
	date := s.randomDate(rng)

	free, _, _ := s.fetchSlots(ctx, doctorID, date)
	if len(free) == 0 {
		return
	}
	target := free[rng.Intn(len(free))].Time
	s.markTouched(doctorID, date)

	var (
		wg      sync.WaitGroup
		winners int64
		gate    = make(chan struct{})
	)
	for i := 0; i < s.config.StormSize; i++ {
		patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-gate
			status, latency := s.book(ctx, doctorID, patientID, target)
			s.metrics.Storm.Record(latency, status)
			if status == http.StatusCreated {
				atomic.AddInt64(&winners, 1)
			}
		}()
	}
	close(gate)
	wg.Wait()

	if ctx.Err() != nil {
		return
	}

	atomic.AddInt64(&s.metrics.stormRounds, 1)
	switch {
	case winners == 1:
		atomic.AddInt64(&s.metrics.stormWinners, 1)
	case winners > 1:
		atomic.AddInt64(&s.metrics.stormOverbook, 1)
		s.logger.Error("slot double booked",
			zap.String("doctor_id", doctorID.String()),
			zap.Time("slot", target),
			zap.Int64("winners", winners),
		)
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	doctorID := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
	date := s.randomDate(rng)

	free, status, latency := s.fetchSlots(ctx, doctorID, date)
	s.metrics.ReadSlots.Record(latency, status)
	if len(free) == 0 {
		return
	}
	s.markTouched(doctorID, date)

	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	status, latency = s.book(ctx, doctorID, patientID, free[rng.Intn(len(free))].Time)
	s.metrics.Booking.Record(latency, status)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/appointments/%s/cancel", s.config.APIBaseURL, apptID), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	status := 0
	if err == nil {
		status = resp.StatusCode
		resp.Body.Close()
	}
	s.metrics.Cancel.Record(latency, status)
}

func (s *Simulator) doReadSlots(ctx context.Context, rng *rand.Rand) {
	doctorID := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
	_, status, latency := s.fetchSlots(ctx, doctorID, s.randomDate(rng))
	s.metrics.ReadSlots.Record(latency, status)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/appointments/%s", s.config.APIBaseURL, apptID), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	status := 0
	if err == nil {
		status = resp.StatusCode
		resp.Body.Close()
	}
	s.metrics.ReadByID.Record(latency, status)
}

// VerifyNoOverlap re-reads every doctor day that saw bookings and counts overlapping
// active appointment pairs.
func (s *Simulator) VerifyNoOverlap(ctx context.Context) int {
	active := map[string]bool{"SCHEDULED": true, "CONFIRMED": true, "IN_PROGRESS": true}
	overlaps := 0

	for doctorID, dates := range s.touched {
		for date := range dates {
			url := fmt.Sprintf("%s/doctors/%s/appointments?from=%s&to=%s", s.config.APIBaseURL, doctorID, date, date)
			req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			resp, err := s.client.Do(req)
			if err != nil {
				s.logger.Warn("verify request failed", zap.Error(err))
				continue
			}

			var body struct {
				Appointments []appointmentJSON `json:"appointments"`
			}
			_ = json.NewDecoder(resp.Body).Decode(&body)
			resp.Body.Close()

			var starts []time.Time
			for _, a := range body.Appointments {
				if active[a.Status] {
					starts = append(starts, a.ScheduledInstant)
				}
			}
			sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
			for i := 1; i < len(starts); i++ {
				if starts[i].Before(starts[i-1].Add(time.Hour)) {
					overlaps++
					s.logger.Error("overlapping appointments",
						zap.String("doctor_id", doctorID.String()),
						zap.String("date", date),
						zap.Time("first", starts[i-1]),
						zap.Time("second", starts[i]),
					)
				}
			}
		}
	}

	return overlaps
}

func (s *Simulator) PrintReport(overlaps int) {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	rounds := atomic.LoadInt64(&s.metrics.stormRounds)
	fmt.Printf("Storm rounds: %d (size %d)\n", rounds, s.config.StormSize)
	fmt.Printf("  Single winner: %d\n", atomic.LoadInt64(&s.metrics.stormWinners))
	fmt.Printf("  Double booked: %d\n", atomic.LoadInt64(&s.metrics.stormOverbook))
	fmt.Printf("Overlapping active pairs after run: %d\n", overlaps)
	fmt.Println()

	printOperationReport("Storm booking", &s.metrics.Storm)
	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Read slots", &s.metrics.ReadSlots)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, lo, hi, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Rejected: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), lo.Round(time.Millisecond), hi.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
