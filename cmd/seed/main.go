package main

import (
	"context"
	"log"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/doctor-booking/internal/availability"
	"github.com/hackgods/doctor-booking/internal/db"
	"github.com/hackgods/doctor-booking/internal/logging"
)

func main() {
	logger, err := logging.New(os.Getenv("APP_ENV"), "seed")
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal("POSTGRES_DSN is required")
	}

	doctors := envInt("SEED_DOCTORS", 25)
	patients := envInt("SEED_PATIENTS", 2000)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, db.PoolOptions{})
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	gofakeit.Seed(time.Now().UnixNano())

	doctorIDs, err := seedDoctors(ctx, pool, doctors, logger)
	if err != nil {
		logger.Fatal("seed doctors", zap.Error(err))
	}
	if err := seedSchedules(ctx, pool, doctorIDs, logger); err != nil {
		logger.Fatal("seed schedules", zap.Error(err))
	}
	if err := seedPatients(ctx, pool, patients, logger); err != nil {
		logger.Fatal("seed patients", zap.Error(err))
	}

	logger.Info("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int, logger *zap.Logger) ([]uuid.UUID, error) {
	logger.Info("seeding doctors", zap.Int("count", count))

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Dr. " + gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]
		fee := math.Round(gofakeit.Price(40, 250)*100) / 100

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, consultation_fee, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, id, name, spec, fee)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return ids, nil
}

// seedSchedules gives every doctor a weekday schedule through the same builder the API uses.
func seedSchedules(ctx context.Context, pool *pgxpool.Pool, doctorIDs []uuid.UUID, logger *zap.Logger) error {
	logger.Info("seeding weekly schedules", zap.Int("doctors", len(doctorIDs)))

	store := availability.NewPgStore(pool)
	shifts := [][2]string{{"09:00", "17:00"}, {"08:00", "12:00"}, {"13:00", "19:00"}}

	for _, id := range doctorIDs {
		shift := shifts[gofakeit.Number(0, len(shifts)-1)]

		b := availability.NewScheduleBuilder(id)
		for day := time.Monday; day <= time.Friday; day++ {
			b.Day(day, shift[0], shift[1])
		}
		if gofakeit.Bool() {
			b.Day(time.Saturday, "10:00", "14:00")
		}

		schedule, err := b.Build()
		if err != nil {
			return err
		}
		if err := store.ReplaceWeeklySchedule(ctx, schedule); err != nil {
			return err
		}
	}

	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int, logger *zap.Logger) error {
	logger.Info("seeding patients", zap.Int("count", count))

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, uuid.New(), gofakeit.Name(), gofakeit.Email())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		logger.Info("patients seeded", zap.Int("done", end), zap.Int("total", count))
	}

	return nil
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}
