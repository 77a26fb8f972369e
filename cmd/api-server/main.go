package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/doctor-booking/internal/api"
	"github.com/hackgods/doctor-booking/internal/appointment"
	"github.com/hackgods/doctor-booking/internal/availability"
	"github.com/hackgods/doctor-booking/internal/config"
	"github.com/hackgods/doctor-booking/internal/db"
	"github.com/hackgods/doctor-booking/internal/logging"
	"github.com/hackgods/doctor-booking/internal/notify"
	redisclient "github.com/hackgods/doctor-booking/internal/redis"
	"github.com/hackgods/doctor-booking/internal/slots"
	"github.com/hackgods/doctor-booking/internal/timeconv"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.Env, "api-server")
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("api-server starting up",
		zap.String("http_port", cfg.HTTPPort),
		zap.Duration("local_offset", cfg.LocalOffset),
		zap.String("version", version),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: cfg.PostgresMaxConns})
	if err == nil {
		err = db.Migrate(pgCtx, pgPool)
	}
	cancelPg()
	if err != nil {
		logger.Fatal("postgres setup failed", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	// Booking stays available without Redis; the unique slot index still guards it.
	var locker redisclient.Locker = redisclient.NoopLocker{}
	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		logger.Warn("redis unavailable, slot locking disabled", zap.Error(err))
	} else {
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("error closing redis", zap.Error(err))
			}
		}()
		locker = redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
		logger.Info("connected to Redis")
	}

	notifier, closeNotifier, err := notify.Build(notify.Channels{
		Email: notify.EmailConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		},
		KafkaBrokers: cfg.KafkaBrokers,
		KafkaTopic:   cfg.KafkaTopic,
		Source:       "api-server",
	}, logger)
	if err != nil {
		logger.Fatal("notifier setup failed", zap.Error(err))
	}

	zone := timeconv.Fixed(cfg.LocalOffset)
	clock := timeconv.Clock(timeconv.SystemClock)

	windows := availability.NewPgStore(pgPool)
	repo := appointment.NewPgRepository(pgPool)

	schedules := availability.NewService(windows, repo, logger)
	generator := slots.NewGenerator(repo, windows, repo, zone, clock, logger)
	bookings := appointment.NewService(repo, windows, locker, notifier, logger,
		appointment.WithZone(zone),
		appointment.WithClock(clock),
		appointment.WithNotifyTimeout(cfg.NotifyTimeout),
	)

	router := api.NewRouter(api.RouterConfig{
		Schedules:         schedules,
		Slots:             generator,
		Appointments:      bookings,
		Health:            api.NewHealthHandler(pgPool, rdb, cfg.Env, version),
		Zone:              zone,
		Clock:             clock,
		Logger:            logger,
		BookingRatePerMin: cfg.BookingRatePerMin,
		BookingBurst:      cfg.BookingBurst,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error("http server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	// let in-flight booking notifications finish before their publishers close
	bookings.Wait()
	if err := closeNotifier(); err != nil {
		logger.Warn("error closing notifier", zap.Error(err))
	}

	logger.Info("api-server stopped")
}
