package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/hackgods/doctor-booking/internal/appointment"
	"github.com/hackgods/doctor-booking/internal/config"
	"github.com/hackgods/doctor-booking/internal/db"
	"github.com/hackgods/doctor-booking/internal/logging"
	"github.com/hackgods/doctor-booking/internal/notify"
	redisclient "github.com/hackgods/doctor-booking/internal/redis"
	"github.com/hackgods/doctor-booking/internal/reminder"
	"github.com/hackgods/doctor-booking/internal/timeconv"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.Env, "reminder-worker")
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("reminder-worker starting up",
		zap.String("schedule", cfg.ReminderCron),
		zap.Duration("lead", cfg.ReminderLead),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 4})
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	// Without Redis every sweep would resend, so it is required here.
	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		logger.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", zap.Error(err))
		}
	}()
	logger.Info("connected to Redis")

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
		Source:       "reminder-worker",
	}, logger)
	if err != nil {
		logger.Fatal("notifier setup failed", zap.Error(err))
	}
	defer func() {
		if err := closeNotifier(); err != nil {
			logger.Warn("error closing notifier", zap.Error(err))
		}
	}()

	job := reminder.NewJob(
		appointment.NewPgRepository(pgPool),
		redisclient.NewRedisDeduper(rdb, "reminder:sent:"),
		notifier,
		reminder.Config{Lead: cfg.ReminderLead, DedupeTTL: cfg.ReminderDedupeTTL},
		timeconv.Fixed(cfg.LocalOffset),
		timeconv.SystemClock,
		logger,
	)

	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger))
	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	))

	if _, err := c.AddFunc(cfg.ReminderCron, func() { runOnce(rootCtx, job, logger) }); err != nil {
		logger.Fatal("invalid REMINDER_CRON", zap.String("schedule", cfg.ReminderCron), zap.Error(err))
	}

	// Run once at startup
	runOnce(rootCtx, job, logger)

	c.Start()
	<-rootCtx.Done()

	logger.Info("shutdown signal received, stopping reminder worker")
	<-c.Stop().Done()
}

func runOnce(ctx context.Context, job *reminder.Job, logger *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	start := time.Now()
	sent, err := job.Run(runCtx)
	if err != nil {
		logger.Error("reminder run failed", zap.Int("sent", sent), zap.Error(err))
		return
	}
	logger.Debug("reminder run complete", zap.Int("sent", sent), zap.Duration("took", time.Since(start)))
}
