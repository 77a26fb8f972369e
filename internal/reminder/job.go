package reminder

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/doctor-booking/internal/appointment"
	"github.com/hackgods/doctor-booking/internal/notify"
	redisclient "github.com/hackgods/doctor-booking/internal/redis"
	"github.com/hackgods/doctor-booking/internal/timeconv"
)

type UpcomingLister interface {
	ListUpcomingActive(ctx context.Context, from, to time.Time) ([]appointment.AppointmentDetail, error)
}

type Config struct {
	// Lead is how far ahead of the start a reminder goes out.
	Lead time.Duration
	// DedupeTTL must outlive Lead so a reminder is not repeated on a later sweep.
	DedupeTTL time.Duration
}

// Job sends one reminder per active appointment starting within the lead window.
type Job struct {
	appts    UpcomingLister
	deduper  redisclient.Deduper
	notifier notify.Notifier
	cfg      Config
	zone     timeconv.Zone
	clock    timeconv.Clock
	logger   *zap.Logger
}

func NewJob(appts UpcomingLister, deduper redisclient.Deduper, notifier notify.Notifier, cfg Config, zone timeconv.Zone, clock timeconv.Clock, logger *zap.Logger) *Job {
	if clock == nil {
		clock = timeconv.SystemClock
	}
	if cfg.DedupeTTL < cfg.Lead {
		cfg.DedupeTTL = cfg.Lead + time.Hour
	}
	return &Job{
		appts:    appts,
		deduper:  deduper,
		notifier: notifier,
		cfg:      cfg,
		zone:     zone,
		clock:    clock,
		logger:   logger,
	}
}

// Run performs one sweep and returns how many reminders were sent.
func (j *Job) Run(ctx context.Context) (int, error) {
	now := j.clock()

	upcoming, err := j.appts.ListUpcomingActive(ctx, now, now.Add(j.cfg.Lead))
	if err != nil {
		return 0, fmt.Errorf("list upcoming appointments: %w", err)
	}

	sent := 0
	for _, d := range upcoming {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		first, err := j.deduper.FirstSeen(ctx, d.ID.String(), j.cfg.DedupeTTL)
		if err != nil {
			// skip rather than risk a duplicate; the next sweep retries
			j.logger.Warn("reminder dedupe failed", zap.String("appointment_id", d.ID.String()), zap.Error(err))
			continue
		}
		if !first {
			continue
		}

		if err := j.notifier.Notify(ctx, appointment.NoticeFor(notify.KindReminder, d, j.zone)); err != nil {
			j.logger.Warn("reminder failed",
				zap.String("appointment_id", d.ID.String()),
				zap.Error(err),
			)
			continue
		}
		sent++
	}

	j.logger.Info("reminder sweep finished",
		zap.Int("candidates", len(upcoming)),
		zap.Int("sent", sent),
	)

	return sent, nil
}
