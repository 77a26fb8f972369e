package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hackgods/doctor-booking/internal/timeconv"
	"github.com/hackgods/doctor-booking/internal/validation"
)

type RouterConfig struct {
	Schedules    ScheduleService
	Slots        SlotGenerator
	Appointments AppointmentService
	Health       *HealthHandler
	Zone         timeconv.Zone
	Clock        timeconv.Clock
	Logger       *zap.Logger

	// BookingRatePerMin limits booking writes per client IP; 0 disables.
	BookingRatePerMin int
	BookingBurst      int
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Clock == nil {
		cfg.Clock = timeconv.SystemClock
	}

	h := &handlers{
		schedules:    cfg.Schedules,
		slots:        cfg.Slots,
		appointments: cfg.Appointments,
		validate:     validation.New(),
		zone:         cfg.Zone,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)

	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}

	r.Route("/doctors/{doctorId}", func(r chi.Router) {
		r.Get("/schedule", h.getSchedule)
		r.Put("/schedule", h.putSchedule)
		r.Get("/slots", h.listSlots)
		r.Get("/appointments", h.listDoctorAppointments)
	})

	r.Route("/appointments", func(r chi.Router) {
		r.With(RateLimitMiddleware(cfg.BookingRatePerMin, cfg.BookingBurst, cfg.Logger)).
			Post("/", h.createAppointment)
		r.Get("/{id}", h.getAppointment)
		r.Post("/{id}/confirm", h.transition(cfg.Appointments.ConfirmAppointment))
		r.Post("/{id}/start", h.transition(cfg.Appointments.StartAppointment))
		r.Post("/{id}/complete", h.transition(cfg.Appointments.CompleteAppointment))
		r.Post("/{id}/cancel", h.transition(cfg.Appointments.CancelAppointment))
		r.Post("/{id}/reschedule", h.rescheduleAppointment)
	})

	return r
}
