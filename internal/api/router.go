package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/auth"
)

type BookingService interface {
	CreatePublic(ctx context.Context, in appointment.BookingInput) (*appointment.Appointment, error)
	Create(ctx context.Context, caller appointment.StaffID, in appointment.BookingInput) (*appointment.Appointment, error)
	List(ctx context.Context, q appointment.ListQuery) ([]appointment.Appointment, int, appointment.Page, error)
	Get(ctx context.Context, caller appointment.StaffID, id uuid.UUID) (*appointment.Appointment, error)
	Update(ctx context.Context, caller appointment.StaffID, id uuid.UUID, patch appointment.AppointmentPatch) (*appointment.Appointment, error)
	Delete(ctx context.Context, caller appointment.StaffID, id uuid.UUID) error
	Confirm(ctx context.Context, caller appointment.StaffID, id uuid.UUID) (*appointment.Appointment, error)
	Cancel(ctx context.Context, caller appointment.StaffID, id uuid.UUID) (*appointment.Appointment, error)
	Reschedule(ctx context.Context, caller appointment.StaffID, id uuid.UUID, at *time.Time) (*appointment.Appointment, error)
	WeeklyCalendar(ctx context.Context, anchor *time.Time) (*appointment.WeeklyCalendar, error)
}

type PatientService interface {
	List(ctx context.Context, q appointment.PatientQuery) ([]appointment.PatientSummary, int, appointment.Page, error)
	Search(ctx context.Context, term string) ([]appointment.Patient, error)
	FindByEmail(ctx context.Context, email string) (*appointment.Patient, error)
	Get(ctx context.Context, id uuid.UUID) (*appointment.PatientDetail, error)
	Create(ctx context.Context, in appointment.PatientInput) (*appointment.Patient, error)
	Update(ctx context.Context, id uuid.UUID, patch appointment.PatientPatch) (*appointment.Patient, error)
	Delete(ctx context.Context, id uuid.UUID) error
	FindOrCreate(ctx context.Context, in appointment.PatientInput) (*appointment.Patient, bool, error)
}

type RouterConfig struct {
	Bookings BookingService
	Patients PatientService
	Verifier *auth.Verifier
	Logger   *zap.Logger
	Location *time.Location // clinic zone for zone-less dates
	DB       Pinger
	Redis    *redis.Client
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.DB, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	staff := RequireStaff(cfg.Verifier)

	r.Route("/api/appointments", func(r chi.Router) {
		r.Post("/public", createPublicAppointmentHandler(cfg.Bookings, loc))

		r.Group(func(r chi.Router) {
			r.Use(staff)

			r.Get("/", listAppointmentsHandler(cfg.Bookings, loc))
			r.Post("/", createAppointmentHandler(cfg.Bookings, loc))
			r.Get("/calendar/weekly", weeklyCalendarHandler(cfg.Bookings, loc))

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", getAppointmentHandler(cfg.Bookings))
				r.Put("/", updateAppointmentHandler(cfg.Bookings, loc))
				r.Patch("/", updateAppointmentHandler(cfg.Bookings, loc))
				r.Delete("/", deleteAppointmentHandler(cfg.Bookings))
				r.Post("/confirm", confirmAppointmentHandler(cfg.Bookings))
				r.Post("/cancel", cancelAppointmentHandler(cfg.Bookings))
				r.Post("/reschedule", rescheduleAppointmentHandler(cfg.Bookings, loc))
			})
		})
	})

	r.Route("/api/patients", func(r chi.Router) {
		r.Use(staff)

		r.Get("/", listPatientsHandler(cfg.Patients))
		r.Post("/", createPatientHandler(cfg.Patients))
		r.Get("/search", searchPatientsHandler(cfg.Patients))
		r.Get("/by-email", findPatientByEmailHandler(cfg.Patients))
		r.Post("/find-or-create", findOrCreatePatientHandler(cfg.Patients))

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", getPatientHandler(cfg.Patients))
			r.Put("/", updatePatientHandler(cfg.Patients))
			r.Patch("/", updatePatientHandler(cfg.Patients))
			r.Delete("/", deletePatientHandler(cfg.Patients))
		})
	})

	return r
}
