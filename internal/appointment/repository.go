package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultPerPage = 15
	MaxPerPage     = 100

	patientSearchLimit = 10
	minSearchLength    = 2
)

// Page is a 1-based page request.
type Page struct {
	Number  int
	PerPage int
}

func (p Page) normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.PerPage < 1 {
		p.PerPage = DefaultPerPage
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}
	return p
}

func (p Page) Offset() int {
	return (p.Number - 1) * p.PerPage
}

// AppointmentFilter narrows List. Since is inclusive and Until exclusive.
type AppointmentFilter struct {
	Status *Status
	Since  *time.Time
	Until  *time.Time
	Page   Page
}

type PatientSort string

const (
	SortByName      PatientSort = "name"
	SortByEmail     PatientSort = "email"
	SortByCreatedAt PatientSort = "created_at"
	SortByUpdatedAt PatientSort = "updated_at"
)

func (s PatientSort) Valid() bool {
	switch s {
	case SortByName, SortByEmail, SortByCreatedAt, SortByUpdatedAt:
		return true
	}
	return false
}

type PatientQuery struct {
	Search   string
	SortBy   PatientSort
	SortDesc bool
	Page     Page
}

// PatientDetail is a patient with its appointments, newest first.
type PatientDetail struct {
	Patient
	Appointments []Appointment
}

// Repository contains all DB interactions needed by the services.
type Repository interface {
	ActiveFinder

	// Patients
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetPatientByEmail(ctx context.Context, email string) (*Patient, error)
	CreatePatient(ctx context.Context, in PatientInput) (*Patient, error)
	UpdatePatient(ctx context.Context, p *Patient) (*Patient, error)
	UpdatePatientPhone(ctx context.Context, id uuid.UUID, phone string) (*Patient, error)
	DeletePatient(ctx context.Context, id uuid.UUID) error
	CountPatientAppointments(ctx context.Context, id uuid.UUID) (int, error)
	ListPatients(ctx context.Context, q PatientQuery) ([]PatientSummary, int, error)
	SearchPatients(ctx context.Context, term string, limit int) ([]Patient, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error)

	// Appointments
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error)
	UpdateAppointment(ctx context.Context, a *Appointment) (*Appointment, error)
	SetAppointmentStatus(ctx context.Context, id uuid.UUID, status Status) (*Appointment, error)
	RescheduleAppointment(ctx context.Context, id uuid.UUID, at time.Time) (*Appointment, error)
	DeleteAppointment(ctx context.Context, id uuid.UUID) error
	ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, int, error)
	// ListAppointmentsBetween returns scheduled, non-cancelled appointments with
	// a date in [from, to], earliest first.
	ListAppointmentsBetween(ctx context.Context, from, to time.Time) ([]Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
