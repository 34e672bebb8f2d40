package api

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
)

type mockBookings struct {
	mock.Mock
}

func (m *mockBookings) result(args mock.Arguments) (*appointment.Appointment, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appointment.Appointment), args.Error(1)
}

func (m *mockBookings) CreatePublic(ctx context.Context, in appointment.BookingInput) (*appointment.Appointment, error) {
	return m.result(m.Called(ctx, in))
}

func (m *mockBookings) Create(ctx context.Context, caller appointment.StaffID, in appointment.BookingInput) (*appointment.Appointment, error) {
	return m.result(m.Called(ctx, caller, in))
}

func (m *mockBookings) List(ctx context.Context, q appointment.ListQuery) ([]appointment.Appointment, int, appointment.Page, error) {
	args := m.Called(ctx, q)
	items, _ := args.Get(0).([]appointment.Appointment)
	return items, args.Int(1), args.Get(2).(appointment.Page), args.Error(3)
}

func (m *mockBookings) Get(ctx context.Context, caller appointment.StaffID, id uuid.UUID) (*appointment.Appointment, error) {
	return m.result(m.Called(ctx, caller, id))
}

func (m *mockBookings) Update(ctx context.Context, caller appointment.StaffID, id uuid.UUID, patch appointment.AppointmentPatch) (*appointment.Appointment, error) {
	return m.result(m.Called(ctx, caller, id, patch))
}

func (m *mockBookings) Delete(ctx context.Context, caller appointment.StaffID, id uuid.UUID) error {
	return m.Called(ctx, caller, id).Error(0)
}

func (m *mockBookings) Confirm(ctx context.Context, caller appointment.StaffID, id uuid.UUID) (*appointment.Appointment, error) {
	return m.result(m.Called(ctx, caller, id))
}

func (m *mockBookings) Cancel(ctx context.Context, caller appointment.StaffID, id uuid.UUID) (*appointment.Appointment, error) {
	return m.result(m.Called(ctx, caller, id))
}

func (m *mockBookings) Reschedule(ctx context.Context, caller appointment.StaffID, id uuid.UUID, at *time.Time) (*appointment.Appointment, error) {
	return m.result(m.Called(ctx, caller, id, at))
}

func (m *mockBookings) WeeklyCalendar(ctx context.Context, anchor *time.Time) (*appointment.WeeklyCalendar, error) {
	args := m.Called(ctx, anchor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appointment.WeeklyCalendar), args.Error(1)
}

type mockPatients struct {
	mock.Mock
}

func (m *mockPatients) result(args mock.Arguments) (*appointment.Patient, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appointment.Patient), args.Error(1)
}

func (m *mockPatients) List(ctx context.Context, q appointment.PatientQuery) ([]appointment.PatientSummary, int, appointment.Page, error) {
	args := m.Called(ctx, q)
	items, _ := args.Get(0).([]appointment.PatientSummary)
	return items, args.Int(1), args.Get(2).(appointment.Page), args.Error(3)
}

func (m *mockPatients) Search(ctx context.Context, term string) ([]appointment.Patient, error) {
	args := m.Called(ctx, term)
	items, _ := args.Get(0).([]appointment.Patient)
	return items, args.Error(1)
}

func (m *mockPatients) FindByEmail(ctx context.Context, email string) (*appointment.Patient, error) {
	return m.result(m.Called(ctx, email))
}

func (m *mockPatients) Get(ctx context.Context, id uuid.UUID) (*appointment.PatientDetail, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appointment.PatientDetail), args.Error(1)
}

func (m *mockPatients) Create(ctx context.Context, in appointment.PatientInput) (*appointment.Patient, error) {
	return m.result(m.Called(ctx, in))
}

func (m *mockPatients) Update(ctx context.Context, id uuid.UUID, patch appointment.PatientPatch) (*appointment.Patient, error) {
	return m.result(m.Called(ctx, id, patch))
}

func (m *mockPatients) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockPatients) FindOrCreate(ctx context.Context, in appointment.PatientInput) (*appointment.Patient, bool, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	return args.Get(0).(*appointment.Patient), args.Bool(1), args.Error(2)
}

type fakePinger struct {
	err error
}

func (p fakePinger) Ping(context.Context) error {
	return p.err
}
