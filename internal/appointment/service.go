package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-booking/internal/config"
	redisclient "github.com/hackgods/clinic-appointment-booking/internal/redis"
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentConfirmed   = "APPOINTMENT_CONFIRMED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentOverridden  = "APPOINTMENT_ADMIN_OVERRIDE"
	EventAppointmentDeleted     = "APPOINTMENT_DELETED"
)

// ErrSlotBeingBooked is returned in strict mode when another request holds a
// lock on an overlapping time or the same patient email.
var ErrSlotBeingBooked = errors.New("slot is currently being booked, please retry")

// ListQuery filters the appointment list. FromDate and ToDate are calendar
// days in the clinic zone, both inclusive.
type ListQuery struct {
	Status   *Status
	FromDate *time.Time
	ToDate   *time.Time
	Page     Page
}

type Service struct {
	repo      Repository
	conflicts *ConflictChecker
	patients  *PatientService
	locker    redisclient.Locker // nil in baseline mode
	logger    *zap.Logger
	loc       *time.Location
	now       func() time.Time
}

// NewService wires the booking core. The locker is only used when cfg selects
// strict mode; pass nil otherwise.
func NewService(repo Repository, locker redisclient.Locker, cfg config.Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Strict() {
		locker = nil
	}
	return &Service{
		repo:      repo,
		conflicts: NewConflictChecker(repo),
		patients:  NewPatientService(repo, locker, logger),
		locker:    locker,
		logger:    logger,
		loc:       cfg.Location(),
		now:       time.Now,
	}
}

func (s *Service) Patients() *PatientService {
	return s.patients
}

// CreatePublic books an unclaimed appointment from the public form. The date
// may be omitted for information-only requests.
func (s *Service) CreatePublic(ctx context.Context, in BookingInput) (*Appointment, error) {
	in = trimBooking(in)
	in.PatientID = nil
	if err := validateBooking(in, false, s.now()); err != nil {
		return nil, err
	}
	return s.book(ctx, Unclaimed, in)
}

// Create books an appointment owned by caller. The date is required.
func (s *Service) Create(ctx context.Context, caller StaffID, in BookingInput) (*Appointment, error) {
	in = trimBooking(in)
	if err := validateBooking(in, true, s.now()); err != nil {
		return nil, err
	}
	if in.PatientID != nil {
		if _, err := s.repo.GetPatientByID(ctx, *in.PatientID); err != nil {
			if errors.Is(err, ErrPatientNotFound) {
				verr := NewValidationError()
				verr.Add("patient_id", "the selected patient id is invalid")
				return nil, verr
			}
			return nil, fmt.Errorf("load patient: %w", err)
		}
	}
	return s.book(ctx, caller, in)
}

func (s *Service) book(ctx context.Context, owner StaffID, in BookingInput) (*Appointment, error) {
	var created *Appointment

	err := s.guard(ctx, slotKeys(in.AppointmentDate), func(ctx context.Context) error {
		conflict, err := s.conflicts.HasConflict(ctx, in.AppointmentDate, nil)
		if err != nil {
			return err
		}
		if conflict {
			return timeConflictError()
		}

		patientID := in.PatientID
		if patientID == nil {
			p, _, err := s.patients.FindOrCreate(ctx, PatientInput{
				Name:  in.PatientName,
				Email: in.PatientEmail,
				Phone: in.PatientPhone,
			})
			if err != nil {
				return fmt.Errorf("resolve patient: %w", err)
			}
			patientID = &p.ID
		}

		appt, err := s.repo.CreateAppointment(ctx, &Appointment{
			OwnerID:   owner,
			PatientID: patientID,
			Contact: ContactSnapshot{
				Name:  in.PatientName,
				Email: in.PatientEmail,
				Phone: in.PatientPhone,
			},
			TreatmentType:   TreatmentType(in.TreatmentType),
			AppointmentDate: in.AppointmentDate,
			Notes:           in.Notes,
			Status:          StatusPending,
		})
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}
		created = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, created.ID, EventAppointmentCreated, map[string]any{
		"owner_id":         string(owner),
		"patient_id":       created.PatientID,
		"appointment_date": created.AppointmentDate,
	})
	return created, nil
}

// List returns every appointment matching q, newest date first. Visibility is
// not filtered by owner here; staff see the whole book.
func (s *Service) List(ctx context.Context, q ListQuery) ([]Appointment, int, Page, error) {
	f := AppointmentFilter{Status: q.Status, Page: q.Page.normalize()}
	if q.FromDate != nil {
		since := startOfDay(q.FromDate.In(s.loc))
		f.Since = &since
	}
	if q.ToDate != nil {
		until := startOfDay(q.ToDate.In(s.loc)).AddDate(0, 0, 1)
		f.Until = &until
	}

	items, total, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, 0, f.Page, err
	}
	return items, total, f.Page, nil
}

func (s *Service) Get(ctx context.Context, caller StaffID, id uuid.UUID) (*Appointment, error) {
	return s.loadFor(ctx, caller, id)
}

// Update is the administrative override. It may set any field, including a
// status outside the named transitions, and records the change as an audit
// event. A new date is conflict-checked against everything but itself.
func (s *Service) Update(ctx context.Context, caller StaffID, id uuid.UUID, patch AppointmentPatch) (*Appointment, error) {
	appt, err := s.loadFor(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	patch = trimPatch(patch)
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	oldStatus := appt.Status
	applyPatch(appt, patch)

	var updated *Appointment
	err = s.guard(ctx, slotKeys(patch.AppointmentDate), func(ctx context.Context) error {
		if patch.AppointmentDate != nil {
			conflict, err := s.conflicts.HasConflict(ctx, patch.AppointmentDate, &appt.ID)
			if err != nil {
				return err
			}
			if conflict {
				return timeConflictError()
			}
		}
		var err error
		updated, err = s.repo.UpdateAppointment(ctx, appt)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, updated.ID, EventAppointmentOverridden, map[string]any{
		"by":         string(caller),
		"fields":     patch.changedFields(),
		"old_status": oldStatus,
		"new_status": updated.Status,
	})
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, caller StaffID, id uuid.UUID) error {
	if _, err := s.loadFor(ctx, caller, id); err != nil {
		return err
	}
	if err := s.repo.DeleteAppointment(ctx, id); err != nil {
		return err
	}
	s.logEvent(ctx, id, EventAppointmentDeleted, map[string]any{"by": string(caller)})
	return nil
}

func (s *Service) Confirm(ctx context.Context, caller StaffID, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, caller, id, TransitionConfirm, EventAppointmentConfirmed)
}

func (s *Service) Cancel(ctx context.Context, caller StaffID, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, caller, id, TransitionCancel, EventAppointmentCancelled)
}

func (s *Service) transition(ctx context.Context, caller StaffID, id uuid.UUID, tr Transition, event string) (*Appointment, error) {
	appt, err := s.loadFor(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	to, ok := NextStatus(tr, appt.Status)
	if !ok {
		return nil, fmt.Errorf("unknown transition %q", tr)
	}

	updated, err := s.repo.SetAppointmentStatus(ctx, id, to)
	if err != nil {
		return nil, fmt.Errorf("%s appointment: %w", tr, err)
	}

	s.logEvent(ctx, id, event, map[string]any{
		"by":   string(caller),
		"from": appt.Status,
		"to":   to,
	})
	return updated, nil
}

// Reschedule moves the appointment to at, which must be in the future and free
// of conflicts with any other appointment. Status always returns to pending.
func (s *Service) Reschedule(ctx context.Context, caller StaffID, id uuid.UUID, at *time.Time) (*Appointment, error) {
	appt, err := s.loadFor(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	verr := NewValidationError()
	switch {
	case at == nil:
		verr.Add("appointment_date", "the appointment date field is required")
	case !at.After(s.now()):
		verr.Add("appointment_date", "the appointment date must be a date after now")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	var updated *Appointment
	err = s.guard(ctx, slotKeys(at), func(ctx context.Context) error {
		if TransitionReschedule.ChecksConflicts() {
			conflict, err := s.conflicts.HasConflict(ctx, at, &appt.ID)
			if err != nil {
				return err
			}
			if conflict {
				return timeConflictError()
			}
		}
		var err error
		updated, err = s.repo.RescheduleAppointment(ctx, id, *at)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, id, EventAppointmentRescheduled, map[string]any{
		"by":       string(caller),
		"from":     appt.AppointmentDate,
		"to":       at,
		"previous": appt.Status,
	})
	return updated, nil
}

// WeeklyCalendar returns the scheduled appointments in the Monday to Saturday
// window containing anchor, or the current week when anchor is nil.
func (s *Service) WeeklyCalendar(ctx context.Context, anchor *time.Time) (*WeeklyCalendar, error) {
	w := WeekWindowFor(anchor, s.now(), s.loc)

	appts, err := s.repo.ListAppointmentsBetween(ctx, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("list weekly appointments: %w", err)
	}
	if appts == nil {
		appts = []Appointment{}
	}
	return &WeeklyCalendar{Window: w, Appointments: appts}, nil
}

// loadFor fetches an appointment and checks caller may act on it. A missing
// appointment is reported before an ownership mismatch.
func (s *Service) loadFor(ctx context.Context, caller StaffID, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !appt.AccessibleBy(caller) {
		return nil, ErrForbidden
	}
	return appt, nil
}

// guard runs fn while holding keys in strict mode and directly otherwise.
func (s *Service) guard(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	var err error
	if s.locker == nil || len(keys) == 0 {
		err = fn(ctx)
	} else {
		err = s.locker.WithLock(ctx, keys, fn)
	}
	// The patient email lock may also be contended inside fn.
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrSlotBeingBooked
	}
	return err
}

func slotKeys(at *time.Time) []string {
	if at == nil {
		return nil
	}
	return scheduleLockKeys(*at)
}

func applyPatch(a *Appointment, p AppointmentPatch) {
	if p.PatientName != nil {
		a.Contact.Name = *p.PatientName
	}
	if p.PatientEmail != nil {
		a.Contact.Email = *p.PatientEmail
	}
	if p.PatientPhone != nil {
		a.Contact.Phone = *p.PatientPhone
	}
	if p.TreatmentType != nil {
		a.TreatmentType = TreatmentType(*p.TreatmentType)
	}
	if p.AppointmentDate != nil {
		at := *p.AppointmentDate
		a.AppointmentDate = &at
	}
	if p.Notes != nil {
		a.Notes = emptyToNil(*p.Notes)
	}
	if p.Status != nil {
		a.Status = Status(*p.Status)
	}
}

func trimBooking(in BookingInput) BookingInput {
	in.PatientName = strings.TrimSpace(in.PatientName)
	in.PatientEmail = normalizeEmail(in.PatientEmail)
	in.PatientPhone = strings.TrimSpace(in.PatientPhone)
	in.TreatmentType = strings.TrimSpace(in.TreatmentType)
	if in.Notes != nil {
		in.Notes = emptyToNil(*in.Notes)
	}
	return in
}

func trimPatch(p AppointmentPatch) AppointmentPatch {
	p.PatientName = trimPtr(p.PatientName)
	p.PatientEmail = trimPtr(p.PatientEmail)
	p.PatientPhone = trimPtr(p.PatientPhone)
	p.TreatmentType = trimPtr(p.TreatmentType)
	p.Status = trimPtr(p.Status)
	return p
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error("insert event log",
			zap.String("event", eventType),
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err),
		)
		return
	}
	s.logger.Info("appointment event",
		zap.String("event", eventType),
		zap.String("appointment_id", appointmentID.String()),
	)
}
