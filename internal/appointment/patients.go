package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	redisclient "github.com/hackgods/clinic-appointment-booking/internal/redis"
)

// PatientService owns patient records and the find-or-create used by bookings.
type PatientService struct {
	repo   Repository
	locker redisclient.Locker // nil outside strict mode
	logger *zap.Logger
}

func NewPatientService(repo Repository, locker redisclient.Locker, logger *zap.Logger) *PatientService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PatientService{repo: repo, locker: locker, logger: logger}
}

// FindOrCreate returns the patient registered under in.Email, creating one when
// none exists. An existing patient keeps its name but takes the submitted phone
// when it differs. The bool reports whether a patient was created.
func (s *PatientService) FindOrCreate(ctx context.Context, in PatientInput) (*Patient, bool, error) {
	in.Email = normalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	if err := validatePatient(in); err != nil {
		return nil, false, err
	}

	if s.locker == nil {
		p, created, err := s.findOrCreate(ctx, in)
		if errors.Is(err, ErrDuplicateEmail) {
			// Another request created the same email between lookup and insert.
			return nil, false, fmt.Errorf("create patient %q: concurrent insert: %v", in.Email, err)
		}
		return p, created, err
	}

	var (
		p       *Patient
		created bool
	)
	err := s.locker.WithLock(ctx, []string{patientLockKey(in.Email)}, func(lockCtx context.Context) error {
		var err error
		p, created, err = s.findOrCreate(lockCtx, in)
		if errors.Is(err, ErrDuplicateEmail) {
			// A writer outside the lock got there first; read its row back.
			p, err = s.repo.GetPatientByEmail(lockCtx, in.Email)
			created = false
		}
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return p, created, nil
}

func (s *PatientService) findOrCreate(ctx context.Context, in PatientInput) (*Patient, bool, error) {
	existing, err := s.repo.GetPatientByEmail(ctx, in.Email)
	switch {
	case err == nil:
		if in.Phone != "" && existing.Phone != in.Phone {
			updated, err := s.repo.UpdatePatientPhone(ctx, existing.ID, in.Phone)
			if err != nil {
				return nil, false, fmt.Errorf("update patient phone: %w", err)
			}
			return updated, false, nil
		}
		return existing, false, nil
	case errors.Is(err, ErrPatientNotFound):
	default:
		return nil, false, fmt.Errorf("lookup patient by email: %w", err)
	}

	created, err := s.repo.CreatePatient(ctx, in)
	if err != nil {
		return nil, false, err
	}
	s.logger.Info("patient created", zap.String("patient_id", created.ID.String()))
	return created, true, nil
}

func (s *PatientService) Create(ctx context.Context, in PatientInput) (*Patient, error) {
	in.Email = normalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	if err := validatePatient(in); err != nil {
		return nil, err
	}

	if _, err := s.repo.GetPatientByEmail(ctx, in.Email); err == nil {
		return nil, duplicateEmailError()
	} else if !errors.Is(err, ErrPatientNotFound) {
		return nil, fmt.Errorf("lookup patient by email: %w", err)
	}

	p, err := s.repo.CreatePatient(ctx, in)
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, duplicateEmailError()
		}
		return nil, err
	}
	return p, nil
}

func (s *PatientService) Update(ctx context.Context, id uuid.UUID, patch PatientPatch) (*Patient, error) {
	patch.Name = trimPtr(patch.Name)
	patch.Phone = trimPtr(patch.Phone)
	if patch.Email != nil {
		e := normalizeEmail(*patch.Email)
		patch.Email = &e
	}
	if err := validatePatientPatch(patch); err != nil {
		return nil, err
	}

	p, err := s.repo.GetPatientByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Email != nil && *patch.Email != p.Email {
		other, err := s.repo.GetPatientByEmail(ctx, *patch.Email)
		switch {
		case err == nil && other.ID != p.ID:
			return nil, duplicateEmailError()
		case err != nil && !errors.Is(err, ErrPatientNotFound):
			return nil, fmt.Errorf("lookup patient by email: %w", err)
		}
		p.Email = *patch.Email
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Phone != nil {
		p.Phone = *patch.Phone
	}
	if patch.Notes != nil {
		p.Notes = emptyToNil(*patch.Notes)
	}

	updated, err := s.repo.UpdatePatient(ctx, p)
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, duplicateEmailError()
		}
		return nil, err
	}
	return updated, nil
}

// Delete removes a patient that has no appointments.
func (s *PatientService) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.GetPatientByID(ctx, id); err != nil {
		return err
	}
	n, err := s.repo.CountPatientAppointments(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrPatientHasAppointments
	}
	return s.repo.DeletePatient(ctx, id)
}

func (s *PatientService) Get(ctx context.Context, id uuid.UUID) (*PatientDetail, error) {
	p, err := s.repo.GetPatientByID(ctx, id)
	if err != nil {
		return nil, err
	}
	appts, err := s.repo.ListAppointmentsByPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	return &PatientDetail{Patient: *p, Appointments: appts}, nil
}

func (s *PatientService) FindByEmail(ctx context.Context, email string) (*Patient, error) {
	return s.repo.GetPatientByEmail(ctx, normalizeEmail(email))
}

func (s *PatientService) List(ctx context.Context, q PatientQuery) ([]PatientSummary, int, Page, error) {
	q.Search = strings.TrimSpace(q.Search)
	if !q.SortBy.Valid() {
		q.SortBy = SortByCreatedAt
	}
	q.Page = q.Page.normalize()

	items, total, err := s.repo.ListPatients(ctx, q)
	if err != nil {
		return nil, 0, q.Page, err
	}
	return items, total, q.Page, nil
}

// Search is the type-ahead lookup. Terms shorter than two characters match nothing.
func (s *PatientService) Search(ctx context.Context, term string) ([]Patient, error) {
	term = strings.TrimSpace(term)
	if len([]rune(term)) < minSearchLength {
		return []Patient{}, nil
	}
	return s.repo.SearchPatients(ctx, term, patientSearchLimit)
}

func emptyToNil(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
