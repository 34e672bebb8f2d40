package appointment

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memRepository is an in-memory Repository used by the core tests.
type memRepository struct {
	mu           sync.Mutex
	patients     map[uuid.UUID]*Patient
	appointments map[uuid.UUID]*Appointment
	events       []EventLog
	seq          time.Duration

	// beforeCreatePatient runs before a patient insert, outside the lock,
	// so a test can slip a competing row in.
	beforeCreatePatient func()
	eventErr            error
}

func newMemRepository() *memRepository {
	return &memRepository{
		patients:     make(map[uuid.UUID]*Patient),
		appointments: make(map[uuid.UUID]*Appointment),
	}
}

// stamp returns strictly increasing timestamps so created_at ordering is stable.
func (m *memRepository) stamp() time.Time {
	m.seq += time.Millisecond
	return time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC).Add(m.seq)
}

func clonePatient(p *Patient) *Patient {
	c := *p
	return &c
}

func (m *memRepository) hydrate(a *Appointment) *Appointment {
	c := *a
	c.Patient = nil
	if a.PatientID != nil {
		if p, ok := m.patients[*a.PatientID]; ok {
			c.Patient = clonePatient(p)
		}
	}
	return &c
}

func (m *memRepository) eventsOfType(t string) []EventLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []EventLog
	for _, ev := range m.events {
		if ev.EventType == t {
			out = append(out, ev)
		}
	}
	return out
}

func (m *memRepository) patientsWithEmail(email string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.patients {
		if p.Email == email {
			n++
		}
	}
	return n
}

// Patients

func (m *memRepository) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return clonePatient(p), nil
}

func (m *memRepository) GetPatientByEmail(_ context.Context, email string) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.patients {
		if p.Email == email {
			return clonePatient(p), nil
		}
	}
	return nil, ErrPatientNotFound
}

func (m *memRepository) CreatePatient(_ context.Context, in PatientInput) (*Patient, error) {
	if m.beforeCreatePatient != nil {
		m.beforeCreatePatient()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.patients {
		if p.Email == in.Email {
			return nil, ErrDuplicateEmail
		}
	}
	now := m.stamp()
	p := &Patient{ID: uuid.New(), Name: in.Name, Email: in.Email, Phone: in.Phone, Notes: in.Notes, CreatedAt: now, UpdatedAt: now}
	m.patients[p.ID] = p
	return clonePatient(p), nil
}

func (m *memRepository) UpdatePatient(_ context.Context, p *Patient) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.patients[p.ID]; !ok {
		return nil, ErrPatientNotFound
	}
	for _, other := range m.patients {
		if other.ID != p.ID && other.Email == p.Email {
			return nil, ErrDuplicateEmail
		}
	}
	c := clonePatient(p)
	c.UpdatedAt = m.stamp()
	m.patients[p.ID] = c
	return clonePatient(c), nil
}

func (m *memRepository) UpdatePatientPhone(_ context.Context, id uuid.UUID, phone string) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	p.Phone = phone
	p.UpdatedAt = m.stamp()
	return clonePatient(p), nil
}

func (m *memRepository) DeletePatient(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.patients[id]; !ok {
		return ErrPatientNotFound
	}
	for _, a := range m.appointments {
		if a.PatientID != nil && *a.PatientID == id {
			return ErrPatientHasAppointments
		}
	}
	delete(m.patients, id)
	return nil
}

func (m *memRepository) CountPatientAppointments(_ context.Context, id uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.appointments {
		if a.PatientID != nil && *a.PatientID == id {
			n++
		}
	}
	return n, nil
}

func (m *memRepository) ListPatients(_ context.Context, q PatientQuery) ([]PatientSummary, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	needle := strings.ToLower(q.Search)
	var matched []*Patient
	for _, p := range m.patients {
		if needle == "" ||
			strings.Contains(strings.ToLower(p.Name), needle) ||
			strings.Contains(strings.ToLower(p.Email), needle) ||
			strings.Contains(strings.ToLower(p.Phone), needle) {
			matched = append(matched, p)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if q.SortDesc {
			a, b = b, a
		}
		switch q.SortBy {
		case SortByName:
			return a.Name < b.Name
		case SortByEmail:
			return a.Email < b.Email
		case SortByUpdatedAt:
			return a.UpdatedAt.Before(b.UpdatedAt)
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	})

	total := len(matched)
	page := q.Page.normalize()
	matched = paginate(matched, page)

	out := make([]PatientSummary, 0, len(matched))
	for _, p := range matched {
		s := PatientSummary{Patient: *p}
		var latest *Appointment
		for _, a := range m.appointments {
			if a.PatientID == nil || *a.PatientID != p.ID {
				continue
			}
			s.AppointmentsCount++
			if latest == nil || newerFirst(a, latest) {
				latest = a
			}
		}
		if latest != nil {
			s.LatestAppointment = &AppointmentBrief{ID: latest.ID, AppointmentDate: latest.AppointmentDate, Status: latest.Status}
		}
		out = append(out, s)
	}
	return out, total, nil
}

func (m *memRepository) SearchPatients(_ context.Context, term string, limit int) ([]Patient, error) {
	summaries, _, err := m.ListPatients(context.Background(), PatientQuery{Search: term, SortBy: SortByName, Page: Page{Number: 1, PerPage: MaxPerPage}})
	if err != nil {
		return nil, err
	}
	out := []Patient{}
	for i, s := range summaries {
		if i == limit {
			break
		}
		out = append(out, s.Patient)
	}
	return out, nil
}

func (m *memRepository) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Appointment
	for _, a := range m.appointments {
		if a.PatientID != nil && *a.PatientID == patientID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return newerFirst(out[i], out[j]) })
	return m.flatten(out), nil
}

// Appointments

func (m *memRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return m.hydrate(a), nil
}

func (m *memRepository) CreateAppointment(_ context.Context, a *Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *a
	c.ID = uuid.New()
	c.Patient = nil
	if c.Status == "" {
		c.Status = StatusPending
	}
	c.CreatedAt = m.stamp()
	c.UpdatedAt = c.CreatedAt
	m.appointments[c.ID] = &c
	return m.hydrate(&c), nil
}

func (m *memRepository) UpdateAppointment(_ context.Context, a *Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.appointments[a.ID]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cur.Contact = a.Contact
	cur.TreatmentType = a.TreatmentType
	cur.AppointmentDate = a.AppointmentDate
	cur.Notes = a.Notes
	cur.Status = a.Status
	cur.UpdatedAt = m.stamp()
	return m.hydrate(cur), nil
}

func (m *memRepository) SetAppointmentStatus(_ context.Context, id uuid.UUID, status Status) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cur.Status = status
	cur.UpdatedAt = m.stamp()
	return m.hydrate(cur), nil
}

func (m *memRepository) RescheduleAppointment(_ context.Context, id uuid.UUID, at time.Time) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cur.AppointmentDate = &at
	cur.Status = StatusPending
	cur.UpdatedAt = m.stamp()
	return m.hydrate(cur), nil
}

func (m *memRepository) DeleteAppointment(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.appointments[id]; !ok {
		return ErrAppointmentNotFound
	}
	delete(m.appointments, id)
	return nil
}

func (m *memRepository) ListAppointments(_ context.Context, f AppointmentFilter) ([]Appointment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*Appointment
	for _, a := range m.appointments {
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		if (f.Since != nil || f.Until != nil) && a.AppointmentDate == nil {
			continue
		}
		if f.Since != nil && a.AppointmentDate.Before(*f.Since) {
			continue
		}
		if f.Until != nil && !a.AppointmentDate.Before(*f.Until) {
			continue
		}
		matched = append(matched, a)
	}
	sort.Slice(matched, func(i, j int) bool { return newerFirst(matched[i], matched[j]) })
	total := len(matched)
	return m.flatten(paginate(matched, f.Page.normalize())), total, nil
}

func (m *memRepository) ListAppointmentsBetween(_ context.Context, from, to time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Appointment
	for _, a := range m.appointments {
		if a.Scheduled() && !a.AppointmentDate.Before(from) && !a.AppointmentDate.After(to) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppointmentDate.Before(*out[j].AppointmentDate) })
	return m.flatten(out), nil
}

func (m *memRepository) ExistsActiveAppointmentBetween(_ context.Context, from, to time.Time, excludeID *uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.appointments {
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		if a.Scheduled() && !a.AppointmentDate.Before(from) && !a.AppointmentDate.After(to) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepository) InsertEvent(_ context.Context, ev EventLog) error {
	if m.eventErr != nil {
		return m.eventErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = int64(len(m.events) + 1)
	m.events = append(m.events, ev)
	return nil
}

func (m *memRepository) flatten(in []*Appointment) []Appointment {
	out := make([]Appointment, 0, len(in))
	for _, a := range in {
		out = append(out, *m.hydrate(a))
	}
	return out
}

// newerFirst orders by date descending with undated rows last, then by
// creation descending.
func newerFirst(a, b *Appointment) bool {
	switch {
	case a.AppointmentDate != nil && b.AppointmentDate == nil:
		return true
	case a.AppointmentDate == nil && b.AppointmentDate != nil:
		return false
	case a.AppointmentDate != nil && !a.AppointmentDate.Equal(*b.AppointmentDate):
		return a.AppointmentDate.After(*b.AppointmentDate)
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func paginate[T any](items []T, p Page) []T {
	start := p.Offset()
	if start >= len(items) {
		return nil
	}
	end := start + p.PerPage
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

var errStorageDown = errors.New("storage unavailable")
