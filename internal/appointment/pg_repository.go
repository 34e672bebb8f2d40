package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const patientCols = `id, name, email, phone, notes, created_at, updated_at`

// appointmentCols selects from an appointments row aliased a joined to its
// patient aliased p.
const appointmentCols = `a.id, a.owner_id, a.patient_id, a.patient_name, a.patient_email, a.patient_phone,
	a.treatment_type, a.appointment_date, a.notes, a.status, a.calendar_event_id, a.created_at, a.updated_at,
	p.id, p.name, p.email, p.phone, p.notes, p.created_at, p.updated_at`

// withPatient wraps a data-modifying statement that RETURNs * so the result is
// read back in the same shape as a plain select.
func withPatient(stmt string) string {
	return `WITH a AS (` + stmt + `)
		SELECT ` + appointmentCols + `
		FROM a LEFT JOIN patients p ON p.id = a.patient_id`
}

// Helpers

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.Notes, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var owner *string
	var (
		pID        *uuid.UUID
		pName      *string
		pEmail     *string
		pPhone     *string
		pNotes     *string
		pCreatedAt *time.Time
		pUpdatedAt *time.Time
	)

	err := row.Scan(
		&a.ID,
		&owner,
		&a.PatientID,
		&a.Contact.Name,
		&a.Contact.Email,
		&a.Contact.Phone,
		&a.TreatmentType,
		&a.AppointmentDate,
		&a.Notes,
		&a.Status,
		&a.CalendarEventID,
		&a.CreatedAt,
		&a.UpdatedAt,
		&pID, &pName, &pEmail, &pPhone, &pNotes, &pCreatedAt, &pUpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if owner != nil {
		a.OwnerID = StaffID(*owner)
	}
	if pID != nil {
		a.Patient = &Patient{
			ID:        *pID,
			Name:      deref(pName),
			Email:     deref(pEmail),
			Phone:     deref(pPhone),
			Notes:     pNotes,
			CreatedAt: derefTime(pCreatedAt),
			UpdatedAt: derefTime(pUpdatedAt),
		}
	}
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func ownerParam(id StaffID) *string {
	if id == Unclaimed {
		return nil
	}
	s := string(id)
	return &s
}

// likePattern escapes LIKE metacharacters and wraps term for a contains match.
func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(term) + "%"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// Patients

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetPatientByEmail(ctx context.Context, email string) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE email = $1`, email)
	return scanPatient(row)
}

func (r *PgRepository) CreatePatient(ctx context.Context, in PatientInput) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO patients (id, name, email, phone, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING `+patientCols,
		uuid.New(), in.Name, in.Email, in.Phone, in.Notes)

	p, err := scanPatient(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("insert patient: %w", err)
	}
	return p, nil
}

func (r *PgRepository) UpdatePatient(ctx context.Context, p *Patient) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE patients
		SET name = $2, email = $3, phone = $4, notes = $5, updated_at = now()
		WHERE id = $1
		RETURNING `+patientCols,
		p.ID, p.Name, p.Email, p.Phone, p.Notes)

	updated, err := scanPatient(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	return updated, nil
}

func (r *PgRepository) UpdatePatientPhone(ctx context.Context, id uuid.UUID, phone string) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE patients SET phone = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+patientCols, id, phone)
	return scanPatient(row)
}

func (r *PgRepository) DeletePatient(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrPatientHasAppointments
		}
		return fmt.Errorf("delete patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	return nil
}

func (r *PgRepository) CountPatientAppointments(ctx context.Context, id uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM appointments WHERE patient_id = $1`, id).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count patient appointments: %w", err)
	}
	return n, nil
}

func (r *PgRepository) ListPatients(ctx context.Context, q PatientQuery) ([]PatientSummary, int, error) {
	where := ""
	var args []any
	if q.Search != "" {
		args = append(args, likePattern(q.Search))
		where = `WHERE p.name ILIKE $1 OR p.email ILIKE $1 OR p.phone ILIKE $1`
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM patients p `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}

	sortBy := q.SortBy
	if !sortBy.Valid() {
		sortBy = SortByCreatedAt
	}
	dir := "ASC"
	if q.SortDesc {
		dir = "DESC"
	}

	page := q.Page.normalize()
	args = append(args, page.PerPage, page.Offset())
	query := fmt.Sprintf(`
		SELECT p.id, p.name, p.email, p.phone, p.notes, p.created_at, p.updated_at,
		       (SELECT COUNT(*) FROM appointments c WHERE c.patient_id = p.id),
		       la.id, la.appointment_date, la.status
		FROM patients p
		LEFT JOIN LATERAL (
			SELECT id, appointment_date, status
			FROM appointments l
			WHERE l.patient_id = p.id
			ORDER BY l.appointment_date DESC NULLS LAST, l.created_at DESC
			LIMIT 1
		) la ON true
		%s
		ORDER BY p.%s %s, p.id
		LIMIT $%d OFFSET $%d`, where, sortBy, dir, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	var result []PatientSummary
	for rows.Next() {
		var s PatientSummary
		var latestID *uuid.UUID
		var latestDate *time.Time
		var latestStatus *string
		if err := rows.Scan(
			&s.ID, &s.Name, &s.Email, &s.Phone, &s.Notes, &s.CreatedAt, &s.UpdatedAt,
			&s.AppointmentsCount,
			&latestID, &latestDate, &latestStatus,
		); err != nil {
			return nil, 0, err
		}
		if latestID != nil {
			s.LatestAppointment = &AppointmentBrief{
				ID:              *latestID,
				AppointmentDate: latestDate,
				Status:          Status(deref(latestStatus)),
			}
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func (r *PgRepository) SearchPatients(ctx context.Context, term string, limit int) ([]Patient, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+patientCols+`
		FROM patients
		WHERE name ILIKE $1 OR email ILIKE $1 OR phone ILIKE $1
		ORDER BY name, id
		LIMIT $2`, likePattern(term), limit)
	if err != nil {
		return nil, fmt.Errorf("search patients: %w", err)
	}
	defer rows.Close()

	var result []Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments a LEFT JOIN patients p ON p.id = a.patient_id
		WHERE a.patient_id = $1
		ORDER BY a.appointment_date DESC NULLS LAST, a.created_at DESC`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return collectAppointments(rows)
}

// Appointments

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments a LEFT JOIN patients p ON p.id = a.patient_id
		WHERE a.id = $1`, id)
	return scanAppointment(row)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	status := a.Status
	if status == "" {
		status = StatusPending
	}

	row := r.pool.QueryRow(ctx, withPatient(`
		INSERT INTO appointments (id, owner_id, patient_id, patient_name, patient_email, patient_phone,
			treatment_type, appointment_date, notes, status, calendar_event_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		RETURNING *`),
		uuid.New(), ownerParam(a.OwnerID), a.PatientID, a.Contact.Name, a.Contact.Email, a.Contact.Phone,
		a.TreatmentType, a.AppointmentDate, a.Notes, status, a.CalendarEventID)

	created, err := scanAppointment(row)
	if err != nil {
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	return created, nil
}

func (r *PgRepository) UpdateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, withPatient(`
		UPDATE appointments
		SET patient_name = $2, patient_email = $3, patient_phone = $4, treatment_type = $5,
		    appointment_date = $6, notes = $7, status = $8, updated_at = now()
		WHERE id = $1
		RETURNING *`),
		a.ID, a.Contact.Name, a.Contact.Email, a.Contact.Phone, a.TreatmentType,
		a.AppointmentDate, a.Notes, a.Status)
	return scanAppointment(row)
}

func (r *PgRepository) SetAppointmentStatus(ctx context.Context, id uuid.UUID, status Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, withPatient(`
		UPDATE appointments SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING *`), id, status)
	return scanAppointment(row)
}

func (r *PgRepository) RescheduleAppointment(ctx context.Context, id uuid.UUID, at time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, withPatient(`
		UPDATE appointments SET appointment_date = $2, status = $3, updated_at = now()
		WHERE id = $1
		RETURNING *`), id, at, StatusPending)
	return scanAppointment(row)
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, int, error) {
	var conds []string
	var args []any
	idx := 1

	if f.Status != nil {
		conds = append(conds, fmt.Sprintf("a.status = $%d", idx))
		args = append(args, *f.Status)
		idx++
	}
	if f.Since != nil {
		conds = append(conds, fmt.Sprintf("a.appointment_date >= $%d", idx))
		args = append(args, *f.Since)
		idx++
	}
	if f.Until != nil {
		conds = append(conds, fmt.Sprintf("a.appointment_date < $%d", idx))
		args = append(args, *f.Until)
		idx++
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM appointments a `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	page := f.Page.normalize()
	query := fmt.Sprintf(`
		SELECT %s
		FROM appointments a LEFT JOIN patients p ON p.id = a.patient_id
		%s
		ORDER BY a.appointment_date DESC NULLS LAST, a.created_at DESC
		LIMIT $%d OFFSET $%d`, appointmentCols, where, idx, idx+1)
	args = append(args, page.PerPage, page.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	items, err := collectAppointments(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *PgRepository) ListAppointmentsBetween(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments a LEFT JOIN patients p ON p.id = a.patient_id
		WHERE a.appointment_date IS NOT NULL
		  AND a.appointment_date BETWEEN $1 AND $2
		  AND a.status <> $3
		ORDER BY a.appointment_date ASC, a.created_at ASC`, from, to, StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("list appointments between: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ExistsActiveAppointmentBetween(ctx context.Context, from, to time.Time, excludeID *uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE appointment_date IS NOT NULL
			  AND appointment_date BETWEEN $1 AND $2
			  AND status <> $3
			  AND ($4::uuid IS NULL OR id <> $4)
		)`, from, to, StatusCancelled, excludeID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointment_events (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
