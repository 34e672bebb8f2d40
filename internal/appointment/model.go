package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

var allStatuses = []Status{StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted}

func (s Status) Valid() bool {
	for _, v := range allStatuses {
		if s == v {
			return true
		}
	}
	return false
}

type TreatmentType string

const (
	TreatmentGeneralConsultation TreatmentType = "consulta_general"
	TreatmentMetalBraces         TreatmentType = "brackets_metalicos"
	TreatmentEstheticBraces      TreatmentType = "brackets_esteticos"
	TreatmentClearAligners       TreatmentType = "ortodoncia_invisible"
	TreatmentPediatric           TreatmentType = "ortodoncia_infantil"

	// Legacy values still present on older rows.
	TreatmentLegacyBraces      TreatmentType = "brackets"
	TreatmentLegacyOrthodontic TreatmentType = "ortodoncia"
)

var treatmentLabels = map[TreatmentType]string{
	TreatmentGeneralConsultation: "Consulta General",
	TreatmentMetalBraces:         "Brackets Metálicos",
	TreatmentEstheticBraces:      "Brackets Estéticos",
	TreatmentClearAligners:       "Ortodoncia Invisible",
	TreatmentPediatric:           "Ortodoncia Infantil",
	TreatmentLegacyBraces:        "Brackets",
	TreatmentLegacyOrthodontic:   "Ortodoncia",
}

func (t TreatmentType) Valid() bool {
	_, ok := treatmentLabels[t]
	return ok
}

// Label returns the display name, or the raw value for unknown types.
func (t TreatmentType) Label() string {
	if l, ok := treatmentLabels[t]; ok {
		return l
	}
	return string(t)
}

// StaffID is the opaque identity of an authenticated staff member.
type StaffID string

// Unclaimed is the owner of appointments that came in through the public form.
// Any staff member may act on them.
const Unclaimed StaffID = ""

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Phone     string
	Notes     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ContactSnapshot is the patient contact data copied onto an appointment when
// it is booked. It is not kept in sync with the Patient row.
type ContactSnapshot struct {
	Name  string
	Email string
	Phone string
}

type Appointment struct {
	ID              uuid.UUID
	OwnerID         StaffID
	PatientID       *uuid.UUID
	Contact         ContactSnapshot
	TreatmentType   TreatmentType
	AppointmentDate *time.Time // nil for information-only requests
	Notes           *string
	Status          Status
	CalendarEventID *string
	CreatedAt       time.Time
	UpdatedAt       time.Time

	// Patient is the linked patient row when the read joined it.
	Patient *Patient
}

// AccessibleBy reports whether caller may view or mutate the appointment.
func (a *Appointment) AccessibleBy(caller StaffID) bool {
	return a.OwnerID == Unclaimed || a.OwnerID == caller
}

// Scheduled reports whether the appointment occupies a time on the calendar.
func (a *Appointment) Scheduled() bool {
	return a.AppointmentDate != nil && a.Status.BlocksSchedule()
}

// AppointmentBrief is the latest-appointment summary shown in patient lists.
type AppointmentBrief struct {
	ID              uuid.UUID
	AppointmentDate *time.Time
	Status          Status
}

type PatientSummary struct {
	Patient
	AppointmentsCount int
	LatestAppointment *AppointmentBrief
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
