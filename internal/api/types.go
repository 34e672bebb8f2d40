package api

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
)

// optional distinguishes an absent JSON field from an explicit null.
type optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

func (o *optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Null = true
		return nil
	}
	return json.Unmarshal(data, &o.Value)
}

type BookingRequest struct {
	PatientID       *string `json:"patient_id"`
	PatientName     string  `json:"patient_name"`
	PatientEmail    string  `json:"patient_email"`
	PatientPhone    string  `json:"patient_phone"`
	TreatmentType   string  `json:"treatment_type"`
	AppointmentDate *string `json:"appointment_date"`
	Notes           *string `json:"notes"`
}

type UpdateAppointmentRequest struct {
	PatientName     optional[string] `json:"patient_name"`
	PatientEmail    optional[string] `json:"patient_email"`
	PatientPhone    optional[string] `json:"patient_phone"`
	TreatmentType   optional[string] `json:"treatment_type"`
	AppointmentDate optional[string] `json:"appointment_date"`
	Notes           optional[string] `json:"notes"`
	Status          optional[string] `json:"status"`
}

type RescheduleRequest struct {
	AppointmentDate *string `json:"appointment_date"`
}

type PatientRequest struct {
	Name  string  `json:"name"`
	Email string  `json:"email"`
	Phone string  `json:"phone"`
	Notes *string `json:"notes"`
}

type UpdatePatientRequest struct {
	Name  optional[string] `json:"name"`
	Email optional[string] `json:"email"`
	Phone optional[string] `json:"phone"`
	Notes optional[string] `json:"notes"`
}

// Responses

type PatientResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Notes     *string   `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type AppointmentBriefResponse struct {
	ID              uuid.UUID  `json:"id"`
	AppointmentDate *time.Time `json:"appointment_date"`
	Status          string     `json:"status"`
}

type PatientSummaryResponse struct {
	PatientResponse
	AppointmentsCount int                       `json:"appointments_count"`
	LatestAppointment *AppointmentBriefResponse `json:"latest_appointment"`
}

type PatientDetailResponse struct {
	PatientResponse
	Appointments []AppointmentResponse `json:"appointments"`
}

type AppointmentResponse struct {
	ID              uuid.UUID        `json:"id"`
	OwnerID         *string          `json:"owner_id"`
	PatientID       *uuid.UUID       `json:"patient_id"`
	PatientName     string           `json:"patient_name"`
	PatientEmail    string           `json:"patient_email"`
	PatientPhone    string           `json:"patient_phone"`
	TreatmentType   string           `json:"treatment_type"`
	TreatmentLabel  string           `json:"treatment_label"`
	AppointmentDate *time.Time       `json:"appointment_date"`
	Notes           *string          `json:"notes"`
	Status          string           `json:"status"`
	CalendarEventID *string          `json:"calendar_event_id"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	Patient         *PatientResponse `json:"patient"`
}

type AppointmentEnvelope struct {
	Message     string              `json:"message,omitempty"`
	Appointment AppointmentResponse `json:"appointment"`
}

type PatientEnvelope struct {
	Message string          `json:"message,omitempty"`
	Patient PatientResponse `json:"patient"`
	Created *bool           `json:"created,omitempty"`
}

type WeeklyCalendarResponse struct {
	StartDate    string                `json:"start_date"`
	EndDate      string                `json:"end_date"`
	Appointments []AppointmentResponse `json:"appointments"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error   string              `json:"error"`
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

func toPatientResponse(p appointment.Patient) PatientResponse {
	return PatientResponse{
		ID:        p.ID,
		Name:      p.Name,
		Email:     p.Email,
		Phone:     p.Phone,
		Notes:     p.Notes,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func toPatientSummaryResponse(s appointment.PatientSummary) PatientSummaryResponse {
	resp := PatientSummaryResponse{
		PatientResponse:   toPatientResponse(s.Patient),
		AppointmentsCount: s.AppointmentsCount,
	}
	if s.LatestAppointment != nil {
		resp.LatestAppointment = &AppointmentBriefResponse{
			ID:              s.LatestAppointment.ID,
			AppointmentDate: s.LatestAppointment.AppointmentDate,
			Status:          string(s.LatestAppointment.Status),
		}
	}
	return resp
}

func toAppointmentResponse(a appointment.Appointment) AppointmentResponse {
	resp := AppointmentResponse{
		ID:              a.ID,
		PatientID:       a.PatientID,
		PatientName:     a.Contact.Name,
		PatientEmail:    a.Contact.Email,
		PatientPhone:    a.Contact.Phone,
		TreatmentType:   string(a.TreatmentType),
		TreatmentLabel:  a.TreatmentType.Label(),
		AppointmentDate: a.AppointmentDate,
		Notes:           a.Notes,
		Status:          string(a.Status),
		CalendarEventID: a.CalendarEventID,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
	if a.OwnerID != appointment.Unclaimed {
		owner := string(a.OwnerID)
		resp.OwnerID = &owner
	}
	if a.Patient != nil {
		p := toPatientResponse(*a.Patient)
		resp.Patient = &p
	}
	return resp
}

func toAppointmentResponses(items []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(items))
	for _, a := range items {
		out = append(out, toAppointmentResponse(a))
	}
	return out
}

// Date parsing

var dateTimeLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseDateTime accepts RFC 3339 or a zone-less local layout interpreted in loc.
func parseDateTime(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseOptionalDateTime returns nil for a missing or blank value and records a
// field violation for an unparseable one.
func parseOptionalDateTime(s *string, field string, loc *time.Location, verr *appointment.ValidationError) *time.Time {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	t, ok := parseDateTime(*s, loc)
	if !ok {
		verr.Add(field, "the "+strings.ReplaceAll(field, "_", " ")+" is not a valid date")
		return nil
	}
	return &t
}
