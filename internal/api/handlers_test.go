package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/auth"
)

const testStaff = appointment.StaffID("staff-1")

type testServer struct {
	handler  http.Handler
	bookings *mockBookings
	patients *mockPatients
	token    string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	verifier := auth.NewVerifier("test-secret", "clinic-test")
	token, err := verifier.Issue(string(testStaff), time.Hour)
	require.NoError(t, err)

	bookings := &mockBookings{}
	patients := &mockPatients{}
	t.Cleanup(func() {
		bookings.AssertExpectations(t)
		patients.AssertExpectations(t)
	})

	return &testServer{
		handler: NewRouter(RouterConfig{
			Bookings: bookings,
			Patients: patients,
			Verifier: verifier,
			Location: time.UTC,
			DB:       fakePinger{},
			Env:      "test",
			Version:  "v0",
		}),
		bookings: bookings,
		patients: patients,
		token:    token,
	}
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	return s.request(method, path, body, s.token)
}

func (s *testServer) request(method, path, body, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func sampleAppointment(owner appointment.StaffID) *appointment.Appointment {
	at := time.Date(2030, 6, 5, 10, 0, 0, 0, time.UTC)
	pid := uuid.New()
	return &appointment.Appointment{
		ID:              uuid.New(),
		OwnerID:         owner,
		PatientID:       &pid,
		Contact:         appointment.ContactSnapshot{Name: "Ana", Email: "ana@x.com", Phone: "100"},
		TreatmentType:   appointment.TreatmentClearAligners,
		AppointmentDate: &at,
		Status:          appointment.StatusPending,
	}
}

const bookingBody = `{
	"patient_name": "Ana",
	"patient_email": "ana@x.com",
	"patient_phone": "100",
	"treatment_type": "ortodoncia_invisible",
	"appointment_date": "2030-06-05T10:00:00Z"
}`

func TestCreatePublicAppointment(t *testing.T) {
	s := newTestServer(t)
	appt := sampleAppointment(appointment.Unclaimed)

	s.bookings.On("CreatePublic", mock.Anything, mock.MatchedBy(func(in appointment.BookingInput) bool {
		return in.PatientID == nil &&
			in.PatientEmail == "ana@x.com" &&
			in.AppointmentDate != nil &&
			in.AppointmentDate.Equal(time.Date(2030, 6, 5, 10, 0, 0, 0, time.UTC))
	})).Return(appt, nil).Once()

	rec := s.request(http.MethodPost, "/api/appointments/public", bookingBody, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decodeBody[AppointmentEnvelope](t, rec)
	assert.NotEmpty(t, body.Message)
	assert.Equal(t, appt.ID, body.Appointment.ID)
	assert.Nil(t, body.Appointment.OwnerID)
	assert.Equal(t, "Ortodoncia Invisible", body.Appointment.TreatmentLabel)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCreatePublicAppointment_IgnoresPatientID(t *testing.T) {
	s := newTestServer(t)

	s.bookings.On("CreatePublic", mock.Anything, mock.MatchedBy(func(in appointment.BookingInput) bool {
		return in.PatientID == nil
	})).Return(sampleAppointment(appointment.Unclaimed), nil).Twice()

	for _, patientID := range []string{uuid.NewString(), "not-a-uuid"} {
		body := `{"patient_id": "` + patientID + `", "patient_name": "Ana", "patient_email": "ana@x.com",
			"patient_phone": "1", "treatment_type": "consulta_general"}`
		rec := s.request(http.MethodPost, "/api/appointments/public", body, "")
		assert.Equal(t, http.StatusCreated, rec.Code, "patient_id %q: %s", patientID, rec.Body.String())
	}
	s.bookings.AssertExpectations(t)
}

func TestCreatePublicAppointment_BadDate(t *testing.T) {
	s := newTestServer(t)

	body := `{"patient_name": "Ana", "patient_email": "ana@x.com", "patient_phone": "1",
		"treatment_type": "consulta_general", "appointment_date": "next tuesday"}`
	rec := s.request(http.MethodPost, "/api/appointments/public", body, "")

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "validation_error", resp.Error)
	assert.Contains(t, resp.Errors, "appointment_date")
	s.bookings.AssertNotCalled(t, "CreatePublic", mock.Anything, mock.Anything)
}

func TestCreatePublicAppointment_MalformedJSON(t *testing.T) {
	s := newTestServer(t)

	rec := s.request(http.MethodPost, "/api/appointments/public", `{"patient_name":`, "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request_body", decodeBody[ErrorResponse](t, rec).Error)
}

func TestCreatePublicAppointment_TimeConflict(t *testing.T) {
	s := newTestServer(t)

	s.bookings.On("CreatePublic", mock.Anything, mock.Anything).
		Return(nil, appointment.ErrTimeConflict).Once()

	rec := s.request(http.MethodPost, "/api/appointments/public", bookingBody, "")

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "time_conflict", decodeBody[ErrorResponse](t, rec).Error)
}

func TestCreateAppointment_RequiresStaff(t *testing.T) {
	s := newTestServer(t)

	rec := s.request(http.MethodPost, "/api/appointments/", bookingBody, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.request(http.MethodPost, "/api/appointments/", bookingBody, "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other := auth.NewVerifier("other-secret", "clinic-test")
	forged, err := other.Issue("staff-1", time.Hour)
	require.NoError(t, err)
	rec = s.request(http.MethodPost, "/api/appointments/", bookingBody, forged)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateAppointment_Staff(t *testing.T) {
	s := newTestServer(t)
	patientID := uuid.New()
	appt := sampleAppointment(testStaff)

	s.bookings.On("Create", mock.Anything, testStaff, mock.MatchedBy(func(in appointment.BookingInput) bool {
		return in.PatientID != nil && *in.PatientID == patientID
	})).Return(appt, nil).Once()

	body := `{"patient_id": "` + patientID.String() + `", "patient_name": "Ana", "patient_email": "ana@x.com",
		"patient_phone": "1", "treatment_type": "consulta_general", "appointment_date": "2030-06-05 10:00"}`
	rec := s.do(http.MethodPost, "/api/appointments/", body)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decodeBody[AppointmentEnvelope](t, rec)
	require.NotNil(t, resp.Appointment.OwnerID)
	assert.Equal(t, "staff-1", *resp.Appointment.OwnerID)
}

func TestCreateAppointment_MalformedPatientID(t *testing.T) {
	s := newTestServer(t)

	body := `{"patient_id": "abc", "patient_name": "Ana", "patient_email": "ana@x.com",
		"patient_phone": "1", "treatment_type": "consulta_general", "appointment_date": "2030-06-05 10:00"}`
	rec := s.do(http.MethodPost, "/api/appointments/", body)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decodeBody[ErrorResponse](t, rec).Errors, "patient_id")
}

func TestGetAppointment_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"not found", appointment.ErrAppointmentNotFound, http.StatusNotFound, "appointment_not_found"},
		{"forbidden", appointment.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"storage", errors.New("connection reset"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			id := uuid.New()
			s.bookings.On("Get", mock.Anything, testStaff, id).Return(nil, tt.err).Once()

			rec := s.do(http.MethodGet, "/api/appointments/"+id.String(), "")

			assert.Equal(t, tt.wantCode, rec.Code)
			resp := decodeBody[ErrorResponse](t, rec)
			assert.Equal(t, tt.wantErr, resp.Error)
			assert.NotContains(t, resp.Message, "connection reset")
		})
	}
}

func TestGetAppointment_InvalidID(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/appointments/not-a-uuid", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_appointment_id", decodeBody[ErrorResponse](t, rec).Error)
}

func TestUpdateAppointment_PatchMapping(t *testing.T) {
	s := newTestServer(t)
	appt := sampleAppointment(testStaff)

	s.bookings.On("Update", mock.Anything, testStaff, appt.ID, mock.MatchedBy(func(p appointment.AppointmentPatch) bool {
		return p.PatientName == nil &&
			p.Status != nil && *p.Status == "completed" &&
			p.Notes != nil && *p.Notes == "" &&
			p.AppointmentDate != nil &&
			p.AppointmentDate.Equal(time.Date(2030, 6, 6, 9, 30, 0, 0, time.UTC))
	})).Return(appt, nil).Once()

	body := `{"status": "completed", "notes": null, "appointment_date": "2030-06-06T09:30"}`
	rec := s.do(http.MethodPatch, "/api/appointments/"+appt.ID.String(), body)

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestUpdateAppointment_NullRequiredField(t *testing.T) {
	s := newTestServer(t)

	body := `{"patient_name": null, "appointment_date": ""}`
	rec := s.do(http.MethodPut, "/api/appointments/"+uuid.NewString(), body)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Contains(t, resp.Errors, "patient_name")
	assert.Contains(t, resp.Errors, "appointment_date")
	s.bookings.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDeleteAppointment(t *testing.T) {
	s := newTestServer(t)
	id := uuid.New()
	s.bookings.On("Delete", mock.Anything, testStaff, id).Return(nil).Once()

	rec := s.do(http.MethodDelete, "/api/appointments/"+id.String(), "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Appointment deleted", decodeBody[MessageResponse](t, rec).Message)
}

func TestConfirmAndCancel(t *testing.T) {
	s := newTestServer(t)
	appt := sampleAppointment(testStaff)

	confirmed := *appt
	confirmed.Status = appointment.StatusConfirmed
	cancelled := *appt
	cancelled.Status = appointment.StatusCancelled

	s.bookings.On("Confirm", mock.Anything, testStaff, appt.ID).Return(&confirmed, nil).Once()
	s.bookings.On("Cancel", mock.Anything, testStaff, appt.ID).Return(&cancelled, nil).Once()

	rec := s.do(http.MethodPost, "/api/appointments/"+appt.ID.String()+"/confirm", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "confirmed", decodeBody[AppointmentEnvelope](t, rec).Appointment.Status)

	rec = s.do(http.MethodPost, "/api/appointments/"+appt.ID.String()+"/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", decodeBody[AppointmentEnvelope](t, rec).Appointment.Status)
}

func TestRescheduleAppointment(t *testing.T) {
	s := newTestServer(t)
	appt := sampleAppointment(testStaff)
	want := time.Date(2030, 6, 7, 15, 0, 0, 0, time.UTC)

	s.bookings.On("Reschedule", mock.Anything, testStaff, appt.ID, mock.MatchedBy(func(at *time.Time) bool {
		return at != nil && at.Equal(want)
	})).Return(appt, nil).Once()

	rec := s.do(http.MethodPost, "/api/appointments/"+appt.ID.String()+"/reschedule", `{"appointment_date": "2030-06-07T15:00:00Z"}`)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRescheduleAppointment_SlotBeingBooked(t *testing.T) {
	s := newTestServer(t)
	id := uuid.New()
	s.bookings.On("Reschedule", mock.Anything, testStaff, id, mock.Anything).
		Return(nil, appointment.ErrSlotBeingBooked).Once()

	rec := s.do(http.MethodPost, "/api/appointments/"+id.String()+"/reschedule", `{"appointment_date": "2030-06-07T15:00:00Z"}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_being_booked", decodeBody[ErrorResponse](t, rec).Error)
}

func TestListAppointments(t *testing.T) {
	s := newTestServer(t)
	page := appointment.Page{Number: 2, PerPage: 1}

	s.bookings.On("List", mock.Anything, mock.MatchedBy(func(q appointment.ListQuery) bool {
		return q.Status != nil && *q.Status == appointment.StatusConfirmed &&
			q.FromDate != nil && q.FromDate.Equal(time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC)) &&
			q.ToDate == nil &&
			q.Page.Number == 2 && q.Page.PerPage == 1
	})).Return([]appointment.Appointment{*sampleAppointment(testStaff)}, 3, page, nil).Once()

	rec := s.do(http.MethodGet, "/api/appointments/?status=confirmed&from_date=2030-06-01&page=2&per_page=1", "")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[Paginated[AppointmentResponse]](t, rec)
	assert.Len(t, resp.Data, 1)
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 2, resp.CurrentPage)
	assert.Equal(t, 3, resp.LastPage)
}

func TestListAppointments_InvalidFilters(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/appointments/?status=archived&to_date=yesterday", "")

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Contains(t, resp.Errors, "status")
	assert.Contains(t, resp.Errors, "to_date")
}

func TestListAppointments_EmptyIsArray(t *testing.T) {
	s := newTestServer(t)
	s.bookings.On("List", mock.Anything, mock.Anything).
		Return(nil, 0, appointment.Page{Number: 1, PerPage: 15}, nil).Once()

	rec := s.do(http.MethodGet, "/api/appointments/", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":[]`)
}

func TestWeeklyCalendar(t *testing.T) {
	s := newTestServer(t)
	monday := time.Date(2030, 6, 3, 0, 0, 0, 0, time.UTC)
	cal := &appointment.WeeklyCalendar{
		Window: appointment.WeekWindow{
			Start: monday,
			End:   monday.AddDate(0, 0, 6).Add(-time.Nanosecond),
		},
		Appointments: []appointment.Appointment{*sampleAppointment(testStaff)},
	}

	s.bookings.On("WeeklyCalendar", mock.Anything, mock.MatchedBy(func(anchor *time.Time) bool {
		return anchor != nil && anchor.Equal(time.Date(2030, 6, 5, 0, 0, 0, 0, time.UTC))
	})).Return(cal, nil).Once()

	rec := s.do(http.MethodGet, "/api/appointments/calendar/weekly?start_date=2030-06-05", "")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[WeeklyCalendarResponse](t, rec)
	assert.Equal(t, "2030-06-03", resp.StartDate)
	assert.Equal(t, "2030-06-08", resp.EndDate)
	assert.Len(t, resp.Appointments, 1)
}

func TestWeeklyCalendar_DefaultsToCurrentWeek(t *testing.T) {
	s := newTestServer(t)
	cal := &appointment.WeeklyCalendar{Appointments: []appointment.Appointment{}}

	s.bookings.On("WeeklyCalendar", mock.Anything, (*time.Time)(nil)).Return(cal, nil).Once()

	rec := s.do(http.MethodGet, "/api/appointments/calendar/weekly", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"appointments":[]`)
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}
