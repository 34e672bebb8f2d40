package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
)

func createPublicAppointmentHandler(svc BookingService, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookingRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		// Public bookings always resolve the patient by email.
		req.PatientID = nil
		in, verr := bookingInputFrom(req, loc)
		if verr.HasErrors() {
			writeValidation(w, verr)
			return
		}

		appt, err := svc.CreatePublic(r.Context(), in)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, AppointmentEnvelope{
			Message:     "Appointment request received. We will contact you to confirm.",
			Appointment: toAppointmentResponse(*appt),
		})
	}
}

func createAppointmentHandler(svc BookingService, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookingRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		in, verr := bookingInputFrom(req, loc)
		if verr.HasErrors() {
			writeValidation(w, verr)
			return
		}

		appt, err := svc.Create(r.Context(), callerFrom(r), in)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, AppointmentEnvelope{
			Message:     "Appointment created",
			Appointment: toAppointmentResponse(*appt),
		})
	}
}

func listAppointmentsHandler(svc BookingService, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		verr := appointment.NewValidationError()

		query := appointment.ListQuery{Page: pageFromQuery(r)}
		if raw := strings.TrimSpace(q.Get("status")); raw != "" {
			st := appointment.Status(raw)
			if !st.Valid() {
				verr.Add("status", "the selected status is invalid")
			} else {
				query.Status = &st
			}
		}
		from := q.Get("from_date")
		to := q.Get("to_date")
		query.FromDate = parseOptionalDateTime(&from, "from_date", loc, verr)
		query.ToDate = parseOptionalDateTime(&to, "to_date", loc, verr)
		if verr.HasErrors() {
			writeValidation(w, verr)
			return
		}

		items, total, page, err := svc.List(r.Context(), query)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, newPaginated(toAppointmentResponses(items), total, page))
	}
}

func getAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		appt, err := svc.Get(r.Context(), callerFrom(r), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, AppointmentEnvelope{Appointment: toAppointmentResponse(*appt)})
	}
}

func updateAppointmentHandler(svc BookingService, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		var req UpdateAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		verr := appointment.NewValidationError()
		patch := appointment.AppointmentPatch{
			PatientName:   requiredField(req.PatientName, "patient_name", verr),
			PatientEmail:  requiredField(req.PatientEmail, "patient_email", verr),
			PatientPhone:  requiredField(req.PatientPhone, "patient_phone", verr),
			TreatmentType: requiredField(req.TreatmentType, "treatment_type", verr),
			Status:        requiredField(req.Status, "status", verr),
			Notes:         clearableField(req.Notes),
		}
		if req.AppointmentDate.Set {
			if req.AppointmentDate.Null || strings.TrimSpace(req.AppointmentDate.Value) == "" {
				verr.Add("appointment_date", "the appointment date field is required")
			} else {
				patch.AppointmentDate = parseOptionalDateTime(&req.AppointmentDate.Value, "appointment_date", loc, verr)
			}
		}
		if verr.HasErrors() {
			writeValidation(w, verr)
			return
		}

		appt, err := svc.Update(r.Context(), callerFrom(r), id, patch)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, AppointmentEnvelope{
			Message:     "Appointment updated",
			Appointment: toAppointmentResponse(*appt),
		})
	}
}

func deleteAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		if err := svc.Delete(r.Context(), callerFrom(r), id); err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, MessageResponse{Message: "Appointment deleted"})
	}
}

func confirmAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		appt, err := svc.Confirm(r.Context(), callerFrom(r), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, AppointmentEnvelope{
			Message:     "Appointment confirmed",
			Appointment: toAppointmentResponse(*appt),
		})
	}
}

func cancelAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		appt, err := svc.Cancel(r.Context(), callerFrom(r), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, AppointmentEnvelope{
			Message:     "Appointment cancelled",
			Appointment: toAppointmentResponse(*appt),
		})
	}
}

func rescheduleAppointmentHandler(svc BookingService, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		var req RescheduleRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		verr := appointment.NewValidationError()
		at := parseOptionalDateTime(req.AppointmentDate, "appointment_date", loc, verr)
		if verr.HasErrors() {
			writeValidation(w, verr)
			return
		}

		appt, err := svc.Reschedule(r.Context(), callerFrom(r), id, at)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, AppointmentEnvelope{
			Message:     "Appointment rescheduled",
			Appointment: toAppointmentResponse(*appt),
		})
	}
}

func weeklyCalendarHandler(svc BookingService, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		verr := appointment.NewValidationError()
		start := r.URL.Query().Get("start_date")
		anchor := parseOptionalDateTime(&start, "start_date", loc, verr)
		if verr.HasErrors() {
			writeValidation(w, verr)
			return
		}

		cal, err := svc.WeeklyCalendar(r.Context(), anchor)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, WeeklyCalendarResponse{
			StartDate:    cal.Window.Start.In(loc).Format(time.DateOnly),
			EndDate:      cal.Window.End.In(loc).Format(time.DateOnly),
			Appointments: toAppointmentResponses(cal.Appointments),
		})
	}
}

func appointmentIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// bookingInputFrom converts the wire payload. Field rules are enforced by the
// service; only the shape of patient_id and the date is checked here.
func bookingInputFrom(req BookingRequest, loc *time.Location) (appointment.BookingInput, *appointment.ValidationError) {
	verr := appointment.NewValidationError()
	in := appointment.BookingInput{
		PatientName:   req.PatientName,
		PatientEmail:  req.PatientEmail,
		PatientPhone:  req.PatientPhone,
		TreatmentType: req.TreatmentType,
		Notes:         req.Notes,
	}
	if req.PatientID != nil && strings.TrimSpace(*req.PatientID) != "" {
		id, err := uuid.Parse(strings.TrimSpace(*req.PatientID))
		if err != nil {
			verr.Add("patient_id", "the selected patient id is invalid")
		} else {
			in.PatientID = &id
		}
	}
	in.AppointmentDate = parseOptionalDateTime(req.AppointmentDate, "appointment_date", loc, verr)
	return in, verr
}

// requiredField maps a present field onto the patch. An explicit null is
// rejected since the column cannot be cleared.
func requiredField(o optional[string], field string, verr *appointment.ValidationError) *string {
	if !o.Set {
		return nil
	}
	if o.Null {
		verr.Add(field, "the "+strings.ReplaceAll(field, "_", " ")+" field is required")
		return nil
	}
	v := o.Value
	return &v
}

// clearableField maps null to the empty string, which clears the column.
func clearableField(o optional[string]) *string {
	if !o.Set {
		return nil
	}
	v := o.Value
	if o.Null {
		v = ""
	}
	return &v
}
