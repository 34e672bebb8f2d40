package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	redisclient "github.com/hackgods/clinic-appointment-booking/internal/redis"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// writeServiceError maps a service error onto its HTTP status and body.
// Order matters: conflict and duplicate errors are also ValidationErrors.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *appointment.ValidationError

	switch {
	case errors.Is(err, appointment.ErrTimeConflict):
		resp := ErrorResponse{Error: "time_conflict", Message: appointment.ErrTimeConflict.Error()}
		if errors.As(err, &verr) {
			resp.Errors = verr.Fields
		}
		writeJSON(w, http.StatusUnprocessableEntity, resp)
	case errors.Is(err, appointment.ErrDuplicateEmail):
		resp := ErrorResponse{Error: "duplicate_email", Message: appointment.ErrDuplicateEmail.Error()}
		if errors.As(err, &verr) {
			resp.Errors = verr.Fields
		}
		writeJSON(w, http.StatusConflict, resp)
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: "validation_error", Message: verr.Message, Errors: verr.Fields})
	case errors.Is(err, appointment.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, appointment.ErrPatientHasAppointments):
		writeError(w, http.StatusConflict, "patient_has_appointments", err.Error())
	case errors.Is(err, appointment.ErrSlotBeingBooked),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	default:
		loggerFrom(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeValidation(w http.ResponseWriter, verr *appointment.ValidationError) {
	writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: "validation_error", Message: verr.Message, Errors: verr.Fields})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}
