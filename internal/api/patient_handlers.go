package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
)

type PatientListResponse struct {
	Data []PatientResponse `json:"data"`
}

func listPatientsHandler(svc PatientService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		query := appointment.PatientQuery{
			Search:   q.Get("search"),
			SortBy:   appointment.PatientSort(q.Get("sort_by")),
			SortDesc: !strings.EqualFold(q.Get("sort_order"), "asc"),
			Page:     pageFromQuery(r),
		}

		items, total, page, err := svc.List(r.Context(), query)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		data := make([]PatientSummaryResponse, 0, len(items))
		for _, s := range items {
			data = append(data, toPatientSummaryResponse(s))
		}
		writeJSON(w, http.StatusOK, newPaginated(data, total, page))
	}
}

func searchPatientsHandler(svc PatientService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patients, err := svc.Search(r.Context(), r.URL.Query().Get("q"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toPatientList(patients))
	}
}

func findPatientByEmailHandler(svc PatientService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email := strings.TrimSpace(r.URL.Query().Get("email"))
		if email == "" {
			verr := appointment.NewValidationError()
			verr.Add("email", "the email field is required")
			writeValidation(w, verr)
			return
		}

		p, err := svc.FindByEmail(r.Context(), email)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, PatientEnvelope{Patient: toPatientResponse(*p)})
	}
}

func createPatientHandler(svc PatientService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PatientRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		p, err := svc.Create(r.Context(), patientInputFrom(req))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, PatientEnvelope{
			Message: "Patient created",
			Patient: toPatientResponse(*p),
		})
	}
}

// findOrCreatePatientHandler answers 201 when a patient was created and 200
// when an existing one was returned.
func findOrCreatePatientHandler(svc PatientService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PatientRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		p, created, err := svc.FindOrCreate(r.Context(), patientInputFrom(req))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, PatientEnvelope{
			Patient: toPatientResponse(*p),
			Created: &created,
		})
	}
}

func getPatientHandler(svc PatientService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := patientIDParam(w, r)
		if !ok {
			return
		}

		detail, err := svc.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, PatientDetailResponse{
			PatientResponse: toPatientResponse(detail.Patient),
			Appointments:    toAppointmentResponses(detail.Appointments),
		})
	}
}

func updatePatientHandler(svc PatientService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := patientIDParam(w, r)
		if !ok {
			return
		}

		var req UpdatePatientRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		verr := appointment.NewValidationError()
		patch := appointment.PatientPatch{
			Name:  requiredField(req.Name, "name", verr),
			Email: requiredField(req.Email, "email", verr),
			Phone: requiredField(req.Phone, "phone", verr),
			Notes: clearableField(req.Notes),
		}
		if verr.HasErrors() {
			writeValidation(w, verr)
			return
		}

		p, err := svc.Update(r.Context(), id, patch)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, PatientEnvelope{
			Message: "Patient updated",
			Patient: toPatientResponse(*p),
		})
	}
}

func deletePatientHandler(svc PatientService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := patientIDParam(w, r)
		if !ok {
			return
		}

		if err := svc.Delete(r.Context(), id); err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, MessageResponse{Message: "Patient deleted"})
	}
}

func patientIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_patient_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func patientInputFrom(req PatientRequest) appointment.PatientInput {
	return appointment.PatientInput{
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
		Notes: req.Notes,
	}
}

func toPatientList(patients []appointment.Patient) PatientListResponse {
	data := make([]PatientResponse, 0, len(patients))
	for _, p := range patients {
		data = append(data, toPatientResponse(p))
	}
	return PatientListResponse{Data: data}
}
