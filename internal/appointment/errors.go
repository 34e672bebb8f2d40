package appointment

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrPatientNotFound        = errors.New("patient not found")
	ErrAppointmentNotFound    = errors.New("appointment not found")
	ErrForbidden              = errors.New("not authorized to act on this appointment")
	ErrTimeConflict           = errors.New("the selected time is not available, please choose another time")
	ErrDuplicateEmail         = errors.New("a patient with this email already exists")
	ErrPatientHasAppointments = errors.New("cannot delete patient with existing appointments")
)

// ValidationError carries a summary message plus per-field violations.
// It optionally wraps a more specific cause such as ErrTimeConflict.
type ValidationError struct {
	Message string
	Fields  map[string][]string
	cause   error
}

func NewValidationError() *ValidationError {
	return &ValidationError{
		Message: "validation error",
		Fields:  make(map[string][]string),
	}
}

func (e *ValidationError) Add(field, msg string) {
	e.Fields[field] = append(e.Fields[field], msg)
}

func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

// OrNil returns e when it holds violations and nil otherwise.
func (e *ValidationError) OrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], ", "))
	}
	return e.Message + " (" + strings.Join(parts, "; ") + ")"
}

func (e *ValidationError) Unwrap() error {
	return e.cause
}

func timeConflictError() error {
	return &ValidationError{
		Message: ErrTimeConflict.Error(),
		Fields:  map[string][]string{"appointment_date": {"time slot not available"}},
		cause:   ErrTimeConflict,
	}
}

func duplicateEmailError() error {
	return &ValidationError{
		Message: ErrDuplicateEmail.Error(),
		Fields:  map[string][]string{"email": {"the email has already been taken"}},
		cause:   ErrDuplicateEmail,
	}
}
