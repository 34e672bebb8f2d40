package appointment

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// BookingInput is the payload of both booking entry paths.
type BookingInput struct {
	PatientID       *uuid.UUID // staff path only
	PatientName     string
	PatientEmail    string
	PatientPhone    string
	TreatmentType   string
	AppointmentDate *time.Time
	Notes           *string
}

// AppointmentPatch lists the fields an administrative update may set.
// Nil fields are left untouched. An empty Notes clears the notes.
type AppointmentPatch struct {
	PatientName     *string
	PatientEmail    *string
	PatientPhone    *string
	TreatmentType   *string
	AppointmentDate *time.Time
	Notes           *string
	Status          *string
}

func (p AppointmentPatch) changedFields() []string {
	var fields []string
	if p.PatientName != nil {
		fields = append(fields, "patient_name")
	}
	if p.PatientEmail != nil {
		fields = append(fields, "patient_email")
	}
	if p.PatientPhone != nil {
		fields = append(fields, "patient_phone")
	}
	if p.TreatmentType != nil {
		fields = append(fields, "treatment_type")
	}
	if p.AppointmentDate != nil {
		fields = append(fields, "appointment_date")
	}
	if p.Notes != nil {
		fields = append(fields, "notes")
	}
	if p.Status != nil {
		fields = append(fields, "status")
	}
	return fields
}

// PatientInput is used by explicit creation, update and find-or-create.
type PatientInput struct {
	Name  string
	Email string
	Phone string
	Notes *string
}

type PatientPatch struct {
	Name  *string
	Email *string
	Phone *string
	Notes *string
}

type bookingRules struct {
	PatientName   string `json:"patient_name" validate:"required,max=255"`
	PatientEmail  string `json:"patient_email" validate:"required,email,max=255"`
	PatientPhone  string `json:"patient_phone" validate:"required,max=20"`
	TreatmentType string `json:"treatment_type" validate:"required,treatment"`
}

type patientRules struct {
	Name  string `json:"name" validate:"required,max=255"`
	Email string `json:"email" validate:"required,email,max=255"`
	Phone string `json:"phone" validate:"required,max=20"`
}

type patchRules struct {
	PatientName   *string `json:"patient_name" validate:"omitnil,min=1,max=255"`
	PatientEmail  *string `json:"patient_email" validate:"omitnil,min=1,email,max=255"`
	PatientPhone  *string `json:"patient_phone" validate:"omitnil,min=1,max=20"`
	TreatmentType *string `json:"treatment_type" validate:"omitnil,min=1,treatment"`
	Status        *string `json:"status" validate:"omitnil,min=1,status"`
}

type patientPatchRules struct {
	Name  *string `json:"name" validate:"omitnil,min=1,max=255"`
	Email *string `json:"email" validate:"omitnil,min=1,email,max=255"`
	Phone *string `json:"phone" validate:"omitnil,min=1,max=20"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("treatment", func(fl validator.FieldLevel) bool {
		return TreatmentType(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("status", func(fl validator.FieldLevel) bool {
		return Status(fl.Field().String()).Valid()
	})
	return v
}

// check runs struct rules and folds the violations into verr.
func check(verr *ValidationError, rules any) {
	err := validate.Struct(rules)
	if err == nil {
		return
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		verr.Add("_", err.Error())
		return
	}
	for _, fe := range fieldErrs {
		verr.Add(fe.Field(), ruleMessage(fe))
	}
}

func ruleMessage(fe validator.FieldError) string {
	field := strings.ReplaceAll(fe.Field(), "_", " ")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("the %s field is required", field)
	case "email":
		return fmt.Sprintf("the %s must be a valid email address", field)
	case "min":
		if fe.Param() == "1" {
			return fmt.Sprintf("the %s field is required", field)
		}
		return fmt.Sprintf("the %s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("the %s may not be greater than %s characters", field, fe.Param())
	case "treatment":
		return fmt.Sprintf("the selected %s is invalid", field)
	case "status":
		return fmt.Sprintf("the selected %s is invalid; allowed: pending, confirmed, cancelled, completed", field)
	default:
		return fmt.Sprintf("the %s is invalid", field)
	}
}

func validateBooking(in BookingInput, dateRequired bool, now time.Time) error {
	verr := NewValidationError()
	check(verr, bookingRules{
		PatientName:   in.PatientName,
		PatientEmail:  in.PatientEmail,
		PatientPhone:  in.PatientPhone,
		TreatmentType: in.TreatmentType,
	})
	switch {
	case in.AppointmentDate == nil && dateRequired:
		verr.Add("appointment_date", "the appointment date field is required")
	case in.AppointmentDate != nil && !in.AppointmentDate.After(now):
		verr.Add("appointment_date", "the appointment date must be a date after now")
	}
	return verr.OrNil()
}

func validatePatch(p AppointmentPatch) error {
	verr := NewValidationError()
	check(verr, patchRules{
		PatientName:   p.PatientName,
		PatientEmail:  p.PatientEmail,
		PatientPhone:  p.PatientPhone,
		TreatmentType: p.TreatmentType,
		Status:        p.Status,
	})
	return verr.OrNil()
}

func validatePatient(in PatientInput) error {
	verr := NewValidationError()
	check(verr, patientRules{Name: in.Name, Email: in.Email, Phone: in.Phone})
	return verr.OrNil()
}

func validatePatientPatch(p PatientPatch) error {
	verr := NewValidationError()
	check(verr, patientPatchRules{Name: p.Name, Email: p.Email, Phone: p.Phone})
	return verr.OrNil()
}

// normalizeEmail trims surrounding whitespace. Case is preserved: emails are
// matched case-sensitively.
func normalizeEmail(email string) string {
	return strings.TrimSpace(email)
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
