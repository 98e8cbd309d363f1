package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/garnizeh/medequip/internal/errs"
	"github.com/garnizeh/medequip/internal/taxonomy"
	"github.com/garnizeh/medequip/pkg/models"
)

// inputValidator checks operation inputs with struct tags. Field names in
// errors are the json names callers sent.
type inputValidator struct {
	v *validator.Validate
}

func newInputValidator(tax *taxonomy.Taxonomy) *inputValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	rules := map[string]validator.Func{
		"equipment_type": func(fl validator.FieldLevel) bool {
			_, ok := tax.ParseType(fl.Field().String())
			return ok
		},
		"equipment_status": func(fl validator.FieldLevel) bool {
			return models.EquipmentStatus(fl.Field().String()).Valid()
		},
		"severity": func(fl validator.FieldLevel) bool {
			return models.Severity(fl.Field().String()).Valid()
		},
		"report_status": func(fl validator.FieldLevel) bool {
			return models.ReportStatus(fl.Field().String()).Valid()
		},
	}
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("register %s validation: %v", tag, err))
		}
	}

	return &inputValidator{v: v}
}

// Struct validates in and reports the first violation as a validation error.
func (iv *inputValidator) Struct(in any) error {
	err := iv.v.Struct(in)
	if err == nil {
		return nil
	}

	var ves validator.ValidationErrors
	if !errors.As(err, &ves) || len(ves) == 0 {
		return errs.Validation("", "invalid input")
	}
	fe := ves[0]
	return errs.Validation(fe.Field(), "%s", describe(fe))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "http_url":
		return fmt.Sprintf("%s must be an http(s) URL", fe.Field())
	case "equipment_type":
		return fmt.Sprintf("invalid equipment type %v", fe.Value())
	case "equipment_status":
		return fmt.Sprintf("%s must be one of %s", fe.Field(), join(models.EquipmentStatuses))
	case "severity":
		return fmt.Sprintf("%s must be one of %s", fe.Field(), join(models.Severities))
	case "report_status":
		return fmt.Sprintf("%s must be one of %s", fe.Field(), join(models.ReportStatuses))
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

func join[T ~string](vs []T) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}
