package core

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"valor/internal/types"
)

// Validator wraps go-playground/validator and reports failures as
// validation AppErrors keyed by JSON field name.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return &Validator{validate: v}
}

// ValidateStruct returns nil or a *types.AppError. An email failure maps to
// validation_invalid_email; everything else to
// validation_missing_required_field with per-field details.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return types.NewAppError(types.ErrCodeValidationInvalidJSON, "invalid request", err)
	}

	code := types.ErrCodeValidationMissingField
	fields := make(map[string]any, len(fieldErrs))
	var names []string
	for _, fe := range fieldErrs {
		fields[fe.Field()] = fe.Tag()
		names = append(names, fe.Field())
		if fe.Tag() == "email" {
			code = types.ErrCodeValidationInvalidEmail
		}
	}

	msg := "invalid or missing fields: " + strings.Join(names, ", ")
	if code == types.ErrCodeValidationInvalidEmail {
		msg = "a valid email address is required"
	}
	return types.NewAppErrorWithDetails(code, msg, err, map[string]any{"fields": fields})
}
