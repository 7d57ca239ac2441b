package serverutils

import (
	"streamchat-orchestrator/internal/apperr"

	"github.com/go-playground/validator/v10"
)

var v = validator.New()

// ValidateRequest runs struct tag validation and, on failure, wraps the
// first error into the VALIDATION kind the error handler maps to 400.
func ValidateRequest(req interface{}) error {
	if err := v.Struct(req); err != nil {
		if ve, ok := err.(validator.ValidationErrors); ok && len(ve) > 0 {
			fe := ve[0]
			return apperr.Validation(fe.Field() + " failed on " + fe.Tag())
		}
		return apperr.Wrap(apperr.KindValidation, "validation failed", err)
	}
	return nil
}
