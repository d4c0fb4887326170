package http

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	domainErrors "github.com/fullmeo/aimastery-billing/internal/domain/errors"
)

// RequestValidator is the echo.Validator for request bodies.
type RequestValidator struct {
	validate *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	return &RequestValidator{
		validate: validator.New(),
	}
}

// Validate reports the first failing field as ErrInvalidRequest.
func (rv *RequestValidator) Validate(i interface{}) error {
	err := rv.validate.Struct(i)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return fmt.Errorf("%w: %s is %s", domainErrors.ErrInvalidRequest, lowerFirst(fe.Field()), fe.Tag())
	}
	return fmt.Errorf("%w: %v", domainErrors.ErrInvalidRequest, err)
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
