package service

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// Error kinds shared by every service. Callers match them with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	// ErrTransient marks a failed best-effort delivery; it never leaves the notification dispatcher.
	ErrTransient = errors.New("transient delivery failure")
)

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func forbiddenError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

func notFoundError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func conflictError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// validateStruct runs the validator and reports failures as ErrValidation.
func validateStruct(validate *validator.Validate, payload interface{}) error {
	if err := validate.Struct(payload); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			return fmt.Errorf("%w: %w", ErrValidation, fieldErrs)
		}
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return nil
}

// lookupError maps a missing row onto ErrNotFound and leaves other failures untouched.
func lookupError(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFoundError("%s", what)
	}
	return err
}
