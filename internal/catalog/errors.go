// internal/catalog/errors.go
package catalog

import (
	"errors"
	"fmt"

	"bookworm/internal/validation"
)

var (
	ErrNotFound        = errors.New("book not found")
	ErrDuplicateReview = errors.New("book already reviewed by this reviewer")
	ErrConflict        = errors.New("book was modified concurrently")
	ErrValidation      = errors.New("validation failed")
)

// validationError wraps field errors so callers can match ErrValidation and
// still extract the field detail with errors.As.
func validationError(errs validation.Errors) error {
	return fmt.Errorf("%w: %w", ErrValidation, errs)
}

func fieldError(field, msg string) error {
	return validationError(validation.Errors{{Field: field, Msg: msg}})
}
