package core

import "github.com/pkg/errors"

// FieldError pins a validation failure to one struct field.
type FieldError struct {
	Field string
	Error string
}

// ValidationError carries per-field failures back to the API layer, which
// renders them as a 400 with the field breakdown.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// shutdown marks an error as unrecoverable for the running service. The HTTP
// error handler turns it into a graceful stop instead of a 500.
type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

// IsShutdown reports whether err (or its cause) asks for service shutdown.
func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
