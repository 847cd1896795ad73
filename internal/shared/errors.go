package shared

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated indicates a request without a resolvable principal.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden indicates a known principal lacking permissions.
	ErrForbidden = errors.New("access denied")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a uniqueness violation.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrConflict indicates the operation clashes with current state.
	ErrConflict = errors.New("conflict")
	// ErrForeignKey indicates a reference to a missing row.
	ErrForeignKey = errors.New("invalid foreign key reference")
	// ErrMissingField indicates a required column was left empty.
	ErrMissingField = errors.New("missing required field")
	// ErrConnection indicates storage is unreachable.
	ErrConnection = errors.New("database unavailable")
	// ErrDatabase is the catch-all storage failure.
	ErrDatabase = errors.New("database error")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// FieldError describes a single invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every field that failed validation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// NotFoundError reports a lookup miss for a resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Resource + " " + ErrNotFound.Error()
	}
	return fmt.Sprintf("%s %s %s", e.Resource, e.ID, ErrNotFound.Error())
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// DuplicateError reports a business-level uniqueness violation.
type DuplicateError struct {
	Resource string
	Field    string
}

func (e *DuplicateError) Error() string {
	if e.Field == "" {
		return e.Resource + " already exists"
	}
	return fmt.Sprintf("%s with this %s already exists", e.Resource, e.Field)
}

func (e *DuplicateError) Unwrap() error { return ErrDuplicate }

// UniqueConstraintError is the translated storage unique violation.
type UniqueConstraintError struct {
	Field  string
	Detail string
}

func (e *UniqueConstraintError) Error() string {
	return fmt.Sprintf("unique constraint violated on %s", e.Field)
}

func (e *UniqueConstraintError) Unwrap() error { return ErrDuplicate }

// ForeignKeyViolationError is the translated storage foreign key violation.
type ForeignKeyViolationError struct {
	Constraint string
}

func (e *ForeignKeyViolationError) Error() string { return ErrForeignKey.Error() }

func (e *ForeignKeyViolationError) Unwrap() error { return ErrForeignKey }

// MissingFieldError is the translated storage not-null violation.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	if e.Field == "" {
		return ErrMissingField.Error()
	}
	return ErrMissingField.Error() + ": " + e.Field
}

func (e *MissingFieldError) Unwrap() error { return ErrMissingField }

// ConflictError reports an operation rejected by a state policy.
type ConflictError struct {
	Resource string
	Reason   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", e.Resource, e.Reason)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// ConnectionError reports that storage stayed unreachable after every attempt.
type ConnectionError struct {
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("database unavailable after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

func (e *ConnectionError) Unwrap() error { return e.Err }

// DatabaseError wraps any untranslated storage failure.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database error during %s: %v", e.Op, e.Err)
}

func (e *DatabaseError) Is(target error) bool { return target == ErrDatabase }

func (e *DatabaseError) Unwrap() error { return e.Err }

// UserSafeMessage returns a message that can be shown to clients.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return ErrInvalidCredentials.Error()
	case errors.Is(err, ErrUnauthenticated):
		return ErrUnauthenticated.Error()
	case errors.Is(err, ErrForbidden):
		return ErrForbidden.Error()
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrDuplicate),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrForeignKey),
		errors.Is(err, ErrMissingField):
		return err.Error()
	default:
		return internalErrorMessage
	}
}

const internalErrorMessage = "internal error"

// IsInternal reports whether err falls outside the client-facing taxonomy
// and must be logged rather than shown.
func IsInternal(err error) bool {
	return err != nil && UserSafeMessage(err) == internalErrorMessage
}
