package db

import (
	"context"
	"errors"
	"regexp"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/odyssey-gateway/internal/shared"
)

// PostgreSQL SQLSTATE codes handled by Translate.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeNotNullViolation    = "23502"
)

var detailKeyPattern = regexp.MustCompile(`Key \((.*?)\)=`)

// Translate converts storage errors into the shared error taxonomy so that
// no pgx types leak above the repository boundary.
func Translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if alreadyTranslated(err) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			field := uniqueField(pgErr)
			return &shared.UniqueConstraintError{Field: field, Detail: pgErr.Detail}
		case codeForeignKeyViolation:
			return &shared.ForeignKeyViolationError{Constraint: pgErr.ConstraintName}
		case codeNotNullViolation:
			return &shared.MissingFieldError{Field: pgErr.ColumnName}
		}
		return &shared.DatabaseError{Op: op, Err: errors.New(pgErr.Message)}
	}
	return &shared.DatabaseError{Op: op, Err: errors.New(err.Error())}
}

func alreadyTranslated(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	for _, target := range []error{
		shared.ErrConnection,
		shared.ErrDatabase,
		shared.ErrNotFound,
		shared.ErrDuplicate,
		shared.ErrConflict,
		shared.ErrForeignKey,
		shared.ErrMissingField,
		shared.ErrValidation,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func uniqueField(pgErr *pgconn.PgError) string {
	if match := detailKeyPattern.FindStringSubmatch(pgErr.Detail); len(match) == 2 {
		return match[1]
	}
	if pgErr.ConstraintName != "" {
		return pgErr.ConstraintName
	}
	return "unknown field"
}
