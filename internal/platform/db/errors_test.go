package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-gateway/internal/shared"
)

func TestTranslateUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23505",
		Detail:         "Key (email)=(a@b.test) already exists.",
		ConstraintName: "users_email_key",
	}

	err := Translate("insert user", fmt.Errorf("wrapped: %w", pgErr))

	var unique *shared.UniqueConstraintError
	require.ErrorAs(t, err, &unique)
	assert.Equal(t, "email", unique.Field)
	assert.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestTranslateCompositeUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:   "23505",
		Detail: "Key (user_id, role_id)=(1, 2) already exists.",
	}

	var unique *shared.UniqueConstraintError
	require.ErrorAs(t, Translate("insert role grant", pgErr), &unique)
	assert.Equal(t, "user_id, role_id", unique.Field)
}

func TestTranslateUniqueFallsBackToConstraint(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "roles_name_key"}

	var unique *shared.UniqueConstraintError
	require.ErrorAs(t, Translate("insert role", pgErr), &unique)
	assert.Equal(t, "roles_name_key", unique.Field)
}

func TestTranslateForeignKeyAndNotNull(t *testing.T) {
	fk := Translate("insert grant", &pgconn.PgError{Code: "23503", ConstraintName: "role_user_user_id_fkey"})
	var fkErr *shared.ForeignKeyViolationError
	require.ErrorAs(t, fk, &fkErr)
	assert.Equal(t, "role_user_user_id_fkey", fkErr.Constraint)

	nn := Translate("insert user", &pgconn.PgError{Code: "23502", ColumnName: "email"})
	var missing *shared.MissingFieldError
	require.ErrorAs(t, nn, &missing)
	assert.Equal(t, "email", missing.Field)
}

func TestTranslateHidesOtherStorageErrors(t *testing.T) {
	err := Translate("list users", &pgconn.PgError{Code: "42P01", Message: `relation "users" does not exist`})

	assert.ErrorIs(t, err, shared.ErrDatabase)
	var pgErr *pgconn.PgError
	assert.False(t, errors.As(err, &pgErr))
	assert.Contains(t, err.Error(), `relation "users" does not exist`)
}

func TestTranslatePassesThrough(t *testing.T) {
	assert.NoError(t, Translate("noop", nil))

	connErr := &shared.ConnectionError{Attempts: 5, Err: errors.New("refused")}
	assert.Same(t, connErr, Translate("list users", connErr))

	assert.ErrorIs(t, Translate("list users", context.Canceled), context.Canceled)

	notFound := &shared.NotFoundError{Resource: "user"}
	assert.Same(t, notFound, Translate("find user", notFound))

	plain := Translate("scan", errors.New("boom"))
	var dbErr *shared.DatabaseError
	require.ErrorAs(t, plain, &dbErr)
	assert.Equal(t, "scan", dbErr.Op)
}

func TestTranslateDetachesDriverErrors(t *testing.T) {
	scanErr := pgx.ScanArgError{ColumnIndex: 1, FieldName: "email", Err: errors.New("bad utf8")}
	err := Translate("scan user", fmt.Errorf("collect: %w", scanErr))

	assert.ErrorIs(t, err, shared.ErrDatabase)
	var leaked pgx.ScanArgError
	assert.False(t, errors.As(err, &leaked))
	assert.Contains(t, err.Error(), "can't scan into dest[1] (col: email): bad utf8")

	var dbErr *shared.DatabaseError
	require.ErrorAs(t, err, &dbErr)
	assert.Equal(t, "scan user", dbErr.Op)
}

func TestMigrationURL(t *testing.T) {
	assert.Equal(t,
		"pgx5://u:p@localhost:5432/gw?sslmode=disable&x-migrations-table=gateway_schema_migrations",
		migrationURL("postgres://u:p@localhost:5432/gw?sslmode=disable"))
	assert.Equal(t,
		"pgx5://localhost/gw?x-migrations-table=gateway_schema_migrations",
		migrationURL("postgresql://localhost/gw"))
}
