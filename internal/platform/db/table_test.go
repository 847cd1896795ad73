package db_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-gateway/internal/platform/db"
	"github.com/odyssey-erp/odyssey-gateway/internal/platform/db/dbtest"
	"github.com/odyssey-erp/odyssey-gateway/internal/shared"
)

type roleRow struct {
	shared.Entity
	Name        string  `db:"name"`
	Description *string `db:"description"`
	IsActive    bool    `db:"is_active"`
}

func newRoleTable(m *db.Manager) *db.Table[roleRow] {
	return db.NewTable[roleRow](m, "authentication", "roles", "role",
		"id", "name", "description", "is_active", "created_at", "updated_at")
}

func TestTableCRUD(t *testing.T) {
	manager := dbtest.NewManager(t)
	table := newRoleTable(manager)
	ctx := context.Background()

	entity := shared.NewEntity(time.Now())
	created, err := table.Insert(ctx, db.Values{
		"id":         entity.ID,
		"name":       "Editor",
		"is_active":  true,
		"created_at": entity.CreatedAt,
		"updated_at": entity.UpdatedAt,
	})
	require.NoError(t, err)
	assert.Equal(t, entity.ID, created.ID)
	assert.Nil(t, created.Description)

	found, err := table.FindByID(ctx, entity.ID)
	require.NoError(t, err)
	assert.Equal(t, "Editor", found.Name)

	byName, err := table.FindByField(ctx, "name", "Editor")
	require.NoError(t, err)
	require.Len(t, byName, 1)

	none, err := table.FindByField(ctx, "name", "Nobody")
	require.NoError(t, err)
	assert.Empty(t, none)

	desc := "Edits content"
	changes := db.Values{"description": desc}
	updated, err := table.Update(ctx, entity.ID, changes)
	require.NoError(t, err)
	assert.Equal(t, db.Values{"description": desc}, changes)
	require.NotNil(t, updated.Description)
	assert.Equal(t, desc, *updated.Description)
	assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))

	count, err := table.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	deleted, err := table.DeleteByID(ctx, entity.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = table.FindByID(ctx, entity.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestTableMissingRowsAreNotFound(t *testing.T) {
	manager := dbtest.NewManager(t)
	table := newRoleTable(manager)
	ctx := context.Background()

	_, err := table.Update(ctx, uuid.New(), db.Values{"name": "Ghost"})
	var notFound *shared.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "role", notFound.Resource)

	_, err = table.DeleteByID(ctx, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestTableTranslatesUniqueViolation(t *testing.T) {
	manager := dbtest.NewManager(t)
	table := newRoleTable(manager)
	ctx := context.Background()

	insert := func() error {
		e := shared.NewEntity(time.Now())
		_, err := table.Insert(ctx, db.Values{"id": e.ID, "name": "Admin", "created_at": e.CreatedAt, "updated_at": e.UpdatedAt})
		return err
	}
	require.NoError(t, insert())

	err := insert()
	var unique *shared.UniqueConstraintError
	require.ErrorAs(t, err, &unique)
	assert.Equal(t, "name", unique.Field)
}

func TestTableRejectsUnknownColumns(t *testing.T) {
	table := newRoleTable(nil)

	_, err := table.FindByField(context.Background(), "password", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no column "password"`)
}

func TestWithTxRollsBack(t *testing.T) {
	manager := dbtest.NewManager(t)
	table := newRoleTable(manager)
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.WithTx(ctx, manager, func(ctx context.Context) error {
		e := shared.NewEntity(time.Now())
		if _, err := table.Insert(ctx, db.Values{"id": e.ID, "name": "Temp", "created_at": e.CreatedAt, "updated_at": e.UpdatedAt}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	rows, err := table.FindByField(ctx, "name", "Temp")
	require.NoError(t, err)
	assert.Empty(t, rows)
}
