package db

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-gateway/internal/shared"
)

// Values maps column names to the values written by Insert and Update.
type Values map[string]any

// Table implements the generic repository contract for a single table.
// T is scanned by column name, so its fields carry `db` tags matching columns.
type Table[T any] struct {
	manager  *Manager
	name     string
	resource string
	columns  []string
	now      func() time.Time
}

// NewTable binds a table in schema to manager. The first column must be the id.
func NewTable[T any](manager *Manager, schema, table, resource string, columns ...string) *Table[T] {
	return &Table[T]{
		manager:  manager,
		name:     pgx.Identifier{schema, table}.Sanitize(),
		resource: resource,
		columns:  columns,
		now:      time.Now,
	}
}

// Name returns the sanitized qualified table name.
func (t *Table[T]) Name() string {
	return t.name
}

// Columns renders the column list, optionally prefixed with alias.
func (t *Table[T]) Columns(alias string) string {
	if alias == "" {
		return strings.Join(t.columns, ", ")
	}
	cols := make([]string, len(t.columns))
	for i, c := range t.columns {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

// Insert writes a new row and returns it as stored.
func (t *Table[T]) Insert(ctx context.Context, values Values) (T, error) {
	var zero T
	keys, args, err := t.split(values)
	if err != nil {
		return zero, err
	}
	placeholders := make([]string, len(keys))
	for i := range keys {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		t.name, strings.Join(keys, ", "), strings.Join(placeholders, ", "), t.Columns(""))
	items, err := t.Select(ctx, "insert "+t.resource, query, args...)
	if err != nil {
		return zero, err
	}
	if len(items) == 0 {
		return zero, &shared.DatabaseError{Op: "insert " + t.resource, Err: errors.New("no row returned")}
	}
	return items[0], nil
}

// FindByID returns the row with id or a NotFoundError.
func (t *Table[T]) FindByID(ctx context.Context, id uuid.UUID) (T, error) {
	var zero T
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", t.Columns(""), t.name)
	items, err := t.Select(ctx, "find "+t.resource, query, id)
	if err != nil {
		return zero, err
	}
	if len(items) == 0 {
		return zero, &shared.NotFoundError{Resource: t.resource, ID: id.String()}
	}
	return items[0], nil
}

// FindByField returns every row whose field equals value. No match is an empty slice.
func (t *Table[T]) FindByField(ctx context.Context, field string, value any) ([]T, error) {
	if !slices.Contains(t.columns, field) {
		return nil, fmt.Errorf("platform/db: %s has no column %q", t.resource, field)
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 ORDER BY created_at, id", t.Columns(""), t.name, field)
	return t.Select(ctx, "find "+t.resource+" by "+field, query, value)
}

// FindAll returns every row ordered by creation time.
func (t *Table[T]) FindAll(ctx context.Context) ([]T, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY created_at, id", t.Columns(""), t.name)
	return t.Select(ctx, "list "+t.resource, query)
}

// Exists reports whether a row with id is present.
func (t *Table[T]) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	q, err := t.manager.Querier(ctx)
	if err != nil {
		return false, err
	}
	var exists bool
	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)", t.name)
	if err := q.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return false, Translate("check "+t.resource, err)
	}
	return exists, nil
}

// Update applies values to the row with id. Existence is checked first so a
// missing row yields a NotFoundError rather than a silent no-op.
func (t *Table[T]) Update(ctx context.Context, id uuid.UUID, values Values) (T, error) {
	var zero T
	exists, err := t.Exists(ctx, id)
	if err != nil {
		return zero, err
	}
	if !exists {
		return zero, &shared.NotFoundError{Resource: t.resource, ID: id.String()}
	}
	if len(values) == 0 {
		return t.FindByID(ctx, id)
	}
	keys, args, err := t.split(t.stamped(values))
	if err != nil {
		return zero, err
	}
	sets := make([]string, len(keys))
	for i, k := range keys {
		sets[i] = fmt.Sprintf("%s = $%d", k, i+1)
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d RETURNING %s",
		t.name, strings.Join(sets, ", "), len(args), t.Columns(""))
	items, err := t.Select(ctx, "update "+t.resource, query, args...)
	if err != nil {
		return zero, err
	}
	if len(items) == 0 {
		return zero, &shared.NotFoundError{Resource: t.resource, ID: id.String()}
	}
	return items[0], nil
}

// DeleteByID removes the row with id, failing with NotFoundError when absent.
func (t *Table[T]) DeleteByID(ctx context.Context, id uuid.UUID) (bool, error) {
	exists, err := t.Exists(ctx, id)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, &shared.NotFoundError{Resource: t.resource, ID: id.String()}
	}
	affected, err := t.DeleteWhere(ctx, Values{"id": id})
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// DeleteWhere removes rows matching every condition and returns the count.
func (t *Table[T]) DeleteWhere(ctx context.Context, conditions Values) (int64, error) {
	if len(conditions) == 0 {
		return 0, fmt.Errorf("platform/db: refusing unconditional delete on %s", t.resource)
	}
	keys, args, err := t.split(conditions)
	if err != nil {
		return 0, err
	}
	q, err := t.manager.Querier(ctx)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s", t.name, where(keys))
	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return 0, Translate("delete "+t.resource, err)
	}
	return tag.RowsAffected(), nil
}

// Count returns the number of rows matching every condition.
func (t *Table[T]) Count(ctx context.Context, conditions Values) (int, error) {
	keys, args, err := t.split(conditions)
	if err != nil {
		return 0, err
	}
	q, err := t.manager.Querier(ctx)
	if err != nil {
		return 0, err
	}
	query := "SELECT COUNT(*) FROM " + t.name
	if len(keys) > 0 {
		query += " WHERE " + where(keys)
	}
	var count int
	if err := q.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, Translate("count "+t.resource, err)
	}
	return count, nil
}

// Select runs query and scans every row into T by column name.
func (t *Table[T]) Select(ctx context.Context, op, query string, args ...any) ([]T, error) {
	q, err := t.manager.Querier(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, Translate(op, err)
	}
	items, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		return nil, Translate(op, err)
	}
	return items, nil
}

// stamped returns a copy of values carrying updated_at when the table has
// that column and the caller did not set it.
func (t *Table[T]) stamped(values Values) Values {
	if _, ok := values["updated_at"]; ok || !slices.Contains(t.columns, "updated_at") {
		return values
	}
	out := make(Values, len(values)+1)
	for k, v := range values {
		out[k] = v
	}
	out["updated_at"] = t.now().UTC()
	return out
}

func (t *Table[T]) split(values Values) ([]string, []any, error) {
	keys := make([]string, 0, len(values))
	for k := range values {
		if !slices.Contains(t.columns, k) {
			return nil, nil, fmt.Errorf("platform/db: %s has no column %q", t.resource, k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = values[k]
	}
	return keys, args, nil
}

func where(keys []string) string {
	conds := make([]string, len(keys))
	for i, k := range keys {
		conds[i] = fmt.Sprintf("%s = $%d", k, i+1)
	}
	return strings.Join(conds, " AND ")
}
