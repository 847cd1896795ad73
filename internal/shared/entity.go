package shared

import (
	"time"

	"github.com/google/uuid"
)

// Entity carries the identity and timestamps shared by every persisted record.
type Entity struct {
	ID        uuid.UUID `db:"id" json:"id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// NewEntity stamps a fresh identifier and creation timestamps.
func NewEntity(now time.Time) Entity {
	now = now.UTC()
	return Entity{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}
}

// Ensure fills the identifier and timestamps when absent.
func (e *Entity) Ensure(now time.Time) {
	now = now.UTC()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = e.CreatedAt
	}
}
