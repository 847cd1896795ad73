package users

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-gateway/internal/platform/db"
)

const resourceUser = "user"

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	table *db.Table[User]
}

// NewRepository constructs a repository.
func NewRepository(manager *db.Manager) *Repository {
	return &Repository{
		table: db.NewTable[User](manager, "authentication", "users", resourceUser,
			"id", "username", "email", "password_hash", "created_at", "updated_at"),
	}
}

// Create inserts user, filling its id and timestamps when absent.
func (r *Repository) Create(ctx context.Context, user User) (User, error) {
	user.Entity.Ensure(time.Now())
	return r.table.Insert(ctx, db.Values{
		"id":            user.ID,
		"username":      user.Username,
		"email":         user.Email,
		"password_hash": user.PasswordHash,
		"created_at":    user.CreatedAt,
		"updated_at":    user.UpdatedAt,
	})
}

// FindByID fetches a user or returns a NotFoundError.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (User, error) {
	return r.table.FindByID(ctx, id)
}

// FindByEmail returns the users with email; empty when none match.
func (r *Repository) FindByEmail(ctx context.Context, email string) ([]User, error) {
	return r.table.FindByField(ctx, "email", email)
}

// FindByUsername returns the users with username; empty when none match.
func (r *Repository) FindByUsername(ctx context.Context, username string) ([]User, error) {
	return r.table.FindByField(ctx, "username", username)
}

// ListUsers returns all users.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	return r.table.FindAll(ctx)
}

// Update applies a partial update.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, values db.Values) (User, error) {
	return r.table.Update(ctx, id, values)
}

// Delete removes a user.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.table.DeleteByID(ctx, id)
}

// Exists reports whether the user is present.
func (r *Repository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.table.Exists(ctx, id)
}
