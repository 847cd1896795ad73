package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-gateway/internal/platform/db"
	"github.com/odyssey-erp/odyssey-gateway/internal/rbac"
	"github.com/odyssey-erp/odyssey-gateway/internal/shared"
	"github.com/odyssey-erp/odyssey-gateway/internal/users"
)

// UserStore persists user accounts.
type UserStore interface {
	Create(ctx context.Context, user users.User) (users.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (users.User, error)
	FindByEmail(ctx context.Context, email string) ([]users.User, error)
	FindByUsername(ctx context.Context, username string) ([]users.User, error)
	Update(ctx context.Context, id uuid.UUID, values db.Values) (users.User, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

// RoleGrants is the slice of the RBAC service used for account lifecycle.
type RoleGrants interface {
	AssignRoleToUser(ctx context.Context, userID, roleID uuid.UUID) (rbac.RoleUser, error)
	RevokeAllRoles(ctx context.Context, userID uuid.UUID) error
	UserRoles(ctx context.Context, userID uuid.UUID) ([]rbac.Role, error)
}

// Transactor runs fn inside a single storage transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Options tunes the Service.
type Options struct {
	// BcryptCost is the hashing work factor.
	BcryptCost int
	// DefaultRoleID is granted on registration; uuid.Nil disables the grant.
	DefaultRoleID uuid.UUID
	Logger        *slog.Logger
}

// Service wraps authentication business rules.
type Service struct {
	users       UserStore
	grants      RoleGrants
	tx          Transactor
	cost        int
	defaultRole uuid.UUID
	dummyHash   []byte
	logger      *slog.Logger
}

// NewService constructs a new Service.
func NewService(store UserStore, grants RoleGrants, tx Transactor, opts Options) (*Service, error) {
	cost := opts.BcryptCost
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("odyssey-gateway/unknown-account"), cost)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:       store,
		grants:      grants,
		tx:          tx,
		cost:        cost,
		defaultRole: opts.DefaultRoleID,
		dummyHash:   dummy,
		logger:      logger,
	}, nil
}

// Register creates an account and grants the default role in one transaction.
func (s *Service) Register(ctx context.Context, username, email, password string) (users.User, error) {
	req := RegisterRequest{Username: username, Email: email, Password: password}
	if err := req.Validate(); err != nil {
		return users.User{}, err
	}
	if existing, err := s.users.FindByEmail(ctx, req.Email); err != nil {
		return users.User{}, err
	} else if len(existing) > 0 {
		return users.User{}, &shared.DuplicateError{Resource: "user", Field: "email"}
	}
	if existing, err := s.users.FindByUsername(ctx, req.Username); err != nil {
		return users.User{}, err
	} else if len(existing) > 0 {
		return users.User{}, &shared.DuplicateError{Resource: "user", Field: "username"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return users.User{}, err
	}

	var created users.User
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		user, err := s.users.Create(ctx, users.User{
			Username:     req.Username,
			Email:        req.Email,
			PasswordHash: string(hash),
		})
		if err != nil {
			return err
		}
		if s.defaultRole != uuid.Nil {
			_, err := s.grants.AssignRoleToUser(ctx, user.ID, s.defaultRole)
			switch {
			case errors.Is(err, shared.ErrConflict):
				s.logger.Warn("default role inactive, registering without it",
					slog.String("role_id", s.defaultRole.String()))
			case err != nil:
				return err
			}
		}
		created = user
		return nil
	})
	if err != nil {
		return users.User{}, userDuplicate(err)
	}
	s.logger.Info("user registered", slog.String("user_id", created.ID.String()))
	return created, nil
}

// Login verifies credentials. Unknown emails and wrong passwords produce the
// same ErrInvalidCredentials after a comparable amount of hashing work.
func (s *Service) Login(ctx context.Context, email, password string) (users.User, error) {
	matches, err := s.users.FindByEmail(ctx, users.NormalizeEmail(email))
	if err != nil {
		return users.User{}, err
	}
	if len(matches) == 0 {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		s.logger.Warn("login rejected")
		return users.User{}, shared.ErrInvalidCredentials
	}
	user := matches[0]
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Warn("login rejected")
		return users.User{}, shared.ErrInvalidCredentials
	}
	return user, nil
}

// GetByID returns the account or a NotFoundError.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (users.User, error) {
	return s.users.FindByID(ctx, id)
}

// Profile returns the account with its role names.
func (s *Service) Profile(ctx context.Context, id uuid.UUID) (Profile, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	roles, err := s.grants.UserRoles(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	return newProfile(user, roles), nil
}

// UpdateProfile changes username or email, re-checking uniqueness against
// every other account.
func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, update ProfileUpdate) (users.User, error) {
	if err := update.Validate(); err != nil {
		return users.User{}, err
	}
	current, err := s.users.FindByID(ctx, id)
	if err != nil {
		return users.User{}, err
	}
	values := db.Values{}
	if update.Email != nil && *update.Email != current.Email {
		if err := s.ensureFree(ctx, s.users.FindByEmail, *update.Email, id, "email"); err != nil {
			return users.User{}, err
		}
		values["email"] = *update.Email
	}
	if update.Username != nil && *update.Username != current.Username {
		if err := s.ensureFree(ctx, s.users.FindByUsername, *update.Username, id, "username"); err != nil {
			return users.User{}, err
		}
		values["username"] = *update.Username
	}
	if len(values) == 0 {
		return current, nil
	}
	user, err := s.users.Update(ctx, id, values)
	if err != nil {
		return users.User{}, userDuplicate(err)
	}
	return user, nil
}

// ChangePassword re-verifies the current password before storing the new hash.
func (s *Service) ChangePassword(ctx context.Context, id uuid.UUID, currentPassword, newPassword string) error {
	req := ChangePasswordRequest{CurrentPassword: currentPassword, NewPassword: newPassword}
	if err := req.Validate(); err != nil {
		return err
	}
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)); err != nil {
		return shared.ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cost)
	if err != nil {
		return err
	}
	if _, err := s.users.Update(ctx, id, db.Values{"password_hash": string(hash)}); err != nil {
		return err
	}
	s.logger.Info("password changed", slog.String("user_id", id.String()))
	return nil
}

// DeleteUser removes the account and its role grants.
func (s *Service) DeleteUser(ctx context.Context, id uuid.UUID) error {
	if _, err := s.users.FindByID(ctx, id); err != nil {
		return err
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.grants.RevokeAllRoles(ctx, id); err != nil {
			return err
		}
		_, err := s.users.Delete(ctx, id)
		return err
	})
	if err != nil {
		return err
	}
	s.logger.Info("user deleted", slog.String("user_id", id.String()))
	return nil
}

func (s *Service) ensureFree(ctx context.Context, find func(context.Context, string) ([]users.User, error), value string, self uuid.UUID, field string) error {
	matches, err := find(ctx, value)
	if err != nil {
		return err
	}
	for _, u := range matches {
		if u.ID != self {
			return &shared.DuplicateError{Resource: "user", Field: field}
		}
	}
	return nil
}

// userDuplicate maps a storage unique violation on the users table to the
// business-level DuplicateError naming the clashing field.
func userDuplicate(err error) error {
	var unique *shared.UniqueConstraintError
	if !errors.As(err, &unique) {
		return err
	}
	field := unique.Field
	switch {
	case strings.Contains(field, "email"):
		field = "email"
	case strings.Contains(field, "username"):
		field = "username"
	}
	return &shared.DuplicateError{Resource: "user", Field: field}
}

// RoleFinder looks up roles by name.
type RoleFinder interface {
	RoleByName(ctx context.Context, name string) (rbac.Role, error)
}

// ResolveDefaultRole returns the id of the named role. A missing role is
// logged and yields uuid.Nil so that registration proceeds without a grant.
func ResolveDefaultRole(ctx context.Context, finder RoleFinder, name string, logger *slog.Logger) (uuid.UUID, error) {
	if strings.TrimSpace(name) == "" {
		return uuid.Nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	role, err := finder.RoleByName(ctx, name)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			logger.Warn("default role not found; new accounts get no role", slog.String("role", name))
			return uuid.Nil, nil
		}
		return uuid.Nil, err
	}
	return role.ID, nil
}
