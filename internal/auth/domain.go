package auth

import (
	"github.com/odyssey-erp/odyssey-gateway/internal/rbac"
	"github.com/odyssey-erp/odyssey-gateway/internal/shared"
	"github.com/odyssey-erp/odyssey-gateway/internal/users"
)

// RegisterRequest is the payload for account registration.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=100"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,bcryptlen"`
}

// Validate normalises and checks the payload.
func (r *RegisterRequest) Validate() error {
	r.Username = users.NormalizeUsername(r.Username)
	r.Email = users.NormalizeEmail(r.Email)
	return shared.ValidateStruct(r)
}

// LoginRequest is the payload for password login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Validate normalises and checks the payload.
func (r *LoginRequest) Validate() error {
	r.Email = users.NormalizeEmail(r.Email)
	return shared.ValidateStruct(r)
}

// ProfileUpdate carries the profile fields a user may change. Nil fields are kept.
type ProfileUpdate struct {
	Username *string `json:"username" validate:"omitempty,min=3,max=100"`
	Email    *string `json:"email" validate:"omitempty,email,max=255"`
}

// Validate normalises and checks the payload.
func (r *ProfileUpdate) Validate() error {
	if r.Username != nil {
		v := users.NormalizeUsername(*r.Username)
		r.Username = &v
	}
	if r.Email != nil {
		v := users.NormalizeEmail(*r.Email)
		r.Email = &v
	}
	return shared.ValidateStruct(r)
}

// ChangePasswordRequest is the payload for a password change.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,bcryptlen,nefield=CurrentPassword"`
}

// Validate checks the payload.
func (r *ChangePasswordRequest) Validate() error {
	return shared.ValidateStruct(r)
}

// Profile is a user together with the names of the roles it holds.
type Profile struct {
	users.User
	Roles []string `json:"roles"`
}

func newProfile(user users.User, roles []rbac.Role) Profile {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.Name
	}
	return Profile{User: user, Roles: names}
}
