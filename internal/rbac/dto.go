package rbac

import (
	"strings"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-gateway/internal/shared"
)

// CreateRoleRequest is the payload for creating a role.
type CreateRoleRequest struct {
	Name        string  `json:"name" validate:"required,notblank,min=3,max=50"`
	Description *string `json:"description" validate:"omitempty,min=3,max=255"`
	IsActive    *bool   `json:"is_active"`
}

// Validate normalises and checks the payload.
func (r *CreateRoleRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Description = trimOptional(r.Description)
	return shared.ValidateStruct(r)
}

// Input converts the payload for the service.
func (r CreateRoleRequest) Input() RoleInput {
	return RoleInput{Name: r.Name, Description: r.Description, IsActive: r.IsActive}
}

// UpdateRoleRequest is the partial payload for updating a role.
type UpdateRoleRequest struct {
	Name        *string `json:"name" validate:"omitempty,notblank,min=3,max=50"`
	Description *string `json:"description" validate:"omitempty,min=3,max=255"`
	IsActive    *bool   `json:"is_active"`
}

// Validate normalises and checks the payload.
func (r *UpdateRoleRequest) Validate() error {
	r.Name = trimOptional(r.Name)
	r.Description = trimOptional(r.Description)
	return shared.ValidateStruct(r)
}

// CreatePermissionRequest is the payload for creating a permission.
type CreatePermissionRequest struct {
	Name        string  `json:"name" validate:"required,permission"`
	Description *string `json:"description" validate:"omitempty,min=10,max=255"`
}

// Validate normalises and checks the payload.
func (r *CreatePermissionRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Description = trimOptional(r.Description)
	return shared.ValidateStruct(r)
}

// UpdatePermissionRequest is the partial payload for updating a permission.
type UpdatePermissionRequest struct {
	Name        *string `json:"name" validate:"omitempty,permission"`
	Description *string `json:"description" validate:"omitempty,min=10,max=255"`
}

// Validate normalises and checks the payload.
func (r *UpdatePermissionRequest) Validate() error {
	r.Name = trimOptional(r.Name)
	r.Description = trimOptional(r.Description)
	return shared.ValidateStruct(r)
}

// RoleAssignmentRequest names a user and a role.
type RoleAssignmentRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
	RoleID string `json:"role_id" validate:"required,uuid"`
}

// Validate checks the payload.
func (r *RoleAssignmentRequest) Validate() error {
	return shared.ValidateStruct(r)
}

// IDs returns the parsed identifiers. Call after Validate.
func (r RoleAssignmentRequest) IDs() (uuid.UUID, uuid.UUID) {
	return uuid.MustParse(r.UserID), uuid.MustParse(r.RoleID)
}

// PermissionAssignmentRequest names a role and a permission.
type PermissionAssignmentRequest struct {
	RoleID       string `json:"role_id" validate:"required,uuid"`
	PermissionID string `json:"permission_id" validate:"required,uuid"`
}

// Validate checks the payload.
func (r *PermissionAssignmentRequest) Validate() error {
	return shared.ValidateStruct(r)
}

// IDs returns the parsed identifiers. Call after Validate.
func (r PermissionAssignmentRequest) IDs() (uuid.UUID, uuid.UUID) {
	return uuid.MustParse(r.RoleID), uuid.MustParse(r.PermissionID)
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
