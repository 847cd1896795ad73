package roles

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-gateway/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-gateway/internal/rbac"
	"github.com/odyssey-erp/odyssey-gateway/internal/shared"
)

// Handler manages role management endpoints.
type Handler struct {
	logger  *slog.Logger
	service *rbac.Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *rbac.Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermReadRole))
		r.Get("/", h.listRoles)
		r.Get("/user/{userId}", h.userRoles)
		r.Get("/{id}", h.getRole)
		r.Get("/{id}/users", h.roleUsers)
	})
	r.With(h.rbac.RequireAll(shared.PermCreateRole)).Post("/", h.createRole)
	r.With(h.rbac.RequireAll(shared.PermUpdateRole)).Put("/{id}", h.updateRole)
	r.With(h.rbac.RequireAll(shared.PermDeleteRole)).Delete("/{id}", h.deleteRole)
	r.With(h.rbac.RequireAll(shared.PermAssignRole)).Post("/assign", h.assignRole)
	r.With(h.rbac.RequireAll(shared.PermRemoveRole)).Post("/remove", h.removeRole)
	r.With(h.rbac.RequireAll(shared.PermAssignPermission)).Post("/assign-permission", h.assignPermission)
	r.With(h.rbac.RequireAll(shared.PermRemovePermission)).Post("/remove-permission", h.removePermission)
	r.With(h.rbac.RequireAll(shared.PermReadPermission)).Get("/{id}/permissions", h.rolePermissions)
}

type roleUsersResponse struct {
	RoleID  string   `json:"role_id"`
	UserIDs []string `json:"user_ids"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, roles)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req rbac.CreateRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.fail(w, r, err)
		return
	}
	role, err := h.service.CreateRole(r.Context(), req.Input())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req rbac.UpdateRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.fail(w, r, err)
		return
	}
	role, err := h.service.UpdateRole(r.Context(), id, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	var req rbac.RoleAssignmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.fail(w, r, err)
		return
	}
	userID, roleID := req.IDs()
	grant, err := h.service.AssignRoleToUser(r.Context(), userID, roleID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, grant)
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	var req rbac.RoleAssignmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.fail(w, r, err)
		return
	}
	userID, roleID := req.IDs()
	if err := h.service.RemoveRoleFromUser(r.Context(), userID, roleID); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) assignPermission(w http.ResponseWriter, r *http.Request) {
	var req rbac.PermissionAssignmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.fail(w, r, err)
		return
	}
	roleID, permissionID := req.IDs()
	grant, err := h.service.AssignPermissionToRole(r.Context(), roleID, permissionID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, grant)
}

func (h *Handler) removePermission(w http.ResponseWriter, r *http.Request) {
	var req rbac.PermissionAssignmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.fail(w, r, err)
		return
	}
	roleID, permissionID := req.IDs()
	if err := h.service.RemovePermissionFromRole(r.Context(), roleID, permissionID); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) userRoles(w http.ResponseWriter, r *http.Request) {
	userID, err := httpx.URLParamUUID(r, "userId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	roles, err := h.service.UserRoles(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, roles)
}

func (h *Handler) roleUsers(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ids, err := h.service.RoleUsers(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := roleUsersResponse{RoleID: id.String(), UserIDs: make([]string, len(ids))}
	for i, uid := range ids {
		resp.UserIDs[i] = uid.String()
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) rolePermissions(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	perms, err := h.service.RolePermissions(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if h.logger != nil && shared.IsInternal(err) {
		h.logger.Error("roles handler", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
