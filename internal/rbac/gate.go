package rbac

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-gateway/internal/shared"
)

// PermissionResolver resolves the effective permissions of a user.
type PermissionResolver interface {
	EffectivePermissions(ctx context.Context, userID uuid.UUID) ([]Permission, error)
}

// DecisionObserver records authorization outcomes.
type DecisionObserver interface {
	ObserveAuthorization(decision string)
}

// Authorization decisions reported to DecisionObserver.
const (
	DecisionAllow           = "allow"
	DecisionDeny            = "deny"
	DecisionUnauthenticated = "unauthenticated"
)

// Gate decides whether a principal holds a set of permissions.
type Gate struct {
	resolver PermissionResolver
	observer DecisionObserver
}

// NewGate constructs a Gate. observer may be nil.
func NewGate(resolver PermissionResolver, observer DecisionObserver) *Gate {
	return &Gate{resolver: resolver, observer: observer}
}

// Authorize returns nil when userID holds every required permission.
// A missing or unknown user yields ErrUnauthenticated; a known user lacking
// any permission yields ErrForbidden. An empty requirement set allows any
// known user.
func (g *Gate) Authorize(ctx context.Context, userID uuid.UUID, required ...string) error {
	if userID == uuid.Nil {
		g.observe(DecisionUnauthenticated)
		return shared.ErrUnauthenticated
	}
	normalized := normalizePermissions(required)
	granted, err := g.resolver.EffectivePermissions(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			g.observe(DecisionUnauthenticated)
			return shared.ErrUnauthenticated
		}
		return err
	}
	if !hasAllPermissions(PermissionNames(granted), normalized) {
		g.observe(DecisionDeny)
		return shared.ErrForbidden
	}
	g.observe(DecisionAllow)
	return nil
}

// AuthorizeAny returns nil when userID holds at least one of the permissions.
func (g *Gate) AuthorizeAny(ctx context.Context, userID uuid.UUID, candidates ...string) error {
	if userID == uuid.Nil {
		g.observe(DecisionUnauthenticated)
		return shared.ErrUnauthenticated
	}
	normalized := normalizePermissions(candidates)
	granted, err := g.resolver.EffectivePermissions(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			g.observe(DecisionUnauthenticated)
			return shared.ErrUnauthenticated
		}
		return err
	}
	if !hasAnyPermission(PermissionNames(granted), normalized) {
		g.observe(DecisionDeny)
		return shared.ErrForbidden
	}
	g.observe(DecisionAllow)
	return nil
}

func (g *Gate) observe(decision string) {
	if g.observer != nil {
		g.observer.ObserveAuthorization(decision)
	}
}

// normalizePermissions lowercases and dedupes names. Blank names are kept so
// they can never be satisfied by a grant.
func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		unique[strings.TrimSpace(strings.ToLower(p))] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for p := range unique {
		normalized = append(normalized, p)
	}
	return normalized
}

func hasAnyPermission(granted []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		set[strings.ToLower(p)] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}

func hasAllPermissions(granted []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		set[strings.ToLower(p)] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}
