package auth_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-gateway/internal/auth"
	"github.com/odyssey-erp/odyssey-gateway/internal/platform/db"
	"github.com/odyssey-erp/odyssey-gateway/internal/rbac"
	"github.com/odyssey-erp/odyssey-gateway/internal/rbac/rbactest"
	"github.com/odyssey-erp/odyssey-gateway/internal/shared"
	"github.com/odyssey-erp/odyssey-gateway/internal/users"
)

// memUsers is an in-memory UserStore that registers accounts with the RBAC
// directory so role grants can reference them.
type memUsers struct {
	mu        sync.Mutex
	rows      map[uuid.UUID]users.User
	directory *rbactest.Memory
	findErr   error
}

func newMemUsers(directory *rbactest.Memory) *memUsers {
	return &memUsers{rows: make(map[uuid.UUID]users.User), directory: directory}
}

func (m *memUsers) Create(_ context.Context, user users.User) (users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.rows {
		if u.Email == user.Email {
			return users.User{}, &shared.UniqueConstraintError{Field: "email"}
		}
		if u.Username == user.Username {
			return users.User{}, &shared.UniqueConstraintError{Field: "username"}
		}
	}
	user.Entity = shared.NewEntity(time.Now())
	m.rows[user.ID] = user
	m.directory.Track(user.ID)
	return user, nil
}

func (m *memUsers) FindByID(_ context.Context, id uuid.UUID) (users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.rows[id]
	if !ok {
		return users.User{}, &shared.NotFoundError{Resource: "user", ID: id.String()}
	}
	return u, nil
}

func (m *memUsers) FindByEmail(_ context.Context, email string) ([]users.User, error) {
	return m.find(func(u users.User) bool { return u.Email == email })
}

func (m *memUsers) FindByUsername(_ context.Context, username string) ([]users.User, error) {
	return m.find(func(u users.User) bool { return u.Username == username })
}

func (m *memUsers) find(match func(users.User) bool) ([]users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	var out []users.User
	for _, u := range m.rows {
		if match(u) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memUsers) Update(_ context.Context, id uuid.UUID, values db.Values) (users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.rows[id]
	if !ok {
		return users.User{}, &shared.NotFoundError{Resource: "user", ID: id.String()}
	}
	if v, ok := values["email"].(string); ok {
		u.Email = v
	}
	if v, ok := values["username"].(string); ok {
		u.Username = v
	}
	if v, ok := values["password_hash"].(string); ok {
		u.PasswordHash = v
	}
	m.rows[id] = u
	return u, nil
}

func (m *memUsers) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return false, &shared.NotFoundError{Resource: "user", ID: id.String()}
	}
	delete(m.rows, id)
	m.directory.RemoveUser(id)
	return true, nil
}

func (m *memUsers) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type fixture struct {
	svc   *auth.Service
	rbac  *rbac.Service
	users *memUsers
	mem   *rbactest.Memory
	role  rbac.Role
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mem := rbactest.New()
	rbacSvc := mem.Service()
	require.NoError(t, rbacSvc.SeedDefaults(context.Background()))
	role, err := rbacSvc.RoleByName(context.Background(), rbac.RoleStandard)
	require.NoError(t, err)

	store := newMemUsers(mem)
	svc, err := auth.NewService(store, rbacSvc, mem, auth.Options{
		BcryptCost:    bcrypt.MinCost,
		DefaultRoleID: role.ID,
	})
	require.NoError(t, err)
	return fixture{svc: svc, rbac: rbacSvc, users: store, mem: mem, role: role}
}

func TestRegisterThenLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Register(ctx, " alice ", "Alice@Example.COM", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, "alice", created.Username)
	assert.Equal(t, "alice@example.com", created.Email)
	assert.NotEqual(t, "s3cret-pass", created.PasswordHash)

	user, err := f.svc.Login(ctx, "ALICE@example.com", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, created.ID, user.ID)

	profile, err := f.svc.Profile(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{rbac.RoleStandard}, profile.Roles)
}

func TestRegisterDuplicateLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "alice", "alice@example.com", "s3cret-pass")
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, "alice2", "ALICE@example.com", "another-pass")
	var dup *shared.DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "email", dup.Field)

	_, err = f.svc.Register(ctx, "alice", "other@example.com", "another-pass")
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "username", dup.Field)

	assert.Equal(t, 1, f.users.count())
}

func TestRegisterValidatesInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Register(context.Background(), "al", "not-an-email", "short")
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	fields := make([]string, 0, len(verr.Fields))
	for _, fe := range verr.Fields {
		fields = append(fields, fe.Field)
	}
	assert.ElementsMatch(t, []string{"username", "email", "password"}, fields)
	assert.Zero(t, f.users.count())
}

func TestPasswordLimitCountsBytes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wide := strings.Repeat("é", 40)

	_, err := f.svc.Register(ctx, "bob", "bob@example.com", wide)
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "password", verr.Fields[0].Field)
	assert.Equal(t, "must be at most 72 bytes", verr.Fields[0].Message)
	assert.Zero(t, f.users.count())

	user, err := f.svc.Register(ctx, "bob", "bob@example.com", strings.Repeat("é", 36))
	require.NoError(t, err)
	err = f.svc.ChangePassword(ctx, user.ID, strings.Repeat("é", 36), wide)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestRegisterSkipsInactiveDefaultRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inactive := false
	_, err := f.rbac.UpdateRole(ctx, f.role.ID, rbac.UpdateRoleRequest{IsActive: &inactive})
	require.NoError(t, err)

	user, err := f.svc.Register(ctx, "carol", "carol@example.com", "s3cret-pass")
	require.NoError(t, err)
	assert.Zero(t, f.mem.GrantCount(user.ID))

	profile, err := f.svc.Profile(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, profile.Roles)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "alice", "alice@example.com", "s3cret-pass")
	require.NoError(t, err)

	_, wrongPassword := f.svc.Login(ctx, "alice@example.com", "wrong-pass")
	_, unknownEmail := f.svc.Login(ctx, "nobody@example.com", "wrong-pass")

	require.ErrorIs(t, wrongPassword, shared.ErrInvalidCredentials)
	require.ErrorIs(t, unknownEmail, shared.ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestLoginStorageFailureIsNotInvalidCredentials(t *testing.T) {
	f := newFixture(t)
	f.users.findErr = &shared.ConnectionError{Attempts: 3, Err: errors.New("refused")}

	_, err := f.svc.Login(context.Background(), "alice@example.com", "s3cret-pass")
	require.ErrorIs(t, err, shared.ErrConnection)
	assert.NotErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.svc.Register(ctx, "alice", "alice@example.com", "s3cret-pass")
	require.NoError(t, err)

	err = f.svc.ChangePassword(ctx, user.ID, "wrong-pass", "brand-new-pass")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	err = f.svc.ChangePassword(ctx, user.ID, "s3cret-pass", "s3cret-pass")
	require.ErrorIs(t, err, shared.ErrValidation)

	require.NoError(t, f.svc.ChangePassword(ctx, user.ID, "s3cret-pass", "brand-new-pass"))

	_, err = f.svc.Login(ctx, "alice@example.com", "s3cret-pass")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "alice@example.com", "brand-new-pass")
	require.NoError(t, err)
}

func TestUpdateProfileKeepsEmailUnique(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice, err := f.svc.Register(ctx, "alice", "alice@example.com", "s3cret-pass")
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, "bob", "bob@example.com", "s3cret-pass")
	require.NoError(t, err)

	taken := "BOB@example.com"
	_, err = f.svc.UpdateProfile(ctx, alice.ID, auth.ProfileUpdate{Email: &taken})
	require.ErrorIs(t, err, shared.ErrDuplicate)

	own := "alice@example.com"
	name := "alice.w"
	updated, err := f.svc.UpdateProfile(ctx, alice.ID, auth.ProfileUpdate{Email: &own, Username: &name})
	require.NoError(t, err)
	assert.Equal(t, "alice.w", updated.Username)
	assert.Equal(t, "alice@example.com", updated.Email)
}

func TestDeleteUserRevokesGrants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.svc.Register(ctx, "alice", "alice@example.com", "s3cret-pass")
	require.NoError(t, err)
	require.Equal(t, 1, f.mem.GrantCount(user.ID))

	require.NoError(t, f.svc.DeleteUser(ctx, user.ID))
	assert.Zero(t, f.mem.GrantCount(user.ID))
	_, err = f.svc.GetByID(ctx, user.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	require.ErrorIs(t, f.svc.DeleteUser(ctx, user.ID), shared.ErrNotFound)
}

func TestResolveDefaultRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := auth.ResolveDefaultRole(ctx, f.rbac, rbac.RoleStandard, nil)
	require.NoError(t, err)
	assert.Equal(t, f.role.ID, id)

	id, err = auth.ResolveDefaultRole(ctx, f.rbac, "Ghost", nil)
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, id)

	id, err = auth.ResolveDefaultRole(ctx, f.rbac, "", nil)
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, id)
}
