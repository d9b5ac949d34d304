package rbac

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type evaluatorFixture struct {
	evaluator   *Evaluator
	roles       *mockRoleStore
	assignments *mockAssignmentStore
	userID      uuid.UUID
	locationID  uuid.UUID
	now         time.Time
}

func newEvaluatorFixture(t *testing.T, adminRole string) *evaluatorFixture {
	t.Helper()
	f := &evaluatorFixture{
		userID:     uuid.New(),
		locationID: uuid.New(),
		now:        time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.roles = newMockRoleStore()
	f.assignments = newMockAssignmentStore(f.roles)
	f.evaluator = NewEvaluator(f.roles, f.assignments, adminRole)
	f.evaluator.now = func() time.Time { return f.now }
	return f
}

func (f *evaluatorFixture) addRole(t *testing.T, name string, grid Grid) Role {
	t.Helper()
	role, err := f.roles.CreateRole(context.Background(), Role{
		Name:        name,
		Permissions: grid,
		IsActive:    true,
	})
	require.NoError(t, err)
	return role
}

func (f *evaluatorFixture) grant(roleID, locationID uuid.UUID, projectID *uuid.UUID, endDate *time.Time) {
	f.assignments.add(Assignment{
		UserID:     f.userID,
		RoleID:     roleID,
		LocationID: locationID,
		ProjectID:  projectID,
		StartDate:  f.now.Add(-24 * time.Hour),
		EndDate:    endDate,
		IsActive:   true,
	})
}

func TestHasPermissionGrantAndDeny(t *testing.T) {
	f := newEvaluatorFixture(t, "Administrador")
	role := f.addRole(t, "Supervisor", Grid{
		"timeOff":  Terminal(ActionRead, ActionUpdate),
		"settings": Nested(map[string]Node{"users": Terminal(ActionRead)}),
	})
	f.grant(role.ID, f.locationID, nil, nil)

	ok, err := f.evaluator.HasPermission(context.Background(), f.userID, "timeOff", ActionUpdate, f.locationID, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.evaluator.HasPermission(context.Background(), f.userID, "settings.users", ActionRead, f.locationID, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.evaluator.HasPermission(context.Background(), f.userID, "timeOff", ActionDelete, f.locationID, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	// A grant is bound to its location.
	ok, err = f.evaluator.HasPermission(context.Background(), f.userID, "timeOff", ActionRead, uuid.New(), nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasPermissionMergesAcrossRoles(t *testing.T) {
	f := newEvaluatorFixture(t, "Administrador")
	reader := f.addRole(t, "Lector", Grid{"documents": Terminal(ActionRead)})
	writer := f.addRole(t, "Editor", Grid{"documents": Terminal(ActionUpdate)})
	f.grant(reader.ID, f.locationID, nil, nil)
	f.grant(writer.ID, f.locationID, nil, nil)

	for _, action := range []Action{ActionRead, ActionUpdate} {
		ok, err := f.evaluator.HasPermission(context.Background(), f.userID, "documents", action, f.locationID, nil)
		require.NoError(t, err)
		assert.True(t, ok, action)
	}
}

func TestHasPermissionAdminShortCircuit(t *testing.T) {
	f := newEvaluatorFixture(t, "Administrador")
	admin := f.addRole(t, "Administrador", Grid{"profile": fullCRUD()})

	// Active admin assignment in an unrelated location still grants
	// everything everywhere.
	f.grant(admin.ID, uuid.New(), nil, nil)

	ok, err := f.evaluator.HasPermission(context.Background(), f.userID, "settings.menus", ActionDelete, f.locationID, nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHasPermissionExpiredAdminAssignment(t *testing.T) {
	f := newEvaluatorFixture(t, "Administrador")
	admin := f.addRole(t, "Administrador", Grid{"profile": fullCRUD()})
	expired := f.now.Add(-time.Hour)
	f.grant(admin.ID, uuid.New(), nil, &expired)

	ok, err := f.evaluator.HasPermission(context.Background(), f.userID, "settings.menus", ActionDelete, f.locationID, nil)
	require.NoError(t, err)
	assert.False(t, ok, "holding the admin role outside its window grants nothing")
}

func TestHasPermissionNoAdminRoleProvisioned(t *testing.T) {
	f := newEvaluatorFixture(t, "Administrador")
	role := f.addRole(t, "Supervisor", Grid{"timeOff": Terminal(ActionRead)})
	f.grant(role.ID, f.locationID, nil, nil)

	ok, err := f.evaluator.HasPermission(context.Background(), f.userID, "timeOff", ActionRead, f.locationID, nil)
	require.NoError(t, err)
	assert.True(t, ok, "missing admin role falls through to grid checks")
}

func TestHasPermissionStoreErrorIsNotDenial(t *testing.T) {
	f := newEvaluatorFixture(t, "")
	f.assignments.listErr = errors.New("connection reset")

	_, err := f.evaluator.HasPermission(context.Background(), f.userID, "timeOff", ActionRead, f.locationID, nil)
	require.Error(t, err)
}

func TestHasPermissionNoAssignments(t *testing.T) {
	f := newEvaluatorFixture(t, "")

	ok, err := f.evaluator.HasPermission(context.Background(), f.userID, "timeOff", ActionRead, f.locationID, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEffectivePermissionsMerge(t *testing.T) {
	f := newEvaluatorFixture(t, "Administrador")
	reader := f.addRole(t, "Lector", Grid{
		"documents": Terminal(ActionRead),
		"settings":  Nested(map[string]Node{"users": Terminal(ActionRead)}),
	})
	writer := f.addRole(t, "Editor", Grid{"documents": Terminal(ActionUpdate)})
	f.grant(reader.ID, f.locationID, nil, nil)
	f.grant(writer.ID, f.locationID, nil, nil)

	perms, err := f.evaluator.EffectivePermissions(context.Background(), f.userID, f.locationID, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []Action{ActionRead, ActionUpdate}, perms["documents"])
	assert.ElementsMatch(t, []Action{ActionRead}, perms["settings.users"])
	assert.NotContains(t, perms, "timeOff")
}

func TestEffectivePermissionsAdmin(t *testing.T) {
	f := newEvaluatorFixture(t, "Administrador")
	admin := f.addRole(t, "Administrador", Grid{
		"profile":  Terminal(ActionRead),
		"settings": Nested(map[string]Node{"roles": Terminal(ActionRead)}),
	})
	f.grant(admin.ID, uuid.New(), nil, nil)

	perms, err := f.evaluator.EffectivePermissions(context.Background(), f.userID, f.locationID, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, AllActions, perms["profile"])
	assert.ElementsMatch(t, AllActions, perms["settings.roles"])
}
