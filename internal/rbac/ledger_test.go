package rbac

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/meridian/internal/shared"
)

type ledgerFixture struct {
	ledger      *Ledger
	roles       *mockRoleStore
	assignments *mockAssignmentStore
	userID      uuid.UUID
	roleID      uuid.UUID
	locationID  uuid.UUID
	projectID   uuid.UUID
	actorID     uuid.UUID
	now         time.Time
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	f := &ledgerFixture{
		userID:     uuid.New(),
		locationID: uuid.New(),
		projectID:  uuid.New(),
		actorID:    uuid.New(),
		now:        time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.roles = newMockRoleStore(Role{
		Name:        "Supervisor",
		Permissions: Grid{"timeOff": Terminal(ActionRead, ActionUpdate)},
		IsActive:    true,
	})
	role, err := f.roles.GetRoleByName(context.Background(), "Supervisor")
	require.NoError(t, err)
	f.roleID = role.ID

	f.assignments = newMockAssignmentStore(f.roles)
	f.ledger = NewLedger(
		f.assignments,
		f.roles,
		&mockUsers{known: map[uuid.UUID]bool{f.userID: true, f.actorID: true}},
		&mockLocations{known: map[uuid.UUID]bool{f.locationID: true}},
		&mockProjects{locations: map[uuid.UUID]uuid.UUID{f.projectID: f.locationID}},
		nil,
		slog.Default(),
	)
	f.ledger.now = func() time.Time { return f.now }
	return f
}

func (f *ledgerFixture) assign(t *testing.T, projectID *uuid.UUID) Assignment {
	t.Helper()
	a, err := f.ledger.AssignRole(context.Background(), AssignRoleInput{
		UserID:     f.userID,
		RoleID:     f.roleID,
		LocationID: f.locationID,
		ProjectID:  projectID,
		AssignedBy: f.actorID,
	})
	require.NoError(t, err)
	return a
}

func TestAssignRoleDefaults(t *testing.T) {
	f := newLedgerFixture(t)

	a := f.assign(t, nil)
	assert.True(t, a.IsActive)
	assert.Equal(t, f.now, a.StartDate, "start date defaults to now")
	assert.Nil(t, a.EndDate)
	assert.Equal(t, f.actorID, a.AssignedBy)
}

func TestAssignRoleDuplicateConflict(t *testing.T) {
	f := newLedgerFixture(t)
	f.assign(t, &f.projectID)

	_, err := f.ledger.AssignRole(context.Background(), AssignRoleInput{
		UserID:     f.userID,
		RoleID:     f.roleID,
		LocationID: f.locationID,
		ProjectID:  &f.projectID,
		AssignedBy: f.actorID,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))
}

func TestAssignRoleProjectlessDoesNotCollideWithProjectBound(t *testing.T) {
	f := newLedgerFixture(t)
	f.assign(t, &f.projectID)

	// A location-wide assignment of the same role coexists with the
	// project-bound one.
	a := f.assign(t, nil)
	assert.Nil(t, a.ProjectID)
}

func TestAssignRoleUnknownUser(t *testing.T) {
	f := newLedgerFixture(t)

	_, err := f.ledger.AssignRole(context.Background(), AssignRoleInput{
		UserID:     uuid.New(),
		RoleID:     f.roleID,
		LocationID: f.locationID,
		AssignedBy: f.actorID,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestAssignRoleProjectOutsideLocation(t *testing.T) {
	f := newLedgerFixture(t)
	foreign := uuid.New()
	f.ledger.projects = &mockProjects{locations: map[uuid.UUID]uuid.UUID{foreign: uuid.New()}}

	_, err := f.ledger.AssignRole(context.Background(), AssignRoleInput{
		UserID:     f.userID,
		RoleID:     f.roleID,
		LocationID: f.locationID,
		ProjectID:  &foreign,
		AssignedBy: f.actorID,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrReferentialIntegrity))
}

func TestRevokeRoleIsLogical(t *testing.T) {
	f := newLedgerFixture(t)
	f.assign(t, nil)

	revoked, err := f.ledger.RevokeRole(context.Background(), f.userID, f.roleID, f.locationID, nil, f.actorID)
	require.NoError(t, err)
	assert.False(t, revoked.IsActive)
	require.NotNil(t, revoked.RevokedAt)
	assert.Equal(t, f.now, *revoked.RevokedAt)
	require.NotNil(t, revoked.RevokedBy)
	assert.Equal(t, f.actorID, *revoked.RevokedBy)

	// The record stays for audit history.
	_, err = f.assignments.GetAssignment(context.Background(), revoked.ID)
	require.NoError(t, err)

	// A second revocation finds no active assignment.
	_, err = f.ledger.RevokeRole(context.Background(), f.userID, f.roleID, f.locationID, nil, f.actorID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestGetUserRolesProjectRule(t *testing.T) {
	f := newLedgerFixture(t)
	locationWide := f.assign(t, nil)
	projectBound := f.assign(t, &f.projectID)

	// Querying with the project sees both.
	got, err := f.ledger.GetUserRoles(context.Background(), f.userID, f.locationID, &f.projectID)
	require.NoError(t, err)
	ids := make([]uuid.UUID, 0, len(got))
	for _, a := range got {
		ids = append(ids, a.ID)
		require.NotNil(t, a.Role, "role populated by the join")
	}
	assert.ElementsMatch(t, []uuid.UUID{locationWide.ID, projectBound.ID}, ids)

	// Querying without a project sees only the location-wide assignment.
	got, err = f.ledger.GetUserRoles(context.Background(), f.userID, f.locationID, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, locationWide.ID, got[0].ID)
}

func TestGetUserRolesWindowFiltering(t *testing.T) {
	f := newLedgerFixture(t)
	future := f.now.Add(48 * time.Hour)
	past := f.now.Add(-time.Hour)

	_, err := f.ledger.AssignRole(context.Background(), AssignRoleInput{
		UserID:     f.userID,
		RoleID:     f.roleID,
		LocationID: f.locationID,
		AssignedBy: f.actorID,
		StartDate:  &future,
	})
	require.NoError(t, err)

	start := f.now.Add(-48 * time.Hour)
	_, err = f.ledger.AssignRole(context.Background(), AssignRoleInput{
		UserID:     f.userID,
		RoleID:     f.roleID,
		LocationID: f.locationID,
		ProjectID:  &f.projectID,
		AssignedBy: f.actorID,
		StartDate:  &start,
		EndDate:    &past,
	})
	require.NoError(t, err)

	got, err := f.ledger.GetUserRoles(context.Background(), f.userID, f.locationID, &f.projectID)
	require.NoError(t, err)
	assert.Empty(t, got, "not-yet-started and expired assignments are invisible")
}

func TestHasRoleUnknownNameIsFalse(t *testing.T) {
	f := newLedgerFixture(t)

	ok, err := f.ledger.HasRole(context.Background(), f.userID, "Nadie", f.locationID, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteAssignmentGuardsSystemRoles(t *testing.T) {
	f := newLedgerFixture(t)
	adminRole, err := f.roles.CreateRole(context.Background(), Role{
		Name:     "Administrador",
		IsSystem: true,
		IsActive: true,
	})
	require.NoError(t, err)
	protected := f.assignments.add(Assignment{
		UserID:     f.userID,
		RoleID:     adminRole.ID,
		LocationID: f.locationID,
		IsActive:   true,
	})

	err = f.ledger.DeleteAssignment(context.Background(), protected.ID, f.actorID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))

	regular := f.assign(t, nil)
	require.NoError(t, f.ledger.DeleteAssignment(context.Background(), regular.ID, f.actorID))
	_, err = f.assignments.GetAssignment(context.Background(), regular.ID)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestPurgeUser(t *testing.T) {
	f := newLedgerFixture(t)
	f.assign(t, nil)
	f.assign(t, &f.projectID)

	n, err := f.ledger.PurgeUser(context.Background(), f.userID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}
