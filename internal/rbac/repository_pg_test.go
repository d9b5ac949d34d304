package rbac

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/meridian/internal/shared"
)

// newTestPool connects to the database named by TEST_PG_DSN and applies the
// schema. Tests using it are skipped when the variable is unset.
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set, skipping integration test")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	schema, err := os.ReadFile(filepath.Join("..", "..", "migrations", "0001_init.sql"))
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(schema))
	require.NoError(t, err)
	return pool
}

type pgFixture struct {
	pool       *pgxpool.Pool
	repo       *Repository
	userID     uuid.UUID
	locationID uuid.UUID
	projectID  uuid.UUID
	roleID     uuid.UUID
}

func newPGFixture(t *testing.T) *pgFixture {
	t.Helper()
	pool := newTestPool(t)
	ctx := context.Background()

	f := &pgFixture{
		pool:       pool,
		repo:       NewRepository(pool),
		userID:     uuid.New(),
		locationID: uuid.New(),
		projectID:  uuid.New(),
	}

	suffix := f.userID.String()[:8]
	_, err := pool.Exec(ctx,
		`INSERT INTO users (id, email, full_name, password_hash) VALUES ($1, $2, $3, 'x')`,
		f.userID, "prueba-"+suffix+"@meridian.local", "Usuario de Prueba")
	require.NoError(t, err)
	_, err = pool.Exec(ctx,
		`INSERT INTO locations (id, code, name) VALUES ($1, $2, $3)`,
		f.locationID, "TST-"+suffix, "Sucursal de Prueba")
	require.NoError(t, err)
	_, err = pool.Exec(ctx,
		`INSERT INTO projects (id, location_id, code, name) VALUES ($1, $2, $3, $4)`,
		f.projectID, f.locationID, "PRJ-"+suffix, "Proyecto de Prueba")
	require.NoError(t, err)

	role, err := f.repo.CreateRole(ctx, Role{
		Name:        "Editor " + suffix,
		Description: "Rol de prueba de integración",
		Permissions: Grid{"documents": Terminal(ActionRead, ActionUpdate)},
		IsActive:    true,
	})
	require.NoError(t, err)
	f.roleID = role.ID

	t.Cleanup(func() {
		ctx := context.Background()
		_, _ = pool.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, f.userID)
		_, _ = pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, f.roleID)
		_, _ = pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, f.projectID)
		_, _ = pool.Exec(ctx, `DELETE FROM locations WHERE id = $1`, f.locationID)
		_, _ = pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, f.userID)
	})
	return f
}

func (f *pgFixture) assign(t *testing.T, projectID *uuid.UUID) Assignment {
	t.Helper()
	created, err := f.repo.CreateAssignment(context.Background(), Assignment{
		UserID:     f.userID,
		RoleID:     f.roleID,
		LocationID: f.locationID,
		ProjectID:  projectID,
		StartDate:  time.Now().UTC().Add(-time.Hour),
		IsActive:   true,
		AssignedBy: f.userID,
	})
	require.NoError(t, err)
	return created
}

func TestRepositoryAssignListRevoke(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	created := f.assign(t, nil)

	listed, err := f.repo.ListActiveAssignments(ctx, f.userID, f.locationID, nil, now)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, created.ID, listed[0].ID)
	require.NotNil(t, listed[0].Role)
	assert.True(t, listed[0].Role.Allows("documents", ActionUpdate))
	assert.False(t, listed[0].Role.Allows("documents", ActionDelete))

	found, err := f.repo.FindActiveAssignment(ctx, f.userID, f.roleID, f.locationID, nil)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	revoked, err := f.repo.RevokeAssignment(ctx, created.ID, f.userID, now)
	require.NoError(t, err)
	assert.False(t, revoked.IsActive)
	require.NotNil(t, revoked.RevokedAt)
	require.NotNil(t, revoked.RevokedBy)
	assert.Equal(t, f.userID, *revoked.RevokedBy)

	listed, err = f.repo.ListActiveAssignments(ctx, f.userID, f.locationID, nil, now)
	require.NoError(t, err)
	assert.Empty(t, listed)

	// The revoked row stays behind for audit history and keeps the role pinned.
	count, err := f.repo.CountAssignments(ctx, f.roleID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestRepositoryProjectRule(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	bound := f.assign(t, &f.projectID)
	wide := f.assign(t, nil)

	withProject, err := f.repo.ListActiveAssignments(ctx, f.userID, f.locationID, &f.projectID, now)
	require.NoError(t, err)
	assert.Len(t, withProject, 2)

	withoutProject, err := f.repo.ListActiveAssignments(ctx, f.userID, f.locationID, nil, now)
	require.NoError(t, err)
	require.Len(t, withoutProject, 1)
	assert.Equal(t, wide.ID, withoutProject[0].ID)

	other := uuid.New()
	otherProject, err := f.repo.ListActiveAssignments(ctx, f.userID, f.locationID, &other, now)
	require.NoError(t, err)
	require.Len(t, otherProject, 1)
	assert.Equal(t, wide.ID, otherProject[0].ID)
	assert.NotEqual(t, bound.ID, otherProject[0].ID)
}

func TestRepositoryDuplicateProjectBoundConflicts(t *testing.T) {
	f := newPGFixture(t)

	f.assign(t, &f.projectID)

	_, err := f.repo.CreateAssignment(context.Background(), Assignment{
		UserID:     f.userID,
		RoleID:     f.roleID,
		LocationID: f.locationID,
		ProjectID:  &f.projectID,
		StartDate:  time.Now().UTC(),
		IsActive:   true,
		AssignedBy: f.userID,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrConflict)
}

func TestRepositoryProjectlessDuplicatesPassTheIndex(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()

	// The unique index only covers rows with a concrete project, so identical
	// project-less rows both insert. The ledger's pre-insert lookup is the
	// sole guard for that case.
	f.assign(t, nil)
	f.assign(t, nil)

	listed, err := f.repo.ListActiveAssignments(ctx, f.userID, f.locationID, nil, time.Now().UTC())
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestRepositoryDeactivateExpired(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	past := now.Add(-time.Minute)
	_, err := f.repo.CreateAssignment(ctx, Assignment{
		UserID:     f.userID,
		RoleID:     f.roleID,
		LocationID: f.locationID,
		StartDate:  now.Add(-time.Hour),
		EndDate:    &past,
		IsActive:   true,
		AssignedBy: f.userID,
	})
	require.NoError(t, err)
	f.assign(t, nil)

	swept, err := f.repo.DeactivateExpired(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, swept)

	listed, err := f.repo.ListActiveAssignments(ctx, f.userID, f.locationID, nil, now)
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}
