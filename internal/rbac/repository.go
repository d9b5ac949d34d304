package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianhq/meridian/internal/shared"
)

// RoleStore defines persistence operations for roles.
type RoleStore interface {
	CreateRole(ctx context.Context, role Role) (Role, error)
	UpdateRole(ctx context.Context, role Role) (Role, error)
	DeleteRole(ctx context.Context, id uuid.UUID) error
	GetRole(ctx context.Context, id uuid.UUID) (Role, error)
	GetRoleByName(ctx context.Context, name string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
}

// AssignmentStore defines persistence operations for role assignments.
type AssignmentStore interface {
	CreateAssignment(ctx context.Context, a Assignment) (Assignment, error)
	GetAssignment(ctx context.Context, id uuid.UUID) (Assignment, error)
	FindActiveAssignment(ctx context.Context, userID, roleID, locationID uuid.UUID, projectID *uuid.UUID) (Assignment, error)
	RevokeAssignment(ctx context.Context, id, revokedBy uuid.UUID, at time.Time) (Assignment, error)
	DeleteAssignment(ctx context.Context, id uuid.UUID) error
	ListActiveAssignments(ctx context.Context, userID, locationID uuid.UUID, projectID *uuid.UUID, now time.Time) ([]Assignment, error)
	UserHasActiveRole(ctx context.Context, userID, roleID uuid.UUID, now time.Time) (bool, error)
	HasActiveRoleInContext(ctx context.Context, userID, roleID, locationID uuid.UUID, projectID *uuid.UUID, now time.Time) (bool, error)
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
	DeleteAssignmentsForUser(ctx context.Context, userID uuid.UUID) (int64, error)
	CountAssignments(ctx context.Context, roleID uuid.UUID) (int64, error)
}

// Repository provides PostgreSQL backed persistence for roles and assignments.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var (
	_ RoleStore       = (*Repository)(nil)
	_ AssignmentStore = (*Repository)(nil)
)

const roleColumns = `id, name, description, permissions, scope, is_system, is_active, sort_order, created_at, updated_at`

// CreateRole inserts a new role. A duplicate name yields shared.ErrConflict.
func (r *Repository) CreateRole(ctx context.Context, role Role) (Role, error) {
	permissions, scope, err := encodeRoleDocs(role)
	if err != nil {
		return Role{}, err
	}
	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}
	query := `
		INSERT INTO roles (id, name, description, permissions, scope, is_system, is_active, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + roleColumns
	row := r.pool.QueryRow(ctx, query,
		role.ID, role.Name, role.Description, permissions, scope,
		role.IsSystem, role.IsActive, role.SortOrder,
	)
	created, err := scanRole(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Role{}, fmt.Errorf("rbac: role name %q already exists: %w", role.Name, shared.ErrConflict)
		}
		return Role{}, err
	}
	return created, nil
}

// UpdateRole updates an existing role by id.
func (r *Repository) UpdateRole(ctx context.Context, role Role) (Role, error) {
	permissions, scope, err := encodeRoleDocs(role)
	if err != nil {
		return Role{}, err
	}
	query := `
		UPDATE roles
		SET name = $2, description = $3, permissions = $4, scope = $5,
		    is_system = $6, is_active = $7, sort_order = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + roleColumns
	row := r.pool.QueryRow(ctx, query,
		role.ID, role.Name, role.Description, permissions, scope,
		role.IsSystem, role.IsActive, role.SortOrder,
	)
	updated, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, fmt.Errorf("rbac: role %s: %w", role.ID, shared.ErrNotFound)
		}
		if isUniqueViolation(err) {
			return Role{}, fmt.Errorf("rbac: role name %q already exists: %w", role.Name, shared.ErrConflict)
		}
		return Role{}, err
	}
	return updated, nil
}

// DeleteRole removes a role by id.
func (r *Repository) DeleteRole(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rbac: role %s: %w", id, shared.ErrNotFound)
	}
	return nil
}

// GetRole fetches a role by id.
func (r *Repository) GetRole(ctx context.Context, id uuid.UUID) (Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, fmt.Errorf("rbac: role %s: %w", id, shared.ErrNotFound)
		}
		return Role{}, err
	}
	return role, nil
}

// GetRoleByName fetches a role by its unique name.
func (r *Repository) GetRoleByName(ctx context.Context, name string) (Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = $1`, name)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, fmt.Errorf("rbac: role %q: %w", name, shared.ErrNotFound)
		}
		return Role{}, err
	}
	return role, nil
}

// ListRoles returns all roles ordered for display.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY sort_order, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// CountAssignments counts assignments referencing a role, active or not.
func (r *Repository) CountAssignments(ctx context.Context, roleID uuid.UUID) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM user_roles WHERE role_id = $1`, roleID).Scan(&count)
	return count, err
}

const assignmentColumns = `id, user_id, role_id, location_id, project_id, start_date, end_date, is_active, notes, assigned_by, revoked_at, revoked_by, created_at, updated_at`

// CreateAssignment inserts a new assignment. The partial unique index on
// (user, role, location, project) backstops concurrent duplicates for
// project-bound rows; a violation yields shared.ErrConflict.
func (r *Repository) CreateAssignment(ctx context.Context, a Assignment) (Assignment, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	query := `
		INSERT INTO user_roles (id, user_id, role_id, location_id, project_id, start_date, end_date, is_active, notes, assigned_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + assignmentColumns
	row := r.pool.QueryRow(ctx, query,
		a.ID, a.UserID, a.RoleID, a.LocationID, a.ProjectID,
		a.StartDate, a.EndDate, a.IsActive, a.Notes, a.AssignedBy,
	)
	created, err := scanAssignment(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Assignment{}, fmt.Errorf("rbac: identical assignment already exists: %w", shared.ErrConflict)
		}
		return Assignment{}, err
	}
	return created, nil
}

// GetAssignment fetches an assignment by id.
func (r *Repository) GetAssignment(ctx context.Context, id uuid.UUID) (Assignment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+assignmentColumns+` FROM user_roles WHERE id = $1`, id)
	a, err := scanAssignment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Assignment{}, fmt.Errorf("rbac: assignment %s: %w", id, shared.ErrNotFound)
		}
		return Assignment{}, err
	}
	return a, nil
}

// FindActiveAssignment finds the active assignment for the exact
// (user, role, location, project) tuple. Project-less rows match only a nil
// projectID.
func (r *Repository) FindActiveAssignment(ctx context.Context, userID, roleID, locationID uuid.UUID, projectID *uuid.UUID) (Assignment, error) {
	query := `
		SELECT ` + assignmentColumns + `
		FROM user_roles
		WHERE user_id = $1 AND role_id = $2 AND location_id = $3 AND is_active`
	args := []any{userID, roleID, locationID}
	if projectID != nil {
		query += ` AND project_id = $4`
		args = append(args, *projectID)
	} else {
		query += ` AND project_id IS NULL`
	}
	query += ` LIMIT 1`
	a, err := scanAssignment(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Assignment{}, fmt.Errorf("rbac: no matching active assignment: %w", shared.ErrNotFound)
		}
		return Assignment{}, err
	}
	return a, nil
}

// RevokeAssignment flags the assignment inactive and stamps revocation
// metadata. The row is kept for audit history.
func (r *Repository) RevokeAssignment(ctx context.Context, id, revokedBy uuid.UUID, at time.Time) (Assignment, error) {
	query := `
		UPDATE user_roles
		SET is_active = FALSE, revoked_at = $2, revoked_by = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + assignmentColumns
	a, err := scanAssignment(r.pool.QueryRow(ctx, query, id, at, revokedBy))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Assignment{}, fmt.Errorf("rbac: assignment %s: %w", id, shared.ErrNotFound)
		}
		return Assignment{}, err
	}
	return a, nil
}

// DeleteAssignment removes a row permanently.
func (r *Repository) DeleteAssignment(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM user_roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rbac: assignment %s: %w", id, shared.ErrNotFound)
	}
	return nil
}

// assignmentWithRoleColumns is the select list of ListActiveAssignments: every
// assignment column aliased ur, followed by every role column aliased ro.
var assignmentWithRoleColumns = joinColumns("ur", assignmentColumns) + ", " + joinColumns("ro", roleColumns)

// ListActiveAssignments returns the user's currently-active assignments at the
// location with the role populated. With a project id, rows bound to that
// project and project-less rows are included; without one, only project-less
// rows.
func (r *Repository) ListActiveAssignments(ctx context.Context, userID, locationID uuid.UUID, projectID *uuid.UUID, now time.Time) ([]Assignment, error) {
	query := `
		SELECT ` + assignmentWithRoleColumns + `
		FROM user_roles ur
		JOIN roles ro ON ro.id = ur.role_id
		WHERE ur.user_id = $1 AND ur.location_id = $2 AND ur.is_active
		  AND (ur.start_date IS NULL OR ur.start_date <= $3)
		  AND (ur.end_date IS NULL OR ur.end_date >= $3)`
	args := []any{userID, locationID, now}
	if projectID != nil {
		query += ` AND (ur.project_id = $4 OR ur.project_id IS NULL)`
		args = append(args, *projectID)
	} else {
		query += ` AND ur.project_id IS NULL`
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var assignments []Assignment
	for rows.Next() {
		a, err := scanAssignmentWithRole(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// UserHasActiveRole reports whether the user holds a currently-active
// assignment for the role in any location or project context.
func (r *Repository) UserHasActiveRole(ctx context.Context, userID, roleID uuid.UUID, now time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM user_roles
			WHERE user_id = $1 AND role_id = $2 AND is_active
			  AND (start_date IS NULL OR start_date <= $3)
			  AND (end_date IS NULL OR end_date >= $3)
		)`
	var exists bool
	err := r.pool.QueryRow(ctx, query, userID, roleID, now).Scan(&exists)
	return exists, err
}

// HasActiveRoleInContext reports whether the user holds a currently-active
// assignment for the role at the location, applying the same project rule as
// ListActiveAssignments.
func (r *Repository) HasActiveRoleInContext(ctx context.Context, userID, roleID, locationID uuid.UUID, projectID *uuid.UUID, now time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM user_roles
			WHERE user_id = $1 AND role_id = $2 AND location_id = $3 AND is_active
			  AND (start_date IS NULL OR start_date <= $4)
			  AND (end_date IS NULL OR end_date >= $4)`
	args := []any{userID, roleID, locationID, now}
	if projectID != nil {
		query += ` AND (project_id = $5 OR project_id IS NULL)`
		args = append(args, *projectID)
	} else {
		query += ` AND project_id IS NULL`
	}
	query += `)`
	var exists bool
	err := r.pool.QueryRow(ctx, query, args...).Scan(&exists)
	return exists, err
}

// DeactivateExpired flags assignments whose end date has passed. Active-window
// filtering already excludes them at query time; this is bookkeeping for the
// admin listing.
func (r *Repository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE user_roles
		SET is_active = FALSE, revoked_at = $1, updated_at = NOW()
		WHERE is_active AND end_date IS NOT NULL AND end_date < $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteAssignmentsForUser removes every assignment of a user, used when the
// user account itself is deleted.
func (r *Repository) DeleteAssignmentsForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func encodeRoleDocs(role Role) ([]byte, []byte, error) {
	if role.Permissions == nil {
		role.Permissions = Grid{}
	}
	permissions, err := json.Marshal(role.Permissions)
	if err != nil {
		return nil, nil, fmt.Errorf("rbac: encode permissions: %w", err)
	}
	scope, err := json.Marshal(role.Scope)
	if err != nil {
		return nil, nil, fmt.Errorf("rbac: encode scope: %w", err)
	}
	return permissions, scope, nil
}

func scanRole(row pgx.Row) (Role, error) {
	var (
		role        Role
		permissions []byte
		scope       []byte
	)
	err := row.Scan(
		&role.ID, &role.Name, &role.Description, &permissions, &scope,
		&role.IsSystem, &role.IsActive, &role.SortOrder, &role.CreatedAt, &role.UpdatedAt,
	)
	if err != nil {
		return Role{}, err
	}
	if err := json.Unmarshal(permissions, &role.Permissions); err != nil {
		return Role{}, fmt.Errorf("rbac: decode permissions for role %s: %w", role.ID, err)
	}
	if err := json.Unmarshal(scope, &role.Scope); err != nil {
		return Role{}, fmt.Errorf("rbac: decode scope for role %s: %w", role.ID, err)
	}
	return role, nil
}

func scanAssignment(row pgx.Row) (Assignment, error) {
	var a Assignment
	err := row.Scan(
		&a.ID, &a.UserID, &a.RoleID, &a.LocationID, &a.ProjectID,
		&a.StartDate, &a.EndDate, &a.IsActive, &a.Notes, &a.AssignedBy,
		&a.RevokedAt, &a.RevokedBy, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return Assignment{}, err
	}
	return a, nil
}

func scanAssignmentWithRole(row pgx.Row) (Assignment, error) {
	var (
		a           Assignment
		role        Role
		permissions []byte
		scope       []byte
	)
	err := row.Scan(
		&a.ID, &a.UserID, &a.RoleID, &a.LocationID, &a.ProjectID,
		&a.StartDate, &a.EndDate, &a.IsActive, &a.Notes, &a.AssignedBy,
		&a.RevokedAt, &a.RevokedBy, &a.CreatedAt, &a.UpdatedAt,
		&role.ID, &role.Name, &role.Description, &permissions, &scope,
		&role.IsSystem, &role.IsActive, &role.SortOrder, &role.CreatedAt, &role.UpdatedAt,
	)
	if err != nil {
		return Assignment{}, err
	}
	if err := json.Unmarshal(permissions, &role.Permissions); err != nil {
		return Assignment{}, fmt.Errorf("rbac: decode permissions for role %s: %w", role.ID, err)
	}
	if err := json.Unmarshal(scope, &role.Scope); err != nil {
		return Assignment{}, fmt.Errorf("rbac: decode scope for role %s: %w", role.ID, err)
	}
	a.Role = &role
	return a, nil
}

func joinColumns(alias, columns string) string {
	return alias + "." + strings.ReplaceAll(columns, ", ", ", "+alias+".")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
