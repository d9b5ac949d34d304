package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meridianhq/meridian/internal/shared"
)

// UserDirectory answers user existence checks for assignment validation.
type UserDirectory interface {
	UserExists(ctx context.Context, id uuid.UUID) (bool, error)
}

// LocationDirectory answers location existence checks for assignment validation.
type LocationDirectory interface {
	LocationExists(ctx context.Context, id uuid.UUID) (bool, error)
}

// ProjectDirectory resolves a project to its owning location.
type ProjectDirectory interface {
	ProjectLocation(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
}

// Ledger persists and queries time-bounded, context-scoped role assignments.
type Ledger struct {
	assignments AssignmentStore
	roles       RoleStore
	users       UserDirectory
	locations   LocationDirectory
	projects    ProjectDirectory
	audit       *shared.AuditLogger
	logger      *slog.Logger
	now         func() time.Time
}

// NewLedger constructs a Ledger. The audit logger may be nil.
func NewLedger(
	assignments AssignmentStore,
	roles RoleStore,
	users UserDirectory,
	locations LocationDirectory,
	projects ProjectDirectory,
	audit *shared.AuditLogger,
	logger *slog.Logger,
) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		assignments: assignments,
		roles:       roles,
		users:       users,
		locations:   locations,
		projects:    projects,
		audit:       audit,
		logger:      logger,
		now:         nowUTC,
	}
}

// AssignRoleInput carries the parameters of a new assignment.
type AssignRoleInput struct {
	UserID     uuid.UUID
	RoleID     uuid.UUID
	LocationID uuid.UUID
	ProjectID  *uuid.UUID
	AssignedBy uuid.UUID
	StartDate  *time.Time
	EndDate    *time.Time
	Notes      string
}

// AssignRole validates references and persists a new active assignment. The
// project, when given, must belong to the assignment's location. An identical
// active assignment yields shared.ErrConflict.
func (l *Ledger) AssignRole(ctx context.Context, input AssignRoleInput) (Assignment, error) {
	exists, err := l.users.UserExists(ctx, input.UserID)
	if err != nil {
		return Assignment{}, fmt.Errorf("rbac: check user: %w", err)
	}
	if !exists {
		return Assignment{}, fmt.Errorf("rbac: user %s: %w", input.UserID, shared.ErrNotFound)
	}

	if _, err := l.roles.GetRole(ctx, input.RoleID); err != nil {
		return Assignment{}, err
	}

	exists, err = l.locations.LocationExists(ctx, input.LocationID)
	if err != nil {
		return Assignment{}, fmt.Errorf("rbac: check location: %w", err)
	}
	if !exists {
		return Assignment{}, fmt.Errorf("rbac: location %s: %w", input.LocationID, shared.ErrNotFound)
	}

	if input.ProjectID != nil {
		projectLocation, err := l.projects.ProjectLocation(ctx, *input.ProjectID)
		if err != nil {
			return Assignment{}, err
		}
		if projectLocation != input.LocationID {
			return Assignment{}, fmt.Errorf("rbac: project %s does not belong to location %s: %w",
				*input.ProjectID, input.LocationID, shared.ErrReferentialIntegrity)
		}
	}

	_, err = l.assignments.FindActiveAssignment(ctx, input.UserID, input.RoleID, input.LocationID, input.ProjectID)
	if err == nil {
		return Assignment{}, fmt.Errorf("rbac: user already holds this role in the given context: %w", shared.ErrConflict)
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return Assignment{}, err
	}

	startDate := l.now()
	if input.StartDate != nil {
		startDate = *input.StartDate
	}
	created, err := l.assignments.CreateAssignment(ctx, Assignment{
		UserID:     input.UserID,
		RoleID:     input.RoleID,
		LocationID: input.LocationID,
		ProjectID:  input.ProjectID,
		StartDate:  startDate,
		EndDate:    input.EndDate,
		IsActive:   true,
		Notes:      input.Notes,
		AssignedBy: input.AssignedBy,
	})
	if err != nil {
		return Assignment{}, err
	}
	l.recordAudit(ctx, input.AssignedBy, "assignment.create", created.ID)
	return created, nil
}

// RevokeRole deactivates the matching active assignment and stamps revocation
// metadata. The record stays for audit history. With no matching active
// assignment the call fails with shared.ErrNotFound, which also makes a
// second revocation of the same assignment fail.
func (l *Ledger) RevokeRole(ctx context.Context, userID, roleID, locationID uuid.UUID, projectID *uuid.UUID, revokedBy uuid.UUID) (Assignment, error) {
	found, err := l.assignments.FindActiveAssignment(ctx, userID, roleID, locationID, projectID)
	if err != nil {
		return Assignment{}, err
	}
	revoked, err := l.assignments.RevokeAssignment(ctx, found.ID, revokedBy, l.now())
	if err != nil {
		return Assignment{}, err
	}
	l.recordAudit(ctx, revokedBy, "assignment.revoke", revoked.ID)
	return revoked, nil
}

// GetUserRoles returns the user's currently-active assignments at the
// location, role populated. Project-less assignments are location-wide: they
// are included alongside assignments bound to the given project, and are the
// only matches when no project is given. Duplicate roles across assignments
// are possible; callers needing a distinct role set deduplicate.
func (l *Ledger) GetUserRoles(ctx context.Context, userID, locationID uuid.UUID, projectID *uuid.UUID) ([]Assignment, error) {
	return l.assignments.ListActiveAssignments(ctx, userID, locationID, projectID, l.now())
}

// HasRole reports whether the user holds a currently-active assignment for
// the named role at the location. An unknown role name is simply false.
func (l *Ledger) HasRole(ctx context.Context, userID uuid.UUID, roleName string, locationID uuid.UUID, projectID *uuid.UUID) (bool, error) {
	role, err := l.roles.GetRoleByName(ctx, roleName)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return l.assignments.HasActiveRoleInContext(ctx, userID, role.ID, locationID, projectID, l.now())
}

// DeleteAssignment permanently removes an assignment record. Assignments of
// system roles are protected.
func (l *Ledger) DeleteAssignment(ctx context.Context, id uuid.UUID, actor uuid.UUID) error {
	assignment, err := l.assignments.GetAssignment(ctx, id)
	if err != nil {
		return err
	}
	role, err := l.roles.GetRole(ctx, assignment.RoleID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return err
	}
	if err == nil && role.IsSystem {
		return fmt.Errorf("rbac: assignment of system role %q cannot be deleted: %w", role.Name, shared.ErrConflict)
	}
	if err := l.assignments.DeleteAssignment(ctx, id); err != nil {
		return err
	}
	l.recordAudit(ctx, actor, "assignment.delete", id)
	return nil
}

// PurgeUser removes every assignment of a deleted user.
func (l *Ledger) PurgeUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	return l.assignments.DeleteAssignmentsForUser(ctx, userID)
}

func (l *Ledger) recordAudit(ctx context.Context, actor uuid.UUID, action string, id uuid.UUID) {
	if l.audit == nil {
		return
	}
	err := l.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   "assignment",
		EntityID: id.String(),
	})
	if err != nil {
		l.logger.Warn("record assignment audit", slog.String("action", action), slog.Any("error", err))
	}
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
