package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/meridianhq/meridian/internal/shared"
)

// Registry handles role CRUD and uniqueness enforcement.
type Registry struct {
	roles       RoleStore
	assignments AssignmentStore
	audit       *shared.AuditLogger
	logger      *slog.Logger
}

// NewRegistry constructs a Registry. The audit logger may be nil.
func NewRegistry(roles RoleStore, assignments AssignmentStore, audit *shared.AuditLogger, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{roles: roles, assignments: assignments, audit: audit, logger: logger}
}

// RoleInput carries the caller-editable role fields.
type RoleInput struct {
	Name        string
	Description string
	Permissions Grid
	Scope       Scope
	SortOrder   int
}

// Create inserts a new role after validating its name and grid.
func (reg *Registry) Create(ctx context.Context, input RoleInput, actor uuid.UUID) (Role, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Role{}, fmt.Errorf("rbac: role name required: %w", shared.ErrValidation)
	}
	if input.Permissions == nil {
		input.Permissions = Grid{}
	}
	if err := input.Permissions.Validate(); err != nil {
		return Role{}, err
	}
	role, err := reg.roles.CreateRole(ctx, Role{
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		Permissions: input.Permissions,
		Scope:       input.Scope,
		IsActive:    true,
		SortOrder:   input.SortOrder,
	})
	if err != nil {
		return Role{}, err
	}
	reg.recordAudit(ctx, actor, "role.create", role.ID)
	return role, nil
}

// Update replaces the caller-editable fields of an existing role. The system
// flag is immutable through this path.
func (reg *Registry) Update(ctx context.Context, id uuid.UUID, input RoleInput, actor uuid.UUID) (Role, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Role{}, fmt.Errorf("rbac: role name required: %w", shared.ErrValidation)
	}
	if input.Permissions == nil {
		input.Permissions = Grid{}
	}
	if err := input.Permissions.Validate(); err != nil {
		return Role{}, err
	}
	existing, err := reg.roles.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	existing.Name = name
	existing.Description = strings.TrimSpace(input.Description)
	existing.Permissions = input.Permissions
	existing.Scope = input.Scope
	existing.SortOrder = input.SortOrder
	updated, err := reg.roles.UpdateRole(ctx, existing)
	if err != nil {
		return Role{}, err
	}
	reg.recordAudit(ctx, actor, "role.update", updated.ID)
	return updated, nil
}

// Delete removes a role. System roles cannot be deleted, nor can a role still
// referenced by any assignment, active or not.
func (reg *Registry) Delete(ctx context.Context, id uuid.UUID, actor uuid.UUID) error {
	role, err := reg.roles.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return fmt.Errorf("rbac: role %q is a system role: %w", role.Name, shared.ErrConflict)
	}
	count, err := reg.assignments.CountAssignments(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("rbac: role %q is referenced by %d assignments: %w", role.Name, count, shared.ErrConflict)
	}
	if err := reg.roles.DeleteRole(ctx, id); err != nil {
		return err
	}
	reg.recordAudit(ctx, actor, "role.delete", id)
	return nil
}

// Get fetches a role by id.
func (reg *Registry) Get(ctx context.Context, id uuid.UUID) (Role, error) {
	return reg.roles.GetRole(ctx, id)
}

// GetByName fetches a role by its unique name.
func (reg *Registry) GetByName(ctx context.Context, name string) (Role, error) {
	return reg.roles.GetRoleByName(ctx, name)
}

// List returns all roles.
func (reg *Registry) List(ctx context.Context) ([]Role, error) {
	return reg.roles.ListRoles(ctx)
}

// FindByUserAndContext returns the distinct roles the user holds through
// currently-active assignments at the location, applying the ledger's
// project-inclusion rule.
func (reg *Registry) FindByUserAndContext(ctx context.Context, userID, locationID uuid.UUID, projectID *uuid.UUID) ([]Role, error) {
	assignments, err := reg.assignments.ListActiveAssignments(ctx, userID, locationID, projectID, nowUTC())
	if err != nil {
		return nil, err
	}
	seen := make(map[uuid.UUID]struct{}, len(assignments))
	roles := make([]Role, 0, len(assignments))
	for _, a := range assignments {
		if a.Role == nil {
			continue
		}
		if _, ok := seen[a.Role.ID]; ok {
			continue
		}
		seen[a.Role.ID] = struct{}{}
		roles = append(roles, *a.Role)
	}
	return roles, nil
}

func (reg *Registry) recordAudit(ctx context.Context, actor uuid.UUID, action string, roleID uuid.UUID) {
	if reg.audit == nil {
		return
	}
	err := reg.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   "role",
		EntityID: roleID.String(),
	})
	if err != nil {
		reg.logger.Warn("record role audit", slog.String("action", action), slog.Any("error", err))
	}
}
