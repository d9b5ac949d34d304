package rbac

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/meridianhq/meridian/internal/shared"
)

// Evaluator is the central authorization decision point. Every call re-queries
// the stores; decisions are never cached.
type Evaluator struct {
	roles       RoleStore
	assignments AssignmentStore
	adminRole   string
	now         func() time.Time
}

// NewEvaluator constructs an Evaluator. adminRole names the superuser role
// that bypasses grid checks; empty disables the bypass.
func NewEvaluator(roles RoleStore, assignments AssignmentStore, adminRole string) *Evaluator {
	return &Evaluator{
		roles:       roles,
		assignments: assignments,
		adminRole:   adminRole,
		now:         nowUTC,
	}
}

// HasPermission reports whether the user may perform the action under the
// module path at the location and optional project. Holders of a
// currently-active admin-role assignment in any context pass immediately.
// Otherwise the user's roles for the context are resolved and their grids
// checked in turn; the first grant wins. Store failures propagate and are
// never reported as a denial.
func (e *Evaluator) HasPermission(ctx context.Context, userID uuid.UUID, modulePath string, action Action, locationID uuid.UUID, projectID *uuid.UUID) (bool, error) {
	now := e.now()

	if e.adminRole != "" {
		adminRole, err := e.roles.GetRoleByName(ctx, e.adminRole)
		switch {
		case err == nil:
			isAdmin, err := e.assignments.UserHasActiveRole(ctx, userID, adminRole.ID, now)
			if err != nil {
				return false, err
			}
			if isAdmin {
				return true, nil
			}
		case errors.Is(err, shared.ErrNotFound):
			// No admin role provisioned yet; fall through to grid checks.
		default:
			return false, err
		}
	}

	assignments, err := e.assignments.ListActiveAssignments(ctx, userID, locationID, projectID, now)
	if err != nil {
		return false, err
	}
	for _, a := range assignments {
		if a.Role == nil {
			continue
		}
		if a.Role.Allows(modulePath, action) {
			return true, nil
		}
	}
	return false, nil
}

// EffectivePermissions merges the grids of the user's roles for the context
// into one module-path to action-set map. Admin-role holders get every role
// module expanded with the full action set.
func (e *Evaluator) EffectivePermissions(ctx context.Context, userID, locationID uuid.UUID, projectID *uuid.UUID) (map[string][]Action, error) {
	now := e.now()

	var (
		assignments []Assignment
		adminGrid   *Grid
		isAdmin     bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		assignments, err = e.assignments.ListActiveAssignments(gctx, userID, locationID, projectID, now)
		return err
	})
	g.Go(func() error {
		if e.adminRole == "" {
			return nil
		}
		adminRole, err := e.roles.GetRoleByName(gctx, e.adminRole)
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		isAdmin, err = e.assignments.UserHasActiveRole(gctx, userID, adminRole.ID, now)
		if err != nil {
			return err
		}
		if isAdmin {
			adminGrid = &adminRole.Permissions
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]map[Action]struct{})
	addGrid := func(g Grid, everything bool) {
		for path, actions := range g.Flatten() {
			set, ok := merged[path]
			if !ok {
				set = make(map[Action]struct{})
				merged[path] = set
			}
			if everything {
				for _, a := range AllActions {
					set[a] = struct{}{}
				}
				continue
			}
			for _, a := range actions {
				set[a] = struct{}{}
			}
		}
	}

	if adminGrid != nil {
		addGrid(*adminGrid, true)
	}

	for _, a := range assignments {
		if a.Role == nil {
			continue
		}
		addGrid(a.Role.Permissions, isAdmin)
	}

	out := make(map[string][]Action, len(merged))
	for path, set := range merged {
		actions := make([]Action, 0, len(set))
		for _, a := range AllActions {
			if _, ok := set[a]; ok {
				actions = append(actions, a)
			}
		}
		out[path] = actions
	}
	return out, nil
}
