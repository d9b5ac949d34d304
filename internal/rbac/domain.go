// Package rbac implements the scoped role-based access control core: permission
// grids, role scopes, the role registry, the assignment ledger and the
// permission evaluator.
package rbac

import (
	"time"

	"github.com/google/uuid"
)

// Action is an atomic CRUD capability inside a permission grid.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// AllActions lists every valid action.
var AllActions = []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete}

// IsValid checks if the action is a known CRUD capability.
func (a Action) IsValid() bool {
	switch a {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete:
		return true
	default:
		return false
	}
}

// Role groups a permission grid with the scope it is declared to apply to.
type Role struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Permissions Grid      `json:"permissions"`
	Scope       Scope     `json:"scope"`
	IsSystem    bool      `json:"is_system"`
	IsActive    bool      `json:"is_active"`
	SortOrder   int       `json:"sort_order"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Allows reports whether the role's grid grants the action under the module path.
func (r *Role) Allows(modulePath string, action Action) bool {
	return r.Permissions.Allows(modulePath, action)
}

// Assignment is a time-bounded binding of a user to a role within a location
// and an optional project.
type Assignment struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	RoleID     uuid.UUID  `json:"role_id"`
	LocationID uuid.UUID  `json:"location_id"`
	ProjectID  *uuid.UUID `json:"project_id,omitempty"`
	StartDate  time.Time  `json:"start_date"`
	EndDate    *time.Time `json:"end_date,omitempty"`
	IsActive   bool       `json:"is_active"`
	Notes      string     `json:"notes,omitempty"`
	AssignedBy uuid.UUID  `json:"assigned_by"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	RevokedBy  *uuid.UUID `json:"revoked_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	// Role is populated by ledger queries that join the role registry.
	Role *Role `json:"role,omitempty"`
}

// CurrentlyActive reports whether the assignment is in force at the given
// instant: not revoked and inside its [StartDate, EndDate] window.
func (a *Assignment) CurrentlyActive(now time.Time) bool {
	if !a.IsActive {
		return false
	}
	if !a.StartDate.IsZero() && a.StartDate.After(now) {
		return false
	}
	if a.EndDate != nil && a.EndDate.Before(now) {
		return false
	}
	return true
}
