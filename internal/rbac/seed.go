package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/meridianhq/meridian/internal/shared"
)

func fullCRUD() Node {
	return Terminal(ActionCreate, ActionRead, ActionUpdate, ActionDelete)
}

func settingsNode(actions ...Action) Node {
	return Nested(map[string]Node{
		"roles":     Terminal(actions...),
		"users":     Terminal(actions...),
		"userRoles": Terminal(actions...),
		"locations": Terminal(actions...),
		"projects":  Terminal(actions...),
		"menus":     Terminal(actions...),
	})
}

// systemRoles returns the built-in role definitions. Names and grids follow
// the platform's provisioning data; the admin role is the one the evaluator
// short-circuits on.
func systemRoles() []Role {
	return []Role{
		{
			Name:        "Administrador",
			Description: "Acceso total a todas las funcionalidades del sistema",
			Permissions: Grid{
				"profile":       fullCRUD(),
				"job":           fullCRUD(),
				"salaryDetails": fullCRUD(),
				"timeOff":       fullCRUD(),
				"documents":     fullCRUD(),
				"training":      fullCRUD(),
				"benefits":      fullCRUD(),
				"settings":      settingsNode(ActionCreate, ActionRead, ActionUpdate, ActionDelete),
			},
			Scope:     Scope{AllLocations: true, AllProjects: true},
			IsSystem:  true,
			IsActive:  true,
			SortOrder: 0,
		},
		{
			Name:        "Gerente",
			Description: "Acceso a la mayoría de las funcionalidades, excepto configuración del sistema",
			Permissions: Grid{
				"profile":       Terminal(ActionRead, ActionUpdate),
				"job":           Terminal(ActionCreate, ActionRead, ActionUpdate),
				"salaryDetails": Terminal(ActionRead),
				"timeOff":       Terminal(ActionCreate, ActionRead, ActionUpdate),
				"documents":     Terminal(ActionCreate, ActionRead, ActionUpdate),
				"training":      Terminal(ActionCreate, ActionRead, ActionUpdate),
				"benefits":      Terminal(ActionRead),
				"settings":      settingsNode(ActionRead),
			},
			Scope:     Scope{AllLocations: true, AllProjects: true},
			IsSystem:  true,
			IsActive:  true,
			SortOrder: 10,
		},
		{
			Name:        "Empleado",
			Description: "Acceso básico para empleados regulares",
			Permissions: Grid{
				"profile":       Terminal(ActionRead, ActionUpdate),
				"job":           Terminal(ActionRead),
				"salaryDetails": Terminal(ActionRead),
				"timeOff":       Terminal(ActionCreate, ActionRead, ActionUpdate),
				"documents":     Terminal(ActionRead),
				"training":      Terminal(ActionRead),
				"benefits":      Terminal(ActionRead),
				"settings":      settingsNode(),
			},
			Scope:     Scope{},
			IsSystem:  true,
			IsActive:  true,
			SortOrder: 20,
		},
	}
}

// EnsureSystemRoles upserts the built-in roles by name. Safe to run on every
// startup.
func EnsureSystemRoles(ctx context.Context, store RoleStore, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	for _, definition := range systemRoles() {
		existing, err := store.GetRoleByName(ctx, definition.Name)
		if err != nil {
			if !errors.Is(err, shared.ErrNotFound) {
				return fmt.Errorf("rbac: lookup system role %q: %w", definition.Name, err)
			}
			if _, err := store.CreateRole(ctx, definition); err != nil {
				return fmt.Errorf("rbac: create system role %q: %w", definition.Name, err)
			}
			logger.Info("system role created", slog.String("role", definition.Name))
			continue
		}
		definition.ID = existing.ID
		if _, err := store.UpdateRole(ctx, definition); err != nil {
			return fmt.Errorf("rbac: update system role %q: %w", definition.Name, err)
		}
	}
	return nil
}
