package rbac

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/meridianhq/meridian/internal/shared"
)

// mockRoleStore keeps roles in memory and mirrors the repository's sentinel
// error behavior.
type mockRoleStore struct {
	roles       map[uuid.UUID]Role
	createCalls int
	updateCalls int
}

func newMockRoleStore(roles ...Role) *mockRoleStore {
	m := &mockRoleStore{roles: make(map[uuid.UUID]Role)}
	for _, r := range roles {
		if r.ID == uuid.Nil {
			r.ID = uuid.New()
		}
		m.roles[r.ID] = r
	}
	return m
}

func (m *mockRoleStore) CreateRole(ctx context.Context, role Role) (Role, error) {
	m.createCalls++
	for _, existing := range m.roles {
		if existing.Name == role.Name {
			return Role{}, fmt.Errorf("role %q: %w", role.Name, shared.ErrConflict)
		}
	}
	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}
	role.CreatedAt = time.Now().UTC()
	role.UpdatedAt = role.CreatedAt
	m.roles[role.ID] = role
	return role, nil
}

func (m *mockRoleStore) UpdateRole(ctx context.Context, role Role) (Role, error) {
	m.updateCalls++
	if _, ok := m.roles[role.ID]; !ok {
		return Role{}, fmt.Errorf("role %s: %w", role.ID, shared.ErrNotFound)
	}
	role.UpdatedAt = time.Now().UTC()
	m.roles[role.ID] = role
	return role, nil
}

func (m *mockRoleStore) DeleteRole(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.roles[id]; !ok {
		return fmt.Errorf("role %s: %w", id, shared.ErrNotFound)
	}
	delete(m.roles, id)
	return nil
}

func (m *mockRoleStore) GetRole(ctx context.Context, id uuid.UUID) (Role, error) {
	role, ok := m.roles[id]
	if !ok {
		return Role{}, fmt.Errorf("role %s: %w", id, shared.ErrNotFound)
	}
	return role, nil
}

func (m *mockRoleStore) GetRoleByName(ctx context.Context, name string) (Role, error) {
	for _, role := range m.roles {
		if role.Name == name {
			return role, nil
		}
	}
	return Role{}, fmt.Errorf("role %q: %w", name, shared.ErrNotFound)
}

func (m *mockRoleStore) ListRoles(ctx context.Context) ([]Role, error) {
	out := make([]Role, 0, len(m.roles))
	for _, role := range m.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

// mockAssignmentStore keeps assignments in memory. When a role store is
// attached, active-assignment queries populate Assignment.Role the way the
// repository's join does.
type mockAssignmentStore struct {
	items   map[uuid.UUID]Assignment
	roles   *mockRoleStore
	listErr error
}

func newMockAssignmentStore(roles *mockRoleStore) *mockAssignmentStore {
	return &mockAssignmentStore{items: make(map[uuid.UUID]Assignment), roles: roles}
}

func (m *mockAssignmentStore) add(a Assignment) Assignment {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	m.items[a.ID] = a
	return a
}

func projectMatches(stored, queried *uuid.UUID) bool {
	if queried == nil {
		return stored == nil
	}
	// Project-less assignments are location-wide.
	return stored == nil || *stored == *queried
}

func (m *mockAssignmentStore) CreateAssignment(ctx context.Context, a Assignment) (Assignment, error) {
	a.CreatedAt = time.Now().UTC()
	a.UpdatedAt = a.CreatedAt
	return m.add(a), nil
}

func (m *mockAssignmentStore) GetAssignment(ctx context.Context, id uuid.UUID) (Assignment, error) {
	a, ok := m.items[id]
	if !ok {
		return Assignment{}, fmt.Errorf("assignment %s: %w", id, shared.ErrNotFound)
	}
	return a, nil
}

func (m *mockAssignmentStore) FindActiveAssignment(ctx context.Context, userID, roleID, locationID uuid.UUID, projectID *uuid.UUID) (Assignment, error) {
	for _, a := range m.items {
		if !a.IsActive || a.UserID != userID || a.RoleID != roleID || a.LocationID != locationID {
			continue
		}
		if projectID == nil {
			if a.ProjectID != nil {
				continue
			}
		} else if a.ProjectID == nil || *a.ProjectID != *projectID {
			continue
		}
		return a, nil
	}
	return Assignment{}, fmt.Errorf("assignment: %w", shared.ErrNotFound)
}

func (m *mockAssignmentStore) RevokeAssignment(ctx context.Context, id, revokedBy uuid.UUID, at time.Time) (Assignment, error) {
	a, ok := m.items[id]
	if !ok || !a.IsActive {
		return Assignment{}, fmt.Errorf("assignment %s: %w", id, shared.ErrNotFound)
	}
	a.IsActive = false
	a.RevokedAt = &at
	a.RevokedBy = &revokedBy
	a.UpdatedAt = at
	m.items[id] = a
	return a, nil
}

func (m *mockAssignmentStore) DeleteAssignment(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.items[id]; !ok {
		return fmt.Errorf("assignment %s: %w", id, shared.ErrNotFound)
	}
	delete(m.items, id)
	return nil
}

func (m *mockAssignmentStore) ListActiveAssignments(ctx context.Context, userID, locationID uuid.UUID, projectID *uuid.UUID, now time.Time) ([]Assignment, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []Assignment
	for _, a := range m.items {
		if a.UserID != userID || a.LocationID != locationID {
			continue
		}
		if !a.CurrentlyActive(now) {
			continue
		}
		if !projectMatches(a.ProjectID, projectID) {
			continue
		}
		if m.roles != nil {
			if role, ok := m.roles.roles[a.RoleID]; ok {
				a.Role = &role
			}
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *mockAssignmentStore) UserHasActiveRole(ctx context.Context, userID, roleID uuid.UUID, now time.Time) (bool, error) {
	for _, a := range m.items {
		if a.UserID == userID && a.RoleID == roleID && a.CurrentlyActive(now) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockAssignmentStore) HasActiveRoleInContext(ctx context.Context, userID, roleID, locationID uuid.UUID, projectID *uuid.UUID, now time.Time) (bool, error) {
	for _, a := range m.items {
		if a.UserID != userID || a.RoleID != roleID || a.LocationID != locationID {
			continue
		}
		if !a.CurrentlyActive(now) || !projectMatches(a.ProjectID, projectID) {
			continue
		}
		return true, nil
	}
	return false, nil
}

func (m *mockAssignmentStore) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	for id, a := range m.items {
		if a.IsActive && a.EndDate != nil && a.EndDate.Before(now) {
			a.IsActive = false
			a.RevokedAt = &now
			m.items[id] = a
			n++
		}
	}
	return n, nil
}

func (m *mockAssignmentStore) DeleteAssignmentsForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	for id, a := range m.items {
		if a.UserID == userID {
			delete(m.items, id)
			n++
		}
	}
	return n, nil
}

func (m *mockAssignmentStore) CountAssignments(ctx context.Context, roleID uuid.UUID) (int64, error) {
	var n int64
	for _, a := range m.items {
		if a.RoleID == roleID {
			n++
		}
	}
	return n, nil
}

// mockUsers, mockLocations and mockProjects stand in for the directory
// interfaces the ledger validates against.
type mockUsers struct {
	known map[uuid.UUID]bool
}

func (m *mockUsers) UserExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return m.known[id], nil
}

type mockLocations struct {
	known map[uuid.UUID]bool
}

func (m *mockLocations) LocationExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return m.known[id], nil
}

type mockProjects struct {
	locations map[uuid.UUID]uuid.UUID
}

func (m *mockProjects) ProjectLocation(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	loc, ok := m.locations[id]
	if !ok {
		return uuid.Nil, fmt.Errorf("project %s: %w", id, shared.ErrNotFound)
	}
	return loc, nil
}
