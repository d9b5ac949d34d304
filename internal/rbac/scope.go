package rbac

import "github.com/google/uuid"

// Scope declares which locations and projects a role applies to. The all-flags
// make the role apply regardless of the respective id list.
type Scope struct {
	Locations    []uuid.UUID `json:"locations"`
	Projects     []uuid.UUID `json:"projects"`
	AllLocations bool        `json:"allLocations"`
	AllProjects  bool        `json:"allProjects"`
}

// AppliesToLocation reports whether the scope covers the location.
func (s Scope) AppliesToLocation(locationID uuid.UUID) bool {
	if s.AllLocations {
		return true
	}
	for _, id := range s.Locations {
		if id == locationID {
			return true
		}
	}
	return false
}

// AppliesToProject reports whether the scope covers the project.
func (s Scope) AppliesToProject(projectID uuid.UUID) bool {
	if s.AllProjects {
		return true
	}
	for _, id := range s.Projects {
		if id == projectID {
			return true
		}
	}
	return false
}
