package projects

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meridianhq/meridian/internal/shared"
)

// LocationDirectory answers location existence checks.
type LocationDirectory interface {
	LocationExists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Service wraps project management business rules.
type Service struct {
	store     Store
	locations LocationDirectory
	audit     *shared.AuditLogger
	logger    *slog.Logger
}

// NewService constructs a Service. The audit logger may be nil.
func NewService(store Store, locations LocationDirectory, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, locations: locations, audit: audit, logger: logger}
}

// Input carries the caller-editable project fields.
type Input struct {
	LocationID  uuid.UUID
	Code        string
	Name        string
	Description string
	StartDate   *time.Time
	EndDate     *time.Time
	IsActive    bool
}

// Create registers a new project under an existing location.
func (s *Service) Create(ctx context.Context, input Input, actor uuid.UUID) (Project, error) {
	code := strings.ToUpper(strings.TrimSpace(input.Code))
	if code == "" {
		return Project{}, fmt.Errorf("projects: code required: %w", shared.ErrValidation)
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Project{}, fmt.Errorf("projects: name required: %w", shared.ErrValidation)
	}
	if input.StartDate != nil && input.EndDate != nil && input.EndDate.Before(*input.StartDate) {
		return Project{}, fmt.Errorf("projects: end date before start date: %w", shared.ErrValidation)
	}
	exists, err := s.locations.LocationExists(ctx, input.LocationID)
	if err != nil {
		return Project{}, fmt.Errorf("projects: check location: %w", err)
	}
	if !exists {
		return Project{}, fmt.Errorf("projects: location %s: %w", input.LocationID, shared.ErrNotFound)
	}
	project, err := s.store.Create(ctx, Project{
		LocationID:  input.LocationID,
		Code:        code,
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		StartDate:   input.StartDate,
		EndDate:     input.EndDate,
		IsActive:    input.IsActive,
	})
	if err != nil {
		return Project{}, err
	}
	s.recordAudit(ctx, actor, "project.create", project.ID)
	return project, nil
}

// Update replaces the mutable fields of a project. The owning location is
// fixed at creation; moving a project would silently re-scope assignments.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input Input, actor uuid.UUID) (Project, error) {
	code := strings.ToUpper(strings.TrimSpace(input.Code))
	if code == "" {
		return Project{}, fmt.Errorf("projects: code required: %w", shared.ErrValidation)
	}
	if input.StartDate != nil && input.EndDate != nil && input.EndDate.Before(*input.StartDate) {
		return Project{}, fmt.Errorf("projects: end date before start date: %w", shared.ErrValidation)
	}
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return Project{}, err
	}
	if input.LocationID != uuid.Nil && input.LocationID != existing.LocationID {
		return Project{}, fmt.Errorf("projects: project cannot move to another location: %w", shared.ErrValidation)
	}
	existing.Code = code
	existing.Name = strings.TrimSpace(input.Name)
	existing.Description = strings.TrimSpace(input.Description)
	existing.StartDate = input.StartDate
	existing.EndDate = input.EndDate
	existing.IsActive = input.IsActive
	updated, err := s.store.Update(ctx, existing)
	if err != nil {
		return Project{}, err
	}
	s.recordAudit(ctx, actor, "project.update", updated.ID)
	return updated, nil
}

// Delete removes a project.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actor uuid.UUID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "project.delete", id)
	return nil
}

// Get fetches a project by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Project, error) {
	return s.store.Get(ctx, id)
}

// List returns all projects, optionally narrowed to one location.
func (s *Service) List(ctx context.Context, locationID *uuid.UUID) ([]Project, error) {
	if locationID != nil {
		return s.store.ListByLocation(ctx, *locationID)
	}
	return s.store.List(ctx)
}

// ProjectLocation satisfies the assignment ledger's project directory.
func (s *Service) ProjectLocation(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	project, err := s.store.Get(ctx, id)
	if err != nil {
		return uuid.Nil, err
	}
	return project.LocationID, nil
}

func (s *Service) recordAudit(ctx context.Context, actor uuid.UUID, action string, id uuid.UUID) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   "project",
		EntityID: id.String(),
	})
	if err != nil {
		s.logger.Warn("record project audit", slog.String("action", action), slog.Any("error", err))
	}
}
