package locations

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/meridianhq/meridian/internal/shared"
)

// Service wraps location management business rules.
type Service struct {
	store  Store
	audit  *shared.AuditLogger
	logger *slog.Logger
}

// NewService constructs a Service. The audit logger may be nil.
func NewService(store Store, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, audit: audit, logger: logger}
}

// Input carries the caller-editable location fields.
type Input struct {
	Code     string
	Name     string
	Address  string
	IsActive bool
}

// Create registers a new location.
func (s *Service) Create(ctx context.Context, input Input, actor uuid.UUID) (Location, error) {
	code := strings.ToUpper(strings.TrimSpace(input.Code))
	if code == "" {
		return Location{}, fmt.Errorf("locations: code required: %w", shared.ErrValidation)
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Location{}, fmt.Errorf("locations: name required: %w", shared.ErrValidation)
	}
	location, err := s.store.Create(ctx, Location{
		Code:     code,
		Name:     name,
		Address:  strings.TrimSpace(input.Address),
		IsActive: input.IsActive,
	})
	if err != nil {
		return Location{}, err
	}
	s.recordAudit(ctx, actor, "location.create", location.ID)
	return location, nil
}

// Update replaces the mutable fields of a location.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input Input, actor uuid.UUID) (Location, error) {
	code := strings.ToUpper(strings.TrimSpace(input.Code))
	if code == "" {
		return Location{}, fmt.Errorf("locations: code required: %w", shared.ErrValidation)
	}
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return Location{}, err
	}
	existing.Code = code
	existing.Name = strings.TrimSpace(input.Name)
	existing.Address = strings.TrimSpace(input.Address)
	existing.IsActive = input.IsActive
	updated, err := s.store.Update(ctx, existing)
	if err != nil {
		return Location{}, err
	}
	s.recordAudit(ctx, actor, "location.update", updated.ID)
	return updated, nil
}

// Delete removes a location that no project depends on.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actor uuid.UUID) error {
	count, err := s.store.CountProjects(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("locations: location %s has %d projects: %w", id, count, shared.ErrReferentialIntegrity)
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "location.delete", id)
	return nil
}

// Get fetches a location by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Location, error) {
	return s.store.Get(ctx, id)
}

// List returns all locations.
func (s *Service) List(ctx context.Context) ([]Location, error) {
	return s.store.List(ctx)
}

// LocationExists satisfies the assignment ledger's location directory.
func (s *Service) LocationExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.store.Exists(ctx, id)
}

func (s *Service) recordAudit(ctx context.Context, actor uuid.UUID, action string, id uuid.UUID) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   "location",
		EntityID: id.String(),
	})
	if err != nil {
		s.logger.Warn("record location audit", slog.String("action", action), slog.Any("error", err))
	}
}
