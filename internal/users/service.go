package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/meridianhq/meridian/internal/shared"
)

// AssignmentPurger removes a deleted user's role assignments.
type AssignmentPurger interface {
	PurgeUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

// Service wraps account management business rules.
type Service struct {
	store       Store
	assignments AssignmentPurger
	audit       *shared.AuditLogger
	logger      *slog.Logger
}

// NewService constructs a Service. The audit logger may be nil.
func NewService(store Store, assignments AssignmentPurger, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, assignments: assignments, audit: audit, logger: logger}
}

// Input carries the caller-editable user fields. Password is plaintext and
// only hashed here; empty on update keeps the stored hash.
type Input struct {
	Email    string
	FullName string
	Password string
	IsActive bool
}

// Create registers a new account with a bcrypt password hash.
func (s *Service) Create(ctx context.Context, input Input, actor uuid.UUID) (User, error) {
	email := normalizeEmail(input.Email)
	if email == "" {
		return User{}, fmt.Errorf("users: email required: %w", shared.ErrValidation)
	}
	if input.Password == "" {
		return User{}, fmt.Errorf("users: password required: %w", shared.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("users: hash password: %w", err)
	}
	user, err := s.store.Create(ctx, User{
		Email:        email,
		FullName:     strings.TrimSpace(input.FullName),
		PasswordHash: string(hash),
		IsActive:     input.IsActive,
	})
	if err != nil {
		return User{}, err
	}
	s.recordAudit(ctx, actor, "user.create", user.ID)
	return user, nil
}

// Update replaces profile fields and, when a password is supplied, rehashes it.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input Input, actor uuid.UUID) (User, error) {
	email := normalizeEmail(input.Email)
	if email == "" {
		return User{}, fmt.Errorf("users: email required: %w", shared.ErrValidation)
	}
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	existing.Email = email
	existing.FullName = strings.TrimSpace(input.FullName)
	existing.IsActive = input.IsActive
	if input.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
		if err != nil {
			return User{}, fmt.Errorf("users: hash password: %w", err)
		}
		existing.PasswordHash = string(hash)
	}
	updated, err := s.store.Update(ctx, existing)
	if err != nil {
		return User{}, err
	}
	s.recordAudit(ctx, actor, "user.update", updated.ID)
	return updated, nil
}

// Delete removes the account and purges its role assignments.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actor uuid.UUID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	if s.assignments != nil {
		purged, err := s.assignments.PurgeUser(ctx, id)
		if err != nil {
			s.logger.Error("purge assignments of deleted user",
				slog.String("user_id", id.String()), slog.Any("error", err))
		} else if purged > 0 {
			s.logger.Info("assignments purged",
				slog.String("user_id", id.String()), slog.Int64("count", purged))
		}
	}
	s.recordAudit(ctx, actor, "user.delete", id)
	return nil
}

// Get fetches an account by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (User, error) {
	return s.store.Get(ctx, id)
}

// List returns all accounts.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.store.List(ctx)
}

// UserExists satisfies the assignment ledger's user directory.
func (s *Service) UserExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.store.Exists(ctx, id)
}

func (s *Service) recordAudit(ctx context.Context, actor uuid.UUID, action string, id uuid.UUID) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   "user",
		EntityID: id.String(),
	})
	if err != nil {
		s.logger.Warn("record user audit", slog.String("action", action), slog.Any("error", err))
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
