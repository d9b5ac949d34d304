package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/meridianhq/meridian/internal/shared"
	"github.com/meridianhq/meridian/internal/users"
)

// Directory resolves accounts by email for credential checks.
type Directory interface {
	GetByEmail(ctx context.Context, email string) (users.User, error)
	Get(ctx context.Context, id uuid.UUID) (users.User, error)
}

// Service wraps authentication business rules.
type Service struct {
	directory Directory
	repo      Repository
}

// NewService constructs a new Service.
func NewService(directory Directory, repo Repository) *Service {
	return &Service{directory: directory, repo: repo}
}

// Authenticate validates email/password credentials. Unknown accounts,
// inactive accounts and bad passwords all collapse into
// shared.ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (users.User, error) {
	user, err := s.directory.GetByEmail(ctx, email)
	if err != nil {
		return users.User{}, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return users.User{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return users.User{}, shared.ErrInvalidCredentials
	}
	return user, nil
}

// CurrentUser resolves the account behind a session user id.
func (s *Service) CurrentUser(ctx context.Context, id uuid.UUID) (users.User, error) {
	return s.directory.Get(ctx, id)
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID uuid.UUID, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

// PruneSessions clears expired session records.
func (s *Service) PruneSessions(ctx context.Context, now time.Time) (int64, error) {
	return s.repo.DeleteExpiredSessions(ctx, now)
}
