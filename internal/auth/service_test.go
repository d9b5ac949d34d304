package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/meridianhq/meridian/internal/shared"
	"github.com/meridianhq/meridian/internal/users"
)

type mockDirectory struct {
	accounts map[string]users.User
}

func (m *mockDirectory) GetByEmail(ctx context.Context, email string) (users.User, error) {
	user, ok := m.accounts[email]
	if !ok {
		return users.User{}, fmt.Errorf("email %q: %w", email, shared.ErrNotFound)
	}
	return user, nil
}

func (m *mockDirectory) Get(ctx context.Context, id uuid.UUID) (users.User, error) {
	for _, user := range m.accounts {
		if user.ID == id {
			return user, nil
		}
	}
	return users.User{}, fmt.Errorf("user %s: %w", id, shared.ErrNotFound)
}

func newDirectory(t *testing.T, email, password string, active bool) *mockDirectory {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &mockDirectory{accounts: map[string]users.User{
		email: {
			ID:           uuid.New(),
			Email:        email,
			PasswordHash: string(hash),
			IsActive:     active,
		},
	}}
}

func TestAuthenticate(t *testing.T) {
	svc := NewService(newDirectory(t, "maria@example.com", "correcthorse", true), nil)

	user, err := svc.Authenticate(context.Background(), "maria@example.com", "correcthorse")
	require.NoError(t, err)
	assert.Equal(t, "maria@example.com", user.Email)
}

func TestAuthenticateFailures(t *testing.T) {
	active := newDirectory(t, "maria@example.com", "correcthorse", true)
	inactive := newDirectory(t, "jose@example.com", "correcthorse", false)

	cases := []struct {
		name      string
		directory *mockDirectory
		email     string
		password  string
	}{
		{"unknown account", active, "nadie@example.com", "correcthorse"},
		{"wrong password", active, "maria@example.com", "incorrecthorse"},
		{"inactive account", inactive, "jose@example.com", "correcthorse"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewService(tc.directory, nil)
			_, err := svc.Authenticate(context.Background(), tc.email, tc.password)
			require.Error(t, err)
			assert.True(t, errors.Is(err, shared.ErrInvalidCredentials))
		})
	}
}
