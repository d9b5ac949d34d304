package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSweeper struct {
	expired int64
	err     error
	calls   int
}

func (m *mockSweeper) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	m.calls++
	return m.expired, m.err
}

func TestExpireAssignmentsHandler(t *testing.T) {
	sweeper := &mockSweeper{expired: 3}
	handler := NewExpireAssignmentsHandler(sweeper, nil, nil)

	require.NoError(t, handler(context.Background(), NewExpireAssignmentsTask()))
	assert.Equal(t, 1, sweeper.calls)
}

func TestExpireAssignmentsHandlerPropagatesError(t *testing.T) {
	boom := errors.New("connection reset")
	sweeper := &mockSweeper{err: boom}
	handler := NewExpireAssignmentsHandler(sweeper, nil, nil)

	err := handler(context.Background(), NewExpireAssignmentsTask())
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
}

type mockPruner struct {
	pruned int64
	calls  int
}

func (m *mockPruner) PruneSessions(ctx context.Context, now time.Time) (int64, error) {
	m.calls++
	return m.pruned, nil
}

func TestPruneSessionsHandler(t *testing.T) {
	pruner := &mockPruner{pruned: 5}
	handler := NewPruneSessionsHandler(pruner, nil, nil)

	require.NoError(t, handler(context.Background(), NewPruneSessionsTask()))
	assert.Equal(t, 1, pruner.calls)
}
