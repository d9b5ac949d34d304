package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockEnqueuer struct {
	err   error
	calls int
}

func (m *mockEnqueuer) EnqueueExpireAssignments(ctx context.Context) (*asynq.TaskInfo, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &asynq.TaskInfo{ID: "t-1", Queue: QueueDefault, Type: TaskExpireAssignments}, nil
}

func newJobsRouter(enqueuer Enqueuer) chi.Router {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(nil, enqueuer, logger)
	r := chi.NewRouter()
	handler.MountRoutes(r)
	return r
}

func TestTriggerExpireAssignments(t *testing.T) {
	enqueuer := &mockEnqueuer{}
	router := newJobsRouter(enqueuer)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/expire-assignments", nil))

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, enqueuer.calls)
	assert.JSONEq(t, `{"task_id":"t-1","queue":"default"}`, rec.Body.String())
}

func TestTriggerExpireAssignmentsEnqueueFailure(t *testing.T) {
	enqueuer := &mockEnqueuer{err: errors.New("redis: connection refused")}
	router := newJobsRouter(enqueuer)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/expire-assignments", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, 1, enqueuer.calls)
}

func TestTriggerExpireAssignmentsWithoutEnqueuer(t *testing.T) {
	router := newJobsRouter(nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/expire-assignments", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestJobsHealthWithoutInspector(t *testing.T) {
	router := newJobsRouter(nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"queue":"default","pending":0}`, rec.Body.String())
}
