package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridianhq/meridian/internal/jobs"
)

// AssignmentSweeper deactivates role assignments whose end date has passed.
type AssignmentSweeper interface {
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

// NewExpireAssignmentsHandler builds the asynq handler for the expiry sweep.
// Expired assignments stay in storage as inactive rows; the sweep only flips
// the flag so permission checks stop matching them between evaluations.
func NewExpireAssignmentsHandler(sweeper AssignmentSweeper, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("expire_assignments")
		expired, err := sweeper.DeactivateExpired(ctx, time.Now().UTC())
		if err != nil {
			logger.Error("assignment expiry sweep", slog.Any("error", err))
			return tracker.End(err)
		}
		if expired > 0 {
			logger.Info("assignments expired", slog.Int64("count", expired))
			metrics.AddExpiredAssignments(expired)
		}
		return tracker.End(nil)
	}
}

// SessionPruner clears expired login session records.
type SessionPruner interface {
	PruneSessions(ctx context.Context, now time.Time) (int64, error)
}

// NewPruneSessionsHandler builds the asynq handler for session pruning.
func NewPruneSessionsHandler(pruner SessionPruner, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("prune_sessions")
		pruned, err := pruner.PruneSessions(ctx, time.Now().UTC())
		if err != nil {
			logger.Error("session prune", slog.Any("error", err))
			return tracker.End(err)
		}
		if pruned > 0 {
			logger.Info("sessions pruned", slog.Int64("count", pruned))
		}
		return tracker.End(nil)
	}
}
