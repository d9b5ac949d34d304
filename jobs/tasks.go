package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskExpireAssignments sweeps role assignments past their end date.
	TaskExpireAssignments = "rbac:expire_assignments"
	// TaskPruneSessions clears expired login session records.
	TaskPruneSessions = "auth:prune_sessions"
)

// NewExpireAssignmentsTask constructs the assignment expiry sweep task.
func NewExpireAssignmentsTask() *asynq.Task {
	return asynq.NewTask(TaskExpireAssignments, nil)
}

// NewPruneSessionsTask constructs the session pruning task.
func NewPruneSessionsTask() *asynq.Task {
	return asynq.NewTask(TaskPruneSessions, nil)
}
