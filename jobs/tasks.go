package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAssignmentNotification notifies a user of a bug assigned to them.
	TaskAssignmentNotification = "bugs:notify_assignment"
	// TaskSessionCleanup sweeps expired session rows and stale idempotency keys.
	TaskSessionCleanup = "session:cleanup"
	// TaskAuditRetention prunes audit entries past the retention window.
	TaskAuditRetention = "audit:retention"
)

// AssignmentNotificationPayload identifies the bug and its new assignee.
type AssignmentNotificationPayload struct {
	BugID      int64 `json:"bugId"`
	AssigneeID int64 `json:"assigneeId"`
}

// NewAssignmentNotificationTask constructs an Asynq task.
func NewAssignmentNotificationTask(bugID, assigneeID int64) (*asynq.Task, error) {
	data, err := json.Marshal(AssignmentNotificationPayload{BugID: bugID, AssigneeID: assigneeID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAssignmentNotification, data), nil
}

// NewSessionCleanupTask constructs the periodic session sweep task.
func NewSessionCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskSessionCleanup, nil)
}

// NewAuditRetentionTask constructs the periodic audit prune task.
func NewAuditRetentionTask() *asynq.Task {
	return asynq.NewTask(TaskAuditRetention, nil)
}
