package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/bugtrail/bugtrail/internal/bugs"
	"github.com/bugtrail/bugtrail/internal/shared"
	"github.com/bugtrail/bugtrail/internal/users"
)

// AssignmentNotifier resolves the bug and assignee and delivers the
// notification.
type AssignmentNotifier struct {
	Bugs   bugs.Repository
	Users  users.Repository
	Logger *slog.Logger
}

// Handle processes TaskAssignmentNotification tasks. A bug or user deleted
// between enqueue and processing skips the retry loop.
func (n AssignmentNotifier) Handle(ctx context.Context, t *asynq.Task) error {
	var payload AssignmentNotificationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	bug, err := n.Bugs.FindByID(ctx, payload.BugID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return asynq.SkipRetry
		}
		return err
	}
	assignee, err := n.Users.FindByID(ctx, payload.AssigneeID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return asynq.SkipRetry
		}
		return err
	}
	// TODO: deliver via SMTP once the mail relay is provisioned.
	n.Logger.Info("assignment notification",
		slog.Int64("bug_id", bug.ID),
		slog.String("title", bug.Title),
		slog.String("assignee", assignee.Email))
	return nil
}
