package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/bugtrail/bugtrail/internal/auth"
	"github.com/bugtrail/bugtrail/internal/shared"
)

// SessionCleaner removes session rows past expiry and idempotency keys past
// their retention.
type SessionCleaner struct {
	Auth         *auth.Service
	Idempotency  *shared.IdempotencyStore
	KeyRetention time.Duration
	Logger       *slog.Logger
}

// Handle processes TaskSessionCleanup tasks.
func (c SessionCleaner) Handle(ctx context.Context, t *asynq.Task) error {
	removed, err := c.Auth.SweepExpiredSessions(ctx)
	if err != nil {
		return err
	}
	retention := c.KeyRetention
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	if err := c.Idempotency.Cleanup(ctx, retention); err != nil {
		return err
	}
	c.Logger.Info("session cleanup", slog.Int64("sessions_removed", removed))
	return nil
}
