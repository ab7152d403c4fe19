package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/bugtrail/bugtrail/internal/audit"
)

// AuditPruner removes audit entries older than the retention window.
type AuditPruner struct {
	Audit     *audit.Service
	Retention time.Duration
	Logger    *slog.Logger
}

// Handle processes TaskAuditRetention tasks.
func (p AuditPruner) Handle(ctx context.Context, t *asynq.Task) error {
	retention := p.Retention
	if retention <= 0 {
		retention = 365 * 24 * time.Hour
	}
	removed, err := p.Audit.Prune(ctx, retention)
	if err != nil {
		return err
	}
	p.Logger.Info("audit retention", slog.Int64("entries_removed", removed))
	return nil
}
