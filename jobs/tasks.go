package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/relayforge/relayforge/internal/billing"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBillingBackfill replays pre-ledger payments into plan periods.
	TaskBillingBackfill = "billing:migrate_backfill"
)

// BillingBackfillPayload parameterises one backfill run.
type BillingBackfillPayload struct {
	DryRun bool `json:"dry_run"`
}

// NewBillingBackfillTask constructs an Asynq task.
func NewBillingBackfillTask(payload BillingBackfillPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBillingBackfill, data), nil
}

// NewBillingBackfillHandler builds the handler processing backfill tasks.
// The migration is idempotent, so redelivery after a crash is harmless.
func NewBillingBackfillHandler(migrator *billing.Migrator, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload BillingBackfillPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		summary, err := migrator.Run(ctx, payload.DryRun)
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("billing backfill task done",
				slog.Bool("dry_run", payload.DryRun),
				slog.Int64("keys_migrated", summary.KeysMigrated),
				slog.Int64("periods_created", summary.PeriodsCreated),
			)
		}
		return nil
	}
}
