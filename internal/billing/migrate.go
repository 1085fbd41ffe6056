package billing

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

const defaultMigrateParallelism = 4

// Migrator backfills plan periods for keys whose payments predate the plan
// ledger. Safe to re-run: keys that already have any period are skipped
// untouched.
type Migrator struct {
	service     *Service
	repo        RepositoryPort
	payments    PaymentSource
	logger      *slog.Logger
	parallelism int
}

// NewMigrator builds a Migrator. Parallelism bounds how many keys are
// processed concurrently; periods within one key are always recorded
// serially and in paid_at order.
func NewMigrator(service *Service, repo RepositoryPort, paymentSource PaymentSource, logger *slog.Logger, parallelism int) *Migrator {
	if parallelism <= 0 {
		parallelism = defaultMigrateParallelism
	}
	return &Migrator{service: service, repo: repo, payments: paymentSource, logger: logger, parallelism: parallelism}
}

// MigrationSummary reports what a backfill run did, or would do in dry-run.
type MigrationSummary struct {
	KeysSeen       int64 `json:"keys_seen"`
	KeysSkipped    int64 `json:"keys_skipped"`
	KeysMigrated   int64 `json:"keys_migrated"`
	PeriodsCreated int64 `json:"periods_created"`
}

// Run executes the backfill over every key with settled payments. With
// dryRun set, nothing is written and the summary reports what apply mode
// would create.
func (m *Migrator) Run(ctx context.Context, dryRun bool) (MigrationSummary, error) {
	keys, err := m.payments.ListPaidKeys(ctx)
	if err != nil {
		return MigrationSummary{}, fmt.Errorf("billing: list paid keys: %w", err)
	}

	var seen, skipped, migrated, created atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.parallelism)
	for _, paymentKey := range keys {
		key := Key{RelayID: paymentKey.RelayID, Subscriber: paymentKey.SubscriberPubkey}
		g.Go(func() error {
			seen.Add(1)
			n, err := m.migrateKey(ctx, key, dryRun)
			if err != nil {
				return fmt.Errorf("billing: migrate %s: %w", key, err)
			}
			if n < 0 {
				skipped.Add(1)
				return nil
			}
			migrated.Add(1)
			created.Add(n)
			return nil
		})
	}
	err = g.Wait()

	summary := MigrationSummary{
		KeysSeen:       seen.Load(),
		KeysSkipped:    skipped.Load(),
		KeysMigrated:   migrated.Load(),
		PeriodsCreated: created.Load(),
	}
	if m.logger != nil {
		m.logger.Info("plan backfill finished",
			slog.Bool("dry_run", dryRun),
			slog.Int64("keys_seen", summary.KeysSeen),
			slog.Int64("keys_skipped", summary.KeysSkipped),
			slog.Int64("periods_created", summary.PeriodsCreated),
		)
	}
	return summary, err
}

// migrateKey replays one key's recurring payments as plan transitions.
// Returns -1 when the key already has ledger rows and was skipped.
func (m *Migrator) migrateKey(ctx context.Context, key Key, dryRun bool) (int64, error) {
	existing, err := m.repo.ListPeriods(ctx, key)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return -1, nil
	}

	records, err := m.payments.ListPaidByKey(ctx, key.RelayID, key.Subscriber)
	if err != nil {
		return 0, err
	}

	var created int64
	for _, rec := range records {
		if rec.PaidAt == nil {
			continue
		}
		plan := NormalizePlanType(rec.PlanType)
		// Top-ups stay raw payments; only recurring plans become periods.
		if !plan.Recurring() {
			continue
		}
		if dryRun {
			created++
			continue
		}
		paymentID := rec.ID
		if _, err := m.service.RecordTransition(ctx, TransitionInput{
			Key:        key,
			PlanType:   plan,
			AmountPaid: rec.AmountSats,
			PaymentID:  &paymentID,
			StartedAt:  *rec.PaidAt,
		}); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}
