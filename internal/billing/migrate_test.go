package billing

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestMigrator(env *testEnv, parallelism int) *Migrator {
	return NewMigrator(env.service, env.repo, env.payments, slog.Default(), parallelism)
}

func TestMigrateBackfillCreatesPeriods(t *testing.T) {
	env := newTestEnv(NewStaticPricing(0, 0))
	base := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	env.payments.add(paidRecord("r1", "", 21000, "standard", base))
	env.payments.add(paidRecord("r1", "", 5000, "custom", base.AddDate(0, 0, 10)))
	env.payments.add(paidRecord("r1", "", 210000, "premium", base.AddDate(0, 1, 0)))

	summary, err := newTestMigrator(env, 1).Run(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, int64(1), summary.KeysSeen)
	require.Equal(t, int64(1), summary.KeysMigrated)
	require.Equal(t, int64(0), summary.KeysSkipped)
	require.Equal(t, int64(2), summary.PeriodsCreated)

	history, err := env.service.PlanHistory(context.Background(), OwnerKey("r1"))
	require.NoError(t, err)
	require.Len(t, history, 2)

	// The top-up never became a period; the recurring payments did, closed
	// at the next payment's settlement.
	require.Equal(t, PlanStandard, history[0].PlanType)
	require.Equal(t, int64(21000), history[0].AmountPaid)
	require.True(t, history[0].StartedAt.Equal(base))
	require.NotNil(t, history[0].EndedAt)
	require.True(t, history[0].EndedAt.Equal(base.AddDate(0, 1, 0)))
	require.NotNil(t, history[0].PaymentID)

	require.Equal(t, PlanPremium, history[1].PlanType)
	require.True(t, history[1].Active())
}

func TestMigrateBackfillIdempotent(t *testing.T) {
	env := newTestEnv(NewStaticPricing(0, 0))
	base := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	env.payments.add(paidRecord("r1", "", 21000, "standard", base))
	env.payments.add(paidRecord("r1", "npub1alice", 700, "premium", base.AddDate(0, 0, 3)))

	migrator := newTestMigrator(env, 2)
	_, err := migrator.Run(context.Background(), false)
	require.NoError(t, err)

	firstOwner, err := env.service.PlanHistory(context.Background(), OwnerKey("r1"))
	require.NoError(t, err)
	firstSub, err := env.service.PlanHistory(context.Background(), SubscriberKey("r1", "npub1alice"))
	require.NoError(t, err)

	summary, err := migrator.Run(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, int64(2), summary.KeysSkipped)
	require.Equal(t, int64(0), summary.PeriodsCreated)

	secondOwner, err := env.service.PlanHistory(context.Background(), OwnerKey("r1"))
	require.NoError(t, err)
	secondSub, err := env.service.PlanHistory(context.Background(), SubscriberKey("r1", "npub1alice"))
	require.NoError(t, err)
	require.Equal(t, firstOwner, secondOwner)
	require.Equal(t, firstSub, secondSub)
}

func TestMigrateBackfillSkipsKeysWithLedger(t *testing.T) {
	env := newTestEnv(NewStaticPricing(0, 0))
	base := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	env.payments.add(paidRecord("r1", "", 21000, "standard", base))
	// Live flow already wrote this key's ledger.
	mustTransition(t, env, OwnerKey("r1"), PlanPremium, 210000, base.AddDate(0, 0, 1))

	summary, err := newTestMigrator(env, 1).Run(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, int64(1), summary.KeysSkipped)
	require.Equal(t, int64(0), summary.PeriodsCreated)

	history, err := env.service.PlanHistory(context.Background(), OwnerKey("r1"))
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, PlanPremium, history[0].PlanType)
}

func TestMigrateBackfillDryRun(t *testing.T) {
	env := newTestEnv(NewStaticPricing(0, 0))
	base := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	env.payments.add(paidRecord("r1", "", 21000, "standard", base))
	env.payments.add(paidRecord("r1", "", 5000, "custom", base.AddDate(0, 0, 2)))

	summary, err := newTestMigrator(env, 1).Run(context.Background(), true)
	require.NoError(t, err)
	require.Equal(t, int64(1), summary.KeysMigrated)
	require.Equal(t, int64(1), summary.PeriodsCreated)

	history, err := env.service.PlanHistory(context.Background(), OwnerKey("r1"))
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestMigrateBackfillManyKeysInParallel(t *testing.T) {
	env := newTestEnv(NewStaticPricing(0, 0))
	base := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		relayID := fmt.Sprintf("r%d", i)
		env.payments.add(paidRecord(relayID, "", 21000, "standard", base))
		env.payments.add(paidRecord(relayID, "", 21000, "standard", base.AddDate(0, 1, 0)))
	}

	summary, err := newTestMigrator(env, 8).Run(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, int64(20), summary.KeysMigrated)
	require.Equal(t, int64(40), summary.PeriodsCreated)

	for i := 0; i < 20; i++ {
		history, err := env.service.PlanHistory(context.Background(), OwnerKey(fmt.Sprintf("r%d", i)))
		require.NoError(t, err)
		require.Len(t, history, 2)
		require.True(t, history[1].Active())
		require.NotNil(t, history[0].EndedAt)
	}
}
