package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	calls  int
	dryRun bool
}

func (f *fakeEnqueuer) EnqueueBillingBackfill(ctx context.Context, dryRun bool) (string, error) {
	f.calls++
	f.dryRun = dryRun
	return "task-123", nil
}

func newTestRouter(env *testEnv, enqueuer BackfillEnqueuer) chi.Router {
	handler := NewHandler(slog.Default(), env.service, nil, enqueuer)
	r := chi.NewRouter()
	handler.MountRoutes(r)
	r.Route("/admin", func(r chi.Router) {
		handler.MountAdminRoutes(r)
	})
	return r
}

func TestHandlerCurrentPlanEmpty(t *testing.T) {
	env := newTestEnv(NewStaticPricing(0, 0))
	router := newTestRouter(env, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/relays/r1/billing/plan", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Nil(t, body["plan"])
}

func TestHandlerRecordTransitionAndHistory(t *testing.T) {
	env := newTestEnv(NewStaticPricing(0, 0))
	router := newTestRouter(env, nil)

	startedAt := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	payload, _ := json.Marshal(map[string]any{
		"plan_type":   "standard",
		"amount_sats": 21000,
		"started_at":  startedAt,
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/relays/r1/billing/transitions", bytes.NewReader(payload)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/relays/r1/billing/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		History []struct {
			PlanType   string `json:"plan_type"`
			AmountPaid int64  `json:"amount_paid"`
			Active     bool   `json:"active"`
		} `json:"history"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.History, 1)
	require.Equal(t, "standard", body.History[0].PlanType)
	require.Equal(t, int64(21000), body.History[0].AmountPaid)
	require.True(t, body.History[0].Active)
}

func TestHandlerSubscriberTrackRoutes(t *testing.T) {
	env := newTestEnv(NewStaticPricing(0, 0))
	router := newTestRouter(env, nil)

	payload, _ := json.Marshal(map[string]any{"plan_type": "premium", "amount_sats": 700})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/relays/r1/subscribers/npub1alice/billing/transitions", bytes.NewReader(payload)))
	require.Equal(t, http.StatusCreated, rec.Code)

	current, err := env.service.CurrentPlan(context.Background(), SubscriberKey("r1", "npub1alice"))
	require.NoError(t, err)
	require.NotNil(t, current)
	require.Equal(t, PlanPremium, current.PlanType)

	// The owner track stays untouched.
	owner, err := env.service.CurrentPlan(context.Background(), OwnerKey("r1"))
	require.NoError(t, err)
	require.Nil(t, owner)
}

func TestHandlerRejectsInvalidTransition(t *testing.T) {
	env := newTestEnv(NewStaticPricing(0, 0))
	router := newTestRouter(env, nil)

	payload, _ := json.Marshal(map[string]any{"plan_type": "", "amount_sats": -10})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/relays/r1/billing/transitions", bytes.NewReader(payload)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerRejectsBackdatedTransition(t *testing.T) {
	env := newTestEnv(NewStaticPricing(0, 0))
	router := newTestRouter(env, nil)
	mustTransition(t, env, OwnerKey("r1"), PlanStandard, 21000, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC))

	payload, _ := json.Marshal(map[string]any{
		"plan_type":   "premium",
		"amount_sats": 210000,
		"started_at":  time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC),
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/relays/r1/billing/transitions", bytes.NewReader(payload)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// The ledger is untouched: the original period is still the active one.
	current, err := env.service.CurrentPlan(context.Background(), OwnerKey("r1"))
	require.NoError(t, err)
	require.NotNil(t, current)
	require.Equal(t, PlanStandard, current.PlanType)
}

func TestHandlerBalance(t *testing.T) {
	env := newTestEnv(NewStaticPricing(0, 0))
	router := newTestRouter(env, nil)
	now := time.Now().UTC()
	mustTransition(t, env, OwnerKey("r1"), PlanStandard, 1000, now.Add(-10*24*time.Hour))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/relays/r1/billing/balance", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Key     string  `json:"key"`
		Balance float64 `json:"balance_sats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "relay:r1", body.Key)
	require.InDelta(t, 1000-10*(1000.0/30.0), body.Balance, 1.0)
}

func TestHandlerBackfillEnqueues(t *testing.T) {
	env := newTestEnv(NewStaticPricing(0, 0))
	enqueuer := &fakeEnqueuer{}
	router := newTestRouter(env, enqueuer)

	payload, _ := json.Marshal(map[string]any{"dry_run": true})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/billing/backfill", bytes.NewReader(payload)))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, 1, enqueuer.calls)
	require.True(t, enqueuer.dryRun)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "task-123", body["task_id"])
}
