package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/relayforge/relayforge/internal/platform/httpx"
)

// BackfillEnqueuer submits the administrative backfill task to the worker
// queue. Satisfied by jobs.Client.
type BackfillEnqueuer interface {
	EnqueueBillingBackfill(ctx context.Context, dryRun bool) (string, error)
}

// Handler wires the billing HTTP endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	cache     *BalanceCache
	enqueuer  BackfillEnqueuer
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, cache *BalanceCache, enqueuer BackfillEnqueuer) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		cache:     cache,
		enqueuer:  enqueuer,
		validator: validator.New(),
	}
}

// MountRoutes registers the public billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/relays/{relayID}/billing", func(r chi.Router) {
		r.Get("/plan", h.currentPlan)
		r.Get("/history", h.planHistory)
		r.Get("/balance", h.balance)
		r.Post("/transitions", h.recordTransition)
	})
	r.Route("/relays/{relayID}/subscribers/{pubkey}/billing", func(r chi.Router) {
		r.Get("/plan", h.currentPlan)
		r.Get("/history", h.planHistory)
		r.Get("/balance", h.balance)
		r.Post("/transitions", h.recordTransition)
	})
}

// MountAdminRoutes registers administrative routes; the router wraps them
// in the admin-token middleware.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Post("/billing/backfill", h.triggerBackfill)
}

func keyFromRequest(r *http.Request) Key {
	relayID := chi.URLParam(r, "relayID")
	if pubkey := chi.URLParam(r, "pubkey"); pubkey != "" {
		return SubscriberKey(relayID, pubkey)
	}
	return OwnerKey(relayID)
}

type planPeriodResponse struct {
	ID               string     `json:"id"`
	RelayID          string     `json:"relay_id"`
	SubscriberPubkey string     `json:"subscriber_pubkey,omitempty"`
	PlanType         PlanType   `json:"plan_type"`
	AmountPaid       int64      `json:"amount_paid"`
	StartedAt        time.Time  `json:"started_at"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	PaymentID        string     `json:"payment_id,omitempty"`
	Active           bool       `json:"active"`
}

func toPeriodResponse(p PlanPeriod) planPeriodResponse {
	resp := planPeriodResponse{
		ID:               p.ID.String(),
		RelayID:          p.RelayID,
		SubscriberPubkey: p.SubscriberPubkey,
		PlanType:         p.PlanType,
		AmountPaid:       p.AmountPaid,
		StartedAt:        p.StartedAt,
		EndedAt:          p.EndedAt,
		Active:           p.Active(),
	}
	if p.PaymentID != nil {
		resp.PaymentID = p.PaymentID.String()
	}
	return resp
}

func (h *Handler) currentPlan(w http.ResponseWriter, r *http.Request) {
	period, err := h.service.CurrentPlan(r.Context(), keyFromRequest(r))
	if err != nil {
		h.logger.Error("current plan", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if period == nil {
		// Absence of a plan is a normal state, not an error.
		httpx.JSON(w, http.StatusOK, map[string]any{"plan": nil})
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"plan": toPeriodResponse(*period)})
}

func (h *Handler) planHistory(w http.ResponseWriter, r *http.Request) {
	periods, err := h.service.PlanHistory(r.Context(), keyFromRequest(r))
	if err != nil {
		h.logger.Error("plan history", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]planPeriodResponse, 0, len(periods))
	for _, p := range periods {
		out = append(out, toPeriodResponse(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"history": out})
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	key := keyFromRequest(r)
	balance, err := h.cache.Fetch(r.Context(), key, func(ctx context.Context) (float64, error) {
		return h.service.Balance(ctx, key, time.Time{})
	})
	if err != nil {
		h.logger.Error("balance", slog.String("key", key.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"key":          key.String(),
		"balance_sats": balance,
	})
}

type transitionRequest struct {
	PlanType   string     `json:"plan_type" validate:"required"`
	AmountSats int64      `json:"amount_sats" validate:"gte=0"`
	PaymentID  string     `json:"payment_id" validate:"omitempty,uuid"`
	StartedAt  *time.Time `json:"started_at"`
}

func (h *Handler) recordTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}

	input := TransitionInput{
		Key:        keyFromRequest(r),
		PlanType:   NormalizePlanType(req.PlanType),
		AmountPaid: req.AmountSats,
	}
	if req.StartedAt != nil {
		input.StartedAt = *req.StartedAt
	}
	if req.PaymentID != "" {
		id, err := uuid.Parse(req.PaymentID)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: payment_id", httpx.ErrValidation))
			return
		}
		input.PaymentID = &id
	}

	period, err := h.service.RecordTransition(r.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, ErrTransitionConflict):
			httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrConflict, err))
		case errors.Is(err, ErrRelayRequired), errors.Is(err, ErrPlanRequired),
			errors.Is(err, ErrNegativeAmount), errors.Is(err, ErrBackdatedTransition):
			httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		default:
			h.logger.Error("record transition", slog.String("key", input.Key.String()), slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}

	if err := h.cache.Invalidate(r.Context(), input.Key); err != nil {
		h.logger.Warn("invalidate balance cache", slog.String("key", input.Key.String()), slog.Any("error", err))
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"plan": toPeriodResponse(*period)})
}

type backfillRequest struct {
	DryRun bool `json:"dry_run"`
}

func (h *Handler) triggerBackfill(w http.ResponseWriter, r *http.Request) {
	var req backfillRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
			return
		}
	}
	taskID, err := h.enqueuer.EnqueueBillingBackfill(r.Context(), req.DryRun)
	if err != nil {
		h.logger.Error("enqueue backfill", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{"task_id": taskID, "dry_run": req.DryRun})
}
