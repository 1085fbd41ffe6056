package relays

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/relayforge/relayforge/internal/platform/httpx"
)

// Handler exposes the read-only relay registry.
type Handler struct {
	logger *slog.Logger
	repo   *Repository
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, repo *Repository) *Handler {
	return &Handler{logger: logger, repo: repo}
}

// MountRoutes registers relay routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/relays", h.list)
	r.Get("/relays/{relayID}", h.get)
}

type relayResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Domain      string    `json:"domain,omitempty"`
	OwnerPubkey string    `json:"owner_pubkey"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

func toRelayResponse(relay Relay) relayResponse {
	return relayResponse{
		ID:          relay.ID,
		Name:        relay.Name,
		Domain:      relay.Domain,
		OwnerPubkey: relay.OwnerPubkey,
		Status:      string(relay.Status),
		CreatedAt:   relay.CreatedAt,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	relays, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error("list relays", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]relayResponse, 0, len(relays))
	for _, relay := range relays {
		out = append(out, toRelayResponse(relay))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"relays": out})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	relay, err := h.repo.Get(r.Context(), chi.URLParam(r, "relayID"))
	if errors.Is(err, ErrNotFound) {
		httpx.RespondError(w, fmt.Errorf("%w: relay", httpx.ErrNotFound))
		return
	}
	if err != nil {
		h.logger.Error("get relay", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"relay": toRelayResponse(*relay)})
}
