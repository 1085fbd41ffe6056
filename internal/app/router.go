package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/relayforge/relayforge/internal/billing"
	"github.com/relayforge/relayforge/internal/relays"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	BillingHandler *billing.Handler
	RelaysHandler  *relays.Handler
}

// NewRouter constructs the chi.Router with relayforge defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		if params.RelaysHandler != nil {
			params.RelaysHandler.MountRoutes(r)
		}
		if params.BillingHandler != nil {
			params.BillingHandler.MountRoutes(r)
		}
		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdminToken(params.Config, params.Logger))
			if params.BillingHandler != nil {
				params.BillingHandler.MountAdminRoutes(r)
			}
		})
	})

	return r
}
