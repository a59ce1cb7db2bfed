// Package alertapi exposes Herald's HTTP surface: the Alertmanager webhook
// endpoint and chart image retrieval.
package alertapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/herald/internal/alert"
	"github.com/linnemanlabs/herald/internal/ingest"
)

// WebhookProcessor defines the intake operation alertapi needs.
type WebhookProcessor interface {
	Process(ctx context.Context, payload *ingest.WebhookPayload) error
}

// ChartResolver resolves a stored chart filename to an on-disk path.
type ChartResolver interface {
	Path(filename string) (string, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger    log.Logger
	processor WebhookProcessor
	store     alert.Store
	charts    ChartResolver
}

// New creates a new API handler.
func New(logger log.Logger, processor WebhookProcessor, store alert.Store, charts ChartResolver) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if processor == nil {
		panic(xerrors.New("webhook processor is required"))
	}
	if store == nil {
		panic(xerrors.New("alert store is required"))
	}
	if charts == nil {
		panic(xerrors.New("chart resolver is required"))
	}
	return &API{
		logger:    logger,
		processor: processor,
		store:     store,
		charts:    charts,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/alerts", a.handleWebhook)
		r.Get("/chart/{alertID}", a.handleGetChart)
	})
}

// writeError emits the JSON error envelope shared by all handlers.
func writeError(w http.ResponseWriter, status int, code, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"details": details,
	})
}
