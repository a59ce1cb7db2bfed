package alertapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/herald/internal/events"
	"github.com/linnemanlabs/herald/internal/ingest"
)

// handleWebhook accepts an Alertmanager webhook batch. The response is sent
// only after the batch has been fully persisted; the Slack side effects happen
// asynchronously in the event loop.
func (a *API) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var payload ingest.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", err.Error())
		return
	}

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("herald.webhook.group_key", payload.GroupKey),
		attribute.Int("herald.webhook.alerts", len(payload.Alerts)),
	)

	if err := a.processor.Process(ctx, &payload); err != nil {
		var version *ingest.UnexpectedVersionError
		switch {
		case errors.As(err, &version):
			writeError(w, http.StatusBadRequest, "unexpected_version", version.Got)
		case errors.Is(err, events.ErrClosed) || ctx.Err() != nil:
			a.logger.Error(ctx, err, "webhook processing aborted", "group_key", payload.GroupKey)
			writeError(w, http.StatusInternalServerError, "internal_error", "")
		default:
			a.logger.Error(ctx, err, "failed to process webhook batch", "group_key", payload.GroupKey)
			writeError(w, http.StatusBadGateway, "storage_error", "")
		}
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}
