package alertapi

import (
	"errors"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/herald/internal/alert"
)

// handleGetChart serves the stored PNG chart for an alert. Slack fetches this
// URL when rendering the message's image block.
func (a *API) handleGetChart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := strconv.ParseInt(chi.URLParam(r, "alertID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_alert_id", chi.URLParam(r, "alertID"))
		return
	}

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.Int64("herald.alert.id", id))

	tx, err := a.store.Begin(ctx)
	if err != nil {
		a.logger.Error(ctx, err, "failed to begin read transaction", "alert_id", id)
		writeError(w, http.StatusBadGateway, "storage_error", "")
		return
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	al, err := a.store.Get(ctx, tx, id)
	if err != nil {
		if errors.Is(err, alert.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "")
			return
		}
		a.logger.Error(ctx, err, "failed to load alert", "alert_id", id)
		writeError(w, http.StatusBadGateway, "storage_error", "")
		return
	}

	if err := tx.Commit(ctx); err != nil {
		a.logger.Error(ctx, err, "failed to commit read transaction", "alert_id", id)
		writeError(w, http.StatusBadGateway, "storage_error", "")
		return
	}

	if al.ChartFilename == nil {
		writeError(w, http.StatusNotFound, "not_found", "alert has no chart")
		return
	}

	path, err := a.charts.Path(*al.ChartFilename)
	if err != nil {
		a.logger.Error(ctx, err, "invalid stored chart filename", "alert_id", id)
		writeError(w, http.StatusNotFound, "not_found", "")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, path)
}
