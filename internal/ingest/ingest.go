// Package ingest turns Alertmanager webhook batches into alert rows and
// orchestration events. It owns dedup-by-fingerprint and the firing/resolved
// lifecycle writes; everything downstream of the store happens in the event
// loop.
package ingest

import (
	"context"
	"fmt"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/herald/internal/alert"
	"github.com/linnemanlabs/herald/internal/events"
)

// Processor validates webhook batches and applies them to the alert store.
type Processor struct {
	store   alert.Store
	bus     *events.Bus
	logger  log.Logger
	metrics *Metrics
}

// NewProcessor creates a Processor.
func NewProcessor(store alert.Store, bus *events.Bus, logger log.Logger, metrics *Metrics) *Processor {
	if logger == nil {
		logger = log.Nop()
	}
	return &Processor{
		store:   store,
		bus:     bus,
		logger:  logger,
		metrics: metrics,
	}
}

// Process applies one webhook batch. The whole batch runs inside a single
// store transaction: the dedup lookup and the write for every alert commit
// together, or not at all. Re-delivering an unchanged (fingerprint, status)
// pair is a no-op: no write, no event.
func (p *Processor) Process(ctx context.Context, payload *WebhookPayload) error {
	if payload.Version != SupportedVersion {
		p.count("rejected")
		return &UnexpectedVersionError{Got: payload.Version}
	}

	tx, err := p.store.Begin(ctx)
	if err != nil {
		p.count("error")
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	for _, wa := range payload.Alerts {
		if err := p.processAlert(ctx, tx, wa, payload); err != nil {
			p.count("error")
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		p.count("error")
		return fmt.Errorf("commit batch: %w", err)
	}

	p.count("ok")
	return nil
}

func (p *Processor) processAlert(ctx context.Context, tx alert.Tx, wa WebhookAlert, payload *WebhookPayload) error {
	existing, ok, err := p.store.GetByFingerprint(ctx, tx, wa.Fingerprint)
	if err != nil {
		return err
	}

	if ok {
		resolved := wa.resolved()
		if existing.Resolved == resolved {
			p.countAlert("skipped")
			return nil
		}

		existing.Resolved = resolved
		if err := p.store.Update(ctx, tx, existing); err != nil {
			return err
		}

		if err := p.bus.Send(ctx, events.UpdateSlackAlert{AlertID: existing.ID}); err != nil {
			return err
		}

		if resolved {
			p.countAlert("resolved")
		} else {
			p.countAlert("refired")
		}

		p.logger.Info(ctx, "alert state changed",
			"alert_id", existing.ID,
			"fingerprint", wa.Fingerprint,
			"resolved", resolved,
		)
		return nil
	}

	fingerprint := wa.Fingerprint
	created, err := p.store.Create(ctx, tx, alert.NewAlert{
		Text:        alertText(wa, payload),
		Resolved:    wa.resolved(),
		Fingerprint: &fingerprint,
		// Chart and Slack references are filled in later by the event loop.
		SlothSLO:      labelPtr(wa, payload, "sloth_slo"),
		SlothService:  labelPtr(wa, payload, "sloth_service"),
		ObjectiveName: labelPtr(wa, payload, "objective_name"),
		Severity:      labelPtr(wa, payload, "severity"),
	})
	if err != nil {
		return err
	}

	if err := p.bus.Send(ctx, events.CreateChartAndPostToSlack{Alert: *created}); err != nil {
		return err
	}

	p.countAlert("created")
	p.logger.Info(ctx, "alert created",
		"alert_id", created.ID,
		"fingerprint", wa.Fingerprint,
		"text", created.Text,
	)
	return nil
}

func (p *Processor) count(outcome string) {
	if p.metrics != nil {
		p.metrics.BatchesTotal.WithLabelValues(outcome).Inc()
	}
}

func (p *Processor) countAlert(result string) {
	if p.metrics != nil {
		p.metrics.AlertsTotal.WithLabelValues(result).Inc()
	}
}
