// Package orchestrator runs Herald's event loop: the single consumer of the
// event bus. It sequences the side-effecting work for each alert (chart
// generation, Slack posting, Slack updates) one event at a time, so each
// alert's Slack message converges to a single consistent state even while
// webhook ingestion runs concurrently.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/herald/internal/alert"
	"github.com/linnemanlabs/herald/internal/events"
	"github.com/linnemanlabs/herald/internal/prom"
)

// ErrBusClosed is returned when the loop's input channel closes without a
// Shutdown event. Being asked to stop is normal; losing the input is not.
var ErrBusClosed = errors.New("event bus closed without shutdown")

// chartWindow is how far back the trend chart looks from alert creation.
const chartWindow = 6 * time.Hour

// MetricsQuerier fetches SLO timeseries for chart generation.
type MetricsQuerier interface {
	QuerySLOTimeseries(ctx context.Context, slo, objectiveName string, tr prom.TimeRange) ([]prom.Timeseries, error)
}

// ChartService renders and stores a chart, returning its filename.
type ChartService interface {
	CreateAndStore(ctx context.Context, slo string, tr prom.TimeRange, series []prom.Timeseries) (string, error)
}

// Notifier is the chat collaborator.
type Notifier interface {
	PostAlert(ctx context.Context, a *alert.Alert) (channel, ts string, err error)
	UpdateAlert(ctx context.Context, a *alert.Alert) error
}

// Orchestrator owns the store handle and collaborator clients exclusively
// while running; all external interaction reaches it through the bus.
type Orchestrator struct {
	store    alert.Store
	bus      *events.Bus
	querier  MetricsQuerier
	charts   ChartService
	notifier Notifier
	logger   log.Logger
	metrics  *Metrics
}

// New creates an Orchestrator.
func New(store alert.Store, bus *events.Bus, querier MetricsQuerier, charts ChartService, notifier Notifier, logger log.Logger, metrics *Metrics) *Orchestrator {
	if logger == nil {
		logger = log.Nop()
	}
	return &Orchestrator{
		store:    store,
		bus:      bus,
		querier:  querier,
		charts:   charts,
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run consumes events until a Shutdown event arrives or ctx is cancelled.
// A handler error is terminal for that event only: it is logged and the loop
// moves on, so one alert's failure never stalls the others. Events enqueued
// behind a Shutdown are dropped.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-o.bus.Events():
			if !ok {
				return ErrBusClosed
			}
			if _, stop := ev.(events.Shutdown); stop {
				o.logger.Info(ctx, "shutdown event received, stopping event loop")
				return nil
			}
			o.dispatch(ctx, ev)
		}
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, ev events.Event) {
	name := eventName(ev)
	start := time.Now()

	var err error
	switch ev := ev.(type) {
	case events.CreateChartAndPostToSlack:
		err = o.handleCreateChart(ctx, ev.Alert)
	case events.PostSlackAlert:
		err = o.handlePostSlackAlert(ctx, ev.Alert)
	case events.UpdateSlackAlert:
		err = o.handleUpdateSlackAlert(ctx, ev.AlertID)
	default:
		err = fmt.Errorf("unhandled event type %T", ev)
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
		o.logger.Error(ctx, err, "unable to process event", "event", name)
	}
	if o.metrics != nil {
		o.metrics.EventsTotal.WithLabelValues(name, outcome).Inc()
		o.metrics.EventDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
}

// handleCreateChart attempts to generate a trend chart for a fresh alert and
// then hands off to the Slack post step. The chart is best effort: any failure
// here degrades to posting without a chart, it never blocks the message.
func (o *Orchestrator) handleCreateChart(ctx context.Context, a alert.Alert) error {
	if a.SlothSLO != nil && a.ObjectiveName != nil {
		if filename, ok := o.generateChart(ctx, &a); ok {
			a.ChartFilename = &filename
			if err := o.updateAlert(ctx, &a); err != nil {
				return err
			}
		}
	}

	return o.bus.Send(ctx, events.PostSlackAlert{Alert: a})
}

func (o *Orchestrator) generateChart(ctx context.Context, a *alert.Alert) (string, bool) {
	slo := *a.SlothSLO
	tr := prom.TimeRange{
		From: a.CreatedAt.Add(-chartWindow),
		To:   a.CreatedAt,
	}

	series, err := o.querier.QuerySLOTimeseries(ctx, slo, *a.ObjectiveName, tr)
	if err != nil {
		var unknown *prom.UnknownSLOError
		if errors.As(err, &unknown) {
			// Not a chartable SLO class; continue without a chart.
			o.countChart("unknown_slo")
		} else {
			o.countChart("query_error")
			o.logger.Error(ctx, err, "could not query prometheus", "alert_id", a.ID, "slo", slo)
		}
		return "", false
	}

	filename, err := o.charts.CreateAndStore(ctx, slo, tr, series)
	if err != nil {
		o.countChart("render_error")
		o.logger.Error(ctx, err, "could not create chart", "alert_id", a.ID, "slo", slo)
		return "", false
	}

	o.countChart("ok")
	return filename, true
}

// handlePostSlackAlert posts the alert's Slack message and persists the
// returned channel and timestamp together.
func (o *Orchestrator) handlePostSlackAlert(ctx context.Context, a alert.Alert) error {
	channel, ts, err := o.notifier.PostAlert(ctx, &a)
	if err != nil {
		return err
	}

	a.SlackChannel = &channel
	a.SlackTS = &ts

	return o.updateAlert(ctx, &a)
}

// handleUpdateSlackAlert re-reads the alert and refreshes its Slack message.
// The re-read is what makes the update act on the freshest row rather than a
// snapshot from enqueue time. The Slack call happens after the transaction
// commits; no locks are held across network I/O.
func (o *Orchestrator) handleUpdateSlackAlert(ctx context.Context, alertID int64) error {
	tx, err := o.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	a, err := o.store.Get(ctx, tx, alertID)
	if err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	return o.notifier.UpdateAlert(ctx, a)
}

func (o *Orchestrator) updateAlert(ctx context.Context, a *alert.Alert) error {
	tx, err := o.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	if err := o.store.Update(ctx, tx, a); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (o *Orchestrator) countChart(outcome string) {
	if o.metrics != nil {
		o.metrics.ChartsTotal.WithLabelValues(outcome).Inc()
	}
}

func eventName(ev events.Event) string {
	switch ev.(type) {
	case events.CreateChartAndPostToSlack:
		return "create_chart_and_post_to_slack"
	case events.PostSlackAlert:
		return "post_slack_alert"
	case events.UpdateSlackAlert:
		return "update_slack_alert"
	case events.Shutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}
