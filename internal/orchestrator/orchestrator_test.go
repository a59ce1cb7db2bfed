package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/linnemanlabs/herald/internal/alert"
	"github.com/linnemanlabs/herald/internal/alert/memstore"
	"github.com/linnemanlabs/herald/internal/events"
	"github.com/linnemanlabs/herald/internal/prom"
)

type fakeQuerier struct {
	series []prom.Timeseries
	err    error
	calls  int
}

func (f *fakeQuerier) QuerySLOTimeseries(_ context.Context, _, _ string, _ prom.TimeRange) ([]prom.Timeseries, error) {
	f.calls++
	return f.series, f.err
}

type fakeCharts struct {
	filename string
	err      error
	calls    int
	gotSLO   string
	gotRange prom.TimeRange
}

func (f *fakeCharts) CreateAndStore(_ context.Context, slo string, tr prom.TimeRange, _ []prom.Timeseries) (string, error) {
	f.calls++
	f.gotSLO = slo
	f.gotRange = tr
	if f.err != nil {
		return "", f.err
	}
	return f.filename, nil
}

type fakeNotifier struct {
	postErr   error
	updateErr error
	posted    []alert.Alert
	updated   []alert.Alert
	postTS    string
	postChan  string
}

func (f *fakeNotifier) PostAlert(_ context.Context, a *alert.Alert) (string, string, error) {
	f.posted = append(f.posted, *a)
	if f.postErr != nil {
		return "", "", f.postErr
	}
	return f.postChan, f.postTS, nil
}

func (f *fakeNotifier) UpdateAlert(_ context.Context, a *alert.Alert) error {
	f.updated = append(f.updated, *a)
	return f.updateErr
}

type fixture struct {
	store    *memstore.Store
	bus      *events.Bus
	querier  *fakeQuerier
	charts   *fakeCharts
	notifier *fakeNotifier
	orch     *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    memstore.New(),
		bus:      events.NewBus(16),
		querier:  &fakeQuerier{series: []prom.Timeseries{{Name: "s"}}},
		charts:   &fakeCharts{filename: "01X-slo.png"},
		notifier: &fakeNotifier{postChan: "C999", postTS: "1700000000.000100"},
	}
	f.orch = New(f.store, f.bus, f.querier, f.charts, f.notifier, nil, nil)
	return f
}

func (f *fixture) seedAlert(t *testing.T, n alert.NewAlert) *alert.Alert {
	t.Helper()
	ctx := context.Background()
	tx, err := f.store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	a, err := f.store.Create(ctx, tx, n)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return a
}

func (f *fixture) getAlert(t *testing.T, id int64) *alert.Alert {
	t.Helper()
	ctx := context.Background()
	tx, err := f.store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck
	a, err := f.store.Get(ctx, tx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return a
}

// runUntilShutdown sends the events, then a Shutdown, and waits for Run to
// return. The single consumer guarantees all events are handled in order
// before the Shutdown is seen.
func (f *fixture) runUntilShutdown(t *testing.T, evs ...events.Event) {
	t.Helper()
	ctx := context.Background()
	for _, ev := range evs {
		if err := f.bus.Send(ctx, ev); err != nil {
			t.Fatalf("Send(%T): %v", ev, err)
		}
	}
	if err := f.bus.Send(ctx, events.Shutdown{}); err != nil {
		t.Fatalf("Send(Shutdown): %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- f.orch.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Shutdown")
	}
}

func strPtr(s string) *string { return &s }

func TestRun_PostWithoutSLO(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	a := f.seedAlert(t, alert.NewAlert{Text: "Alert", Fingerprint: strPtr("fp-1")})

	f.runUntilShutdown(t, events.CreateChartAndPostToSlack{Alert: *a})

	if f.querier.calls != 0 {
		t.Error("queried prometheus for an alert without an SLO")
	}
	if len(f.notifier.posted) != 1 {
		t.Fatalf("posted %d messages, want 1", len(f.notifier.posted))
	}

	got := f.getAlert(t, a.ID)
	if got.SlackChannel == nil || *got.SlackChannel != "C999" {
		t.Errorf("SlackChannel = %v, want C999", got.SlackChannel)
	}
	if got.SlackTS == nil || *got.SlackTS != "1700000000.000100" {
		t.Errorf("SlackTS = %v, want posted timestamp", got.SlackTS)
	}
	if got.ChartFilename != nil {
		t.Errorf("ChartFilename = %v, want nil", got.ChartFilename)
	}
}

func TestRun_ChartThenPost(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	a := f.seedAlert(t, alert.NewAlert{
		Text:          "High Error Rate",
		Fingerprint:   strPtr("fp-2"),
		SlothSLO:      strPtr("success-rate-99"),
		ObjectiveName: strPtr("api-success"),
	})

	f.runUntilShutdown(t, events.CreateChartAndPostToSlack{Alert: *a})

	if f.charts.gotSLO != "success-rate-99" {
		t.Errorf("chart slo = %q, want success-rate-99", f.charts.gotSLO)
	}
	if span := f.charts.gotRange.To.Sub(f.charts.gotRange.From); span != 6*time.Hour {
		t.Errorf("chart range span = %v, want 6h", span)
	}
	if !f.charts.gotRange.To.Equal(a.CreatedAt) {
		t.Errorf("chart range ends at %v, want alert creation %v", f.charts.gotRange.To, a.CreatedAt)
	}

	if len(f.notifier.posted) != 1 {
		t.Fatalf("posted %d messages, want 1", len(f.notifier.posted))
	}
	posted := f.notifier.posted[0]
	if posted.ChartFilename == nil || *posted.ChartFilename != "01X-slo.png" {
		t.Errorf("posted alert chart = %v, want 01X-slo.png", posted.ChartFilename)
	}

	got := f.getAlert(t, a.ID)
	if got.ChartFilename == nil || *got.ChartFilename != "01X-slo.png" {
		t.Errorf("ChartFilename = %v, want 01X-slo.png", got.ChartFilename)
	}
	if got.SlackTS == nil || got.SlackChannel == nil {
		t.Error("slack message reference not persisted")
	}
}

func TestRun_ChartFailuresDegradeToPlainPost(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		prep func(f *fixture)
	}{
		{"unknown slo", func(f *fixture) {
			f.querier.err = &prom.UnknownSLOError{SLO: "other"}
		}},
		{"query error", func(f *fixture) {
			f.querier.err = errors.New("prometheus unreachable")
		}},
		{"render error", func(f *fixture) {
			f.charts.err = errors.New("no data to chart")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			tt.prep(f)
			a := f.seedAlert(t, alert.NewAlert{
				Text:          "High Error Rate",
				Fingerprint:   strPtr("fp-degrade"),
				SlothSLO:      strPtr("success-rate-99"),
				ObjectiveName: strPtr("api-success"),
			})

			f.runUntilShutdown(t, events.CreateChartAndPostToSlack{Alert: *a})

			if len(f.notifier.posted) != 1 {
				t.Fatalf("posted %d messages, want 1 despite chart failure", len(f.notifier.posted))
			}
			got := f.getAlert(t, a.ID)
			if got.ChartFilename != nil {
				t.Errorf("ChartFilename = %v, want nil after chart failure", got.ChartFilename)
			}
			if got.SlackTS == nil {
				t.Error("message not posted after chart failure")
			}
		})
	}
}

func TestRun_UpdateRereadsRow(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	a := f.seedAlert(t, alert.NewAlert{
		Text:         "Alert",
		Fingerprint:  strPtr("fp-upd"),
		SlackChannel: strPtr("C999"),
		SlackTS:      strPtr("1700000000.000100"),
	})

	// Mutate the row after the event was conceptually enqueued; the handler
	// must see the new state, not a snapshot.
	ctx := context.Background()
	tx, _ := f.store.Begin(ctx)
	a.Resolved = true
	if err := f.store.Update(ctx, tx, a); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	f.runUntilShutdown(t, events.UpdateSlackAlert{AlertID: a.ID})

	if len(f.notifier.updated) != 1 {
		t.Fatalf("updated %d messages, want 1", len(f.notifier.updated))
	}
	if !f.notifier.updated[0].Resolved {
		t.Error("update used a stale snapshot instead of the current row")
	}
}

func TestRun_HandlerErrorDoesNotStopLoop(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.notifier.updateErr = errors.New("alert has no slack timestamp")

	broken := f.seedAlert(t, alert.NewAlert{Text: "broken", Fingerprint: strPtr("fp-a")})
	healthy := f.seedAlert(t, alert.NewAlert{Text: "healthy", Fingerprint: strPtr("fp-b")})

	f.runUntilShutdown(t,
		events.UpdateSlackAlert{AlertID: broken.ID},
		events.CreateChartAndPostToSlack{Alert: *healthy},
	)

	// The failing update must not prevent the following post.
	if len(f.notifier.posted) != 1 {
		t.Errorf("posted %d messages after a handler error, want 1", len(f.notifier.posted))
	}
}

func TestRun_UnknownAlertUpdate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	// No row with id 42; the handler fails, the loop keeps running.
	f.runUntilShutdown(t, events.UpdateSlackAlert{AlertID: 42})

	if len(f.notifier.updated) != 0 {
		t.Errorf("updated %d messages for a missing alert, want 0", len(f.notifier.updated))
	}
}

func TestRun_BusClosed(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.bus.Close()

	if err := f.orch.Run(context.Background()); !errors.Is(err, ErrBusClosed) {
		t.Fatalf("Run error = %v, want ErrBusClosed", err)
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.orch.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestRun_ShutdownDropsQueuedEvents(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	a := f.seedAlert(t, alert.NewAlert{Text: "late", Fingerprint: strPtr("fp-late")})

	ctx := context.Background()
	if err := f.bus.Send(ctx, events.Shutdown{}); err != nil {
		t.Fatalf("Send(Shutdown): %v", err)
	}
	if err := f.bus.Send(ctx, events.CreateChartAndPostToSlack{Alert: *a}); err != nil {
		t.Fatalf("Send(event): %v", err)
	}

	if err := f.orch.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(f.notifier.posted) != 0 {
		t.Errorf("posted %d messages queued behind Shutdown, want 0", len(f.notifier.posted))
	}
}
