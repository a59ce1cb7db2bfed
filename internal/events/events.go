// Package events defines Herald's orchestration commands and the bounded
// multi-producer/single-consumer bus that delivers them to the event loop.
package events

import (
	"context"
	"errors"

	"github.com/linnemanlabs/herald/internal/alert"
)

// ErrClosed is returned when sending on a closed bus.
var ErrClosed = errors.New("event bus closed")

// Event is a unit of orchestration work. The set of implementations is closed;
// each carries enough state to be handled independently of the HTTP request
// that produced it.
type Event interface {
	isEvent()
}

// CreateChartAndPostToSlack generates a chart for the alert (best effort) and
// follows up with PostSlackAlert.
type CreateChartAndPostToSlack struct {
	Alert alert.Alert
}

// PostSlackAlert posts a new Slack message for the alert and persists the
// returned message reference.
type PostSlackAlert struct {
	Alert alert.Alert
}

// UpdateSlackAlert refreshes the Slack message for the alert with the given
// id. It carries only the id so the handler re-reads the freshest row instead
// of acting on a stale snapshot.
type UpdateSlackAlert struct {
	AlertID int64
}

// Shutdown terminates the event loop. Events still queued behind it are
// dropped, not drained.
type Shutdown struct{}

func (CreateChartAndPostToSlack) isEvent() {}
func (PostSlackAlert) isEvent()            {}
func (UpdateSlackAlert) isEvent()          {}
func (Shutdown) isEvent()                  {}

// Bus is a bounded, ordered event queue. Producers block when the bus is full;
// that is backpressure, not an error. There must be exactly one consumer.
//
// Size the bus to hold at least the largest expected webhook batch: intake
// enqueues while its batch transaction is still open, so a full bus blocks
// intake on the consumer, which may itself be waiting on the store.
type Bus struct {
	ch chan Event
}

// NewBus creates a bus with the given capacity.
func NewBus(capacity int) *Bus {
	return &Bus{ch: make(chan Event, capacity)}
}

// Send enqueues an event, blocking while the bus is full. It returns the
// context error if ctx is done first, and ErrClosed if the bus was closed.
func (b *Bus) Send(ctx context.Context, ev Event) (err error) {
	defer func() {
		// Sending on a closed channel panics; surface it as ErrClosed so
		// producers can fail the request instead of the process.
		if recover() != nil {
			err = ErrClosed
		}
	}()

	select {
	case b.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events exposes the receive side for the single consumer. A closed channel
// without a preceding Shutdown means the producers went away unexpectedly.
func (b *Bus) Events() <-chan Event {
	return b.ch
}

// Close closes the bus. Only for tests; the server shuts the loop down with a
// Shutdown event instead.
func (b *Bus) Close() {
	close(b.ch)
}
