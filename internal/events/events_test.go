package events

import (
	"context"
	"testing"
	"time"

	"github.com/linnemanlabs/herald/internal/alert"
)

func TestBus_DeliversInOrder(t *testing.T) {
	t.Parallel()

	bus := NewBus(8)
	ctx := context.Background()

	sent := []Event{
		CreateChartAndPostToSlack{Alert: alert.Alert{ID: 1}},
		PostSlackAlert{Alert: alert.Alert{ID: 1}},
		UpdateSlackAlert{AlertID: 2},
		Shutdown{},
	}
	for _, ev := range sent {
		if err := bus.Send(ctx, ev); err != nil {
			t.Fatalf("Send(%T): %v", ev, err)
		}
	}

	for i, want := range sent {
		got, ok := <-bus.Events()
		if !ok {
			t.Fatalf("channel closed after %d events, want %d", i, len(sent))
		}
		if got != want {
			t.Errorf("event %d = %#v, want %#v", i, got, want)
		}
	}
}

func TestBus_SendBlocksWhenFull(t *testing.T) {
	t.Parallel()

	bus := NewBus(1)
	ctx := context.Background()

	if err := bus.Send(ctx, Shutdown{}); err != nil {
		t.Fatalf("Send on empty bus: %v", err)
	}

	// Bus is full now; a send with an expired context must give up with the
	// context error instead of blocking forever.
	cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()

	err := bus.Send(cctx, Shutdown{})
	if err == nil {
		t.Fatal("Send on full bus with expired context returned nil")
	}
	if err != context.DeadlineExceeded {
		t.Errorf("Send error = %v, want %v", err, context.DeadlineExceeded)
	}
}

func TestBus_SendUnblocksWhenDrained(t *testing.T) {
	t.Parallel()

	bus := NewBus(1)
	ctx := context.Background()

	if err := bus.Send(ctx, UpdateSlackAlert{AlertID: 1}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- bus.Send(ctx, UpdateSlackAlert{AlertID: 2})
	}()

	// Drain one slot so the blocked producer can proceed.
	<-bus.Events()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Send after drain: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Send did not unblock after the bus was drained")
	}

	if ev := <-bus.Events(); ev != (UpdateSlackAlert{AlertID: 2}) {
		t.Errorf("drained event = %#v, want UpdateSlackAlert{AlertID: 2}", ev)
	}
}

func TestBus_CloseSignalsConsumer(t *testing.T) {
	t.Parallel()

	bus := NewBus(1)
	bus.Close()

	if _, ok := <-bus.Events(); ok {
		t.Fatal("receive on closed bus reported ok=true")
	}
}

func TestBus_SendOnClosedBus(t *testing.T) {
	t.Parallel()

	bus := NewBus(1)
	bus.Close()

	if err := bus.Send(context.Background(), Shutdown{}); err != ErrClosed {
		t.Fatalf("Send on closed bus = %v, want ErrClosed", err)
	}
}
