package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ixado/ixado/internal/eventbus"
)

func TestRunPrintsPublishedEvents(t *testing.T) {
	var buf bytes.Buffer
	bus := eventbus.NewBus()
	bus.Publish(eventbus.RuntimeEvent{
		Type:    eventbus.TypeTaskStart,
		Routing: eventbus.RoutingContext{PhaseName: "p1", TaskTitle: "t1"},
		Payload: map[string]any{"assignee": "mock"},
	})
	bus.Close()

	p := NewPrinter(&buf, bus)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p.Run(ctx)

	if !strings.Contains(buf.String(), "started (mock)") {
		t.Fatalf("output = %q", buf.String())
	}
}

func TestColorizePicksColorByOutcome(t *testing.T) {
	success := eventbus.RuntimeEvent{Type: eventbus.TypeTerminalOutcome, Payload: map[string]any{"outcome": "success", "summary": "done"}}
	if got := colorize(success); !strings.Contains(got, "done") {
		t.Fatalf("colorize(success) = %q", got)
	}

	failure := eventbus.RuntimeEvent{Type: eventbus.TypeTerminalOutcome, Payload: map[string]any{"outcome": "failure", "summary": "boom"}}
	if got := colorize(failure); !strings.Contains(got, "boom") {
		t.Fatalf("colorize(failure) = %q", got)
	}
}

func TestRunStopsWhenBusCloses(t *testing.T) {
	var buf bytes.Buffer
	bus := eventbus.NewBus()
	p := NewPrinter(&buf, bus)

	done := make(chan struct{})
	go func() {
		p.Run(context.Background())
		close(done)
	}()
	bus.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after bus close")
	}
}
