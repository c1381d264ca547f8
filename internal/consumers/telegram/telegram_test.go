package telegram

import (
	"context"
	"log"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ixado/ixado/internal/eventbus"
)

type fakeNotifier struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeNotifier) Send(ctx context.Context, chatID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestConsumerFiltersByNoiseLevel(t *testing.T) {
	notifier := &fakeNotifier{}
	c := New(nil, notifier, "chat-1", eventbus.NoiseImportant, log.New(io.Discard, "", 0))

	c.deliver(context.Background(), eventbus.RuntimeEvent{Type: eventbus.TypeAdapterOutput})
	if notifier.count() != 0 {
		t.Fatalf("expected adapter.output suppressed at important level")
	}

	c.deliver(context.Background(), eventbus.RuntimeEvent{Type: eventbus.TypeTerminalOutcome, Payload: map[string]any{"outcome": "failure", "summary": "boom"}})
	if notifier.count() != 1 {
		t.Fatalf("expected terminal.outcome delivered, got %d sends", notifier.count())
	}
}

func TestConsumerDropsDuplicateNotificationKeys(t *testing.T) {
	notifier := &fakeNotifier{}
	c := New(nil, notifier, "chat-1", eventbus.NoiseAll, log.New(io.Discard, "", 0))

	ev := eventbus.RuntimeEvent{
		Type:    eventbus.TypeRecoveryActivity,
		Routing: eventbus.RoutingContext{PhaseID: "p1", TaskID: "t1"},
		Payload: map[string]any{"stage": "attempt-failed", "attemptNumber": 1, "category": "DIRTY_WORKTREE", "summary": "X"},
	}
	c.deliver(context.Background(), ev)
	c.deliver(context.Background(), ev)
	if notifier.count() != 1 {
		t.Fatalf("expected duplicate delivery suppressed, got %d sends", notifier.count())
	}
}

func TestConsumerLogsSendFailureWithoutStoppingLoop(t *testing.T) {
	notifier := &fakeNotifier{err: io.ErrClosedPipe}
	c := New(nil, notifier, "chat-1", eventbus.NoiseAll, log.New(io.Discard, "", 0))
	c.deliver(context.Background(), eventbus.RuntimeEvent{Type: eventbus.TypeTaskStart, Payload: map[string]any{"assignee": "mock"}})
	c.deliver(context.Background(), eventbus.RuntimeEvent{Type: eventbus.TypeTaskStart, Payload: map[string]any{"assignee": "mock"}})
}

func TestConsumerRunStopsOnContextCancel(t *testing.T) {
	bus := eventbus.NewBus()
	notifier := &fakeNotifier{}
	c := New(bus, notifier, "chat-1", eventbus.NoiseAll, log.New(io.Discard, "", 0))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
