package eventbus

import (
	"sync"

	"github.com/oklog/ulid/v2"
)

// Bus fans out RuntimeEvents to multiple subscribers. One Bus per project.
// Thread-safe.
type Bus struct {
	mu      sync.Mutex
	history []RuntimeEvent
	clients map[uint64]chan RuntimeEvent
	nextID  uint64
	closed  bool
	doneCh  chan struct{} // closed only on Close(), not slow-client drops
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		clients: make(map[uint64]chan RuntimeEvent),
		doneCh:  make(chan struct{}),
	}
}

// Publish appends ev to history and delivers it to every live subscriber,
// dropping (never blocking on) slow clients.
func (b *Bus) Publish(ev RuntimeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.history = append(b.history, ev)
	for id, ch := range b.clients {
		select {
		case ch <- ev:
		default:
			close(ch)
			delete(b.clients, id)
		}
	}
}

// Subscribe returns an event channel replaying history then live events, a
// done channel closed only when the bus itself closes, and an unsubscribe
// function.
func (b *Bus) Subscribe() (<-chan RuntimeEvent, <-chan struct{}, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan RuntimeEvent, len(b.history)+256)
	id := b.nextID
	b.nextID++

	for _, ev := range b.history {
		ch <- ev
	}

	if b.closed {
		close(ch)
		return ch, b.doneCh, func() {}
	}

	b.clients[id] = ch
	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.clients[id]; ok {
			delete(b.clients, id)
			close(ch)
		}
	}
	return ch, b.doneCh, unsub
}

// Close signals that no more events will be published; all client channels
// are closed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.doneCh)
	for id, ch := range b.clients {
		close(ch)
		delete(b.clients, id)
	}
}

// History returns a copy of every event published so far.
func (b *Bus) History() []RuntimeEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]RuntimeEvent, len(b.history))
	copy(out, b.history)
	return out
}

// NewEventID returns a time-sortable event id (spec.md §4.5: eventId).
// Events are ephemeral/high-frequency, unlike persisted domain ids, so this
// follows the teacher's ULID convention rather than the UUID form used for
// Phase/Task/AgentRecord ids (see SPEC_FULL.md §2).
func NewEventID() string { return ulid.Make().String() }
