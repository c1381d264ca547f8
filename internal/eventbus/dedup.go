package eventbus

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/zeebo/blake3"
)

// NotificationKey builds the per-event dedup key from type-specific fields
// (spec.md §4.5 "Duplicate suppression"), e.g. for recovery.activity:
// type|phaseId|taskId|stage|attemptNumber|category|summary.
func NotificationKey(ev RuntimeEvent) string {
	switch ev.Type {
	case TypeRecoveryActivity:
		return fmt.Sprintf("%s|%s|%s|%v|%v|%v|%v",
			ev.Type, ev.Routing.PhaseID, ev.Routing.TaskID,
			ev.Payload["stage"], ev.Payload["attemptNumber"], ev.Payload["category"], ev.Payload["summary"])
	case TypeTesterActivity:
		return fmt.Sprintf("%s|%s|%s|%v|%v", ev.Type, ev.Routing.PhaseID, ev.Routing.TaskID, ev.Payload["stage"], ev.Payload["summary"])
	case TypeCIActivity, TypePRActivity:
		return fmt.Sprintf("%s|%s|%v|%v", ev.Type, ev.Routing.PhaseID, ev.Payload["stage"], ev.Payload["summary"])
	case TypePhaseUpdate:
		return fmt.Sprintf("%s|%s|%v", ev.Type, ev.Routing.PhaseID, ev.Payload["status"])
	case TypeTaskFinish:
		return fmt.Sprintf("%s|%s|%v", ev.Type, ev.Routing.TaskID, ev.Payload["status"])
	case TypeTerminalOutcome:
		return fmt.Sprintf("%s|%s|%v", ev.Type, ev.Routing.AgentID, ev.Payload["outcome"])
	default:
		return fmt.Sprintf("%s|%s|%s", ev.Type, ev.Routing.PhaseID, ev.Routing.TaskID)
	}
}

func digest(key string) string {
	sum := blake3.Sum256([]byte(key))
	return fmt.Sprintf("%x", sum)
}

// Deduper holds a bounded set of delivered notification-key digests per
// Telegram session, dropping repeats (spec.md §4.5).
type Deduper struct {
	mu       sync.Mutex
	cap      int
	order    *list.List
	elements map[string]*list.Element
}

// NewDeduper returns a Deduper retaining at most capacity delivered keys,
// evicting the oldest on overflow.
func NewDeduper(capacity int) *Deduper {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Deduper{cap: capacity, order: list.New(), elements: make(map[string]*list.Element)}
}

// Seen records ev's notification key and reports whether it was already
// delivered (in which case the caller should drop it).
func (d *Deduper) Seen(ev RuntimeEvent) bool {
	key := digest(NotificationKey(ev))
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.elements[key]; ok {
		d.order.MoveToFront(d.elements[key])
		return true
	}
	el := d.order.PushFront(key)
	d.elements[key] = el
	for d.order.Len() > d.cap {
		back := d.order.Back()
		if back == nil {
			break
		}
		d.order.Remove(back)
		delete(d.elements, back.Value.(string))
	}
	return false
}
