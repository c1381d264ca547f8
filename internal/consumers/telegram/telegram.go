// Package telegram applies the noise filter and duplicate suppression
// (spec.md §4.5) to the runtime event bus and forwards the surviving events
// to a Notifier. The Telegram bot transport itself is out of scope
// (spec.md §1 "Telegram bot transport" — external collaborator); Notifier is
// the seam a real bot client plugs into.
package telegram

import (
	"context"
	"log"

	"github.com/ixado/ixado/internal/eventbus"
)

// Notifier delivers a formatted line to a chat. Implemented outside this
// package by the actual Telegram Bot API client.
type Notifier interface {
	Send(ctx context.Context, chatID string, text string) error
}

// Consumer subscribes to a project's event bus, drops events the configured
// noise level suppresses, drops repeats of an already-delivered notification
// key, and forwards everything else to a Notifier (spec.md §4.5 "Telegram
// API calls (boundary; failure logged, does not stop the loop)").
type Consumer struct {
	bus      *eventbus.Bus
	notifier Notifier
	chatID   string
	level    eventbus.NoiseLevel
	dedup    *eventbus.Deduper
	logger   *log.Logger
}

func New(bus *eventbus.Bus, notifier Notifier, chatID string, level eventbus.NoiseLevel, logger *log.Logger) *Consumer {
	return &Consumer{
		bus:      bus,
		notifier: notifier,
		chatID:   chatID,
		level:    level,
		dedup:    eventbus.NewDeduper(1000),
		logger:   logger,
	}
}

// Run subscribes and forwards until ctx is cancelled or the bus closes.
func (c *Consumer) Run(ctx context.Context) {
	events, doneCh, unsub := c.bus.Subscribe()
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case <-doneCh:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.deliver(ctx, ev)
		}
	}
}

func (c *Consumer) deliver(ctx context.Context, ev eventbus.RuntimeEvent) {
	if eventbus.Suppress(c.level, ev) {
		return
	}
	if c.dedup.Seen(ev) {
		return
	}
	if err := c.notifier.Send(ctx, c.chatID, eventbus.Format(ev)); err != nil {
		c.logger.Printf("telegram send failed: %v", err)
	}
}
