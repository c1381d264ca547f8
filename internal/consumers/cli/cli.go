// Package cli renders the runtime event bus to a terminal (spec.md §4.5/§4.6
// "Telegram / CLI Consumers (boundary): subscribe to event bus, format, and
// forward").
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/ixado/ixado/internal/eventbus"
)

var (
	cyan   = color.New(color.FgCyan).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
)

// Printer writes formatted event lines to a terminal with event-type color
// coding (task start = cyan, successful finish/outcome = green, failed
// finish/outcome = red, cancelled outcome = yellow, CI_FAILED phase update =
// red, adapter output = gray, everything else uncolored).
type Printer struct {
	out io.Writer
	bus *eventbus.Bus
}

func NewPrinter(out io.Writer, bus *eventbus.Bus) *Printer {
	return &Printer{out: out, bus: bus}
}

// Run subscribes to the bus and prints every event until ctx is cancelled or
// the bus closes.
func (p *Printer) Run(ctx context.Context) {
	// The events channel is closed when the bus closes, after any buffered
	// events, so it alone signals the end of the stream.
	events, _, unsub := p.bus.Subscribe()
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			fmt.Fprintln(p.out, colorize(ev))
		}
	}
}

func colorize(ev eventbus.RuntimeEvent) string {
	line := eventbus.Format(ev)
	switch ev.Type {
	case eventbus.TypeTaskStart:
		return cyan(line)
	case eventbus.TypeAdapterOutput:
		return gray(line)
	case eventbus.TypeTaskFinish:
		if status, _ := ev.Payload["status"].(string); status == "FAILED" {
			return red(line)
		}
		return green(line)
	case eventbus.TypeTerminalOutcome:
		if outcome, _ := ev.Payload["outcome"].(string); outcome == "success" {
			return green(line)
		}
		if outcome, _ := ev.Payload["outcome"].(string); outcome == "cancelled" {
			return yellow(line)
		}
		return red(line)
	case eventbus.TypePhaseUpdate:
		if status, _ := ev.Payload["status"].(string); status == "CI_FAILED" {
			return red(line)
		}
		return line
	default:
		return line
	}
}
