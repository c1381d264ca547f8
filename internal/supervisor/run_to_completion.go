package supervisor

import (
	"context"
	"strings"
	"time"

	"github.com/ixado/ixado/internal/eventbus"
)

// CompletedRun is runToCompletion's result (spec.md §4.2).
type CompletedRun struct {
	ID         string
	Stdout     string
	Stderr     string
	ExitCode   int
	DurationMs int64
}

// RunToCompletion starts spec and blocks until the agent terminates,
// returning its captured output (spec.md §4.2 runToCompletion).
func (s *Supervisor) RunToCompletion(ctx context.Context, spec Spec) (CompletedRun, error) {
	start := time.Now()
	rec, err := s.Start(ctx, spec)
	if err != nil {
		return CompletedRun{}, err
	}

	events, _, unsub, ok := s.Subscribe(rec.ID)
	if !ok {
		return CompletedRun{}, &registryNotFound{id: rec.ID}
	}
	defer unsub()

	var stdout, stderr strings.Builder
	var exitCode int

	for {
		select {
		case ev, open := <-events:
			if !open {
				goto finished
			}
			if ev.Type == eventbus.TypeAdapterOutput {
				line, _ := ev.Payload["line"].(string)
				stream, _ := ev.Payload["stream"].(string)
				switch stream {
				case "stdout":
					stdout.WriteString(line)
					stdout.WriteString("\n")
				case "stderr":
					stderr.WriteString(line)
					stderr.WriteString("\n")
				}
			}
			if ev.Type == eventbus.TypeTerminalOutcome {
				if code, okc := ev.Payload["exitCode"].(int); okc {
					exitCode = code
				}
			}
		case <-ctx.Done():
			return CompletedRun{}, ctx.Err()
		}
	}

finished:
	return CompletedRun{
		ID:         rec.ID,
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		ExitCode:   exitCode,
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}

type registryNotFound struct{ id string }

func (e *registryNotFound) Error() string { return "agent " + e.id + " not found for subscription" }
