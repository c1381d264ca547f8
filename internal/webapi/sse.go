package webapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ixado/ixado/internal/eventbus"
	"github.com/ixado/ixado/internal/model"
)

// logFrame is one SSE data frame: the original RuntimeEvent plus the
// enrichment spec.md §4.7 requires of the live log stream.
type logFrame struct {
	eventbus.RuntimeEvent
	FormattedLine  string   `json:"formattedLine"`
	Context        string   `json:"context"`
	FailureSummary string   `json:"failureSummary,omitempty"`
	RecoveryLinks  []string `json:"recoveryLinks,omitempty"`
}

// handleAgentLogStream opens an SSE stream for one agent: replays its
// current outputTail, subscribes to the supervisor's live event bus for it,
// and closes when the agent reaches a terminal state (spec.md §4.7 "Live
// log stream").
func (s *Server) handleAgentLogStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var agent model.AgentRecord
	found := false
	for _, a := range s.sup.List() {
		if a.ID == id {
			agent, found = a, true
			break
		}
	}
	if !found {
		writeError(w, http.StatusNotFound, fmt.Sprintf("agent %s not found", id))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	send := func(frame logFrame) bool {
		if shouldSuppress(frame.RuntimeEvent) {
			return true
		}
		data, err := json.Marshal(frame)
		if err != nil {
			return true
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	routing := eventbus.RoutingContext{AgentID: agent.ID}
	if agent.ProjectName != nil {
		routing.ProjectName = *agent.ProjectName
	}
	if agent.PhaseID != nil {
		routing.PhaseID = *agent.PhaseID
	}
	if agent.TaskID != nil {
		routing.TaskID = *agent.TaskID
	}

	for _, line := range agent.OutputTail {
		ev := eventbus.RuntimeEvent{
			Version:    1,
			EventID:    eventbus.NewEventID(),
			OccurredAt: agent.StartedAt,
			Type:       eventbus.TypeAdapterOutput,
			Source:     eventbus.SourceAgentSupervisor,
			Routing:    routing,
			Payload:    map[string]any{"stream": "tail", "line": line, "isDiagnostic": strings.HasPrefix(line, ixadoPrefix)},
		}
		if !send(s.enrich(ev, agent)) {
			return
		}
	}

	events, doneCh, unsub, live := s.sup.Subscribe(id)
	if !live {
		fmt.Fprintf(w, "event: done\ndata: {}\n\n")
		flusher.Flush()
		return
	}
	defer unsub()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				select {
				case <-doneCh:
					fmt.Fprintf(w, "event: done\ndata: {}\n\n")
					flusher.Flush()
				default:
				}
				return
			}
			if !send(s.enrich(ev, agent)) {
				return
			}
			if ev.Type == eventbus.TypeTerminalOutcome {
				fmt.Fprintf(w, "event: done\ndata: {}\n\n")
				flusher.Flush()
				return
			}
		}
	}
}

func (s *Server) enrich(ev eventbus.RuntimeEvent, agent model.AgentRecord) logFrame {
	frame := logFrame{
		RuntimeEvent:  ev,
		FormattedLine: eventbus.Format(ev),
		Context:       contextLabelFor(ev.Routing, agent),
	}
	if ev.Type == eventbus.TypeTerminalOutcome {
		frame.FailureSummary = failureSummary(strings.Join(agent.OutputTail, "\n"))
		if agent.PhaseID != nil && agent.TaskID != nil {
			frame.RecoveryLinks = recoveryLinks(*agent.PhaseID, *agent.TaskID, s.recoveryAttemptCount(*agent.PhaseID, *agent.TaskID))
		}
	}
	return frame
}

// recoveryAttemptCount looks up the task's real recoveryAttempts ledger
// length in ProjectState (spec.md §4.7 "recoveryLinks ... anchor hrefs into
// the task card and each recovery attempt") -- not the number of captured
// output lines, which bears no relation to how many recovery attempts were
// actually recorded.
func (s *Server) recoveryAttemptCount(phaseID, taskID string) int {
	st, err := s.cc.GetState()
	if err != nil {
		return 0
	}
	phase := st.FindPhase(phaseID)
	if phase == nil {
		return 0
	}
	task := phase.FindTask(taskID)
	if task == nil {
		return 0
	}
	return len(task.RecoveryAttempts)
}

func contextLabelFor(r eventbus.RoutingContext, agent model.AgentRecord) string {
	switch {
	case r.TaskTitle != "":
		return fmt.Sprintf("[%s/%s]", r.PhaseName, r.TaskTitle)
	case r.PhaseID != "":
		return fmt.Sprintf("[phase %s]", r.PhaseID)
	case agent.Name != "":
		return fmt.Sprintf("[%s]", agent.Name)
	default:
		return "[ixado]"
	}
}
