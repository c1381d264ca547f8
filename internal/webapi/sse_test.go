package webapi

import (
	"testing"

	"github.com/ixado/ixado/internal/controlcenter"
	"github.com/ixado/ixado/internal/eventbus"
	"github.com/ixado/ixado/internal/model"
)

func TestEnrichAddsFailureSummaryAndRecoveryLinksOnlyOnTerminal(t *testing.T) {
	s, cc := newTestServer(t)
	phase, err := cc.CreatePhase(controlcenter.CreatePhaseParams{Name: "p1", BranchName: "ixado/p1"})
	if err != nil {
		t.Fatal(err)
	}
	task, err := cc.CreateTask(controlcenter.CreateTaskParams{PhaseID: phase.ID, Title: "t1"})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if _, err := cc.AppendTaskRecoveryAttempt(phase.ID, task.ID, model.RecoveryAttemptRecord{
			AttemptNumber: i + 1,
		}); err != nil {
			t.Fatal(err)
		}
	}

	agent := model.AgentRecord{
		ID:         "agent-1",
		PhaseID:    &phase.ID,
		TaskID:     &task.ID,
		OutputTail: []string{"starting", "Error: connection refused", "exiting"},
	}

	outputEv := eventbus.RuntimeEvent{
		Type:    eventbus.TypeAdapterOutput,
		Payload: map[string]any{"stream": "stdout", "line": "compiling..."},
	}
	frame := s.enrich(outputEv, agent)
	if frame.FailureSummary != "" || frame.RecoveryLinks != nil {
		t.Fatalf("non-terminal event should carry no enrichment, got %+v", frame)
	}

	terminalEv := eventbus.RuntimeEvent{
		Type:    eventbus.TypeTerminalOutcome,
		Payload: map[string]any{"outcome": "failure", "summary": "exited with code 1"},
	}
	frame = s.enrich(terminalEv, agent)
	if frame.FailureSummary != "Error: connection refused" {
		t.Fatalf("failureSummary = %q", frame.FailureSummary)
	}
	// 1 task-card link + 1 per recorded recovery attempt (2), regardless of
	// the agent's captured-output line count (3 lines here).
	if len(frame.RecoveryLinks) != 3 {
		t.Fatalf("recoveryLinks = %v, want 3 (task card + 2 attempts)", frame.RecoveryLinks)
	}
}

func TestShouldSuppressOnlyAppliesToAdapterOutput(t *testing.T) {
	chatterOutput := eventbus.RuntimeEvent{
		Type:    eventbus.TypeAdapterOutput,
		Payload: map[string]any{"line": "Read(internal/webapi/server.go)"},
	}
	if !shouldSuppress(chatterOutput) {
		t.Fatal("expected chatter adapter output to be suppressed")
	}

	phaseUpdate := eventbus.RuntimeEvent{
		Type:    eventbus.TypePhaseUpdate,
		Payload: map[string]any{"status": "CODING"},
	}
	if shouldSuppress(phaseUpdate) {
		t.Fatal("non-adapter-output events are never chatter-filtered")
	}
}

func TestContextLabelForPrefersTaskThenPhaseThenAgent(t *testing.T) {
	if got := contextLabelFor(eventbus.RoutingContext{TaskTitle: "t1", PhaseName: "p1"}, model.AgentRecord{}); got != "[p1/t1]" {
		t.Fatalf("context = %q", got)
	}
	if got := contextLabelFor(eventbus.RoutingContext{PhaseID: "phase-1"}, model.AgentRecord{}); got != "[phase phase-1]" {
		t.Fatalf("context = %q", got)
	}
	if got := contextLabelFor(eventbus.RoutingContext{}, model.AgentRecord{Name: "codex-1"}); got != "[codex-1]" {
		t.Fatalf("context = %q", got)
	}
	if got := contextLabelFor(eventbus.RoutingContext{}, model.AgentRecord{}); got != "[ixado]" {
		t.Fatalf("context = %q", got)
	}
}
