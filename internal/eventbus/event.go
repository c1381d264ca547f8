// Package eventbus implements the Runtime Event Bus (spec.md §4.5): the
// typed discriminated-union RuntimeEvent, per-project fan-out, per-consumer
// formatting, and Telegram noise/duplicate filtering.
package eventbus

import "time"

// Source identifies which component emitted a RuntimeEvent.
type Source string

const (
	SourcePhaseRunner    Source = "PHASE_RUNNER"
	SourceAgentSupervisor Source = "AGENT_SUPERVISOR"
	SourceWebAPI         Source = "WEB_API"
	SourceCLI            Source = "CLI"
	SourceTelegram       Source = "TELEGRAM"
)

// Type is the discriminant tag of a RuntimeEvent.
type Type string

const (
	TypeTaskStart        Type = "task.lifecycle.start"
	TypeTaskProgress     Type = "task.lifecycle.progress"
	TypePhaseUpdate      Type = "task.lifecycle.phase-update"
	TypeTaskFinish       Type = "task.lifecycle.finish"
	TypeAdapterOutput    Type = "adapter.output"
	TypeTesterActivity   Type = "tester.activity"
	TypeRecoveryActivity Type = "recovery.activity"
	TypePRActivity       Type = "pr.activity"
	TypeCIActivity       Type = "ci.activity"
	TypeTerminalOutcome  Type = "terminal.outcome"
)

// RoutingContext is the optional addressing metadata every RuntimeEvent may
// carry, used by formatters and by the duplicate-suppression evaluator.
type RoutingContext struct {
	ProjectName string  `json:"projectName,omitempty"`
	PhaseID     string  `json:"phaseId,omitempty"`
	PhaseName   string  `json:"phaseName,omitempty"`
	TaskID      string  `json:"taskId,omitempty"`
	TaskTitle   string  `json:"taskTitle,omitempty"`
	TaskNumber  *int    `json:"taskNumber,omitempty"`
	AgentID     string  `json:"agentId,omitempty"`
	AdapterID   string  `json:"adapterId,omitempty"`
}

// RuntimeEvent is the versioned, typed envelope for every orchestration
// event (spec.md §4.5). Payload is a loosely-typed map so that each family
// can carry its own essentials without a sealed Go type per event, matching
// the spec's payload-per-type table while keeping one wire shape.
type RuntimeEvent struct {
	Version    int            `json:"version"`
	EventID    string         `json:"eventId"`
	OccurredAt time.Time      `json:"occurredAt"`
	Type       Type           `json:"type"`
	Source     Source         `json:"source"`
	Routing    RoutingContext `json:"routing,omitempty"`
	Payload    map[string]any `json:"payload"`
}

// Family groups related Types for noise-filtering tables.
type Family string

const (
	FamilyTaskLifecycle Family = "task-lifecycle"
	FamilyAdapterOutput Family = "adapter-output"
	FamilyTesterRecovery Family = "tester-recovery"
	FamilyCIPRLifecycle Family = "ci-pr-lifecycle"
	FamilyTerminalOutcome Family = "terminal-outcome"
)

// FamilyOf returns the family a Type belongs to.
func FamilyOf(t Type) Family {
	switch t {
	case TypeTaskStart, TypeTaskProgress, TypePhaseUpdate, TypeTaskFinish:
		return FamilyTaskLifecycle
	case TypeAdapterOutput:
		return FamilyAdapterOutput
	case TypeTesterActivity, TypeRecoveryActivity:
		return FamilyTesterRecovery
	case TypePRActivity, TypeCIActivity:
		return FamilyCIPRLifecycle
	case TypeTerminalOutcome:
		return FamilyTerminalOutcome
	default:
		return ""
	}
}
