// Package model defines the persisted aggregate types that make up a
// project's orchestration state: phases, tasks, agent records, and the
// strict recovery-attempt ledger.
package model

import "time"

// PhaseStatus is the lifecycle status of a Phase.
type PhaseStatus string

const (
	PhasePlanning       PhaseStatus = "PLANNING"
	PhaseBranching      PhaseStatus = "BRANCHING"
	PhaseCoding         PhaseStatus = "CODING"
	PhaseCreatingPR     PhaseStatus = "CREATING_PR"
	PhaseAwaitingCI     PhaseStatus = "AWAITING_CI"
	PhaseCIFailed       PhaseStatus = "CI_FAILED"
	PhaseReadyForReview PhaseStatus = "READY_FOR_REVIEW"
	PhaseDone           PhaseStatus = "DONE"
)

// TaskStatus is the lifecycle status of a Task.
type TaskStatus string

const (
	TaskTodo       TaskStatus = "TODO"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskDone       TaskStatus = "DONE"
	TaskFailed     TaskStatus = "FAILED"
	TaskCIFix      TaskStatus = "CI_FIX"
)

// Assignee identifies which adapter a Task is assigned to.
type Assignee string

const (
	AssigneeCodex      Assignee = "CODEX_CLI"
	AssigneeClaude     Assignee = "CLAUDE_CLI"
	AssigneeGemini     Assignee = "GEMINI_CLI"
	AssigneeMock       Assignee = "MOCK_CLI"
	AssigneeUnassigned Assignee = "UNASSIGNED"
)

// FailureKind classifies why a Phase entered a failure status.
type FailureKind string

const (
	FailureLocalTester FailureKind = "LOCAL_TESTER"
	FailureRemoteCI    FailureKind = "REMOTE_CI"
	FailureAgent       FailureKind = "AGENT_FAILURE"

	// FailureValidationMaxRetries marks a phase that exhausted its
	// ciFixMaxDepth budget of CI_FIX -> CI_FAILED cycles (spec.md §4.3):
	// the phase stays CI_FAILED but fanOutCIFixes refuses to create any
	// further CI_FIX tasks for it.
	FailureValidationMaxRetries FailureKind = "VALIDATION_MAX_RETRIES"
)

// ExceptionCategory classifies a failed task for the recovery policy.
type ExceptionCategory string

const (
	ExceptionDirtyWorktree  ExceptionCategory = "DIRTY_WORKTREE"
	ExceptionMissingCommit  ExceptionCategory = "MISSING_COMMIT"
	ExceptionAgentFailure   ExceptionCategory = "AGENT_FAILURE"
	ExceptionUnknown        ExceptionCategory = "UNKNOWN"
)

// RecoveryResultStatus is the strict outcome of a single recovery attempt.
type RecoveryResultStatus string

const (
	RecoveryFixed     RecoveryResultStatus = "fixed"
	RecoveryUnfixable RecoveryResultStatus = "unfixable"
)

// ExceptionInfo is the classified failure a RecoveryAttemptRecord responds to.
type ExceptionInfo struct {
	Category ExceptionCategory `json:"category"`
	Message  string            `json:"message"`
	PhaseID  string            `json:"phaseId,omitempty"`
	TaskID   string            `json:"taskId,omitempty"`
}

// RecoveryResult is strict: only these keys are ever present, and the schema
// that guards deserialization (see internal/state) rejects anything else.
type RecoveryResult struct {
	Status       RecoveryResultStatus `json:"status"`
	Reasoning    string               `json:"reasoning"`
	ActionsTaken []string             `json:"actionsTaken,omitempty"`
	FilesTouched []string             `json:"filesTouched,omitempty"`
}

// RecoveryAttemptRecord is one cycle of classify -> remediate -> record.
type RecoveryAttemptRecord struct {
	ID            string         `json:"id"`
	OccurredAt    time.Time      `json:"occurredAt"`
	AttemptNumber int            `json:"attemptNumber"`
	Exception     ExceptionInfo  `json:"exception"`
	Result        RecoveryResult `json:"result"`
}

// Task is an atomic unit of work assigned to one adapter.
type Task struct {
	ID           string      `json:"id"`
	Title        string      `json:"title"`
	Description  string      `json:"description"`
	Status       TaskStatus  `json:"status"`
	Assignee     Assignee    `json:"assignee"`
	Dependencies []string    `json:"dependencies,omitempty"`

	ResultContext *string `json:"resultContext,omitempty"`
	ErrorLogs     *string `json:"errorLogs,omitempty"`

	ErrorCategory *ExceptionCategory `json:"errorCategory,omitempty"`

	RecoveryAttempts []RecoveryAttemptRecord `json:"recoveryAttempts,omitempty"`
}

// Phase is a bounded unit of work producing at most one pull request.
type Phase struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	BranchName string      `json:"branchName"`
	Status     PhaseStatus `json:"status"`
	Tasks      []Task      `json:"tasks"`

	PRUrl            *string      `json:"prUrl,omitempty"`
	CIStatusContext  *string      `json:"ciStatusContext,omitempty"`
	FailureKind      *FailureKind `json:"failureKind,omitempty"`

	// CIFixCycles counts completed CI_FAILED -> CI_FIX -> CODING round trips
	// (spec.md §4.3 "Track depth of CI_FIX -> CI_FAILED cycles").
	CIFixCycles int `json:"ciFixCycles,omitempty"`

	RecoveryAttempts []RecoveryAttemptRecord `json:"recoveryAttempts,omitempty"`
}

// ProjectState is the root aggregate persisted as a single JSON document.
type ProjectState struct {
	ProjectName   string    `json:"projectName"`
	RootDir       string    `json:"rootDir"`
	Phases        []Phase   `json:"phases"`
	ActivePhaseID *string   `json:"activePhaseId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// FindPhase returns a pointer into s.Phases matching id, or nil.
func (s *ProjectState) FindPhase(id string) *Phase {
	for i := range s.Phases {
		if s.Phases[i].ID == id {
			return &s.Phases[i]
		}
	}
	return nil
}

// FindTask returns a pointer into the named phase's Tasks matching id, or nil.
func (p *Phase) FindTask(id string) *Task {
	for i := range p.Tasks {
		if p.Tasks[i].ID == id {
			return &p.Tasks[i]
		}
	}
	return nil
}

// ClearFailureIfNotFailed clears FailureKind unless the phase is CI_FAILED.
// Invariant (spec.md §3 invariant 5): FailureKind is present iff status is a
// failure status.
func (p *Phase) ClearFailureIfNotFailed() {
	if p.Status != PhaseCIFailed {
		p.FailureKind = nil
	}
}

// CapturedOutputLimit is the hard cap on resultContext/errorLogs (spec.md §3).
const CapturedOutputLimit = 4000

// AgentStatus is the lifecycle status of a registry row.
type AgentStatus string

const (
	AgentRunning AgentStatus = "RUNNING"
	AgentStopped AgentStatus = "STOPPED"
	AgentFailed  AgentStatus = "FAILED"
)

// AdapterID enumerates supported coding-CLI adapters. Unknown values
// encountered during registry deserialization are dropped rather than
// rejected (spec.md §3 AgentRecord, §4.2 Supervisor.list).
type AdapterID string

const (
	AdapterCodex  AdapterID = "codex"
	AdapterClaude AdapterID = "claude"
	AdapterGemini AdapterID = "gemini"
	AdapterMock   AdapterID = "mock"
)

// ValidAdapterID reports whether id is a recognized AdapterID.
func ValidAdapterID(id string) bool {
	switch AdapterID(id) {
	case AdapterCodex, AdapterClaude, AdapterGemini, AdapterMock:
		return true
	default:
		return false
	}
}

// AgentRecord is one row of the cross-process-shared agent registry.
type AgentRecord struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
	Cwd     string   `json:"cwd"`

	AdapterID   *AdapterID `json:"adapterId,omitempty"`
	ProjectName *string    `json:"projectName,omitempty"`
	PhaseID     *string    `json:"phaseId,omitempty"`
	TaskID      *string    `json:"taskId,omitempty"`

	Status AgentStatus `json:"status"`

	PID           *int      `json:"pid,omitempty"`
	StartedAt     time.Time `json:"startedAt"`
	LastExitCode  *int      `json:"lastExitCode,omitempty"`

	OutputTail []string `json:"outputTail,omitempty"`
}
