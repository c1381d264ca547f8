// Package controlcenter implements the Control-Center Service façade
// (spec.md §4.6): the single transactional entry point CLI, Web, and
// Telegram consumers use to mutate a project's state.
package controlcenter

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ixado/ixado/internal/eventbus"
	"github.com/ixado/ixado/internal/model"
	"github.com/ixado/ixado/internal/state"
)

// Service is the façade over one project's Store + event bus.
type Service struct {
	store *state.Store
	bus   *eventbus.Bus
}

// New returns a Service for the project rooted at rootDir.
func New(store *state.Store, bus *eventbus.Bus) *Service {
	return &Service{store: store, bus: bus}
}

// EnsureInitialized creates the project's state document if absent.
func (s *Service) EnsureInitialized(projectName, rootDir string) (*model.ProjectState, error) {
	return s.store.Initialize(projectName, rootDir)
}

// GetState returns the current state document.
func (s *Service) GetState() (*model.ProjectState, error) {
	return s.store.Read()
}

// transact reads, applies fn, and writes back -- the read -> modify -> write
// shape every mutation in this package follows (spec.md §4.6). The
// per-project lock serializes this against every other goroutine mutating
// the same state file (web API handlers, CLI commands, the phase-runner
// loop all share one Service per project, but defense in depth costs
// nothing here).
func (s *Service) transact(fn func(*model.ProjectState) error) (*model.ProjectState, error) {
	lock := state.LockFor(s.store.Path())
	lock.Lock()
	defer lock.Unlock()

	st, err := s.store.Read()
	if err != nil {
		return nil, err
	}
	if err := fn(st); err != nil {
		return nil, err
	}
	return s.store.Write(st)
}

// CreatePhaseParams is the input to CreatePhase.
type CreatePhaseParams struct {
	Name       string
	BranchName string
}

// CreatePhase appends a new PLANNING phase.
func (s *Service) CreatePhase(p CreatePhaseParams) (*model.Phase, error) {
	phase := model.Phase{
		ID:         uuid.NewString(),
		Name:       p.Name,
		BranchName: p.BranchName,
		Status:     model.PhasePlanning,
		Tasks:      []model.Task{},
	}
	_, err := s.transact(func(st *model.ProjectState) error {
		st.Phases = append(st.Phases, phase)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(eventbus.TypePhaseUpdate, eventbus.RoutingContext{PhaseID: phase.ID, PhaseName: phase.Name}, map[string]any{
		"status": phase.Status,
	})
	return &phase, nil
}

// SetActivePhase sets state.activePhaseId, failing if phaseID doesn't
// resolve to an existing phase (spec.md §3 invariant).
func (s *Service) SetActivePhase(phaseID string) error {
	_, err := s.transact(func(st *model.ProjectState) error {
		if st.FindPhase(phaseID) == nil {
			return fmt.Errorf("controlcenter: phase %q does not exist", phaseID)
		}
		st.ActivePhaseID = &phaseID
		return nil
	})
	return err
}

// SetPhaseStatus transitions a phase's status, clearing failureKind on any
// non-failure status (spec.md §3 invariant 5).
func (s *Service) SetPhaseStatus(phaseID string, status model.PhaseStatus, failureKind *model.FailureKind) error {
	_, err := s.transact(func(st *model.ProjectState) error {
		phase := st.FindPhase(phaseID)
		if phase == nil {
			return fmt.Errorf("controlcenter: phase %q does not exist", phaseID)
		}
		phase.Status = status
		phase.FailureKind = failureKind
		phase.ClearFailureIfNotFailed()
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(eventbus.TypePhaseUpdate, eventbus.RoutingContext{PhaseID: phaseID}, map[string]any{"status": status})
	return nil
}

// SetPhasePrUrl records phase.prUrl.
func (s *Service) SetPhasePrUrl(phaseID, prURL string) error {
	_, err := s.transact(func(st *model.ProjectState) error {
		phase := st.FindPhase(phaseID)
		if phase == nil {
			return fmt.Errorf("controlcenter: phase %q does not exist", phaseID)
		}
		phase.PRUrl = &prURL
		return nil
	})
	return err
}

// CreateTaskParams is the input to CreateTask. Status defaults to TODO; set
// it explicitly (e.g. CI_FIX) for tasks fanned out by the CI-failure handler.
type CreateTaskParams struct {
	PhaseID      string
	Title        string
	Description  string
	Assignee     model.Assignee
	Dependencies []string
	Status       model.TaskStatus
}

// CreateTask appends a task to the named phase.
func (s *Service) CreateTask(p CreateTaskParams) (*model.Task, error) {
	status := p.Status
	if status == "" {
		status = model.TaskTodo
	}
	task := model.Task{
		ID:           uuid.NewString(),
		Title:        p.Title,
		Description:  p.Description,
		Status:       status,
		Assignee:     p.Assignee,
		Dependencies: p.Dependencies,
	}
	_, err := s.transact(func(st *model.ProjectState) error {
		phase := st.FindPhase(p.PhaseID)
		if phase == nil {
			return fmt.Errorf("controlcenter: phase %q does not exist", p.PhaseID)
		}
		phase.Tasks = append(phase.Tasks, task)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateTaskParams patches the mutable fields of a task; nil fields are left
// unchanged.
type UpdateTaskParams struct {
	PhaseID       string
	TaskID        string
	Status        *model.TaskStatus
	ResultContext *string
	ErrorLogs     *string
	ErrorCategory *model.ExceptionCategory
}

// UpdateTask applies a partial update to one task.
func (s *Service) UpdateTask(p UpdateTaskParams) (*model.Task, error) {
	var updated model.Task
	_, err := s.transact(func(st *model.ProjectState) error {
		phase := st.FindPhase(p.PhaseID)
		if phase == nil {
			return fmt.Errorf("controlcenter: phase %q does not exist", p.PhaseID)
		}
		task := phase.FindTask(p.TaskID)
		if task == nil {
			return fmt.Errorf("controlcenter: task %q does not exist in phase %q", p.TaskID, p.PhaseID)
		}
		if p.Status != nil {
			task.Status = *p.Status
		}
		if p.ResultContext != nil {
			task.ResultContext = p.ResultContext
		}
		if p.ErrorLogs != nil {
			task.ErrorLogs = p.ErrorLogs
		}
		if p.ErrorCategory != nil {
			task.ErrorCategory = p.ErrorCategory
		}
		updated = *task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// StartTask transitions a TODO/CI_FIX task to IN_PROGRESS transactionally.
func (s *Service) StartTask(phaseID, taskID string) (*model.Task, error) {
	inProgress := model.TaskInProgress
	return s.UpdateTask(UpdateTaskParams{PhaseID: phaseID, TaskID: taskID, Status: &inProgress})
}

// ResetTaskToTodo clears a task's diagnostic fields and sets it back to TODO
// (used by cancellation and reconciliation, spec.md §4.3).
func (s *Service) ResetTaskToTodo(phaseID, taskID string) (*model.Task, error) {
	var updated model.Task
	_, err := s.transact(func(st *model.ProjectState) error {
		phase := st.FindPhase(phaseID)
		if phase == nil {
			return fmt.Errorf("controlcenter: phase %q does not exist", phaseID)
		}
		task := phase.FindTask(taskID)
		if task == nil {
			return fmt.Errorf("controlcenter: task %q does not exist in phase %q", taskID, phaseID)
		}
		task.Status = model.TaskTodo
		task.ResultContext = nil
		task.ErrorLogs = nil
		task.ErrorCategory = nil
		updated = *task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// FailTaskIfInProgress marks an IN_PROGRESS task FAILED with errorLogs; a
// no-op (returns nil, nil) if the task isn't IN_PROGRESS.
func (s *Service) FailTaskIfInProgress(phaseID, taskID, errorLogs string, category model.ExceptionCategory) (*model.Task, error) {
	var updated *model.Task
	_, err := s.transact(func(st *model.ProjectState) error {
		phase := st.FindPhase(phaseID)
		if phase == nil {
			return fmt.Errorf("controlcenter: phase %q does not exist", phaseID)
		}
		task := phase.FindTask(taskID)
		if task == nil {
			return fmt.Errorf("controlcenter: task %q does not exist in phase %q", taskID, phaseID)
		}
		if task.Status != model.TaskInProgress {
			return nil
		}
		task.Status = model.TaskFailed
		task.ErrorLogs = &errorLogs
		task.ErrorCategory = &category
		cp := *task
		updated = &cp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// AppendTaskRecoveryAttempt appends attempt to a task's recoveryAttempts
// ledger (spec.md §4.4: every classify -> remediate -> record cycle is
// persisted, fixed or not).
func (s *Service) AppendTaskRecoveryAttempt(phaseID, taskID string, attempt model.RecoveryAttemptRecord) (*model.Task, error) {
	var updated model.Task
	_, err := s.transact(func(st *model.ProjectState) error {
		phase := st.FindPhase(phaseID)
		if phase == nil {
			return fmt.Errorf("controlcenter: phase %q does not exist", phaseID)
		}
		task := phase.FindTask(taskID)
		if task == nil {
			return fmt.Errorf("controlcenter: task %q does not exist in phase %q", taskID, phaseID)
		}
		task.RecoveryAttempts = append(task.RecoveryAttempts, attempt)
		updated = *task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// IncrementCIFixCycles bumps a phase's CI_FAILED -> CI_FIX round-trip
// counter and returns the new value (spec.md §4.3 CI_FIX fanout depth
// guardrail).
func (s *Service) IncrementCIFixCycles(phaseID string) (int, error) {
	var count int
	_, err := s.transact(func(st *model.ProjectState) error {
		phase := st.FindPhase(phaseID)
		if phase == nil {
			return fmt.Errorf("controlcenter: phase %q does not exist", phaseID)
		}
		phase.CIFixCycles++
		count = phase.CIFixCycles
		return nil
	})
	return count, err
}

// ReconcileInProgressTaskToTodo resets one task to TODO, but only if it is
// currently IN_PROGRESS; any other status is left untouched (spec.md §4.6
// reconcileInProgressTaskToTodo). Unlike ResetTaskToTodo this is safe to
// call against a task that may already be DONE/FAILED/CI_FIX -- e.g. a
// restart request racing the task's own completion.
func (s *Service) ReconcileInProgressTaskToTodo(phaseID, taskID string) (*model.Task, error) {
	var updated model.Task
	_, err := s.transact(func(st *model.ProjectState) error {
		phase := st.FindPhase(phaseID)
		if phase == nil {
			return fmt.Errorf("controlcenter: phase %q does not exist", phaseID)
		}
		task := phase.FindTask(taskID)
		if task == nil {
			return fmt.Errorf("controlcenter: task %q does not exist in phase %q", taskID, phaseID)
		}
		if task.Status != model.TaskInProgress {
			updated = *task
			return nil
		}
		task.Status = model.TaskTodo
		task.ResultContext = nil
		task.ErrorLogs = nil
		task.ErrorCategory = nil
		updated = *task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// ReconcileInProgressTasks resets every IN_PROGRESS task across all phases
// back to TODO, returning the count reset (spec.md §4.3 startup
// reconciliation, §4.6 reconcileInProgressTasks).
func (s *Service) ReconcileInProgressTasks() (int, error) {
	count := 0
	_, err := s.transact(func(st *model.ProjectState) error {
		for pi := range st.Phases {
			for ti := range st.Phases[pi].Tasks {
				task := &st.Phases[pi].Tasks[ti]
				if task.Status == model.TaskInProgress {
					task.Status = model.TaskTodo
					task.ResultContext = nil
					task.ErrorLogs = nil
					task.ErrorCategory = nil
					count++
				}
			}
		}
		return nil
	})
	return count, err
}

func (s *Service) publish(t eventbus.Type, routing eventbus.RoutingContext, payload map[string]any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.RuntimeEvent{
		Version:    1,
		EventID:    eventbus.NewEventID(),
		OccurredAt: time.Now().UTC(),
		Type:       t,
		Source:     eventbus.SourceWebAPI,
		Routing:    routing,
		Payload:    payload,
	})
}
