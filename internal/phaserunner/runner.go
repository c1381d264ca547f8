package phaserunner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ixado/ixado/internal/ciintegration"
	"github.com/ixado/ixado/internal/config"
	"github.com/ixado/ixado/internal/controlcenter"
	"github.com/ixado/ixado/internal/eventbus"
	"github.com/ixado/ixado/internal/gitops"
	"github.com/ixado/ixado/internal/model"
	"github.com/ixado/ixado/internal/recovery"
	"github.com/ixado/ixado/internal/state"
	"github.com/ixado/ixado/internal/supervisor"
	"github.com/ixado/ixado/internal/telemetry"
)

var tracer = telemetry.Tracer("ixado/phaserunner")

// Runner is the single-writer control loop for one project (spec.md §4.3).
// Each project owns its own Runner; multiple Runners proceed independently.
type Runner struct {
	projectName string
	rootDir     string
	store       *state.Store
	cc          *controlcenter.Service
	sup         *supervisor.Supervisor
	bus         *eventbus.Bus
	repo        *gitops.Repo
	settings    config.Settings
	policy      *recovery.Policy

	mu       sync.Mutex
	stopping bool
	trackers map[string]*ciintegration.StabilityTracker

	isDead func(model.AgentRecord) bool
}

// New wires a Runner from its collaborators. isDead decides whether a
// RUNNING registry row found at startup belongs to a crashed process
// (production wiring passes registry.IsDead; nil defaults to "always dead",
// matching a controller that never survives its own restart).
func New(projectName, rootDir string, store *state.Store, cc *controlcenter.Service, sup *supervisor.Supervisor, bus *eventbus.Bus, repo *gitops.Repo, settings config.Settings, policy *recovery.Policy, isDead func(model.AgentRecord) bool) *Runner {
	if isDead == nil {
		isDead = func(model.AgentRecord) bool { return true }
	}
	return &Runner{
		projectName: projectName,
		rootDir:     rootDir,
		store:       store,
		cc:          cc,
		sup:         sup,
		bus:         bus,
		repo:        repo,
		settings:    settings,
		policy:      policy,
		trackers:    make(map[string]*ciintegration.StabilityTracker),
		isDead:      isDead,
	}
}

// ReconcileOnStartup clears stale RUNNING registry rows and IN_PROGRESS
// tasks left by a crashed controller (spec.md §4.3 "Startup reconciliation").
func (r *Runner) ReconcileOnStartup() (agentsReconciled, tasksReconciled int, err error) {
	agentsReconciled, err = r.sup.ReconcileRunningWhere(r.isDead)
	if err != nil {
		return 0, 0, err
	}
	tasksReconciled, err = r.cc.ReconcileInProgressTasks()
	return agentsReconciled, tasksReconciled, err
}

// Stop sets the runner's stopping flag, resets the task to TODO, and clears
// its diagnostic fields (spec.md §4.3 "Cancellation"). It does not kill an
// in-flight adapter process, and nothing else in the runner reads the
// stopping flag.
func (r *Runner) Stop(phaseID, taskID string) error {
	r.mu.Lock()
	r.stopping = true
	r.mu.Unlock()
	_, err := r.cc.ResetTaskToTodo(phaseID, taskID)
	return err
}

// Step runs one iteration of the state machine: preflight, task selection,
// dispatch, outcome handling, and phase-advance.
func (r *Runner) Step(ctx context.Context) error {
	st, err := r.store.Read()
	if err != nil {
		return err
	}

	phase, needsBranch, err := RunPreflight(st, r.repo)
	if err != nil {
		return err
	}

	if needsBranch {
		return r.branch(phase)
	}

	if task := SelectNextTask(phase); task != nil {
		return r.dispatch(ctx, phase, task)
	}

	if AllTasksDone(phase) {
		return r.advance(ctx, phase)
	}

	return nil
}

func (r *Runner) branch(phase *model.Phase) error {
	if err := r.repo.Checkout(phase.BranchName); err != nil {
		return fmt.Errorf("phaserunner: branching to %q: %w", phase.BranchName, err)
	}
	return r.cc.SetPhaseStatus(phase.ID, model.PhaseBranching, nil)
}

func (r *Runner) dispatch(ctx context.Context, phase *model.Phase, task *model.Task) (err error) {
	ctx, span := tracer.Start(ctx, "dispatch",
		trace.WithAttributes(
			attribute.String("ixado.phase_id", phase.ID),
			attribute.String("ixado.task_id", task.ID),
			attribute.String("ixado.assignee", string(task.Assignee)),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if _, err := r.cc.StartTask(phase.ID, task.ID); err != nil {
		return err
	}

	archetype := archetypeFor(string(task.Status), task.Title)
	var diff string
	if archetype == ArchetypeReviewer {
		files, err := r.repo.DiffCachedNameOnly()
		if err == nil && len(files) > 0 {
			diff = fmt.Sprintf("changed files: %v", files)
		}
	}
	prompt, err := ComposePrompt(*task, archetype, diff)
	if err != nil {
		_, ferr := r.cc.FailTaskIfInProgress(phase.ID, task.ID, err.Error(), model.ExceptionUnknown)
		if ferr != nil {
			return ferr
		}
		return err
	}

	adapterCfg, assignee := r.adapterFor(task.Assignee)
	phaseID, taskID := phase.ID, task.ID
	result, runErr := r.sup.RunToCompletion(ctx, supervisor.Spec{
		Name:                 task.Title,
		Command:              adapterCfg.Command,
		Args:                 append(append([]string{}, adapterCfg.Args...), prompt),
		Cwd:                  r.rootDir,
		AdapterID:            assignee,
		ProjectName:          &r.projectName,
		PhaseID:              &phaseID,
		TaskID:               &taskID,
		ApprovedAdapterSpawn: true,
		TimeoutMs:            adapterCfg.TimeoutMs,
		StartupSilenceMs:     adapterCfg.StartupSilenceMs,
		IdleThreshold:        time.Duration(adapterCfg.IdleThresholdMs) * time.Millisecond,
	})
	if runErr != nil {
		return r.onTaskFailure(phase, task, runErr.Error())
	}
	if result.ExitCode != 0 {
		return r.onTaskFailure(phase, task, result.Stderr)
	}

	truncated := model.TruncateCaptured(result.Stdout)
	done := model.TaskDone
	_, err = r.cc.UpdateTask(controlcenter.UpdateTaskParams{
		PhaseID:       phase.ID,
		TaskID:        task.ID,
		Status:        &done,
		ResultContext: &truncated,
	})
	if err != nil {
		return err
	}
	r.publish(eventbus.TypeTaskFinish, phase, task, map[string]any{"status": done, "message": "completed"})
	return nil
}

func (r *Runner) onTaskFailure(phase *model.Phase, task *model.Task, rawLog string) error {
	truncated := model.TruncateCaptured(rawLog)
	failed, err := r.cc.FailTaskIfInProgress(phase.ID, task.ID, truncated, recovery.Classify(truncated, phase.FailureKind))
	if err != nil {
		return err
	}
	if failed == nil {
		return nil
	}
	r.publish(eventbus.TypeTaskFinish, phase, task, map[string]any{"status": failed.Status, "message": "failed"})

	attempt := r.policy.Attempt(r.rootDir, *failed, phase.FailureKind, len(failed.RecoveryAttempts))
	if _, err := r.cc.AppendTaskRecoveryAttempt(phase.ID, task.ID, attempt); err != nil {
		return err
	}
	r.publish(eventbus.TypeRecoveryActivity, phase, task, map[string]any{
		"stage":         attempt.Result.Status,
		"summary":       attempt.Result.Reasoning,
		"attemptNumber": attempt.AttemptNumber,
		"category":      attempt.Exception.Category,
	})

	if attempt.Result.Status == model.RecoveryFixed {
		todo := model.TaskTodo
		_, err := r.cc.UpdateTask(controlcenter.UpdateTaskParams{PhaseID: phase.ID, TaskID: task.ID, Status: &todo})
		return err
	}
	return nil
}

func (r *Runner) adapterFor(assignee model.Assignee) (config.AdapterConfig, *model.AdapterID) {
	key, id := adapterKey(assignee)
	cfg, ok := r.settings.Adapters[key]
	if !ok {
		cfg = config.AdapterConfig{Command: key}
	}
	return cfg, id
}

func adapterKey(assignee model.Assignee) (string, *model.AdapterID) {
	switch assignee {
	case model.AssigneeCodex:
		id := model.AdapterCodex
		return "codex", &id
	case model.AssigneeClaude:
		id := model.AdapterClaude
		return "claude", &id
	case model.AssigneeGemini:
		id := model.AdapterGemini
		return "gemini", &id
	default:
		id := model.AdapterMock
		return "mock", &id
	}
}

func (r *Runner) publish(t eventbus.Type, phase *model.Phase, task *model.Task, payload map[string]any) {
	if r.bus == nil {
		return
	}
	routing := eventbus.RoutingContext{ProjectName: r.projectName, PhaseID: phase.ID, PhaseName: phase.Name}
	if task != nil {
		routing.TaskID = task.ID
		routing.TaskTitle = task.Title
	}
	r.bus.Publish(eventbus.RuntimeEvent{
		Version:    1,
		EventID:    eventbus.NewEventID(),
		OccurredAt: time.Now().UTC(),
		Type:       t,
		Source:     eventbus.SourcePhaseRunner,
		Routing:    routing,
		Payload:    payload,
	})
}
