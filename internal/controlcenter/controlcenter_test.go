package controlcenter

import (
	"testing"

	"github.com/ixado/ixado/internal/eventbus"
	"github.com/ixado/ixado/internal/model"
	"github.com/ixado/ixado/internal/state"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	dir := t.TempDir()
	store := state.New(dir)
	if _, err := store.Initialize("demo", dir); err != nil {
		t.Fatal(err)
	}
	return New(store, eventbus.NewBus())
}

func TestCreatePhaseAndTask(t *testing.T) {
	s := newTestService(t)
	phase, err := s.CreatePhase(CreatePhaseParams{Name: "phase-1", BranchName: "feature/x"})
	if err != nil {
		t.Fatal(err)
	}
	task, err := s.CreateTask(CreateTaskParams{PhaseID: phase.ID, Title: "do thing", Assignee: model.AssigneeCodex})
	if err != nil {
		t.Fatal(err)
	}
	if task.Status != model.TaskTodo {
		t.Fatalf("new task status = %v", task.Status)
	}

	st, err := s.GetState()
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Phases) != 1 || len(st.Phases[0].Tasks) != 1 {
		t.Fatalf("state = %+v", st)
	}
}

func TestStartTaskThenFailTaskIfInProgress(t *testing.T) {
	s := newTestService(t)
	phase, _ := s.CreatePhase(CreatePhaseParams{Name: "p", BranchName: "b"})
	task, _ := s.CreateTask(CreateTaskParams{PhaseID: phase.ID, Title: "t"})

	if _, err := s.StartTask(phase.ID, task.ID); err != nil {
		t.Fatal(err)
	}
	failed, err := s.FailTaskIfInProgress(phase.ID, task.ID, "boom", model.ExceptionUnknown)
	if err != nil {
		t.Fatal(err)
	}
	if failed == nil || failed.Status != model.TaskFailed {
		t.Fatalf("expected FAILED, got %+v", failed)
	}

	// Second call is a no-op since the task is no longer IN_PROGRESS.
	noop, err := s.FailTaskIfInProgress(phase.ID, task.ID, "boom again", model.ExceptionUnknown)
	if err != nil {
		t.Fatal(err)
	}
	if noop != nil {
		t.Fatalf("expected no-op, got %+v", noop)
	}
}

func TestReconcileInProgressTasks(t *testing.T) {
	s := newTestService(t)
	phase, _ := s.CreatePhase(CreatePhaseParams{Name: "p", BranchName: "b"})
	t1, _ := s.CreateTask(CreateTaskParams{PhaseID: phase.ID, Title: "t1"})
	t2, _ := s.CreateTask(CreateTaskParams{PhaseID: phase.ID, Title: "t2"})
	if _, err := s.StartTask(phase.ID, t1.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.StartTask(phase.ID, t2.ID); err != nil {
		t.Fatal(err)
	}

	count, err := s.ReconcileInProgressTasks()
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("expected 2 reconciled, got %d", count)
	}
}
