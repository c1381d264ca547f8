package phaserunner

import (
	"testing"

	"github.com/ixado/ixado/internal/config"
	"github.com/ixado/ixado/internal/controlcenter"
	"github.com/ixado/ixado/internal/eventbus"
	"github.com/ixado/ixado/internal/model"
	"github.com/ixado/ixado/internal/state"
)

func newTestRunnerForCIFix(t *testing.T, maxDepth int) (*Runner, *controlcenter.Service, *model.Phase, <-chan eventbus.RuntimeEvent) {
	t.Helper()
	dir := t.TempDir()
	store := state.New(dir)
	if _, err := store.Initialize("demo", dir); err != nil {
		t.Fatal(err)
	}
	bus := eventbus.NewBus()
	cc := controlcenter.New(store, bus)
	phase, err := cc.CreatePhase(controlcenter.CreatePhaseParams{Name: "p1", BranchName: "ixado/p1"})
	if err != nil {
		t.Fatal(err)
	}

	events, _, _ := bus.Subscribe()

	settings := config.Settings{CI: config.CIConfig{Enabled: true, CIFixMaxDepth: maxDepth}}
	r := New("demo", dir, store, cc, nil, bus, nil, settings, nil, nil)
	return r, cc, phase, events
}

func drainCIActivity(t *testing.T, events <-chan eventbus.RuntimeEvent) map[string]any {
	t.Helper()
	for ev := range events {
		if ev.Type == eventbus.TypeCIActivity {
			return ev.Payload
		}
	}
	t.Fatal("no ci.activity event published")
	return nil
}

func TestFanOutCIFixesIncrementsCycleCountAndPublishesFailed(t *testing.T) {
	r, cc, phase, events := newTestRunnerForCIFix(t, 3)

	if err := r.fanOutCIFixes(phase); err != nil {
		t.Fatalf("fanOutCIFixes: %v", err)
	}

	payload := drainCIActivity(t, events)
	if payload["stage"] != "failed" {
		t.Fatalf("stage = %v, want failed", payload["stage"])
	}
	if _, ok := payload["createdFixTaskCount"]; !ok {
		t.Fatal("expected createdFixTaskCount in payload")
	}

	st, err := cc.GetState()
	if err != nil {
		t.Fatal(err)
	}
	got := st.FindPhase(phase.ID)
	if got.CIFixCycles != 1 {
		t.Fatalf("CIFixCycles = %d, want 1", got.CIFixCycles)
	}
	if got.Status != model.PhaseCoding {
		t.Fatalf("phase status = %v, want CODING", got.Status)
	}
}

func TestFanOutCIFixesAbortsAfterMaxDepth(t *testing.T) {
	r, cc, phase, events := newTestRunnerForCIFix(t, 2)

	for i := 0; i < 2; i++ {
		if err := r.fanOutCIFixes(phase); err != nil {
			t.Fatalf("fanOutCIFixes round %d: %v", i, err)
		}
		drainCIActivity(t, events)
		st, err := cc.GetState()
		if err != nil {
			t.Fatal(err)
		}
		phase = st.FindPhase(phase.ID)
		failureKind := model.FailureRemoteCI
		if err := cc.SetPhaseStatus(phase.ID, model.PhaseCIFailed, &failureKind); err != nil {
			t.Fatal(err)
		}
		st, err = cc.GetState()
		if err != nil {
			t.Fatal(err)
		}
		phase = st.FindPhase(phase.ID)
	}

	if err := r.fanOutCIFixes(phase); err != nil {
		t.Fatalf("fanOutCIFixes abort round: %v", err)
	}
	payload := drainCIActivity(t, events)
	if payload["stage"] != "validation-max-retries" {
		t.Fatalf("stage = %v, want validation-max-retries", payload["stage"])
	}
	if payload["depth"] != 3 {
		t.Fatalf("depth = %v, want 3", payload["depth"])
	}
	if payload["ciFixMaxDepth"] != 2 {
		t.Fatalf("ciFixMaxDepth = %v, want 2", payload["ciFixMaxDepth"])
	}

	st, err := cc.GetState()
	if err != nil {
		t.Fatal(err)
	}
	got := st.FindPhase(phase.ID)
	if got.FailureKind == nil || *got.FailureKind != model.FailureValidationMaxRetries {
		t.Fatalf("failureKind = %v, want VALIDATION_MAX_RETRIES", got.FailureKind)
	}
	if got.Status != model.PhaseCIFailed {
		t.Fatalf("phase status = %v, want CI_FAILED", got.Status)
	}

	// Further calls are idempotent no-ops: no new tasks, no status churn.
	cyclesBefore := got.CIFixCycles
	if err := r.fanOutCIFixes(got); err != nil {
		t.Fatalf("fanOutCIFixes repeated abort: %v", err)
	}
	st, err = cc.GetState()
	if err != nil {
		t.Fatal(err)
	}
	got = st.FindPhase(phase.ID)
	if got.CIFixCycles != cyclesBefore {
		t.Fatalf("CIFixCycles changed on repeated abort: %d -> %d", cyclesBefore, got.CIFixCycles)
	}
}
