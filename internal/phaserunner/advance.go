package phaserunner

import (
	"context"
	"fmt"

	"github.com/ixado/ixado/internal/ciintegration"
	"github.com/ixado/ixado/internal/controlcenter"
	"github.com/ixado/ixado/internal/eventbus"
	"github.com/ixado/ixado/internal/model"
)

// advance drives a phase whose tasks are all DONE through its GitOps/CI
// lifecycle (spec.md §4.3): CODING -> CREATING_PR -> AWAITING_CI ->
// READY_FOR_REVIEW/CI_FAILED, with CI_FAILED fanning out bounded CI_FIX
// tasks rather than failing the phase outright.
func (r *Runner) advance(_ context.Context, phase *model.Phase) error {
	switch phase.Status {
	case model.PhaseCoding:
		return r.createPR(phase)
	case model.PhaseCreatingPR:
		return r.cc.SetPhaseStatus(phase.ID, model.PhaseAwaitingCI, nil)
	case model.PhaseAwaitingCI:
		return r.pollCI(phase)
	case model.PhaseCIFailed:
		return r.fanOutCIFixes(phase)
	default:
		return nil
	}
}

func (r *Runner) createPR(phase *model.Phase) error {
	if !r.settings.CI.Enabled {
		return r.cc.SetPhaseStatus(phase.ID, model.PhaseReadyForReview, nil)
	}
	if err := r.repo.PushBranch(phase.BranchName); err != nil {
		return fmt.Errorf("phaserunner: pushing branch %q: %w", phase.BranchName, err)
	}
	url, err := ciintegration.OpenPR(r.rootDir, phase.BranchName, phase.Name, "Opened by ixado.")
	if err != nil {
		return fmt.Errorf("phaserunner: opening PR for %q: %w", phase.BranchName, err)
	}
	if err := r.cc.SetPhasePrUrl(phase.ID, url); err != nil {
		return err
	}
	r.publish(eventbus.TypePRActivity, phase, nil, map[string]any{"stage": "opened", "url": url})
	return r.cc.SetPhaseStatus(phase.ID, model.PhaseCreatingPR, nil)
}

func (r *Runner) pollCI(phase *model.Phase) error {
	tracker, ok := r.trackers[phase.ID]
	if !ok {
		tracker = ciintegration.NewStabilityTracker(ciintegration.DefaultTerminalObservations)
		r.trackers[phase.ID] = tracker
	}

	status, err := ciintegration.PollRun(r.rootDir, phase.BranchName)
	if err != nil {
		return fmt.Errorf("phaserunner: polling CI for %q: %w", phase.BranchName, err)
	}
	r.publish(eventbus.TypeCIActivity, phase, nil, map[string]any{"stage": "poll", "status": status})

	terminal, stable := tracker.Observe(status)
	if !stable {
		return nil
	}
	delete(r.trackers, phase.ID)

	switch terminal {
	case ciintegration.CISuccess:
		return r.cc.SetPhaseStatus(phase.ID, model.PhaseReadyForReview, nil)
	default:
		failureKind := model.FailureRemoteCI
		return r.cc.SetPhaseStatus(phase.ID, model.PhaseCIFailed, &failureKind)
	}
}

// fanOutCIFixes fans a CI_FAILED phase out into bounded CI_FIX tasks, or
// aborts the cycle once its CI_FAILED -> CI_FIX -> CODING round trips exceed
// ciFixMaxDepth (spec.md §4.3).
func (r *Runner) fanOutCIFixes(phase *model.Phase) error {
	if phase.FailureKind != nil && *phase.FailureKind == model.FailureValidationMaxRetries {
		return nil
	}

	maxDepth := r.settings.CI.CIFixMaxDepth
	if maxDepth <= 0 {
		maxDepth = ciintegration.DefaultCIFixMaxDepth
	}
	maxDepth = ciintegration.ClampDepth(maxDepth)
	depth := phase.CIFixCycles + 1
	if depth > maxDepth {
		r.publish(eventbus.TypeCIActivity, phase, nil, map[string]any{
			"stage":         "validation-max-retries",
			"depth":         depth,
			"ciFixMaxDepth": maxDepth,
		})
		aborted := model.FailureValidationMaxRetries
		return r.cc.SetPhaseStatus(phase.ID, model.PhaseCIFailed, &aborted)
	}

	raw, err := r.ciFailureLog(phase)
	if err != nil {
		return err
	}
	items := ciintegration.ParseFailures(raw)
	fanOutMax := r.settings.CI.CIFixMaxFanOut
	if fanOutMax <= 0 {
		fanOutMax = ciintegration.DefaultCIFixMaxFanOut
	}
	kept, dropped := ciintegration.FanOut(items, fanOutMax)
	if dropped > 0 {
		r.publish(eventbus.TypeCIActivity, phase, nil, map[string]any{"stage": "fanout-capped", "dropped": dropped})
	}

	for _, item := range kept {
		if _, err := r.cc.CreateTask(controlcenter.CreateTaskParams{
			PhaseID:     phase.ID,
			Title:       item.Summary,
			Description: item.Detail,
			Assignee:    model.AssigneeUnassigned,
			Status:      model.TaskCIFix,
		}); err != nil {
			return err
		}
	}

	if _, err := r.cc.IncrementCIFixCycles(phase.ID); err != nil {
		return err
	}
	r.publish(eventbus.TypeCIActivity, phase, nil, map[string]any{
		"stage":               "failed",
		"createdFixTaskCount": len(kept),
	})

	return r.cc.SetPhaseStatus(phase.ID, model.PhaseCoding, nil)
}

// ciFailureLog returns the raw failure text ParseFailures scans. A full
// deployment pipes this from `gh run view --log-failed`; here the phase's
// last recorded CI status context stands in when a richer log isn't wired.
func (r *Runner) ciFailureLog(phase *model.Phase) (string, error) {
	if phase.CIStatusContext != nil {
		return *phase.CIStatusContext, nil
	}
	return "CI run failed: no additional log context recorded", nil
}
