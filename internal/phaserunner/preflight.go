// Package phaserunner implements the Execution Loop / Phase Runner
// (spec.md §4.3): the single-writer state machine that selects the next
// task, dispatches it to an adapter, observes the outcome, invokes
// recovery, and advances the phase through its GitOps/CI lifecycle.
package phaserunner

import (
	"fmt"

	"github.com/ixado/ixado/internal/gitops"
	"github.com/ixado/ixado/internal/model"
	"github.com/ixado/ixado/internal/state"
)

// PreflightError reports an unmet phase/environment precondition (spec.md
// §7 "Preflight" error kind). Fatal to the current operation, non-fatal to
// the daemon.
type PreflightError struct {
	Message string
}

func (e *PreflightError) Error() string { return "preflight: " + e.Message }

// RunPreflight checks the active phase is dispatch-ready (spec.md §4.3
// "Preflight"): it exists, is non-terminal, and names a branch. needsBranch
// is true whenever HEAD is not on that branch; whether the branch already
// exists is not checked, and preflight does not fail in that case.
func RunPreflight(st *model.ProjectState, repo *gitops.Repo) (phase *model.Phase, needsBranch bool, err error) {
	phase, rerr := state.ResolveActivePhaseStrict(st)
	if rerr != nil {
		return nil, false, &PreflightError{Message: rerr.Error()}
	}
	if phase.Status == model.PhaseDone {
		return nil, false, &PreflightError{Message: fmt.Sprintf("phase %q is DONE", phase.ID)}
	}
	if phase.BranchName == "" {
		return nil, false, &PreflightError{Message: fmt.Sprintf("phase %q has no branchName", phase.ID)}
	}

	current, cerr := repo.CurrentBranch()
	if cerr != nil {
		return nil, false, &PreflightError{Message: "could not determine current git branch: " + cerr.Error()}
	}
	if current == phase.BranchName {
		return phase, false, nil
	}
	return phase, true, nil
}
