package phaserunner

import "github.com/ixado/ixado/internal/model"

// SelectNextTask applies spec.md §4.3's task selection rules: only TODO/CI_FIX
// tasks are candidates, all dependencies must be DONE, ties break by
// sequence position. Returns nil if no candidate exists.
func SelectNextTask(phase *model.Phase) *model.Task {
	for i := range phase.Tasks {
		t := &phase.Tasks[i]
		if t.Status != model.TaskTodo && t.Status != model.TaskCIFix {
			continue
		}
		if dependenciesSatisfied(phase, t.Dependencies) {
			return t
		}
	}
	return nil
}

func dependenciesSatisfied(phase *model.Phase, deps []string) bool {
	for _, dep := range deps {
		d := phase.FindTask(dep)
		if d == nil || d.Status != model.TaskDone {
			return false
		}
	}
	return true
}

// AllTasksDone reports whether every task in phase is DONE (spec.md §4.3:
// "If no candidate exists and all tasks are DONE, the phase advances").
func AllTasksDone(phase *model.Phase) bool {
	if len(phase.Tasks) == 0 {
		return true
	}
	for _, t := range phase.Tasks {
		if t.Status != model.TaskDone {
			return false
		}
	}
	return true
}
