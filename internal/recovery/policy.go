package recovery

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ixado/ixado/internal/model"
)

// DefaultMaxAttempts is exceptionRecovery.maxAttempts's default (spec.md
// §4.4). NewPolicy clamps the configured value to [0, MaxAttemptsCeiling].
const (
	DefaultMaxAttempts  = 1
	MaxAttemptsCeiling  = 10
)

// ClampMaxAttempts bounds a configured maxAttempts value to [0, 10].
func ClampMaxAttempts(v int) int {
	if v < 0 {
		return 0
	}
	if v > MaxAttemptsCeiling {
		return MaxAttemptsCeiling
	}
	return v
}

// GitRemediator performs the category-specific git remediation for
// DIRTY_WORKTREE (stage+commit residuals) and MISSING_COMMIT (commit staged
// changes). Implemented by internal/gitops.
type GitRemediator interface {
	StageAndCommitResiduals(cwd, message string) (committed bool, filesTouched []string, err error)
	CommitStaged(cwd, message string) (committed bool, filesTouched []string, err error)
}

// AgentRespawner re-spawns the same adapter once for AGENT_FAILURE.
// Implemented by phaserunner.AdapterRespawner.
type AgentRespawner interface {
	Respawn(task model.Task) error
}

// Policy applies the Exception Recovery algorithm against one failed task.
type Policy struct {
	MaxAttempts int
	Git         GitRemediator
	Agents      AgentRespawner
}

// NewPolicy returns a Policy with maxAttempts clamped to [0, 10].
func NewPolicy(maxAttempts int, git GitRemediator, agents AgentRespawner) *Policy {
	return &Policy{MaxAttempts: ClampMaxAttempts(maxAttempts), Git: git, Agents: agents}
}

// Attempt classifies task's failure, performs one remediation attempt if
// attempts remain, and returns the RecoveryAttemptRecord to append to
// task.recoveryAttempts (and, for phase-level failures, phase.recoveryAttempts).
//
// attemptsSoFar is len(task.RecoveryAttempts) before this call; Attempt
// itself never exceeds p.MaxAttempts, returning an unfixable result with no
// remediation performed once the cap is reached.
func (p *Policy) Attempt(cwd string, task model.Task, phaseFailureKind *model.FailureKind, attemptsSoFar int) model.RecoveryAttemptRecord {
	category := Classify(derefErrorLogs(task), phaseFailureKind)
	info := model.ExceptionInfo{
		Category: category,
		Message:  derefErrorLogs(task),
		TaskID:   task.ID,
	}

	if attemptsSoFar >= p.MaxAttempts {
		return record(info, attemptsSoFar+1, model.RecoveryResult{
			Status:    model.RecoveryUnfixable,
			Reasoning: fmt.Sprintf("recovery attempts exhausted (%d/%d)", attemptsSoFar, p.MaxAttempts),
		})
	}

	result := p.remediate(cwd, task, category)
	return record(info, attemptsSoFar+1, result)
}

func (p *Policy) remediate(cwd string, task model.Task, category model.ExceptionCategory) model.RecoveryResult {
	switch category {
	case model.ExceptionDirtyWorktree:
		if p.Git == nil {
			return unfixable("no git remediator configured")
		}
		committed, files, err := p.Git.StageAndCommitResiduals(cwd, fmt.Sprintf("recover: stage residuals for %s", task.Title))
		if err != nil {
			return unfixable(err.Error())
		}
		if !committed {
			return unfixable("no residual changes to stage")
		}
		return model.RecoveryResult{
			Status:       model.RecoveryFixed,
			Reasoning:    "staged and committed residual worktree changes",
			ActionsTaken: []string{"git add --all", "git commit"},
			FilesTouched: files,
		}

	case model.ExceptionMissingCommit:
		if p.Git == nil {
			return unfixable("no git remediator configured")
		}
		committed, files, err := p.Git.CommitStaged(cwd, fmt.Sprintf("recover: commit staged changes for %s", task.Title))
		if err != nil {
			return unfixable(err.Error())
		}
		if !committed {
			return unfixable("no staged changes to commit")
		}
		return model.RecoveryResult{
			Status:       model.RecoveryFixed,
			Reasoning:    "committed previously staged changes",
			ActionsTaken: []string{"git commit"},
			FilesTouched: files,
		}

	case model.ExceptionAgentFailure:
		if p.Agents == nil {
			return unfixable("no agent respawner configured")
		}
		if err := p.Agents.Respawn(task); err != nil {
			return unfixable(err.Error())
		}
		return model.RecoveryResult{
			Status:       model.RecoveryFixed,
			Reasoning:    "re-spawned the assigned adapter",
			ActionsTaken: []string{"respawn"},
		}

	default:
		return unfixable("failure category is not remediable")
	}
}

func unfixable(reason string) model.RecoveryResult {
	return model.RecoveryResult{Status: model.RecoveryUnfixable, Reasoning: reason}
}

func record(info model.ExceptionInfo, attemptNumber int, result model.RecoveryResult) model.RecoveryAttemptRecord {
	return model.RecoveryAttemptRecord{
		ID:            uuid.NewString(),
		OccurredAt:    time.Now().UTC(),
		AttemptNumber: attemptNumber,
		Exception:     info,
		Result:        result,
	}
}

func derefErrorLogs(task model.Task) string {
	if task.ErrorLogs == nil {
		return ""
	}
	return *task.ErrorLogs
}
