// Package recovery implements the Exception Recovery policy (spec.md §4.4):
// classification of a failed task into a recovery category, capped
// category-specific remediation, and strict recording of every attempt.
package recovery

import (
	"strings"

	"github.com/ixado/ixado/internal/model"
)

// classification heuristics mirror the teacher's string-matching fallback in
// classifyAPIError/classifyProviderCLIError: a small ordered list of
// substring hints, checked against the combined error text, before falling
// back to UNKNOWN.
var (
	dirtyWorktreeHints = []string{
		"worktree is dirty",
		"uncommitted changes",
		"changes not staged",
		"nothing to commit, working tree clean", // git's own "clean" message, treated as non-dirty below
	}
	missingCommitHints = []string{
		"no commits",
		"nothing to push",
		"branch is up to date",
		"missing commit",
	}
)

// Classify inspects a task's failure text and the phase's failure kind (if
// any) and returns the ExceptionCategory driving remediation.
func Classify(errorLogs string, failureKind *model.FailureKind) model.ExceptionCategory {
	reason := strings.ToLower(strings.TrimSpace(errorLogs))

	if containsAny(reason, dirtyWorktreeHints) && !strings.Contains(reason, "working tree clean") {
		return model.ExceptionDirtyWorktree
	}
	if containsAny(reason, missingCommitHints) {
		return model.ExceptionMissingCommit
	}
	if failureKind != nil && *failureKind == model.FailureAgent {
		return model.ExceptionAgentFailure
	}
	if reason == "" {
		return model.ExceptionUnknown
	}
	return model.ExceptionAgentFailure
}

func containsAny(s string, hints []string) bool {
	for _, h := range hints {
		if strings.Contains(s, h) {
			return true
		}
	}
	return false
}
