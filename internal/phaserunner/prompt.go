package phaserunner

import (
	"fmt"
	"strings"

	"github.com/ixado/ixado/internal/model"
)

// MissingDiffError is returned when a REVIEWER dispatch has no non-empty
// git-diff context (spec.md §4.3: "the reviewer archetype requires a
// non-empty git-diff context and fails the dispatch if absent").
type MissingDiffError struct{ TaskID string }

func (e *MissingDiffError) Error() string {
	return fmt.Sprintf("task %s: reviewer archetype requires a non-empty git diff", e.TaskID)
}

var archetypePrefixes = map[Archetype]string{
	ArchetypeCoder:    "You are the CODER. Implement the task below, committing your work as you go.",
	ArchetypeTester:   "You are the TESTER. Write and run tests for the task below; do not modify production code beyond what's needed to make tests pass.",
	ArchetypeReviewer: "You are the REVIEWER. Evaluate the diff below against the task description and report defects.",
	ArchetypeFixer:    "You are the FIXER. The CI run below failed; address the reported failures without changing unrelated code.",
}

// ComposePrompt builds the prompt sent to an adapter for task, given its
// archetype. gitDiff is required (non-empty) for the REVIEWER archetype.
func ComposePrompt(task model.Task, archetype Archetype, gitDiff string) (string, error) {
	if archetype == ArchetypeReviewer && strings.TrimSpace(gitDiff) == "" {
		return "", &MissingDiffError{TaskID: task.ID}
	}

	var b strings.Builder
	b.WriteString(archetypePrefixes[archetype])
	b.WriteString("\n\nTask: ")
	b.WriteString(task.Title)
	if task.Description != "" {
		b.WriteString("\n\n")
		b.WriteString(task.Description)
	}
	if archetype == ArchetypeReviewer {
		b.WriteString("\n\nDiff:\n")
		b.WriteString(gitDiff)
	}
	return b.String(), nil
}
