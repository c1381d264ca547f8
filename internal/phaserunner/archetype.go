package phaserunner

import "strings"

// Archetype determines the system-prompt prefix composed for a task
// (spec.md §4.3 Dispatch, glossary "Task archetype"). The persisted data
// model (spec.md §3) does not carry an explicit archetype field, so it is
// derived: a CI_FIX task is always FIXER; otherwise the task title is
// scanned for an explicit "[tester]"/"[reviewer]" marker, falling back to
// CODER. This mirrors how the teacher derives a node's effective role from
// its graph attributes rather than a dedicated enum field.
type Archetype string

const (
	ArchetypeCoder    Archetype = "CODER"
	ArchetypeTester   Archetype = "TESTER"
	ArchetypeReviewer Archetype = "REVIEWER"
	ArchetypeFixer    Archetype = "FIXER"
)

func archetypeFor(taskStatus string, title string) Archetype {
	if taskStatus == "CI_FIX" {
		return ArchetypeFixer
	}
	lower := strings.ToLower(title)
	switch {
	case strings.Contains(lower, "[tester]"):
		return ArchetypeTester
	case strings.Contains(lower, "[reviewer]"):
		return ArchetypeReviewer
	default:
		return ArchetypeCoder
	}
}
