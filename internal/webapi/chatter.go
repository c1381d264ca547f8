package webapi

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ixado/ixado/internal/eventbus"
)

// chatterVerb matches the tool-call-shaped lines a coding CLI narrates
// constantly (spec.md §4.7 "File-interaction chatter filter"): a verb
// followed by a path or an opening paren, or a bare path-looking line.
var chatterVerb = regexp.MustCompile(`(?i)^\s*(Read|Write|Edit|List|Bash|Grep|Glob|Create|Delete|Run)\b.*[(/]`)

var barePath = regexp.MustCompile(`^\s*(\.{0,2}/|[\w.-]+/)[\w./-]+\s*$`)

// terminalKeyword matches the same vocabulary failureSummary extracts from
// (spec.md §4.7 "Failure summary"), reused here so a chatter-shaped line
// that also reports a failure is never suppressed.
var terminalKeyword = regexp.MustCompile(`(?i)error|failed|exception|timeout|exit code|unauthorized|denied`)

const ixadoPrefix = "[ixado]["

// isChatter reports whether line is low-signal file-interaction narration
// that should be suppressed from a live log stream.
func isChatter(line string) bool {
	return chatterVerb.MatchString(line) || barePath.MatchString(line)
}

// suppressLine applies the full chatter-filter invariant (spec.md §8
// property 7): chatter is suppressed unless it contains a terminal keyword
// or starts with the literal system marker prefix.
func suppressLine(line string) bool {
	if strings.HasPrefix(line, ixadoPrefix) {
		return false
	}
	if terminalKeyword.MatchString(line) {
		return false
	}
	return isChatter(line)
}

// failureSummary picks the first line matching terminalKeyword out of log,
// compacts whitespace, and truncates to 140 chars with a "..." suffix when
// cut (spec.md §4.7 "Failure summary").
func failureSummary(log string) string {
	for _, line := range strings.Split(log, "\n") {
		if !terminalKeyword.MatchString(line) {
			continue
		}
		compact := strings.Join(strings.Fields(line), " ")
		if len(compact) > 140 {
			compact = compact[:140] + "..."
		}
		return compact
	}
	return ""
}

// shouldSuppress applies the chatter filter to an adapter.output event's raw
// line (other event types are never chatter-filtered).
func shouldSuppress(ev eventbus.RuntimeEvent) bool {
	if ev.Type != eventbus.TypeAdapterOutput {
		return false
	}
	line, _ := ev.Payload["line"].(string)
	return suppressLine(line)
}

func recoveryLinks(phaseID, taskID string, attemptCount int) []string {
	if phaseID == "" || taskID == "" {
		return nil
	}
	links := []string{fmt.Sprintf("#phase/%s/task/%s", phaseID, taskID)}
	for i := 1; i <= attemptCount; i++ {
		links = append(links, fmt.Sprintf("#phase/%s/task/%s/recovery/%d", phaseID, taskID, i))
	}
	return links
}
