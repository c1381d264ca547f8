package ciintegration

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// CommandError wraps a failed gh invocation.
type CommandError struct {
	Bin  string
	Args []string
	Err  error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Bin, strings.Join(e.Args, " "), e.Err)
}

// DefaultCIFixMaxFanOut / DefaultCIFixMaxDepth are spec.md §4.3's defaults;
// both are configurable but bounded (fanout <= 50, depth <= 10).
const (
	DefaultCIFixMaxFanOut = 10
	MaxCIFixMaxFanOut     = 50
	DefaultCIFixMaxDepth  = 3
	MaxCIFixMaxDepth      = 10

	// DefaultTerminalObservations is the number of identical consecutive CI
	// readings required before treating a status as terminal (spec.md §4.3,
	// §5: "guard against flapping").
	DefaultTerminalObservations = 2
)

// ClampFanOut bounds a configured ciFixMaxFanOut to [0, 50].
func ClampFanOut(v int) int {
	if v < 0 {
		return 0
	}
	if v > MaxCIFixMaxFanOut {
		return MaxCIFixMaxFanOut
	}
	return v
}

// ClampDepth bounds a configured ciFixMaxDepth to [0, 10].
func ClampDepth(v int) int {
	if v < 0 {
		return 0
	}
	if v > MaxCIFixMaxDepth {
		return MaxCIFixMaxDepth
	}
	return v
}

// OpenPR creates a pull request for branch via `gh pr create`, returning its
// URL. title/body are passed through verbatim.
func OpenPR(dir, branch, title, body string) (url string, err error) {
	cmd := exec.Command("gh", "pr", "create", "--head", branch, "--title", title, "--body", body)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", &CommandError{Bin: "gh", Args: cmd.Args[1:], Err: err}
	}
	return strings.TrimSpace(lastLine(string(out))), nil
}

type prView struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
}

// PRNumberForBranch resolves branch's open PR number via `gh pr view`.
func PRNumberForBranch(dir, branch string) (int, error) {
	cmd := exec.Command("gh", "pr", "view", branch, "--json", "number,url")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return 0, &CommandError{Bin: "gh", Args: cmd.Args[1:], Err: err}
	}
	var v prView
	if err := json.Unmarshal(out, &v); err != nil {
		return 0, err
	}
	return v.Number, nil
}

// CIStatus is one observed reading of a PR's check-run status.
type CIStatus string

const (
	CIPending CIStatus = "pending"
	CISuccess CIStatus = "success"
	CIFailure CIStatus = "failure"
)

// PollRun calls `gh run list` scoped to branch and returns the most recent
// run's conclusion, mapped into CIStatus.
func PollRun(dir, branch string) (CIStatus, error) {
	cmd := exec.Command("gh", "run", "list", "--branch", branch, "--limit", "1", "--json", "status,conclusion")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return CIPending, &CommandError{Bin: "gh", Args: cmd.Args[1:], Err: err}
	}
	var rows []struct {
		Status     string `json:"status"`
		Conclusion string `json:"conclusion"`
	}
	if err := json.Unmarshal(out, &rows); err != nil {
		return CIPending, err
	}
	if len(rows) == 0 {
		return CIPending, nil
	}
	row := rows[0]
	if row.Status != "completed" {
		return CIPending, nil
	}
	switch row.Conclusion {
	case "success":
		return CISuccess, nil
	default:
		return CIFailure, nil
	}
}

// StabilityTracker observes CIStatus readings and reports true only once the
// same status has been read N consecutive times (spec.md §4.3/§5).
type StabilityTracker struct {
	required int
	last     CIStatus
	count    int
}

// NewStabilityTracker returns a tracker requiring `required` consecutive
// identical non-pending readings before a status is terminal.
func NewStabilityTracker(required int) *StabilityTracker {
	if required < 2 {
		required = DefaultTerminalObservations
	}
	return &StabilityTracker{required: required}
}

// Observe records one reading and reports the terminal status once stable,
// or ("", false) while still settling.
func (s *StabilityTracker) Observe(status CIStatus) (CIStatus, bool) {
	if status == CIPending {
		s.last = ""
		s.count = 0
		return "", false
	}
	if status == s.last {
		s.count++
	} else {
		s.last = status
		s.count = 1
	}
	if s.count >= s.required {
		return status, true
	}
	return "", false
}

// FixItem is one parsed CI failure, the unit of CI_FIX task fanout.
type FixItem struct {
	Summary string
	Detail  string
}

// ParseFailures extracts FixItems from raw CI failure text: one per non-empty
// line containing "fail" or "error:", matched case-insensitively (the common
// shape of go test / lint output surfaced by `gh run view --log-failed`).
func ParseFailures(raw string) []FixItem {
	var items []FixItem
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		if strings.Contains(lower, "fail") || strings.Contains(lower, "error:") {
			items = append(items, FixItem{Summary: truncateSummary(line, 140)})
		}
	}
	return items
}

// FanOut caps items to maxFanOut, reporting how many were dropped.
func FanOut(items []FixItem, maxFanOut int) (kept []FixItem, dropped int) {
	maxFanOut = ClampFanOut(maxFanOut)
	if len(items) <= maxFanOut {
		return items, 0
	}
	return items[:maxFanOut], len(items) - maxFanOut
}

func truncateSummary(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	return lines[len(lines)-1]
}

// FormatPollCount renders a human pollCount summary for ci.activity events.
func FormatPollCount(n int) string { return fmt.Sprintf("poll #%s", strconv.Itoa(n)) }
