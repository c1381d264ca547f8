package webapi

import "testing"

func TestSuppressLineFiltersFileInteractionChatter(t *testing.T) {
	cases := []struct {
		line string
		want bool
	}{
		{"Read(internal/webapi/server.go)", true},
		{"Bash(go test ./...)", true},
		{"internal/webapi/server.go", true},
		{"running tests...", false},
		{"Error: exit code 1", false},
		{"[ixado][agent-runtime] {\"event\":\"heartbeat\"}", false},
	}
	for _, c := range cases {
		if got := suppressLine(c.line); got != c.want {
			t.Errorf("suppressLine(%q) = %v, want %v", c.line, got, c.want)
		}
	}
}

func TestFailureSummaryPicksFirstMatchAndTruncates(t *testing.T) {
	log := "starting up\nsome progress\nError:   connection   refused\nmore output"
	got := failureSummary(log)
	want := "Error: connection refused"
	if got != want {
		t.Fatalf("failureSummary = %q, want %q", got, want)
	}
}

func TestFailureSummaryTruncatesLongLines(t *testing.T) {
	long := "error: "
	for i := 0; i < 30; i++ {
		long += "detail "
	}
	got := failureSummary(long)
	if len(got) != 143 || got[len(got)-3:] != "..." {
		t.Fatalf("failureSummary length = %d, suffix = %q", len(got), got[len(got)-3:])
	}
}

func TestFailureSummaryEmptyWhenNoMatch(t *testing.T) {
	if got := failureSummary("all good\nnothing to see"); got != "" {
		t.Fatalf("failureSummary = %q, want empty", got)
	}
}

func TestRecoveryLinksIncludesOneAnchorPerAttempt(t *testing.T) {
	links := recoveryLinks("phase-1", "task-1", 2)
	if len(links) != 3 {
		t.Fatalf("recoveryLinks = %v, want 3 entries", links)
	}
	if links[0] != "#phase/phase-1/task/task-1" {
		t.Fatalf("links[0] = %q", links[0])
	}
}

func TestRecoveryLinksNilWithoutPhaseOrTask(t *testing.T) {
	if links := recoveryLinks("", "task-1", 1); links != nil {
		t.Fatalf("expected nil, got %v", links)
	}
}
