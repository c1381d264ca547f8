// Package ciintegration implements the CI/PR side of the Execution Loop
// (spec.md §4.3): pushing a phase branch, opening/polling a pull request,
// CI_FIX fanout, and the side-effect preflight probe (spec.md §7).
package ciintegration

import (
	"os"
	"os/exec"
	"strings"
)

// ProbeStatus mirrors the teacher's provider-preflight check statuses.
type ProbeStatus string

const (
	ProbePass ProbeStatus = "pass"
	ProbeWarn ProbeStatus = "warn"
	ProbeFail ProbeStatus = "fail"
)

// ProbeKind classifies *why* a probe failed, per spec.md §7.
type ProbeKind string

const (
	ProbeKindAuth          ProbeKind = "auth"
	ProbeKindNetwork       ProbeKind = "network"
	ProbeKindMissingBinary ProbeKind = "missing-binary"
)

// Check is one row of the preflight report (spec.md §7's "probe list").
type Check struct {
	Name       string         `json:"name"`
	Status     ProbeStatus    `json:"status"`
	Message    string         `json:"message"`
	Kind       ProbeKind      `json:"kind,omitempty"`
	Remediation string        `json:"remediation,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// Summary tallies Checks by status.
type Summary struct {
	Pass int `json:"pass"`
	Warn int `json:"warn"`
	Fail int `json:"fail"`
}

// Fingerprint is the environment fingerprint spec.md §7 requires in the
// envelope (gh_version, gh_user, git_user_name, git_user_email, hostname).
type Fingerprint struct {
	GHVersion    string `json:"gh_version"`
	GHUser       string `json:"gh_user"`
	GitUserName  string `json:"git_user_name"`
	GitUserEmail string `json:"git_user_email"`
	Hostname     string `json:"hostname"`
}

// Report is the full preflight envelope.
type Report struct {
	Checks      []Check     `json:"checks"`
	Summary     Summary     `json:"summary"`
	Fingerprint Fingerprint `json:"fingerprint"`
}

// GitIdentity is the minimal surface ciintegration needs from internal/gitops
// to probe the current branch, the origin URL and its reachability without
// importing its exec wrapper directly (keeps this package's preflight logic
// unit-testable).
type GitIdentity interface {
	CurrentBranch() (string, error)
	RemoteURL() (string, error)
	RemoteReachable(url string) error
}

// RunPreflight probes gh/git availability, auth, and network reachability to
// origin (spec.md §7).
func RunPreflight(repo GitIdentity) Report {
	var checks []Check
	fp := Fingerprint{}
	if h, err := os.Hostname(); err == nil {
		fp.Hostname = h
	}

	ghVersion, ghErr := exec.Command("gh", "--version").Output()
	if ghErr != nil {
		checks = append(checks, Check{
			Name: "gh-binary", Status: ProbeFail, Kind: ProbeKindMissingBinary,
			Message:     "gh CLI not found on PATH",
			Remediation: "install the GitHub CLI (https://cli.github.com)",
		})
	} else {
		fp.GHVersion = strings.TrimSpace(strings.SplitN(string(ghVersion), "\n", 2)[0])
		checks = append(checks, Check{Name: "gh-binary", Status: ProbePass, Message: fp.GHVersion})
	}

	if ghErr == nil {
		authOut, authErr := exec.Command("gh", "auth", "status").CombinedOutput()
		if authErr != nil {
			checks = append(checks, Check{
				Name: "gh-auth", Status: ProbeFail, Kind: ProbeKindAuth,
				Message:     strings.TrimSpace(string(authOut)),
				Remediation: "gh auth login --hostname github.com",
			})
		} else {
			fp.GHUser = extractGHUser(string(authOut))
			checks = append(checks, Check{Name: "gh-auth", Status: ProbePass, Message: "authenticated", Details: map[string]any{"user": fp.GHUser}})
		}
	}

	name, nameErr := exec.Command("git", "config", "--get", "user.name").Output()
	if nameErr != nil || strings.TrimSpace(string(name)) == "" {
		checks = append(checks, Check{
			Name: "git-identity-name", Status: ProbeWarn, Kind: ProbeKindAuth,
			Message:     "git user.name is not configured",
			Remediation: "git config user.name <name>",
		})
	} else {
		fp.GitUserName = strings.TrimSpace(string(name))
		checks = append(checks, Check{Name: "git-identity-name", Status: ProbePass, Message: fp.GitUserName})
	}

	email, emailErr := exec.Command("git", "config", "--get", "user.email").Output()
	if emailErr != nil || strings.TrimSpace(string(email)) == "" {
		checks = append(checks, Check{
			Name: "git-identity-email", Status: ProbeWarn, Kind: ProbeKindAuth,
			Message:     "git user.email is not configured",
			Remediation: "git config user.email <email>",
		})
	} else {
		fp.GitUserEmail = strings.TrimSpace(string(email))
		checks = append(checks, Check{Name: "git-identity-email", Status: ProbePass, Message: fp.GitUserEmail})
	}

	if repo != nil {
		url, err := repo.RemoteURL()
		if err != nil {
			checks = append(checks, Check{
				Name: "origin-remote", Status: ProbeFail, Kind: ProbeKindNetwork,
				Message:     "no origin remote configured",
				Remediation: "git remote add origin <url>",
			})
		} else if err := repo.RemoteReachable(url); err != nil {
			checks = append(checks, Check{
				Name: "origin-network", Status: ProbeFail, Kind: ProbeKindNetwork,
				Message:     "origin is not reachable: " + err.Error(),
				Remediation: "check VPN/proxy/firewall for outbound 443",
			})
		} else {
			checks = append(checks, Check{Name: "origin-network", Status: ProbePass, Message: "origin reachable"})
		}
	}

	return Report{Checks: checks, Summary: summarize(checks), Fingerprint: fp}
}

func summarize(checks []Check) Summary {
	var s Summary
	for _, c := range checks {
		switch c.Status {
		case ProbePass:
			s.Pass++
		case ProbeWarn:
			s.Warn++
		case ProbeFail:
			s.Fail++
		}
	}
	return s
}

func extractGHUser(authStatusOutput string) string {
	for _, line := range strings.Split(authStatusOutput, "\n") {
		line = strings.TrimSpace(line)
		if idx := strings.Index(line, "Logged in to"); idx >= 0 {
			if uidx := strings.Index(line, "as "); uidx >= 0 {
				rest := line[uidx+3:]
				if sp := strings.IndexAny(rest, " ("); sp >= 0 {
					return rest[:sp]
				}
				return strings.TrimSpace(rest)
			}
		}
	}
	return ""
}
