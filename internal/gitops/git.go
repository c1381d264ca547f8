// Package gitops wraps the whitelisted git/gh subcommands IxADO is allowed
// to invoke (spec.md §6 "Invoked external CLIs"), and implements the
// category-specific remediation ports internal/recovery depends on.
package gitops

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// CommandError wraps a failed git/gh invocation with captured output.
type CommandError struct {
	Bin    string
	Args   []string
	Stdout string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Bin, strings.Join(e.Args, " "), e.Err)
	if e.Stderr != "" {
		msg += ": " + strings.TrimSpace(e.Stderr)
	}
	return msg
}

// whitelistedGitSubcommands names the git operations spec.md §6 permits.
// Anything else is rejected before exec.Command is ever reached.
var whitelistedGitSubcommands = map[string]bool{
	"add":                true,
	"diff":               true,
	"commit":             true,
	"branch":              true,
	"push":                true,
	"remote":              true,
	"ls-remote":           true,
	"checkout":            true,
	"config":              true,
}

var whitelistedGhSubcommands = map[string]bool{
	"--version":   true,
	"auth":        true,
	"pr":          true,
	"run":         true,
}

// Repo wraps one working directory's git/gh invocations.
type Repo struct {
	Dir string

	// ExcludeGlobs are doublestar patterns (e.g. "**/.cargo_target*/**") that
	// StageAndCommitResiduals skips when staging recovery residuals, mirroring
	// the original implementation's checkpoint-exclude-globs policy.
	ExcludeGlobs []string
}

// New returns a Repo rooted at dir.
func New(dir string) *Repo { return &Repo{Dir: dir} }

func (r *Repo) git(args ...string) (string, string, error) {
	if len(args) == 0 || !whitelistedGitSubcommands[args[0]] {
		return "", "", fmt.Errorf("gitops: subcommand %q is not whitelisted", firstArg(args))
	}
	// Disable auto-maintenance so repeated checkpoint commits stay
	// deterministic and don't spawn background gc helpers.
	base := []string{"-C", r.Dir, "-c", "maintenance.auto=0", "-c", "gc.auto=0"}
	cmd := exec.Command("git", append(base, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		return stdout.String(), stderr.String(), &CommandError{Bin: "git", Args: args, Stdout: stdout.String(), Stderr: stderr.String(), Err: err}
	}
	return stdout.String(), stderr.String(), nil
}

func (r *Repo) gh(args ...string) (string, string, error) {
	if len(args) == 0 || !whitelistedGhSubcommands[args[0]] {
		return "", "", fmt.Errorf("gitops: gh subcommand %q is not whitelisted", firstArg(args))
	}
	cmd := exec.Command("gh", args...)
	cmd.Dir = r.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		return stdout.String(), stderr.String(), &CommandError{Bin: "gh", Args: args, Stdout: stdout.String(), Stderr: stderr.String(), Err: err}
	}
	return stdout.String(), stderr.String(), nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// DiffCachedNameOnly returns the names of staged files, via
// "git diff --cached --name-only". Unstaged and untracked changes are not
// included.
func (r *Repo) DiffCachedNameOnly() ([]string, error) {
	out, _, err := r.git("diff", "--cached", "--name-only")
	if err != nil {
		return nil, err
	}
	return nonEmptyLines(out), nil
}

// CurrentBranch returns the checked-out branch name.
func (r *Repo) CurrentBranch() (string, error) {
	out, _, err := r.git("branch", "--show-current")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Checkout switches to branch.
func (r *Repo) Checkout(branch string) error {
	_, _, err := r.git("checkout", branch)
	return err
}

// EnsureIdentity sets a fallback committer identity if none is configured,
// without overwriting an existing one.
func (r *Repo) EnsureIdentity() {
	if out, _, err := r.git("config", "user.name"); err != nil || strings.TrimSpace(out) == "" {
		_, _, _ = r.git("config", "user.name", "ixado-orchestrator")
	}
	if out, _, err := r.git("config", "user.email"); err != nil || strings.TrimSpace(out) == "" {
		_, _, _ = r.git("config", "user.email", "ixado-orchestrator@local")
	}
}

// StageAndCommitResiduals implements recovery.GitRemediator for
// DIRTY_WORKTREE: stage everything not matched by ExcludeGlobs and commit if
// there is anything staged.
func (r *Repo) StageAndCommitResiduals(cwd, message string) (bool, []string, error) {
	files, err := r.stageableFiles()
	if err != nil {
		return false, nil, err
	}
	if len(files) == 0 {
		return false, nil, nil
	}
	if _, _, err := r.git(append([]string{"add"}, files...)...); err != nil {
		return false, nil, err
	}
	return r.CommitStaged(cwd, message)
}

// stageableFiles lists the paths `git add --all` would stage, minus any
// matching r.ExcludeGlobs.
func (r *Repo) stageableFiles() ([]string, error) {
	out, _, err := r.git("add", "--all", "--dry-run")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range nonEmptyLines(out) {
		path := strings.Trim(strings.TrimPrefix(line, "add "), "'")
		if path == "" || r.excluded(path) {
			continue
		}
		files = append(files, path)
	}
	return files, nil
}

func (r *Repo) excluded(path string) bool {
	for _, g := range r.ExcludeGlobs {
		if ok, _ := doublestar.Match(g, path); ok {
			return true
		}
	}
	return false
}

// CommitStaged implements recovery.GitRemediator for MISSING_COMMIT: commit
// whatever is currently staged.
func (r *Repo) CommitStaged(cwd, message string) (bool, []string, error) {
	files, err := r.DiffCachedNameOnly()
	if err != nil {
		return false, nil, err
	}
	if len(files) == 0 {
		return false, nil, nil
	}
	r.EnsureIdentity()
	if _, _, err := r.git("commit", "-m", message); err != nil {
		return false, nil, err
	}
	return true, files, nil
}

// PushBranch pushes branch to origin, setting upstream.
func (r *Repo) PushBranch(branch string) error {
	_, _, err := r.git("push", "-u", "origin", branch)
	return err
}

// RemoteURL returns the origin remote's URL.
func (r *Repo) RemoteURL() (string, error) {
	out, _, err := r.git("remote", "get-url", "origin")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// RemoteReachable probes origin with ls-remote, used by the CI side-effect
// preflight probe (spec.md §7).
func (r *Repo) RemoteReachable(url string) error {
	_, _, err := r.git("ls-remote", url)
	return err
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			out = append(out, t)
		}
	}
	return out
}
