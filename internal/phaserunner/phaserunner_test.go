package phaserunner

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ixado/ixado/internal/gitops"
	"github.com/ixado/ixado/internal/model"
)

func initTestRepo(t *testing.T, branch string) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@test",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@test",
		)
		out, err := cmd.CombinedOutput()
		if err != nil {
			t.Fatalf("git %v failed: %v\n%s", args, err, out)
		}
	}
	run("init", "-b", branch)
	run("config", "user.name", "test")
	run("config", "user.email", "test@test")
	if err := os.WriteFile(filepath.Join(dir, "seed.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	run("add", "-A")
	run("commit", "-m", "seed")
	return dir
}

func TestSelectNextTaskSkipsUnmetDependencies(t *testing.T) {
	phase := &model.Phase{
		Tasks: []model.Task{
			{ID: "a", Status: model.TaskTodo, Dependencies: []string{"b"}},
			{ID: "b", Status: model.TaskTodo},
		},
	}
	got := SelectNextTask(phase)
	if got == nil || got.ID != "b" {
		t.Fatalf("expected task b selected first, got %+v", got)
	}
}

func TestSelectNextTaskHonorsCompletedDependency(t *testing.T) {
	phase := &model.Phase{
		Tasks: []model.Task{
			{ID: "a", Status: model.TaskTodo, Dependencies: []string{"b"}},
			{ID: "b", Status: model.TaskDone},
		},
	}
	got := SelectNextTask(phase)
	if got == nil || got.ID != "a" {
		t.Fatalf("expected task a selected, got %+v", got)
	}
}

func TestSelectNextTaskReturnsNilWhenNoneReady(t *testing.T) {
	phase := &model.Phase{Tasks: []model.Task{{ID: "a", Status: model.TaskInProgress}}}
	if got := SelectNextTask(phase); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestAllTasksDone(t *testing.T) {
	phase := &model.Phase{Tasks: []model.Task{{Status: model.TaskDone}, {Status: model.TaskTodo}}}
	if AllTasksDone(phase) {
		t.Fatal("expected not all done")
	}
	phase.Tasks[1].Status = model.TaskDone
	if !AllTasksDone(phase) {
		t.Fatal("expected all done")
	}
}

func TestArchetypeForCIFixAlwaysFixer(t *testing.T) {
	if got := archetypeFor("CI_FIX", "anything"); got != ArchetypeFixer {
		t.Fatalf("archetypeFor(CI_FIX) = %v", got)
	}
}

func TestArchetypeForTitleMarkers(t *testing.T) {
	cases := map[string]Archetype{
		"[Tester] write coverage":    ArchetypeTester,
		"[Reviewer] check diff":      ArchetypeReviewer,
		"implement the thing":        ArchetypeCoder,
	}
	for title, want := range cases {
		if got := archetypeFor("TODO", title); got != want {
			t.Fatalf("archetypeFor(%q) = %v, want %v", title, got, want)
		}
	}
}

func TestComposePromptReviewerRequiresDiff(t *testing.T) {
	task := model.Task{ID: "t1", Title: "review it"}
	if _, err := ComposePrompt(task, ArchetypeReviewer, "   "); err == nil {
		t.Fatal("expected MissingDiffError for blank diff")
	}
	prompt, err := ComposePrompt(task, ArchetypeReviewer, "diff --git a/x b/x")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(prompt, "diff --git") {
		t.Fatalf("prompt missing diff content: %q", prompt)
	}
}

func TestComposePromptCoderNoDiffRequired(t *testing.T) {
	task := model.Task{ID: "t1", Title: "implement x", Description: "do the thing"}
	prompt, err := ComposePrompt(task, ArchetypeCoder, "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(prompt, "implement x") || !strings.Contains(prompt, "do the thing") {
		t.Fatalf("prompt missing task content: %q", prompt)
	}
}

func TestRunPreflightNeedsBranchWhenBranchAbsent(t *testing.T) {
	dir := initTestRepo(t, "main")
	repo := gitops.New(dir)
	st := &model.ProjectState{
		Phases: []model.Phase{{ID: "p1", Status: model.PhaseCoding, BranchName: "feature/x", Tasks: []model.Task{{ID: "t1", Status: model.TaskTodo}}}},
	}
	active := "p1"
	st.ActivePhaseID = &active

	phase, needsBranch, err := RunPreflight(st, repo)
	if err != nil {
		t.Fatal(err)
	}
	if phase.ID != "p1" {
		t.Fatalf("phase = %+v", phase)
	}
	if !needsBranch {
		t.Fatal("expected needsBranch = true when current branch differs")
	}
}

func TestRunPreflightReadyWhenOnBranch(t *testing.T) {
	dir := initTestRepo(t, "feature/x")
	repo := gitops.New(dir)
	st := &model.ProjectState{
		Phases: []model.Phase{{ID: "p1", Status: model.PhaseCoding, BranchName: "feature/x"}},
	}
	active := "p1"
	st.ActivePhaseID = &active

	_, needsBranch, err := RunPreflight(st, repo)
	if err != nil {
		t.Fatal(err)
	}
	if needsBranch {
		t.Fatal("expected needsBranch = false when already on branch")
	}
}

func TestRunPreflightRejectsDonePhase(t *testing.T) {
	st := &model.ProjectState{Phases: []model.Phase{{ID: "p1", Status: model.PhaseDone, BranchName: "b"}}}
	active := "p1"
	st.ActivePhaseID = &active
	if _, _, err := RunPreflight(st, gitops.New(t.TempDir())); err == nil {
		t.Fatal("expected PreflightError for DONE phase")
	}
}
