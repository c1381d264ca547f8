package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newStartCommand(rootDir *string) *cobra.Command {
	var detach bool
	var confirmStaleBuild bool
	var pollInterval time.Duration

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the phase-execution loop for this project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(*rootDir, detach, confirmStaleBuild, pollInterval)
		},
	}
	cmd.Flags().BoolVar(&detach, "detach", false, "launch the loop as a background process and return immediately")
	cmd.Flags().BoolVar(&confirmStaleBuild, "confirm-stale-build", false, "skip the stale-binary-vs-config guard")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", time.Second, "delay between idle Step() iterations")
	return cmd
}

func runStart(rootDir string, detach, confirmStaleBuild bool, pollInterval time.Duration) error {
	absDir, err := filepath.Abs(rootDir)
	if err != nil {
		return err
	}
	if err := ensureFreshBuild(absDir, confirmStaleBuild); err != nil {
		return err
	}

	if detach {
		return launchDetached(absDir)
	}

	a, err := newApp(absDir)
	if err != nil {
		return err
	}
	agentsReconciled, tasksReconciled, err := a.runner.ReconcileOnStartup()
	if err != nil {
		return fmt.Errorf("ixado start: startup reconciliation: %w", err)
	}
	if agentsReconciled > 0 || tasksReconciled > 0 {
		fmt.Printf("reconciled agents=%d tasks=%d\n", agentsReconciled, tasksReconciled)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if err := a.runner.Step(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "ixado start: step: %v\n", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(pollInterval):
		}
	}
}

// ensureFreshBuild refuses to run against a controller binary older than the
// project's own .ixado config, matching the teacher's ensureFreshKilroyBuild
// guard (cmd/kilroy/main.go), unless explicitly overridden.
func ensureFreshBuild(rootDir string, confirmed bool) error {
	if confirmed {
		return nil
	}
	exe, err := os.Executable()
	if err != nil {
		return nil
	}
	exeInfo, err := os.Stat(exe)
	if err != nil {
		return nil
	}
	cfgInfo, err := os.Stat(filepath.Join(rootDir, ".ixado", "settings.yaml"))
	if err != nil {
		return nil
	}
	if exeInfo.ModTime().Before(cfgInfo.ModTime()) {
		return fmt.Errorf("ixado binary (%s) is older than .ixado/settings.yaml; rebuild or pass --confirm-stale-build", exeInfo.ModTime().Format(time.RFC3339))
	}
	return nil
}

// launchDetached re-executes the current binary without --detach, redirects
// its output to a log file under .ixado/, and returns immediately, mirroring
// the teacher's detached-run launcher (cmd/kilroy/main.go launchDetached).
func launchDetached(rootDir string) error {
	ixadoDir := filepath.Join(rootDir, ".ixado")
	if err := os.MkdirAll(ixadoDir, 0o755); err != nil {
		return err
	}
	logFile, err := os.Create(filepath.Join(ixadoDir, "controller.log"))
	if err != nil {
		return err
	}
	defer logFile.Close()

	exe, err := os.Executable()
	if err != nil {
		return err
	}
	cmd := exec.Command(exe, "start", "--root-dir", rootDir, "--confirm-stale-build")
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return err
	}

	pidPath := filepath.Join(ixadoDir, "controller.pid")
	if err := os.WriteFile(pidPath, []byte(fmt.Sprintf("%d\n", cmd.Process.Pid)), 0o644); err != nil {
		return err
	}
	fmt.Printf("detached=true\npid=%d\npid_file=%s\nlog_file=%s\n", cmd.Process.Pid, pidPath, logFile.Name())
	return nil
}
