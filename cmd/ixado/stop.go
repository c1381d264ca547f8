package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

func newStopCommand(rootDir *string) *cobra.Command {
	var phaseID, taskID string

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Cancel the in-flight task (resetting it to TODO) and stop a detached controller",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(*rootDir, phaseID, taskID)
		},
	}
	cmd.Flags().StringVar(&phaseID, "phase-id", "", "phase whose in-flight task should be cancelled")
	cmd.Flags().StringVar(&taskID, "task-id", "", "in-flight task id to cancel")
	return cmd
}

func runStop(rootDir, phaseID, taskID string) error {
	absDir, err := filepath.Abs(rootDir)
	if err != nil {
		return err
	}

	if phaseID != "" && taskID != "" {
		a, err := newApp(absDir)
		if err != nil {
			return err
		}
		if err := a.runner.Stop(phaseID, taskID); err != nil {
			return fmt.Errorf("ixado stop: %w", err)
		}
	}

	pidPath := filepath.Join(absDir, ".ixado", "controller.pid")
	raw, err := os.ReadFile(pidPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return fmt.Errorf("ixado stop: malformed pid file %s: %w", pidPath, err)
	}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil && err != syscall.ESRCH {
		return fmt.Errorf("ixado stop: signalling pid %d: %w", pid, err)
	}
	os.Remove(pidPath)
	fmt.Printf("stopped pid=%d\n", pid)
	return nil
}
