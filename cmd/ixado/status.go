package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ixado/ixado/internal/model"
)

func newStatusCommand(rootDir *string) *cobra.Command {
	var follow bool
	var asJSON bool
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print project phase/task status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(*rootDir, follow, asJSON, interval)
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "re-poll and print deltas until interrupted")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw ProjectState as JSON")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "poll interval for --follow")
	return cmd
}

func runStatus(rootDir string, follow, asJSON bool, interval time.Duration) error {
	a, err := newApp(rootDir)
	if err != nil {
		return err
	}

	var last string
	for {
		st, err := a.store.Read()
		if err != nil {
			return fmt.Errorf("ixado status: %w", err)
		}
		rendered, err := renderStatus(st, asJSON)
		if err != nil {
			return err
		}
		if rendered != last {
			fmt.Print(rendered)
			last = rendered
		}
		if !follow {
			return nil
		}
		time.Sleep(interval)
	}
}

func renderStatus(st *model.ProjectState, asJSON bool) (string, error) {
	if asJSON {
		b, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return "", err
		}
		return string(b) + "\n", nil
	}

	out := fmt.Sprintf("project=%s root_dir=%s\n", st.ProjectName, st.RootDir)
	for _, phase := range st.Phases {
		active := ""
		if st.ActivePhaseID != nil && *st.ActivePhaseID == phase.ID {
			active = " (active)"
		}
		out += fmt.Sprintf("phase %s [%s]%s\n", phase.Name, phase.Status, active)
		for _, task := range phase.Tasks {
			out += fmt.Sprintf("  - %s [%s] assignee=%s\n", task.Title, task.Status, task.Assignee)
		}
	}
	return out, nil
}
