package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ixado/ixado/internal/config"
)

func newInitCommand(rootDir *string) *cobra.Command {
	var projectName string

	cmd := &cobra.Command{
		Use:   "init <project-name>",
		Short: "Initialize a new project's state and default settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectName = args[0]
			return runInit(*rootDir, projectName)
		},
	}
	return cmd
}

func runInit(rootDir, projectName string) error {
	absDir, err := filepath.Abs(rootDir)
	if err != nil {
		return err
	}
	ixadoDir := filepath.Join(absDir, ".ixado")
	if err := os.MkdirAll(ixadoDir, 0o755); err != nil {
		return err
	}

	settingsPath := filepath.Join(ixadoDir, "settings.yaml")
	if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
		b, err := yaml.Marshal(config.DefaultSettings())
		if err != nil {
			return err
		}
		if err := os.WriteFile(settingsPath, b, 0o644); err != nil {
			return err
		}
	}

	a, err := newApp(absDir)
	if err != nil {
		return err
	}
	if _, err := a.store.Initialize(projectName, absDir); err != nil {
		return fmt.Errorf("ixado init: %w", err)
	}
	fmt.Printf("project=%s\nroot_dir=%s\nsettings=%s\n", projectName, absDir, settingsPath)
	return nil
}
