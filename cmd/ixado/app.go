package main

import (
	"log"
	"os"
	"path/filepath"

	"github.com/ixado/ixado/internal/config"
	"github.com/ixado/ixado/internal/controlcenter"
	"github.com/ixado/ixado/internal/eventbus"
	"github.com/ixado/ixado/internal/gitops"
	"github.com/ixado/ixado/internal/phaserunner"
	"github.com/ixado/ixado/internal/recovery"
	"github.com/ixado/ixado/internal/registry"
	"github.com/ixado/ixado/internal/state"
	"github.com/ixado/ixado/internal/supervisor"
)

// app bundles one project's wired collaborators, built fresh by every
// subcommand from --root-dir (spec.md §4.6: every mutation is a
// read-modify-write transaction against the project's own state file).
type app struct {
	rootDir     string
	projectName string

	store    *state.Store
	bus      *eventbus.Bus
	cc       *controlcenter.Service
	reg      *registry.Registry
	sup      *supervisor.Supervisor
	repo     *gitops.Repo
	settings config.Settings
	runner   *phaserunner.Runner
}

func newApp(rootDir string) (*app, error) {
	absDir, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, err
	}
	ixadoDir := filepath.Join(absDir, ".ixado")
	logger := log.New(os.Stderr, "[ixado] ", log.LstdFlags)

	settingsPath := filepath.Join(ixadoDir, "settings.yaml")
	if override := os.Getenv("IXADO_SETTINGS_FILE"); override != "" {
		settingsPath = override
	}
	settings, err := config.LoadSettings(settingsPath)
	if err != nil {
		return nil, err
	}

	store := state.New(absDir)
	st, err := store.Read()
	projectName := ""
	if err == nil {
		projectName = st.ProjectName
	}

	bus := eventbus.NewBus()
	cc := controlcenter.New(store, bus)
	reg := registry.New(filepath.Join(ixadoDir, "agents.json"), logger)
	sup := supervisor.New(reg, logger)
	repo := gitops.New(absDir)
	policy := recovery.NewPolicy(settings.ExceptionRecovery.MaxAttempts, repo, phaserunner.NewAdapterRespawner(projectName, absDir, sup, settings))
	runner := phaserunner.New(projectName, absDir, store, cc, sup, bus, repo, settings, policy, registry.IsDead)

	return &app{
		rootDir: absDir, projectName: projectName,
		store: store, bus: bus, cc: cc, reg: reg, sup: sup, repo: repo,
		settings: settings, runner: runner,
	}, nil
}
