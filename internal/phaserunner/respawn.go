package phaserunner

import (
	"context"
	"fmt"

	"github.com/ixado/ixado/internal/config"
	"github.com/ixado/ixado/internal/model"
	"github.com/ixado/ixado/internal/supervisor"
)

// AdapterRespawner implements recovery.AgentRespawner by re-dispatching the
// task's assigned adapter through the supervisor, independent of any
// in-flight Runner.Step (AGENT_FAILURE recovery runs synchronously inside
// Policy.Attempt, so this must return as soon as the new process is
// launched, not after it completes).
type AdapterRespawner struct {
	projectName string
	rootDir     string
	sup         *supervisor.Supervisor
	settings    config.Settings
}

func NewAdapterRespawner(projectName, rootDir string, sup *supervisor.Supervisor, settings config.Settings) *AdapterRespawner {
	return &AdapterRespawner{projectName: projectName, rootDir: rootDir, sup: sup, settings: settings}
}

// Respawn launches a fresh adapter process for task's assignee, reusing the
// same archetype-derived prompt the original dispatch built.
func (r *AdapterRespawner) Respawn(task model.Task) error {
	archetype := archetypeFor(string(task.Status), task.Title)
	prompt, err := ComposePrompt(task, archetype, "")
	if err != nil {
		return fmt.Errorf("phaserunner: respawn prompt: %w", err)
	}

	key, adapterID := adapterKey(task.Assignee)
	cfg, ok := r.settings.Adapters[key]
	if !ok {
		cfg = config.AdapterConfig{Command: key}
	}

	taskID := task.ID
	_, err = r.sup.Start(context.Background(), supervisor.Spec{
		Name:                 task.Title,
		Command:              cfg.Command,
		Args:                 append(append([]string{}, cfg.Args...), prompt),
		Cwd:                  r.rootDir,
		AdapterID:            adapterID,
		ProjectName:          &r.projectName,
		TaskID:               &taskID,
		ApprovedAdapterSpawn: true,
		TimeoutMs:            cfg.TimeoutMs,
		StartupSilenceMs:     cfg.StartupSilenceMs,
	})
	return err
}
