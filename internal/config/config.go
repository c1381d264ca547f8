// Package config loads IxADO's two configuration documents: the per-project
// Settings (YAML) and the per-host Global config (JSON), both decoded
// strictly — unknown keys are a load error, not a silent ignore.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// AdapterConfig configures one coding-CLI adapter.
type AdapterConfig struct {
	Command           string   `json:"command" yaml:"command"`
	Args              []string `json:"args,omitempty" yaml:"args,omitempty"`
	TimeoutMs         int      `json:"timeoutMs,omitempty" yaml:"timeoutMs,omitempty"`
	StartupSilenceMs  int      `json:"startupSilenceMs,omitempty" yaml:"startupSilenceMs,omitempty"`
	IdleThresholdMs   int      `json:"idleThresholdMs,omitempty" yaml:"idleThresholdMs,omitempty"`
}

// ExceptionRecoveryConfig mirrors spec.md §4.4's exceptionRecovery.maxAttempts.
type ExceptionRecoveryConfig struct {
	MaxAttempts int `json:"maxAttempts" yaml:"maxAttempts"`
}

// CIConfig mirrors spec.md §4.3's ciFixMaxFanOut/ciFixMaxDepth and whether
// CI integration is enabled for a project at all.
type CIConfig struct {
	Enabled       bool `json:"enabled" yaml:"enabled"`
	CIFixMaxFanOut int  `json:"ciFixMaxFanOut,omitempty" yaml:"ciFixMaxFanOut,omitempty"`
	CIFixMaxDepth  int  `json:"ciFixMaxDepth,omitempty" yaml:"ciFixMaxDepth,omitempty"`
}

// Settings is the per-project YAML document (spec.md §6: IXADO_SETTINGS_FILE,
// default `<rootDir>/.ixado/settings.yaml`).
type Settings struct {
	Adapters          map[string]AdapterConfig `json:"adapters" yaml:"adapters"`
	ExceptionRecovery ExceptionRecoveryConfig  `json:"exceptionRecovery,omitempty" yaml:"exceptionRecovery,omitempty"`
	CI                CIConfig                 `json:"ci,omitempty" yaml:"ci,omitempty"`
	TelegramNoiseLevel string                  `json:"telegramNoiseLevel,omitempty" yaml:"telegramNoiseLevel,omitempty"`

	// GitExcludeGlobs are doublestar patterns excluded from recovery
	// residual-staging (supplemented from the original's artifact-policy
	// checkpoint exclude globs, which the distilled spec didn't carry over).
	GitExcludeGlobs []string `json:"gitExcludeGlobs,omitempty" yaml:"gitExcludeGlobs,omitempty"`
}

// GlobalConfig is the per-host JSON document decoded by LoadGlobalConfig from
// the path its caller gives. No default path is resolved here, and
// IXADO_GLOBAL_CONFIG_FILE is not read.
type GlobalConfig struct {
	TelegramBotToken string `json:"telegramBotToken,omitempty"`
	TelegramChatID   string `json:"telegramChatId,omitempty"`
	WebPort          int    `json:"webPort,omitempty"`
}

// DefaultSettings returns the settings a fresh project is initialized with.
func DefaultSettings() Settings {
	return Settings{
		Adapters: map[string]AdapterConfig{
			"codex":  {Command: "codex", TimeoutMs: 3_600_000, StartupSilenceMs: 60_000, IdleThresholdMs: 60_000},
			"claude": {Command: "claude", TimeoutMs: 3_600_000, StartupSilenceMs: 60_000, IdleThresholdMs: 60_000},
			"gemini": {Command: "gemini", TimeoutMs: 3_600_000, StartupSilenceMs: 60_000, IdleThresholdMs: 60_000},
		},
		ExceptionRecovery:  ExceptionRecoveryConfig{MaxAttempts: 1},
		CI:                 CIConfig{Enabled: false, CIFixMaxFanOut: 10, CIFixMaxDepth: 3},
		TelegramNoiseLevel: "important",
		GitExcludeGlobs:    []string{"**/node_modules/**", "**/.cargo_target*/**", "**/dist/**"},
	}
}

// LoadSettings reads and strictly decodes the YAML settings file at path, or
// returns DefaultSettings if it doesn't exist.
func LoadSettings(path string) (Settings, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return Settings{}, err
	}
	cfg := DefaultSettings()
	if err := decodeYAMLStrict(b, &cfg); err != nil {
		return Settings{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// LoadGlobalConfig reads and strictly decodes the JSON global config file at
// path, or returns a zero-value GlobalConfig if it doesn't exist.
func LoadGlobalConfig(path string) (GlobalConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return GlobalConfig{}, nil
		}
		return GlobalConfig{}, err
	}
	var cfg GlobalConfig
	if err := decodeJSONStrict(b, &cfg); err != nil {
		return GlobalConfig{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func decodeJSONStrict(b []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	var trailing any
	if err := dec.Decode(&trailing); err != io.EOF {
		if err == nil {
			return fmt.Errorf("json: multiple top-level values are not allowed")
		}
		return err
	}
	return nil
}

func decodeYAMLStrict(b []byte, v any) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		return err
	}
	var trailing any
	if err := dec.Decode(&trailing); err != io.EOF {
		if err == nil {
			return fmt.Errorf("yaml: multiple documents are not allowed")
		}
		return err
	}
	return nil
}
