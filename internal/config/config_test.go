package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSettingsMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadSettings(filepath.Join(t.TempDir(), "settings.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ExceptionRecovery.MaxAttempts != 1 {
		t.Fatalf("expected default maxAttempts=1, got %d", cfg.ExceptionRecovery.MaxAttempts)
	}
}

func TestLoadSettingsRejectsUnknownKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	if err := os.WriteFile(path, []byte("bogusKey: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSettings(path); err == nil {
		t.Fatal("expected an error for an unknown top-level key")
	}
}

func TestLoadGlobalConfigRejectsUnknownKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"bogus": true}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadGlobalConfig(path); err == nil {
		t.Fatal("expected an error for an unknown top-level key")
	}
}
