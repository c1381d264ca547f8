// Package state implements the State Engine (spec.md §4.1): atomic
// read/write of the per-project ProjectState document, schema validation,
// and strict active-phase resolution.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ixado/ixado/internal/model"
)

// Store owns a single project's state.json file.
type Store struct {
	path string
}

// New returns a Store bound to <rootDir>/.ixado/state.json, or the path
// named by IXADO_STATE_FILE when set (matching the env-var override table in
// spec.md §6).
func New(rootDir string) *Store {
	if override := os.Getenv("IXADO_STATE_FILE"); override != "" {
		return &Store{path: override}
	}
	return &Store{path: filepath.Join(rootDir, ".ixado", "state.json")}
}

// Path returns the backing file path, for diagnostics/tests.
func (s *Store) Path() string { return s.path }

// Initialize writes an empty, schema-valid ProjectState, only if none exists.
func (s *Store) Initialize(projectName, rootDir string) (*model.ProjectState, error) {
	if existing, err := s.Read(); err == nil {
		// Already initialized; ensureInitialized is idempotent.
		return existing, nil
	}
	now := time.Now().UTC()
	st := &model.ProjectState{
		ProjectName: projectName,
		RootDir:     rootDir,
		Phases:      []model.Phase{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return s.Write(st)
}

// Read loads and validates the state document.
func (s *Store) Read() (*model.ProjectState, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, newErr(ErrFileNotFound, "state file not found at %s", s.path)
		}
		return nil, err
	}

	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return nil, newErr(ErrInvalidJSON, "%s: %v", s.path, err)
	}

	sch, err := projectStateSchema()
	if err != nil {
		return nil, err
	}
	if err := sch.Validate(generic); err != nil {
		return nil, &Error{Code: ErrSchemaViolation, Message: err.Error()}
	}

	var st model.ProjectState
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, newErr(ErrInvalidJSON, "%s: %v", s.path, err)
	}
	return &st, nil
}

// Write validates next, stamps updatedAt, and commits via temp-file + atomic
// rename (spec.md §3 invariant 6, §4.1 Atomicity contract). A crash between
// the temp write and the rename leaves the previous state.json untouched,
// since rename(2) only ever replaces the destination atomically on success.
func (s *Store) Write(next *model.ProjectState) (*model.ProjectState, error) {
	if next == nil {
		return nil, fmt.Errorf("state: write: next is nil")
	}
	now := time.Now().UTC()
	// updatedAt is monotonic-per-write (spec.md §3): never move it backwards,
	// even if the caller's clock is behind a prior write (possible across
	// processes sharing the file).
	if !now.After(next.UpdatedAt) {
		now = next.UpdatedAt.Add(time.Nanosecond)
	}
	next.UpdatedAt = now
	if next.CreatedAt.IsZero() {
		next.CreatedAt = now
	}

	b, err := json.Marshal(next)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return nil, err
	}
	sch, err := projectStateSchema()
	if err != nil {
		return nil, err
	}
	if err := sch.Validate(generic); err != nil {
		return nil, &Error{Code: ErrSchemaViolation, Message: err.Error()}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".state-*.json.tmp")
	if err != nil {
		return nil, err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return nil, err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return nil, err
	}
	return next, nil
}

// ResolveActivePhaseStrict returns the single phase referenced by
// state.ActivePhaseID. It never falls back to phases[0] (spec.md §3
// invariant 1, §4.1).
func ResolveActivePhaseStrict(st *model.ProjectState) (*model.Phase, error) {
	if st == nil || len(st.Phases) == 0 {
		return nil, newErr(ErrNoPhases, "project has no phases")
	}
	if st.ActivePhaseID == nil || *st.ActivePhaseID == "" {
		return nil, newErr(ErrActivePhaseIDMissing, "no active phase is set")
	}
	p := st.FindPhase(*st.ActivePhaseID)
	if p == nil {
		return nil, newErr(ErrActivePhaseIDNotFound, "activePhaseId %q does not match any phase", *st.ActivePhaseID)
	}
	return p, nil
}
