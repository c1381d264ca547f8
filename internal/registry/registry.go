// Package registry implements the cross-process-shared Agent Registry
// (spec.md §4.2): a JSON-array file of AgentRecord rows, tolerant
// deserialization of unknown adapterId values, and atomic mutation.
package registry

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/ixado/ixado/internal/model"
	"github.com/ixado/ixado/internal/procutil"
)

// Registry owns a single agents.json file, shared (by convention) across
// every controller process on the host.
type Registry struct {
	path   string
	logger *log.Logger

	mu sync.Mutex // serializes this process's own read-modify-write cycles
}

// New returns a Registry bound to path. The CLI passes
// <rootDir>/.ixado/agents.json; no environment variable is consulted
// (spec.md §3 AgentRecord).
func New(path string, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.New(os.Stderr, "[ixado][registry] ", log.LstdFlags)
	}
	return &Registry{path: path, logger: logger}
}

// List deserializes the registry file tolerantly: unknown adapterId enum
// values are dropped but the record is kept; a record that otherwise
// violates the schema is skipped; a corrupt file yields an empty list with a
// logged warning (spec.md §4.2 Supervisor.list).
func (r *Registry) List() []model.AgentRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listLocked()
}

func (r *Registry) listLocked() []model.AgentRecord {
	b, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		r.logger.Printf("warning: reading agent registry %s: %v", r.path, err)
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		r.logger.Printf("warning: corrupt agent registry %s: %v", r.path, err)
		return nil
	}

	out := make([]model.AgentRecord, 0, len(raw))
	for _, item := range raw {
		rec, ok := decodeTolerant(item)
		if !ok {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// decodeTolerant decodes a single registry row. If adapterId is present but
// unrecognized, it is dropped and the rest of the record kept (spec.md §3,
// §8 round-trip law: "unknown adapterId in registry -> round-trip yields the
// record with adapterId absent; other fields preserved"). Any other decode
// failure skips the record entirely.
func decodeTolerant(raw json.RawMessage) (model.AgentRecord, bool) {
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return model.AgentRecord{}, false
	}
	if adapterID, ok := generic["adapterId"]; ok {
		s, isString := adapterID.(string)
		if !isString || !model.ValidAdapterID(s) {
			delete(generic, "adapterId")
			cleaned, err := json.Marshal(generic)
			if err != nil {
				return model.AgentRecord{}, false
			}
			raw = cleaned
		}
	}
	var rec model.AgentRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return model.AgentRecord{}, false
	}
	if rec.ID == "" || rec.Command == "" {
		return model.AgentRecord{}, false
	}
	return rec, true
}

func (r *Registry) writeLocked(rows []model.AgentRecord) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".agents-*.json.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, r.path)
}

// Put inserts or replaces the row with rec.ID, re-reading the file first so
// concurrent external writers (another controller process) are not
// clobbered beyond normal last-writer-wins semantics (spec.md §9 Design
// Note: "Shared global registry file -> actor + atomic rename").
func (r *Registry) Put(rec model.AgentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rows := r.listLocked()
	replaced := false
	for i := range rows {
		if rows[i].ID == rec.ID {
			rows[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		rows = append(rows, rec)
	}
	return r.writeLocked(rows)
}

// Get returns the row with id, or false if not found.
func (r *Registry) Get(id string) (model.AgentRecord, bool) {
	for _, rec := range r.List() {
		if rec.ID == id {
			return rec, true
		}
	}
	return model.AgentRecord{}, false
}

// Mutate re-reads the row with id, applies fn, and writes the result back.
// Returns AgentNotFound-shaped error if id is absent.
func (r *Registry) Mutate(id string, fn func(*model.AgentRecord)) (model.AgentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rows := r.listLocked()
	for i := range rows {
		if rows[i].ID == id {
			fn(&rows[i])
			if err := r.writeLocked(rows); err != nil {
				return model.AgentRecord{}, err
			}
			return rows[i], nil
		}
	}
	return model.AgentRecord{}, &NotFoundError{ID: id}
}

// NotFoundError is returned by Mutate and by the supervisor's
// kill/restart/assign when id does not match any row (spec.md §4.2:
// AgentNotFound).
type NotFoundError struct{ ID string }

func (e *NotFoundError) Error() string { return fmt.Sprintf("agent %s not found", e.ID) }

// ReconcileRunningWhere marks every RUNNING record matching predicate as
// STOPPED. Returns the number of records changed (spec.md §4.2
// reconcileRunningAgentsWhere, used at startup to clear stale RUNNING rows
// left by a crashed controller).
func (r *Registry) ReconcileRunningWhere(predicate func(model.AgentRecord) bool) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rows := r.listLocked()
	count := 0
	for i := range rows {
		if rows[i].Status == model.AgentRunning && predicate(rows[i]) {
			rows[i].Status = model.AgentStopped
			count++
		}
	}
	if count > 0 {
		if err := r.writeLocked(rows); err != nil {
			return 0, err
		}
	}
	return count, nil
}

// IsDead reports whether rec's recorded PID is no longer alive — the
// predicate startup reconciliation passes to ReconcileRunningWhere.
func IsDead(rec model.AgentRecord) bool {
	if rec.PID == nil {
		return true
	}
	return !procutil.PIDAlive(*rec.PID)
}

// NewAgentID returns a fresh AgentRecord id.
func NewAgentID() string { return uuid.NewString() }
