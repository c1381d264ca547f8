package state

import "sync"

// projectLocks serializes Store.Write calls per rootDir within this
// process. Cross-process concurrent writers are not supported (spec.md
// §4.1 Atomicity contract) — the lock only protects this process's own
// concurrent callers (web API handler + CLI + phase-runner goroutine).
var (
	locksMu sync.Mutex
	locks   = map[string]*sync.Mutex{}
)

// LockFor returns the process-wide mutex guarding writes to path.
func LockFor(path string) *sync.Mutex {
	locksMu.Lock()
	defer locksMu.Unlock()
	m, ok := locks[path]
	if !ok {
		m = &sync.Mutex{}
		locks[path] = m
	}
	return m
}
