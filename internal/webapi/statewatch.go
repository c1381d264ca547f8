package webapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchStateFile watches <rootDir>/.ixado/state.json for writes by any other
// process (the CLI, a detached controller) sharing this project, so the web
// surface can push fresh state to connected clients without polling. A
// failure to start the watcher (e.g. the directory doesn't exist yet) is
// logged and treated as "no push notifications available", not fatal —
// GET /api/state still serves the latest file on demand.
func (s *Server) watchStateFile() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Printf("state watcher: %v", err)
		return
	}

	dir := filepath.Join(s.config.RootDir, ".ixado")
	if err := watcher.Add(dir); err != nil {
		s.logger.Printf("state watcher: watch %s: %v", dir, err)
		watcher.Close()
		return
	}

	target := filepath.Join(dir, "state.json")
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-s.baseCtx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				s.publishStateChanged()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Printf("state watcher: %v", err)
			}
		}
	}()
}

func (s *Server) publishStateChanged() {
	s.stateChangeMu.Lock()
	defer s.stateChangeMu.Unlock()
	s.stateChangeSeq++
	seq := s.stateChangeSeq
	for _, ch := range s.stateChangeSubs {
		select {
		case ch <- seq:
		default:
		}
	}
}

func (s *Server) subscribeStateChanges() (<-chan int, func()) {
	s.stateChangeMu.Lock()
	defer s.stateChangeMu.Unlock()
	ch := make(chan int, 1)
	id := 0
	for {
		if _, taken := s.stateChangeSubs[id]; !taken {
			break
		}
		id++
	}
	s.stateChangeSubs[id] = ch
	return ch, func() {
		s.stateChangeMu.Lock()
		defer s.stateChangeMu.Unlock()
		delete(s.stateChangeSubs, id)
		close(ch)
	}
}

// handleStateStream is an SSE endpoint pushing a fresh ProjectState snapshot
// every time state.json changes on disk, whether from this process or a
// sibling CLI/controller process sharing the same project.
func (s *Server) handleStateStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func() bool {
		st, err := s.cc.GetState()
		if err != nil {
			return true
		}
		data, err := json.Marshal(st)
		if err != nil {
			return true
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}
	if !send() {
		return
	}

	changes, unsub := s.subscribeStateChanges()
	defer unsub()

	ctx := r.Context()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.baseCtx.Done():
			return
		case <-changes:
			if !send() {
				return
			}
		case <-ticker.C:
			if !send() {
				return
			}
		}
	}
}
