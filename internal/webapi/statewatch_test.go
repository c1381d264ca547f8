package webapi

import (
	"bufio"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestHandleStateStreamPushesOnFileWrite(t *testing.T) {
	s, _ := newTestServer(t)
	s.watchStateFile()

	req := httptest.NewRequest("GET", "/api/state/stream", nil)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		s.handleStateStream(rec, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)

	statePath := filepath.Join(s.config.RootDir, ".ixado", "state.json")
	b, err := os.ReadFile(statePath)
	if err != nil {
		t.Fatalf("reading seeded state: %v", err)
	}
	if err := os.WriteFile(statePath, b, 0o644); err != nil {
		t.Fatalf("rewriting state: %v", err)
	}

	time.Sleep(200 * time.Millisecond)
	s.cancel()
	<-done

	reader := bufio.NewReader(rec.Body)
	frames := 0
	for {
		line, err := reader.ReadString('\n')
		if strings.HasPrefix(line, "data: ") {
			frames++
		}
		if err != nil {
			break
		}
	}
	if frames < 1 {
		t.Fatalf("expected at least one data frame, got %d", frames)
	}
}
