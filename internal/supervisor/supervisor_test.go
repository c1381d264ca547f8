package supervisor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ixado/ixado/internal/registry"
)

func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	reg := registry.New(filepath.Join(t.TempDir(), "agents.json"), nil)
	return New(reg, nil)
}

func TestStartRejectsUnapprovedSpawn(t *testing.T) {
	s := newTestSupervisor(t)
	_, err := s.Start(context.Background(), Spec{Command: "echo", Args: []string{"hi"}})
	if _, ok := err.(*RawCommandBlockedError); !ok {
		t.Fatalf("expected RawCommandBlockedError, got %v", err)
	}
}

func TestStartRunsAndRecordsExit(t *testing.T) {
	s := newTestSupervisor(t)
	rec, err := s.Start(context.Background(), Spec{
		Name:                 "echo-agent",
		Command:              "echo",
		Args:                 []string{"hello"},
		Cwd:                  t.TempDir(),
		ApprovedAdapterSpawn: true,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		got, ok := s.reg.Get(rec.ID)
		if ok && got.Status != "RUNNING" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("agent never reached a terminal state")
}
