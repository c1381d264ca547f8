package webapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ixado/ixado/internal/config"
	"github.com/ixado/ixado/internal/controlcenter"
	"github.com/ixado/ixado/internal/eventbus"
	"github.com/ixado/ixado/internal/gitops"
	"github.com/ixado/ixado/internal/model"
	"github.com/ixado/ixado/internal/registry"
	"github.com/ixado/ixado/internal/state"
	"github.com/ixado/ixado/internal/supervisor"
)

func newTestServer(t *testing.T) (*Server, *controlcenter.Service) {
	t.Helper()
	dir := t.TempDir()
	store := state.New(dir)
	if _, err := store.Initialize("demo", dir); err != nil {
		t.Fatal(err)
	}
	cc := controlcenter.New(store, eventbus.NewBus())
	reg := registry.New(filepath.Join(dir, "agents.json"), nil)
	sup := supervisor.New(reg, nil)
	repo := gitops.New(dir)
	s := New(Config{Addr: ":0", ProjectName: "demo", RootDir: dir}, cc, sup, repo, config.DefaultSettings())
	return s, cc
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.httpSrv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleGetStateReturnsEmptyPhases(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/state", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var st model.ProjectState
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if len(st.Phases) != 0 {
		t.Fatalf("phases = %v", st.Phases)
	}
}

func TestHandleCreatePhaseAndTaskLifecycle(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/phases", createPhaseRequest{Name: "p1", BranchName: "feature/p1"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create phase status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var phase model.Phase
	if err := json.Unmarshal(rec.Body.Bytes(), &phase); err != nil {
		t.Fatal(err)
	}

	rec = do(t, s, http.MethodPost, "/api/tasks", createTaskRequest{PhaseID: phase.ID, Title: "t1", Assignee: model.AssigneeMock})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create task status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var task model.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &task); err != nil {
		t.Fatal(err)
	}

	rec = do(t, s, http.MethodPost, "/api/tasks/start", taskRefRequest{PhaseID: phase.ID, TaskID: task.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("start task status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &task); err != nil {
		t.Fatal(err)
	}
	if task.Status != model.TaskInProgress {
		t.Fatalf("task status = %v", task.Status)
	}

	rec = do(t, s, http.MethodPost, "/api/tasks/reset", taskRefRequest{PhaseID: phase.ID, TaskID: task.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("reset task status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &task); err != nil {
		t.Fatal(err)
	}
	if task.Status != model.TaskTodo {
		t.Fatalf("task status after reset = %v", task.Status)
	}
}

func TestHandleCreatePhaseRejectsMissingFields(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/api/phases", createPhaseRequest{Name: "p1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCsrfProtectBlocksForeignOrigin(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/phases", bytes.NewBufferString(`{}`))
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	s.httpSrv.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestCsrfProtectAllowsLocalOrigin(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/phases", bytes.NewBufferString(`{"name":"p1","branchName":"b1"}`))
	req.Header.Set("Origin", "http://localhost:4173")
	rec := httptest.NewRecorder()
	s.httpSrv.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestHandleListAgentsReturnsEmptyListForFreshRegistry(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/agents", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var agents []model.AgentRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &agents); err != nil {
		t.Fatal(err)
	}
	if len(agents) != 0 {
		t.Fatalf("expected no agents on a fresh registry, got %v", agents)
	}
}

func TestHandleKillAgentNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/api/agents/missing/kill", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("expected non-empty metrics body")
	}
}
