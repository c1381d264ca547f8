package webapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/ixado/ixado/internal/controlcenter"
	"github.com/ixado/ixado/internal/model"
	"github.com/ixado/ixado/internal/registry"
	"github.com/ixado/ixado/internal/supervisor"
)

// ErrorResponse is the body of every non-2xx response (spec.md §6: "errors
// return {error: string}").
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	st, err := s.cc.GetState()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type createPhaseRequest struct {
	Name       string `json:"name"`
	BranchName string `json:"branchName"`
}

func (s *Server) handleCreatePhase(w http.ResponseWriter, r *http.Request) {
	var req createPhaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Name == "" || req.BranchName == "" {
		writeError(w, http.StatusBadRequest, "name and branchName are required")
		return
	}
	phase, err := s.cc.CreatePhase(controlcenter.CreatePhaseParams{Name: req.Name, BranchName: req.BranchName})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, phase)
}

type setActivePhaseRequest struct {
	PhaseID string `json:"phaseId"`
}

func (s *Server) handleSetActivePhase(w http.ResponseWriter, r *http.Request) {
	var req setActivePhaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.PhaseID == "" {
		writeError(w, http.StatusBadRequest, "phaseId is required")
		return
	}
	if err := s.cc.SetActivePhase(req.PhaseID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createTaskRequest struct {
	PhaseID      string          `json:"phaseId"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Assignee     model.Assignee  `json:"assignee"`
	Dependencies []string        `json:"dependencies"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.PhaseID == "" || req.Title == "" {
		writeError(w, http.StatusBadRequest, "phaseId and title are required")
		return
	}
	task, err := s.cc.CreateTask(controlcenter.CreateTaskParams{
		PhaseID:      req.PhaseID,
		Title:        req.Title,
		Description:  req.Description,
		Assignee:     req.Assignee,
		Dependencies: req.Dependencies,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

type updateTaskRequest struct {
	PhaseID       string                   `json:"phaseId"`
	Status        *model.TaskStatus        `json:"status"`
	ResultContext *string                  `json:"resultContext"`
	ErrorLogs     *string                  `json:"errorLogs"`
	ErrorCategory *model.ExceptionCategory `json:"errorCategory"`
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	var req updateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.PhaseID == "" {
		writeError(w, http.StatusBadRequest, "phaseId is required")
		return
	}
	task, err := s.cc.UpdateTask(controlcenter.UpdateTaskParams{
		PhaseID:       req.PhaseID,
		TaskID:        taskID,
		Status:        req.Status,
		ResultContext: req.ResultContext,
		ErrorLogs:     req.ErrorLogs,
		ErrorCategory: req.ErrorCategory,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, task)
}

type taskRefRequest struct {
	PhaseID string `json:"phaseId"`
	TaskID  string `json:"taskId"`
}

func (s *Server) handleStartTask(w http.ResponseWriter, r *http.Request) {
	var req taskRefRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.PhaseID == "" || req.TaskID == "" {
		writeError(w, http.StatusBadRequest, "phaseId and taskId are required")
		return
	}
	task, err := s.cc.StartTask(req.PhaseID, req.TaskID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleResetTask(w http.ResponseWriter, r *http.Request) {
	var req taskRefRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.PhaseID == "" || req.TaskID == "" {
		writeError(w, http.StatusBadRequest, "phaseId and taskId are required")
		return
	}
	task, err := s.cc.ResetTaskToTodo(req.PhaseID, req.TaskID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// handleListAgents lists every registry row sorted by startedAt descending;
// records with a zero StartedAt (undated) sort last (spec.md §4.7).
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents := s.sup.List()
	sort.SliceStable(agents, func(i, j int) bool {
		ai, aj := agents[i].StartedAt, agents[j].StartedAt
		if ai.IsZero() != aj.IsZero() {
			return !ai.IsZero()
		}
		return ai.After(aj)
	})
	writeJSON(w, http.StatusOK, agents)
}

type startAgentRequest struct {
	Name        string          `json:"name"`
	Adapter     model.AdapterID `json:"adapter"`
	Command     string          `json:"command"`
	Args        []string        `json:"args"`
	Cwd         string          `json:"cwd"`
	ProjectName string          `json:"projectName"`
	PhaseID     string          `json:"phaseId"`
	TaskID      string          `json:"taskId"`
}

func (req startAgentRequest) toSpec(rootDir string) supervisor.Spec {
	spec := supervisor.Spec{
		Name:                 req.Name,
		Command:              req.Command,
		Args:                 req.Args,
		Cwd:                  req.Cwd,
		ApprovedAdapterSpawn: true,
	}
	if spec.Cwd == "" {
		spec.Cwd = rootDir
	}
	if req.Adapter != "" {
		id := req.Adapter
		spec.AdapterID = &id
	}
	if req.ProjectName != "" {
		spec.ProjectName = &req.ProjectName
	}
	if req.PhaseID != "" {
		spec.PhaseID = &req.PhaseID
	}
	if req.TaskID != "" {
		spec.TaskID = &req.TaskID
	}
	return spec
}

// handleStartAgent only ever spawns adapter-approved commands (spec.md §4.7
// "adapter-approved spawn only"); ApprovedAdapterSpawn is forced true here,
// it is never read from the request body.
func (s *Server) handleStartAgent(w http.ResponseWriter, r *http.Request) {
	var req startAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Command == "" {
		writeError(w, http.StatusBadRequest, "command is required")
		return
	}
	rec, err := s.sup.Start(r.Context(), req.toSpec(s.config.RootDir))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.metrics.agentsStarted.WithLabelValues(string(req.Adapter)).Inc()
	writeJSON(w, http.StatusAccepted, rec)
}

func (s *Server) handleKillAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := s.sup.Kill(id)
	if err != nil {
		writeNotFoundOrError(w, err)
		return
	}
	s.metrics.agentsKilled.Inc()
	writeJSON(w, http.StatusOK, rec)
}

type assignAgentRequest struct {
	PhaseID *string `json:"phaseId"`
	TaskID  *string `json:"taskId"`
}

func (s *Server) handleAssignAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req assignAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	rec, err := s.sup.Assign(id, req.PhaseID, req.TaskID)
	if err != nil {
		writeNotFoundOrError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleRestartAgent reconciles the agent's attached task back to TODO
// first; restart proceeds even if that reconcile call fails (spec.md §4.7:
// "restart proceeds even if reconcile throws"), since a dangling TODO
// mismatch is recoverable but a dropped restart request is not.
func (s *Server) handleRestartAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req startAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Command == "" {
		writeError(w, http.StatusBadRequest, "command is required")
		return
	}

	for _, a := range s.sup.List() {
		if a.ID == id && a.PhaseID != nil && a.TaskID != nil {
			if _, err := s.cc.ReconcileInProgressTaskToTodo(*a.PhaseID, *a.TaskID); err != nil {
				s.logger.Printf("warning: reconciling task for restarted agent %s: %v", id, err)
			}
			break
		}
	}

	rec, err := s.sup.Restart(r.Context(), id, req.toSpec(s.config.RootDir))
	if err != nil {
		writeNotFoundOrError(w, err)
		return
	}
	s.metrics.agentsRestarted.Inc()
	writeJSON(w, http.StatusAccepted, rec)
}

func writeNotFoundOrError(w http.ResponseWriter, err error) {
	if _, ok := err.(*registry.NotFoundError); ok {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}
