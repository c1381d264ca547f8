// Package webapi implements the Web SSE Surface (spec.md §4.7): the HTTP API
// a local web UI uses to drive a project's Control-Center Service and watch
// its agents, plus the Prometheus metrics endpoint.
package webapi

import (
	"context"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/ixado/ixado/internal/config"
	"github.com/ixado/ixado/internal/controlcenter"
	"github.com/ixado/ixado/internal/gitops"
	"github.com/ixado/ixado/internal/supervisor"
)

// Config holds server configuration.
type Config struct {
	Addr        string // listen address, e.g. ":4173"
	ProjectName string
	RootDir     string
}

// Server is the HTTP server for one project's Control-Center Service.
type Server struct {
	config   Config
	cc       *controlcenter.Service
	sup      *supervisor.Supervisor
	repo     *gitops.Repo
	settings config.Settings
	metrics  *Metrics

	baseCtx context.Context
	cancel  context.CancelFunc
	httpSrv *http.Server
	logger  *log.Logger

	stateChangeMu   sync.Mutex
	stateChangeSeq  int
	stateChangeSubs map[int]chan int
}

// New wires a Server from its collaborators.
func New(cfg Config, cc *controlcenter.Service, sup *supervisor.Supervisor, repo *gitops.Repo, settings config.Settings) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:          cfg,
		cc:              cc,
		sup:             sup,
		repo:            repo,
		settings:        settings,
		metrics:         NewMetrics(),
		baseCtx:         ctx,
		cancel:          cancel,
		logger:          log.New(os.Stderr, "[ixado][webapi] ", log.LstdFlags),
		stateChangeSubs: make(map[int]chan int),
	}
	s.watchStateFile()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/state", s.handleGetState)
	mux.HandleFunc("GET /api/state/stream", s.handleStateStream)
	mux.HandleFunc("POST /api/phases", s.handleCreatePhase)
	mux.HandleFunc("POST /api/phases/active", s.handleSetActivePhase)
	mux.HandleFunc("POST /api/tasks", s.handleCreateTask)
	mux.HandleFunc("PATCH /api/tasks/{id}", s.handleUpdateTask)
	mux.HandleFunc("POST /api/tasks/start", s.handleStartTask)
	mux.HandleFunc("POST /api/tasks/reset", s.handleResetTask)
	mux.HandleFunc("GET /api/agents", s.handleListAgents)
	mux.HandleFunc("POST /api/agents/start", s.handleStartAgent)
	mux.HandleFunc("POST /api/agents/{id}/kill", s.handleKillAgent)
	mux.HandleFunc("POST /api/agents/{id}/assign", s.handleAssignAgent)
	mux.HandleFunc("POST /api/agents/{id}/restart", s.handleRestartAgent)
	mux.HandleFunc("GET /api/agents/{id}/logs/stream", s.handleAgentLogStream)
	mux.Handle("GET /metrics", s.metrics.Handler())

	s.httpSrv = &http.Server{
		Handler:      s.instrument(csrfProtect(mux)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE requires no write timeout
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	return s
}

// ListenAndServe starts the server and blocks until Shutdown is called or
// the listener fails.
func (s *Server) ListenAndServe() error {
	s.logger.Printf("listening on %s", s.config.Addr)
	s.httpSrv.Addr = s.config.Addr
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight connections (15s budget) and cancels baseCtx,
// which unblocks every open SSE stream.
func (s *Server) Shutdown() {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	_ = s.httpSrv.Shutdown(shutdownCtx)
	s.cancel()
}

// csrfProtect rejects cross-origin POST/PATCH requests carrying a non-local
// Origin header. Browsers set Origin automatically on cross-origin requests;
// CLI/programmatic callers either omit it or set it to match the server, so
// this blocks browser CSRF without affecting non-browser clients.
func csrfProtect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPatch {
			origin := r.Header.Get("Origin")
			if origin != "" {
				u, err := url.Parse(origin)
				if err != nil {
					writeError(w, http.StatusForbidden, "invalid Origin header")
					return
				}
				host := u.Hostname()
				if host != "localhost" && host != "127.0.0.1" && host != "::1" {
					writeError(w, http.StatusForbidden, "cross-origin request blocked")
					return
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}
