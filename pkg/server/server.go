package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/nstogner/codechat/pkg/controller"
)

// Runner executes a snippet outside any conversation.
type Runner interface {
	Run(ctx context.Context, code string) string
}

// Server exposes the controller over HTTP and a websocket.
type Server struct {
	ctrl   *controller.Controller
	runner Runner

	mu  sync.Mutex
	srv *http.Server
}

// New creates a new Server.
func New(ctrl *controller.Controller, runner Runner) *Server {
	return &Server{
		ctrl:   ctrl,
		runner: runner,
	}
}

// Handler returns the routed API wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/state", s.handleState)

	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("DELETE /api/sessions", s.handleClearSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("POST /api/sessions/{id}/activate", s.handleActivateSession)
	mux.HandleFunc("GET /api/sessions/{id}/export", s.handleExportSession)

	mux.HandleFunc("POST /api/submit", s.handleSubmit)
	mux.HandleFunc("PUT /api/input", s.handleSetInput)
	mux.HandleFunc("POST /api/code-mode/toggle", s.handleToggleCodeMode)
	mux.HandleFunc("POST /api/sandbox/run", s.handleSandboxRun)

	// WebSocket
	mux.HandleFunc("/api/events", s.handleEventsWebSocket)

	return s.corsMiddleware(mux)
}

// Start starts the HTTP server. It blocks until the server stops.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	slog.Info("Starting web server", "addr", addr)
	return srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Verify origin in prod, allow all in dev
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		slog.Error("API Error", "error", err)
	} else {
		slog.Debug("API Error", "status", status, "error", err)
	}
	s.jsonResponse(w, status, map[string]string{"error": err.Error()})
}
