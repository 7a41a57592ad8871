// Package httpapi exposes the dialogue engine over a small JSON HTTP API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aretw0/cadence/internal/logging"
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/aretw0/cadence/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Engine is the orchestrator surface the API binds to: advance a thread by one
// message, or resume a suspended action.
type Engine interface {
	Converse(ctx context.Context, threadID, message string) (*domain.TurnResult, error)
	Resume(ctx context.Context, threadID, token string, outputs map[string]any) (*domain.TurnResult, error)
}

// Server routes HTTP requests to the engine and the session manager.
type Server struct {
	engine   Engine
	sessions *session.Manager
	metrics  http.Handler
	logger   *slog.Logger
}

// Option configures the server.
type Option func(*Server)

// WithMetricsHandler mounts a handler at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewHandler builds the HTTP handler for the engine.
func NewHandler(engine Engine, sessions *session.Manager, opts ...Option) http.Handler {
	s := &Server{
		engine:   engine,
		sessions: sessions,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/threads", func(r chi.Router) {
		r.Get("/", s.listThreads)
		r.Route("/{threadID}", func(r chi.Router) {
			r.Get("/", s.getThread)
			r.Delete("/", s.deleteThread)
			r.Post("/messages", s.postMessage)
			r.Post("/resume", s.postResume)
		})
	})

	return r
}

// MessageRequest is the body of POST /threads/{threadID}/messages.
type MessageRequest struct {
	Message string `json:"message"`
}

// ResumeRequest is the body of POST /threads/{threadID}/resume.
type ResumeRequest struct {
	ResumeToken string         `json:"resume_token"`
	Outputs     map[string]any `json:"outputs,omitempty"`
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	var body MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("postMessage: invalid request body", "error", err)
		return
	}
	if body.Message == "" {
		http.Error(w, "Message must not be empty", http.StatusBadRequest)
		return
	}

	result, err := s.engine.Converse(r.Context(), threadID, body.Message)
	if err != nil {
		http.Error(w, fmt.Sprintf("Converse error: %v", err), http.StatusInternalServerError)
		s.logger.Error("converse failed", "thread_id", threadID, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, result, s.logger)
}

func (s *Server) postResume(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	var body ResumeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("postResume: invalid request body", "error", err)
		return
	}
	if body.ResumeToken == "" {
		http.Error(w, "resume_token must not be empty", http.StatusBadRequest)
		return
	}

	result, err := s.engine.Resume(r.Context(), threadID, body.ResumeToken, body.Outputs)
	if err != nil {
		if errors.Is(err, domain.ErrResumeMismatch) {
			http.Error(w, fmt.Sprintf("Resume rejected: %v", err), http.StatusConflict)
			return
		}
		http.Error(w, fmt.Sprintf("Resume error: %v", err), http.StatusInternalServerError)
		s.logger.Error("resume failed", "thread_id", threadID, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, result, s.logger)
}

func (s *Server) getThread(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	state, err := s.sessions.Load(r.Context(), threadID)
	if err != nil {
		if errors.Is(err, domain.ErrThreadNotFound) {
			http.Error(w, "Thread not found", http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("Load error: %v", err), http.StatusInternalServerError)
		s.logger.Error("load failed", "thread_id", threadID, "error", err)
		return
	}

	data, err := domain.EncodeState(state)
	if err != nil {
		http.Error(w, fmt.Sprintf("Encode error: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (s *Server) deleteThread(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	if err := s.sessions.Delete(r.Context(), threadID); err != nil {
		http.Error(w, fmt.Sprintf("Delete error: %v", err), http.StatusInternalServerError)
		s.logger.Error("delete failed", "thread_id", threadID, "error", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listThreads(w http.ResponseWriter, r *http.Request) {
	ids, err := s.sessions.List(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("List error: %v", err), http.StatusInternalServerError)
		s.logger.Error("list failed", "error", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"threads": ids}, s.logger)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, s.logger)
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("response encode failed", "error", err)
	}
}
