package controlplane

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/fentz26/ntbk/internal/logger"
	"github.com/fentz26/ntbk/internal/models"
	"github.com/fentz26/ntbk/internal/taskclient"
)

// Version is reported by /health; set at build time.
var Version = "dev"

const maxBodyBytes = 1 << 20

// Server provides the HTTP API for ntbk.
type Server struct {
	service *Service
	addr    string
	log     logger.Logger
	metrics http.Handler
	server  *http.Server
}

// NewServer creates a new HTTP server. metrics may be nil.
func NewServer(service *Service, addr string, log logger.Logger, metrics http.Handler) *Server {
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		service: service,
		addr:    addr,
		log:     log.With("component", "controlplane"),
		metrics: metrics,
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Task endpoints
	mux.HandleFunc("/tasks", s.handleTasks)
	mux.HandleFunc("/tasks/", s.handleTaskByID)

	mux.HandleFunc("/health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return mux
}

// Start serves until Shutdown. It returns http.ErrServerClosed after a clean shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.log.Info("starting ntbk daemon", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// handleTasks handles POST /tasks and GET /tasks
func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createTask(w, r)
	case http.MethodGet:
		s.listTasks(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleTaskByID handles /tasks/{id}/*
func (s *Server) handleTaskByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/tasks/")
	parts := strings.Split(path, "/")

	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "task id required", http.StatusBadRequest)
		return
	}

	taskID := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.getTask(w, r, taskID)
	case action == "cancel" && r.Method == http.MethodPost:
		s.cancelTask(w, r, taskID)
	case action == "audit" && r.Method == http.MethodGet:
		s.getTaskAudit(w, r, taskID)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// --- Task Handlers ---

// SubmitResponse is returned by POST /tasks.
type SubmitResponse struct {
	TaskID string `json:"task_id"`
}

// ListResponse is returned by GET /tasks.
type ListResponse struct {
	Active  []models.Task `json:"active"`
	History []models.Task `json:"history"`
}

// CancelResponse is returned by POST /tasks/{id}/cancel.
type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var req taskclient.SubmitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	id, err := s.service.Submit(r.Context(), req)
	if err != nil {
		s.fail(w, "submit task", err)
		return
	}
	writeJSON(w, http.StatusAccepted, SubmitResponse{TaskID: id})
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	active, history, err := s.service.ListTasks(r.Context())
	if err != nil {
		s.fail(w, "list tasks", err)
		return
	}
	writeJSON(w, http.StatusOK, ListResponse{Active: active, History: history})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request, taskID string) {
	task, err := s.service.GetTask(r.Context(), taskID)
	if err != nil {
		s.fail(w, "get task", err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) cancelTask(w http.ResponseWriter, r *http.Request, taskID string) {
	cancelled, err := s.service.Cancel(r.Context(), taskID)
	if err != nil {
		s.fail(w, "cancel task", err)
		return
	}
	writeJSON(w, http.StatusOK, CancelResponse{Cancelled: cancelled})
}

func (s *Server) getTaskAudit(w http.ResponseWriter, r *http.Request, taskID string) {
	entries, err := s.service.GetTaskAudit(r.Context(), taskID)
	if err != nil {
		s.fail(w, "get task audit", err)
		return
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// --- Health ---

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	OK      bool             `json:"ok"`
	DB      string           `json:"db"`
	Remote  string           `json:"remote"`
	Stats   taskclient.Stats `json:"stats"`
	Version string           `json:"version"`
	Time    string           `json:"time"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats, err := s.service.Health(r.Context())
	resp := HealthResponse{
		OK:      err == nil,
		DB:      "ok",
		Remote:  remoteState(stats),
		Stats:   stats,
		Version: Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK
	if err != nil {
		resp.DB = err.Error()
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// remoteState is "degraded" whenever tasks are being served from templates.
func remoteState(st taskclient.Stats) string {
	switch {
	case st.Offline:
		return "offline"
	case st.RemoteDown:
		return "degraded"
	default:
		return "ok"
	}
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	code := httpStatus(err)
	if code >= http.StatusInternalServerError {
		s.log.Error(op, "error", err)
	}
	http.Error(w, err.Error(), code)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
