package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/proctrace/internal/logging"
	"github.com/aretw0/proctrace/pkg/domain"
	"github.com/aretw0/proctrace/pkg/hub"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Processes is the read side of the process registry.
type Processes interface {
	List() []*domain.Process
	GetProcess(ctx context.Context, processName string) (*domain.Process, bool)
}

// Server serves the process API and the observer push channels.
type Server struct {
	Processes Processes
	Hub       *hub.Hub

	gatherer prometheus.Gatherer
	version  string
	logger   *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithGatherer exposes the metrics of g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithVersion reports v on /health.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// SubscribeRequest is the body of POST /api/sse/subscribe.
type SubscribeRequest struct {
	SessionKey string   `json:"sessionKey"`
	Topics     []string `json:"topics"`
}

// NewHandler creates the HTTP handler.
func NewHandler(processes Processes, h *hub.Hub, opts ...Option) http.Handler {
	server := &Server{
		Processes: processes,
		Hub:       h,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(server)
	}

	r := chi.NewRouter()
	r.Get("/health", server.GetHealth)
	if server.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(server.gatherer, promhttp.HandlerOpts{}))
	}
	r.Route("/api", func(r chi.Router) {
		r.Get("/sse/connect", server.Connect)
		r.Post("/sse/subscribe", server.Subscribe)
		r.Delete("/sse/{sessionKey}", server.CloseSession)
		r.Get("/processes", server.ListProcesses)
		r.Get("/processes/*", server.GetProcess)
	})
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok"}
	if s.version != "" {
		resp["version"] = s.version
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// Connect handles GET /api/sse/connect. It streams frames of the session channel as
// server-sent events until the client goes away or the channel completes.
func (s *Server) Connect(w http.ResponseWriter, r *http.Request) {
	sessionKey := strings.TrimSpace(r.URL.Query().Get("sessionKey"))
	if sessionKey == "" {
		http.Error(w, "sessionKey is required", http.StatusBadRequest)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("Connect: streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := s.Hub.Connect(sessionKey)
	s.logger.Info("SSE client connected", "session_id", sessionKey)

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE client disconnected", "session_id", sessionKey)
			ch.Complete()
			return
		case <-ch.Done():
			return
		case f := <-ch.Frames():
			if err := writeFrame(w, f); err != nil {
				s.logger.Warn("SSE write failed", "session_id", sessionKey, "err", err)
				ch.CompleteWithError(err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeFrame(w http.ResponseWriter, f hub.Frame) error {
	if f.Event == nil {
		_, err := fmt.Fprintf(w, "retry: %d\n\n", f.Retry.Milliseconds())
		return err
	}
	data, err := json.Marshal(f.Event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// Subscribe handles POST /api/sse/subscribe and replies with the resulting topic set.
func (s *Server) Subscribe(w http.ResponseWriter, r *http.Request) {
	var body SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("Subscribe: invalid request body", "err", err)
		return
	}
	if body.SessionKey == "" {
		http.Error(w, "sessionKey is required", http.StatusBadRequest)
		return
	}
	s.writeJSON(w, http.StatusOK, s.Hub.Subscribe(body.SessionKey, body.Topics))
}

// CloseSession handles DELETE /api/sse/{sessionKey}.
func (s *Server) CloseSession(w http.ResponseWriter, r *http.Request) {
	s.Hub.Close(chi.URLParam(r, "sessionKey"))
	w.WriteHeader(http.StatusNoContent)
}

// ListProcesses handles GET /api/processes.
func (s *Server) ListProcesses(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Processes.List())
}

// GetProcess handles GET /api/processes/{name}. Names may contain slashes.
func (s *Server) GetProcess(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")
	if name == "" {
		http.Error(w, "process name is required", http.StatusBadRequest)
		return
	}
	process, ok := s.Processes.GetProcess(r.Context(), name)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{
			"error": fmt.Errorf("%w: %s", domain.ErrProcessNotFound, name).Error(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, process)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("Response encode failed", "err", err)
	}
}
