// Package server exposes sends and collection runs over HTTP for a UI
// layer, plus health and Prometheus endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blackcoderx/hive/pkg/logging"
	"github.com/blackcoderx/hive/pkg/orchestrator"
	"github.com/blackcoderx/hive/pkg/runner"
	"github.com/blackcoderx/hive/pkg/storage"
)

// Sender executes one send.
type Sender interface {
	Execute(ctx context.Context, nodeID, activeEnvID string, sslVerify bool) (*orchestrator.Result, error)
}

// CollectionRunner executes a collection run.
type CollectionRunner interface {
	Run(ctx context.Context, params runner.Params) (*runner.RunResult, error)
}

// EnvironmentLister lists environments.
type EnvironmentLister interface {
	ListEnvironments(ctx context.Context) ([]storage.Environment, error)
}

// Config wires the handler.
type Config struct {
	Sender       Sender
	Runner       CollectionRunner
	Environments EnvironmentLister
	Gatherer     prometheus.Gatherer // nil serves the default registry
	SSLVerify    bool                // used when a request omits ssl_verify
	Logger       *slog.Logger
}

// SendRequest is the body of POST /nodes/{id}/send.
type SendRequest struct {
	EnvironmentID string `json:"environment_id"`
	SSLVerify     *bool  `json:"ssl_verify,omitempty"`
}

// RunRequest is the body of POST /nodes/{id}/run.
type RunRequest struct {
	SendRequest
	StopOnFailure     bool `json:"stop_on_failure"`
	RequestsPerSecond int  `json:"requests_per_second"`
}

// SendResponse is the send result plus an error for failures that happened
// after the result was assembled.
type SendResponse struct {
	*orchestrator.Result
	Error string `json:"error,omitempty"`
}

type server struct {
	cfg Config
	log *slog.Logger
}

// NewHandler creates the HTTP handler.
func NewHandler(cfg Config) http.Handler {
	s := &server{cfg: cfg, log: cfg.Logger}
	if s.log == nil {
		s.log = logging.NewNop()
	}

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Post("/nodes/{id}/send", s.send)
	if cfg.Runner != nil {
		r.Post("/nodes/{id}/run", s.run)
	}
	if cfg.Environments != nil {
		r.Get("/environments", s.environments)
	}
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) health(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) send(w http.ResponseWriter, r *http.Request) {
	var body SendRequest
	if !s.decode(w, r, &body) {
		return
	}
	nodeID := chi.URLParam(r, "id")

	res, err := s.cfg.Sender.Execute(r.Context(), nodeID, body.EnvironmentID, s.sslVerify(body.SSLVerify))
	if err != nil && res == nil {
		s.fail(w, "send", err)
		return
	}

	out := SendResponse{Result: res}
	if err != nil {
		s.log.Error("send completed with error", "node_id", nodeID, "error", err)
		out.Error = err.Error()
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *server) run(w http.ResponseWriter, r *http.Request) {
	var body RunRequest
	if !s.decode(w, r, &body) {
		return
	}

	res, err := s.cfg.Runner.Run(r.Context(), runner.Params{
		RootID:            chi.URLParam(r, "id"),
		EnvironmentID:     body.EnvironmentID,
		SSLVerify:         s.sslVerify(body.SSLVerify),
		StopOnFailure:     body.StopOnFailure,
		RequestsPerSecond: body.RequestsPerSecond,
	})
	if err != nil {
		s.fail(w, "run", err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *server) environments(w http.ResponseWriter, r *http.Request) {
	envs, err := s.cfg.Environments.ListEnvironments(r.Context())
	if err != nil {
		s.fail(w, "list environments", err)
		return
	}
	s.writeJSON(w, http.StatusOK, envs)
}

func (s *server) sslVerify(v *bool) bool {
	if v == nil {
		return s.cfg.SSLVerify
	}
	return *v
}

// decode reads an optional JSON body. An empty body is accepted.
func (s *server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		s.log.Warn("invalid request body", "path", r.URL.Path, "error", err)
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func (s *server) fail(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, storage.ErrNotFound) {
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		s.log.Error(op+" failed", "error", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("response encode failed", "error", err)
	}
}
