package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ledgerly/dispatch/internal/classify"
	"github.com/ledgerly/dispatch/internal/dispatch"
	"github.com/ledgerly/dispatch/internal/retry"
)

// Server provides HTTP endpoints for health monitoring and operational
// intervention (circuit reset, error-metric reset, queue stats).
type Server struct {
	monitor    *Monitor
	queue      *dispatch.Queue
	executor   *retry.Executor
	classifier *classify.Classifier
	server     *http.Server
}

// NewServer creates the operational HTTP server.
func NewServer(
	monitor *Monitor,
	queue *dispatch.Queue,
	executor *retry.Executor,
	classifier *classify.Classifier,
	port int,
) *Server {
	mux := http.NewServeMux()
	s := &Server{
		monitor:    monitor,
		queue:      queue,
		executor:   executor,
		classifier: classifier,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/detailed", s.handleDetailed)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/admin/queue/stats", s.handleQueueStats)
	mux.HandleFunc("/admin/circuits", s.handleCircuits)
	mux.HandleFunc("/admin/circuits/reset", s.handleCircuitReset)
	mux.HandleFunc("/admin/errors", s.handleErrorMetrics)
	mux.HandleFunc("/admin/errors/reset", s.handleErrorReset)

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if report.Status == StatusCritical {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(map[string]string{"status": string(report.Status)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth(r.Context())
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

func (s *Server) handleQueueStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.queue.Stats())
}

func (s *Server) handleCircuits(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.executor.StatusAll())
}

func (s *Server) handleCircuitReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "missing key parameter", http.StatusBadRequest)
		return
	}

	ok := s.executor.Reset(key)
	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusNotFound)
	}
	json.NewEncoder(w).Encode(map[string]any{"key": key, "reset": ok})
}

func (s *Server) handleErrorMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.classifier.Metrics())
}

func (s *Server) handleErrorReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.classifier.ResetMetrics()
	w.WriteHeader(http.StatusNoContent)
}
