// Package api serves scan status and stored results over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"repogauge/internal/analyzer"
	"repogauge/internal/models"
	"repogauge/pkg/logger"
	"repogauge/pkg/metrics"
)

// Runner starts a scan. The orchestrator satisfies this.
type Runner interface {
	Run(ctx context.Context) (*analyzer.Report, error)
}

// StatisticsLister reads stored analysis records. The Postgres store
// satisfies this.
type StatisticsLister interface {
	ListStatistics(limit int) ([]models.RepositoryStatistics, error)
}

// Config holds API server configuration
type Config struct {
	Addr       string
	EnableCORS bool
	// BaseContext parents triggered scan runs, so cancelling it (for
	// example on SIGINT) also stops a scan started over HTTP. Nil means
	// context.Background().
	BaseContext context.Context
}

// Server exposes run control and results over HTTP.
type Server struct {
	config Config
	router *mux.Router
	runner Runner
	lister StatisticsLister
	log    *logger.Logger

	mu           sync.Mutex
	running      bool
	lastReport   *analyzer.Report
	lastError    error
	lastFinished time.Time
}

// NewServer creates the server. lister may be nil when no database is
// configured; /api/v1/repositories then serves the last in-memory report.
func NewServer(config Config, runner Runner, lister StatisticsLister, log *logger.Logger) *Server {
	if config.BaseContext == nil {
		config.BaseContext = context.Background()
	}
	s := &Server{
		config: config,
		router: mux.NewRouter(),
		runner: runner,
		lister: lister,
		log:    log,
	}
	s.setupRoutes()
	return s
}

// Start blocks serving HTTP until the listener fails.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.config.Addr).Msg("API server listening")
	return http.ListenAndServe(s.config.Addr, s.router)
}

// Handler returns the router, for mounting in tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/api/v1/status", s.handleStatus).Methods("GET")
	s.router.HandleFunc("/api/v1/scan", s.handleScan).Methods("POST")
	s.router.HandleFunc("/api/v1/repositories", s.handleListRepositories).Methods("GET")
	s.router.Handle("/metrics", metrics.Handler()).Methods("GET")

	if s.config.EnableCORS {
		s.router.Use(corsMiddleware)
	}
	s.router.Use(s.loggingMiddleware)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

type statusResponse struct {
	Running      bool      `json:"running"`
	LastFinished time.Time `json:"last_finished,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
	Completed    int       `json:"completed"`
	Failed       int       `json:"failed"`
	Paused       bool      `json:"paused"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := statusResponse{
		Running:      s.running,
		LastFinished: s.lastFinished,
	}
	if s.lastError != nil {
		resp.LastError = s.lastError.Error()
	}
	if s.lastReport != nil {
		resp.Completed = len(s.lastReport.Completed)
		resp.Failed = len(s.lastReport.Failures)
		resp.Paused = s.lastReport.Paused
	}
	s.mu.Unlock()

	respondJSON(w, http.StatusOK, resp)
}

// handleScan triggers a scan run in the background. Only one run may be
// active at a time.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		respondError(w, http.StatusConflict, "a scan is already running")
		return
	}
	s.running = true
	s.mu.Unlock()

	go func() {
		report, err := s.runner.Run(s.config.BaseContext)

		s.mu.Lock()
		s.running = false
		s.lastReport = report
		s.lastError = err
		s.lastFinished = time.Now()
		s.mu.Unlock()

		if err != nil {
			s.log.WithError(err).Error().Msg("triggered scan failed")
		}
	}()

	respondJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleListRepositories(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	if s.lister != nil {
		records, err := s.lister.ListStatistics(limit)
		if err != nil {
			s.log.WithError(err).Error().Msg("listing stored statistics failed")
			respondError(w, http.StatusInternalServerError, "failed to list repositories")
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"repositories": records,
			"count":        len(records),
		})
		return
	}

	s.mu.Lock()
	var records []models.RepositoryStatistics
	if s.lastReport != nil {
		records = s.lastReport.Completed
	}
	s.mu.Unlock()

	if len(records) > limit {
		records = records[:limit]
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"repositories": records,
		"count":        len(records),
	})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		fmt.Fprintf(w, `{"error":"encoding failed"}`)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("took", time.Since(start)).
			Msg("request handled")
	})
}
