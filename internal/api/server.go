package api

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"schemadvisor/internal/advisor"
	"schemadvisor/internal/collector"
	"schemadvisor/internal/history"
)

// AnalyzeFunc runs one analysis over an evidence snapshot.
type AnalyzeFunc func(
	ctx context.Context,
	queries []advisor.QueryPattern,
	tables []advisor.TableMetadata,
) ([]advisor.Recommendation, advisor.RunMetrics, error)

// CollectFunc gathers an evidence snapshot from a monitored database.
type CollectFunc func(
	ctx context.Context,
	cfg collector.ConnConfig,
	opts collector.Options,
	logger *slog.Logger,
) (collector.Result, error)

type databaseConnection struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
}

func parseConnConfig(c *databaseConnection) (collector.ConnConfig, error) {
	if c == nil {
		return collector.ConnConfig{}, errors.New("connection is required")
	}
	host := strings.TrimSpace(c.Host)
	user := strings.TrimSpace(c.User)
	if host == "" {
		return collector.ConnConfig{}, errors.New("connection.host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return collector.ConnConfig{}, errors.New("connection.port must be in 1..65535")
	}
	if user == "" {
		return collector.ConnConfig{}, errors.New("connection.user is required")
	}
	return collector.ConnConfig{
		Host:     host,
		Port:     c.Port,
		User:     user,
		Password: c.Password,
		Database: strings.TrimSpace(c.Database),
	}, nil
}

type Server struct {
	analyze        AnalyzeFunc
	collect        CollectFunc
	queryVersion   func(ctx context.Context, cfg collector.ConnConfig) (string, error)
	store          *history.Store
	logger         *slog.Logger
	collectTimeout time.Duration
}

// NewServer wires the HTTP surface. store may be nil, which disables run
// history. collect and queryVersion may be nil to use the real collector.
func NewServer(
	analyze AnalyzeFunc,
	collect CollectFunc,
	store *history.Store,
	collectTimeout time.Duration,
	logger *slog.Logger,
) http.Handler {
	if analyze == nil {
		panic("api: analyze func is required")
	}
	if collect == nil {
		collect = collector.Collect
	}
	if collectTimeout <= 0 {
		collectTimeout = 120 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	server := &Server{
		analyze:        analyze,
		collect:        collect,
		queryVersion:   collector.QueryVersion,
		store:          store,
		logger:         logger,
		collectTimeout: collectTimeout,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/health", server.handleHealth)
	mux.HandleFunc("/api/v1/analyze", server.handleAnalyze)
	mux.HandleFunc("/api/v1/collect/test", server.handleCollectTest)
	mux.HandleFunc("/api/v1/collect/analyze", server.handleCollectAnalyze)
	mux.HandleFunc("/api/v1/runs", server.handleRuns)
	mux.HandleFunc("/api/v1/runs/", server.handleRunByID)
	return withLocalOnly(withCORS(mux))
}

func isAllowedOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func withLocalOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		ip := net.ParseIP(host)
		if err != nil || ip == nil || !ip.IsLoopback() {
			writeError(w, http.StatusForbidden, "loopback only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && !isAllowedOrigin(origin) {
			writeError(w, http.StatusForbidden, "origin not allowed")
			return
		}
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			if origin != "" {
				w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorWithRequest(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeData(w, r, http.StatusOK, map[string]any{"ok": true})
}

type analyzeRequest struct {
	Queries []advisor.QueryPattern  `json:"queries"`
	Tables  []advisor.TableMetadata `json:"tables"`
}

type analyzeResponse struct {
	RunID           int64                    `json:"runId,omitempty"`
	Recommendations []advisor.Recommendation `json:"recommendations"`
	Metrics         advisor.RunMetrics       `json:"metrics"`
	Warnings        []string                 `json:"warnings,omitempty"`
}

// handleAnalyze analyzes a caller-supplied evidence snapshot.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorWithRequest(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req analyzeRequest
	if err := readJSON(w, r, &req); err != nil {
		writeErrorWithRequest(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Tables) == 0 {
		writeErrorWithRequest(w, r, http.StatusBadRequest, "tables are required")
		return
	}
	s.runAndRespond(w, r, req.Queries, req.Tables, nil)
}

func (s *Server) handleCollectTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorWithRequest(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		Connection *databaseConnection `json:"connection"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeErrorWithRequest(w, r, http.StatusBadRequest, err.Error())
		return
	}
	cfg, err := parseConnConfig(req.Connection)
	if err != nil {
		writeErrorWithRequest(w, r, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	cfg.ReadTimeout = 15 * time.Second
	cfg.WriteTimeout = 15 * time.Second
	version, err := s.queryVersion(ctx, cfg)
	if err != nil {
		writeErrorWithRequest(w, r, http.StatusBadRequest, err.Error())
		return
	}
	writeData(w, r, http.StatusOK, map[string]any{"version": version})
}

// handleCollectAnalyze collects an evidence snapshot from the monitored
// database and analyzes it in one call.
func (s *Server) handleCollectAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorWithRequest(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		Connection    *databaseConnection `json:"connection"`
		WindowDays    float64             `json:"windowDays"`
		MinExecutions int64               `json:"minExecutions"`
		MaxTables     int                 `json:"maxTables"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeErrorWithRequest(w, r, http.StatusBadRequest, err.Error())
		return
	}
	cfg, err := parseConnConfig(req.Connection)
	if err != nil {
		writeErrorWithRequest(w, r, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.collectTimeout)
	defer cancel()
	cfg.ReadTimeout = s.collectTimeout + 10*time.Second
	cfg.WriteTimeout = s.collectTimeout + 10*time.Second
	snapshot, err := s.collect(ctx, cfg, collector.Options{
		Database:      cfg.Database,
		WindowDays:    req.WindowDays,
		MinExecutions: req.MinExecutions,
		MaxTables:     req.MaxTables,
	}, s.logger)
	if err != nil {
		writeErrorWithRequest(w, r, http.StatusBadGateway, err.Error())
		return
	}
	s.runAndRespond(w, r, snapshot.Queries, snapshot.Tables, snapshot.Warnings)
}

func (s *Server) runAndRespond(
	w http.ResponseWriter,
	r *http.Request,
	queries []advisor.QueryPattern,
	tables []advisor.TableMetadata,
	warnings []string,
) {
	started := time.Now()
	recommendations, metrics, err := s.analyze(r.Context(), queries, tables)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, advisor.ErrCostModelConfiguration) {
			status = http.StatusBadRequest
		}
		writeErrorWithRequest(w, r, status, err.Error())
		return
	}

	resp := analyzeResponse{
		Recommendations: recommendations,
		Metrics:         metrics,
		Warnings:        warnings,
	}
	if s.store != nil {
		runID, err := s.store.SaveRun(r.Context(), started, recommendations, metrics)
		if err != nil {
			// The analysis succeeded; a history write failure only loses the
			// audit trail for this run.
			s.logger.Error("saving run history failed", "error", err)
		} else {
			resp.RunID = runID
		}
	}
	writeData(w, r, http.StatusOK, resp)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorWithRequest(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.store == nil {
		writeErrorWithRequest(w, r, http.StatusNotFound, "run history is disabled")
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeErrorWithRequest(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = v
	}
	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		writeErrorWithRequest(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	writeData(w, r, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleRunByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorWithRequest(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.store == nil {
		writeErrorWithRequest(w, r, http.StatusNotFound, "run history is disabled")
		return
	}
	raw := strings.TrimPrefix(r.URL.Path, "/api/v1/runs/")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeErrorWithRequest(w, r, http.StatusBadRequest, "run id must be a positive integer")
		return
	}
	detail, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeErrorWithRequest(w, r, http.StatusNotFound, "run not found")
			return
		}
		writeErrorWithRequest(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	writeData(w, r, http.StatusOK, detail)
}
