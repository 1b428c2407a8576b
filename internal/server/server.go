// Package server exposes the last prioritization result over HTTP for map
// and dashboard consumers.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/machado-saude/sector-priority/internal/config"
	"github.com/machado-saude/sector-priority/internal/export"
	"github.com/machado-saude/sector-priority/internal/model"
	"github.com/machado-saude/sector-priority/internal/pipeline"
)

// ErrRefreshInProgress is returned when a refresh is already running.
var ErrRefreshInProgress = eris.New("server: refresh already in progress")

// Runner computes a fresh prioritization result.
type Runner interface {
	Run(ctx context.Context) (*pipeline.Result, error)
}

// Server holds the last successful Result and serves it read-only. A refresh
// computes a new Result and swaps it in; readers never see a partial one.
type Server struct {
	runner         Runner
	refreshTimeout time.Duration
	origins        []string
	gatherer       prometheus.Gatherer

	mu     sync.RWMutex
	result *pipeline.Result

	refreshMu sync.Mutex
}

// New creates a Server. The gatherer backs /metrics and defaults to the
// global Prometheus registry.
func New(runner Runner, cfg config.ServerConfig, gatherer prometheus.Gatherer) *Server {
	timeout := time.Duration(cfg.RefreshTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		runner:         runner,
		refreshTimeout: timeout,
		origins:        cfg.AllowedOrigins,
		gatherer:       gatherer,
	}
}

// Result returns the current result, or nil before the first successful run.
func (s *Server) Result() *pipeline.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result
}

// SetResult replaces the served result.
func (s *Server) SetResult(r *pipeline.Result) {
	s.mu.Lock()
	s.result = r
	s.mu.Unlock()
}

// Refresh runs the pipeline and swaps the result on success. Concurrent
// refreshes are rejected with ErrRefreshInProgress.
func (s *Server) Refresh(ctx context.Context) (*pipeline.Result, error) {
	if !s.refreshMu.TryLock() {
		return nil, ErrRefreshInProgress
	}
	defer s.refreshMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.refreshTimeout)
	defer cancel()

	res, err := s.runner.Run(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "server: refresh")
	}
	s.SetResult(res)
	return res, nil
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/sectors", s.handleSectors)
	r.Get("/sectors.geojson", s.handleGeoJSON)
	r.Get("/incidence", s.handleIncidence)
	r.Get("/coverage", s.handleCoverage)
	r.Get("/summary", s.handleSummary)
	r.Post("/refresh", s.handleRefresh)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ok", "ready": false}
	if res := s.Result(); res != nil {
		body["ready"] = true
		body["run_id"] = res.RunID
		body["computed_at"] = res.ComputedAt
	}
	writeJSON(w, http.StatusOK, body)
}

// handleSectors answers the ranked table. ?limit=N keeps the first N rows.
func (s *Server) handleSectors(w http.ResponseWriter, r *http.Request) {
	res, ok := s.requireResult(w)
	if !ok {
		return
	}
	sectors := res.Ranked
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		if n < len(sectors) {
			sectors = sectors[:n]
		}
	}
	if sectors == nil {
		sectors = []model.RankedSector{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":      res.RunID,
		"computed_at": res.ComputedAt,
		"sectors":     sectors,
	})
}

func (s *Server) handleGeoJSON(w http.ResponseWriter, _ *http.Request) {
	res, ok := s.requireResult(w)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	if err := export.WriteGeoJSON(w, res.Ranked); err != nil {
		zap.L().Error("server: write geojson", zap.Error(err))
	}
}

// handleIncidence answers the weekly case series; ?format=csv returns the
// Data_Semanal,Casos table.
func (s *Server) handleIncidence(w http.ResponseWriter, r *http.Request) {
	res, ok := s.requireResult(w)
	if !ok {
		return
	}
	switch r.URL.Query().Get("format") {
	case "", "json":
		writeJSON(w, http.StatusOK, map[string]any{
			"weekly":           res.Weekly,
			"total_cases":      res.Weekly.Total(),
			"mean_incidence":   res.MeanIncidence,
			"incidence_source": res.IncidenceSource,
		})
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		if err := export.WriteWeeklyCSV(w, res.Weekly); err != nil {
			zap.L().Error("server: write weekly csv", zap.Error(err))
		}
	default:
		writeError(w, http.StatusBadRequest, "format must be json or csv")
	}
}

func (s *Server) handleCoverage(w http.ResponseWriter, _ *http.Request) {
	res, ok := s.requireResult(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"raw":      res.CoverageRaw,
		"unit":     res.CoverageUnit,
		"fraction": res.Coverage,
		"percent":  res.CoveragePercent(),
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	res, ok := s.requireResult(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, summaryBody(res))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	res, err := s.Refresh(r.Context())
	if eris.Is(err, ErrRefreshInProgress) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		zap.L().Error("server: refresh failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summaryBody(res))
}

func summaryBody(res *pipeline.Result) map[string]any {
	return map[string]any{
		"run_id":         res.RunID,
		"computed_at":    res.ComputedAt,
		"summary":        res.Summary,
		"mean_incidence": res.MeanIncidence,
		"coverage":       res.Coverage,
		"dropped":        res.Dropped(),
		"drops":          res.Drops,
	}
}

func (s *Server) requireResult(w http.ResponseWriter) (*pipeline.Result, bool) {
	res := s.Result()
	if res == nil {
		writeError(w, http.StatusServiceUnavailable, "no prioritization result yet")
		return nil, false
	}
	return res, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Error("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
