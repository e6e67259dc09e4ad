package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keralanet/floodwatch/pkg/model"
	"github.com/keralanet/floodwatch/pkg/store"
)

// Server exposes the read-only alert API for dashboard consumers. Handlers
// never mutate alert records.
type Server struct {
	store  store.Store
	mux    *http.ServeMux
	logger *slog.Logger
}

// NewServer creates an API server over the alert store. The gatherer serves
// /metrics; pass nil to use the default registry.
func NewServer(st store.Store, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		store:  st,
		mux:    http.NewServeMux(),
		logger: logger,
	}
	s.routes(gatherer)
	return s
}

func (s *Server) routes(gatherer prometheus.Gatherer) {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/alerts", s.handleAlerts)
	s.mux.HandleFunc("GET /api/v1/alerts/current", s.handleCurrent)
	s.mux.HandleFunc("GET /api/v1/stats", s.handleStats)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}

// Handler returns the HTTP handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	filter := store.Filter{
		District: model.District(r.URL.Query().Get("district")),
	}
	if level := r.URL.Query().Get("level"); level != "" {
		parsed, err := model.ParseAlertLevel(level)
		if err != nil {
			http.Error(w, "unknown alert level", http.StatusBadRequest)
			return
		}
		filter.Level = parsed
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = n
	}

	alerts, err := s.store.List(ctx, filter)
	if err != nil {
		s.logger.Error("list alerts", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(alerts)
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	alerts, err := s.store.Current(ctx)
	if err != nil {
		s.logger.Error("load current alerts", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(alerts)
}

// statsResponse aggregates the last seven days of alerts.
type statsResponse struct {
	Since   string                     `json:"since"`
	ByLevel map[model.AlertLevel]int64 `json:"by_level"`
	Total   int64                      `json:"total"`
	Current int                        `json:"districts_alerted"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	since := time.Now().UTC().AddDate(0, 0, -7)
	counts, err := s.store.CountByLevel(ctx, since)
	if err != nil {
		s.logger.Error("aggregate alert counts", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	current, err := s.store.Current(ctx)
	if err != nil {
		s.logger.Error("load current alerts", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := statsResponse{
		Since:   since.Format(time.RFC3339),
		ByLevel: counts,
		Current: len(current),
	}
	for _, n := range counts {
		resp.Total += n
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
