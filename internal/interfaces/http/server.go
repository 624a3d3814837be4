// Package http serves the operational surface: liveness, engine status, and
// Prometheus metrics.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"

	"github.com/stockpulse/stockpulse/internal/domain"
	"github.com/stockpulse/stockpulse/internal/strategy"
)

// Manager exposes per-strategy status.
type Manager interface {
	Status() []strategy.Status
}

// Recommendations exposes lifecycle counts.
type Recommendations interface {
	Counts(ctx context.Context) (map[domain.RecommendationStatus]int, error)
}

// Server is the ops HTTP server.
type Server struct {
	listen    string
	manager   Manager
	recs      Recommendations
	registry  *prometheus.Registry
	log       zerolog.Logger
	startedAt time.Time

	srv *http.Server
}

// NewServer builds the ops server.
func NewServer(listen string, manager Manager, recs Recommendations, registry *prometheus.Registry, log zerolog.Logger) *Server {
	s := &Server{
		listen:    listen,
		manager:   manager,
		recs:      recs,
		registry:  registry,
		log:       log.With().Str("component", "ops_http").Logger(),
		startedAt: time.Now(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	s.srv = &http.Server{
		Addr:         listen,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start serves until Shutdown. It returns when the listener closes.
func (s *Server) Start() error {
	s.log.Info().Str("listen", s.listen).Msg("ops server listening")
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

type healthResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	MetricSeries  int     `json:"metric_series"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	families, err := s.registry.Gather()
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, healthResponse{Status: "degraded"})
		return
	}
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
		MetricSeries:  seriesCount(families),
	})
}

func seriesCount(families []*dto.MetricFamily) int {
	n := 0
	for _, f := range families {
		n += len(f.GetMetric())
	}
	return n
}

type statusResponse struct {
	Strategies      []strategy.Status                   `json:"strategies"`
	Recommendations map[domain.RecommendationStatus]int `json:"recommendations"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := s.recs.Counts(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("recommendation counts failed")
		counts = nil
	}
	s.writeJSON(w, http.StatusOK, statusResponse{
		Strategies:      s.manager.Status(),
		Recommendations: counts,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("response encode failed")
	}
}
