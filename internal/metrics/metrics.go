// Package metrics exposes Prometheus instrumentation and the /healthz
// endpoint for the signal engine.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the signal engine.
type Metrics struct {
	TicksTotal    prometheus.Counter
	TickDur       prometheus.Histogram
	PairsOK       prometheus.Counter
	PairFailures  *prometheus.CounterVec // labels: reason
	CandlesTotal  prometheus.Counter
	SignalsTotal  *prometheus.CounterVec // labels: tier
	EntriesOpened prometheus.Counter
	EntriesClosed *prometheus.CounterVec // labels: reason
	PairDur       prometheus.Histogram
	StoreRetries  prometheus.Counter
	PublishErrors prometheus.Counter
	LastTickTime  prometheus.Gauge
	LevelRecalcs  prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_ticks_total",
			Help: "Total orchestrator ticks run",
		}),
		TickDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalengine_tick_duration_seconds",
			Help:    "Full tick latency",
			Buckets: prometheus.DefBuckets,
		}),
		PairsOK: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_pairs_processed_total",
			Help: "Pairs processed without error",
		}),
		PairFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalengine_pair_failures_total",
			Help: "Pair pipeline failures by reason",
		}, []string{"reason"}),
		CandlesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_candles_ingested_total",
			Help: "Candles upserted from the source",
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalengine_signals_total",
			Help: "Signals emitted by tier",
		}, []string{"tier"}),
		EntriesOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_entries_opened_total",
			Help: "Entries opened into VALIDATING",
		}),
		EntriesClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalengine_entries_closed_total",
			Help: "Entries closed by exit reason",
		}, []string{"reason"}),
		PairDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalengine_pair_duration_seconds",
			Help:    "Per-pair pipeline latency",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		StoreRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_store_retries_total",
			Help: "Persistence operations retried after a failure",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_publish_errors_total",
			Help: "Best-effort publish failures",
		}),
		LastTickTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalengine_last_tick_timestamp_seconds",
			Help: "Unix time of the last successful tick",
		}),
		LevelRecalcs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_level_recalcs_total",
			Help: "Support/resistance recalculation runs",
		}),
	}

	prometheus.MustRegister(
		m.TicksTotal, m.TickDur, m.PairsOK, m.PairFailures,
		m.CandlesTotal, m.SignalsTotal, m.EntriesOpened, m.EntriesClosed,
		m.PairDur, m.StoreRetries, m.PublishErrors, m.LastTickTime,
		m.LevelRecalcs,
	)
	return m
}

// HealthStatus tracks component health, exposed on /healthz.
type HealthStatus struct {
	mu sync.RWMutex

	SourceOK     bool      `json:"source_ok"`
	DBOK         bool      `json:"db_ok"`
	RedisOK      bool      `json:"redis_ok"`
	LastTickTime time.Time `json:"last_tick_time"`
	LastError    string    `json:"last_error"`

	DBLatencyMs float64   `json:"db_latency_ms"`
	LastCheckAt time.Time `json:"last_check_at"`
	StartedAt   time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now(), RedisOK: true}
}

func (h *HealthStatus) SetSourceOK(v bool) {
	h.mu.Lock()
	h.SourceOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisOK(v bool) {
	h.mu.Lock()
	h.RedisOK = v
	h.mu.Unlock()
}

// RecordTick notes a completed tick and its error, if any.
func (h *HealthStatus) RecordTick(ts time.Time, err error) {
	h.mu.Lock()
	h.LastTickTime = ts
	if err != nil {
		h.LastError = err.Error()
	} else {
		h.LastError = ""
	}
	h.mu.Unlock()
}

// CheckDB runs a ping and records latency + health.
func (h *HealthStatus) CheckDB(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.DBOK = err == nil
	h.DBLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, db *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if db != nil {
					h.CheckDB(probeCtx, db)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.DBOK || !h.SourceOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status       string  `json:"status"`
		Uptime       string  `json:"uptime"`
		SourceOK     bool    `json:"source_ok"`
		DBOK         bool    `json:"db_ok"`
		RedisOK      bool    `json:"redis_ok"`
		LastTickTime string  `json:"last_tick_time"`
		TickAge      string  `json:"tick_age"`
		LastError    string  `json:"last_error,omitempty"`
		DBLatencyMs  float64 `json:"db_latency_ms"`
		LastCheckAt  string  `json:"last_check_at"`
	}{
		Status:       overallStatus,
		Uptime:       time.Since(h.StartedAt).Round(time.Second).String(),
		SourceOK:     h.SourceOK,
		DBOK:         h.DBOK,
		RedisOK:      h.RedisOK,
		LastTickTime: h.LastTickTime.Format(time.RFC3339),
		TickAge:      tickAge,
		LastError:    h.LastError,
		DBLatencyMs:  h.DBLatencyMs,
		LastCheckAt:  h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: mux},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
