// Package api exposes the admin HTTP surface: settings, manual levels,
// magic lines and on-demand pipeline actions. Mutations persist through the
// store and take effect on the next tick, never mid-cycle.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"signal-systemv1/internal/level"
	"signal-systemv1/internal/model"
	"signal-systemv1/internal/pipeline"
)

// Server wires the admin endpoints.
type Server struct {
	store  model.Store
	levels *level.Provider
	orch   *pipeline.Orchestrator
	log    *slog.Logger
}

// NewServer creates the admin API server.
func NewServer(store model.Store, levels *level.Provider, orch *pipeline.Orchestrator, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{store: store, levels: levels, orch: orch, log: log.With("component", "api")}
}

// Router sets up HTTP routes for the admin API.
func (s *Server) Router() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/settings", s.handleSettings)
	mux.HandleFunc("/api/v1/levels/", s.handleLevels)
	mux.HandleFunc("/api/v1/magicline/", s.handleMagicLine)
	mux.HandleFunc("/api/v1/recalculate", s.handleRecalculate)
	mux.HandleFunc("/api/v1/process/", s.handleProcess)

	return mux
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.orch.Status())
}

// handleSettings reads or replaces the scoring configuration. A replacement
// is validated before it is stored; invalid settings never reach the store.
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		set, err := s.store.GetSettings(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, set)

	case http.MethodPut:
		var set model.Settings
		if err := json.NewDecoder(r.Body).Decode(&set); err != nil {
			http.Error(w, "bad settings payload: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := set.Validate(); err != nil {
			var ise *model.InvalidSettingsError
			if errors.As(err, &ise) {
				http.Error(w, err.Error(), http.StatusUnprocessableEntity)
				return
			}
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.store.SaveSettings(r.Context(), set); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		s.log.Info("settings updated")
		writeJSON(w, http.StatusOK, set)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type levelsPayload struct {
	Support    float64 `json:"support"`
	Resistance float64 `json:"resistance"`
}

// handleLevels sets manual support/resistance for a pair:
// PUT /api/v1/levels/{symbol}/{tf}. Zero clears an override.
func (s *Server) handleLevels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	symbol, tf, ok := pairFromPath(r.URL.Path, "/api/v1/levels/")
	if !ok {
		http.Error(w, "want /api/v1/levels/{symbol}/{tf}", http.StatusBadRequest)
		return
	}

	var p levelsPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "bad levels payload: "+err.Error(), http.StatusBadRequest)
		return
	}

	pair := model.Pair{Symbol: symbol, Timeframe: model.Timeframe(tf)}
	if err := s.levels.SetManualLevels(r.Context(), pair, p.Support, p.Resistance); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.log.Info("manual levels set", "pair", pair.Key(),
		"support", p.Support, "resistance", p.Resistance)
	writeJSON(w, http.StatusOK, s.levels.Levels(r.Context(), pair))
}

// handleMagicLine sets or clears the magic line for a symbol:
// PUT /api/v1/magicline/{symbol}.
func (s *Server) handleMagicLine(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	symbol := strings.TrimPrefix(r.URL.Path, "/api/v1/magicline/")
	if symbol == "" || strings.Contains(symbol, "/") {
		http.Error(w, "want /api/v1/magicline/{symbol}", http.StatusBadRequest)
		return
	}

	var m model.MagicLine
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		http.Error(w, "bad magic line payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	m.Symbol = symbol

	if err := s.levels.SetMagicLine(r.Context(), m); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.log.Info("magic line set", "symbol", symbol, "price", m.Price, "active", m.Active)
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.orch.RecalculateLevels(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recalculated"})
}

// handleProcess runs one pair through the pipeline outside the tick loop:
// POST /api/v1/process/{symbol}/{tf}.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	symbol, tf, ok := pairFromPath(r.URL.Path, "/api/v1/process/")
	if !ok {
		http.Error(w, "want /api/v1/process/{symbol}/{tf}", http.StatusBadRequest)
		return
	}

	if err := s.orch.ProcessPair(r.Context(), symbol, model.Timeframe(tf)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}

func pairFromPath(path, prefix string) (symbol, tf string, ok bool) {
	rest := strings.TrimPrefix(path, prefix)
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
