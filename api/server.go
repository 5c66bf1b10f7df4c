package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hgiraudo/rofex/internal/blotter"
	"github.com/hgiraudo/rofex/pkg/watch"
)

type Server struct {
	registry *watch.Registry
	trades   *blotter.Store
	logger   *logrus.Logger
	port     int
}

func NewServer(registry *watch.Registry, trades *blotter.Store, logger *logrus.Logger, port int) *Server {
	return &Server{
		registry: registry,
		trades:   trades,
		logger:   logger,
		port:     port,
	}
}

func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/rates", s.handleRates)
	mux.HandleFunc("/api/watchlist", s.handleWatchlist)
	mux.HandleFunc("/api/trades", s.handleTrades)

	handler := corsMiddleware(mux)

	s.logger.Infof("Starting API server on port %d", s.port)
	return http.ListenAndServe(fmt.Sprintf(":%d", s.port), handler)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleRates serves the per-maturity bucket snapshots with the best
// borrow/lend rates resolved.
func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, s.registry.Snapshot())
}

// handleWatchlist lists the watched pairs, or resolves a single future's
// underlying when ?future= is given.
func (s *Server) handleWatchlist(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if futureSymbol := r.URL.Query().Get("future"); futureSymbol != "" {
		underlying, ok := s.registry.Underlying(futureSymbol)
		if !ok {
			http.Error(w, "future not watched", http.StatusNotFound)
			return
		}
		s.writeJSON(w, http.StatusOK, underlying)
		return
	}

	s.writeJSON(w, http.StatusOK, s.registry.Pairs())
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	trades, err := s.trades.Recent(r.Context(), limit)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load trades")
		http.Error(w, "failed to load trades", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, trades)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}
