// Package api exposes the keeper's operational surface: liveness and
// cycle statistics. It is backend automation telemetry, not a user API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/arbelos/dexkeeper/pkg/engine"
)

// StatsProvider is satisfied by *engine.Keeper.
type StatsProvider interface {
	Stats() engine.Stats
}

type Server struct {
	stats  StatsProvider
	router *mux.Router
	log    *zap.SugaredLogger
}

func NewServer(stats StatsProvider, log *zap.SugaredLogger) *Server {
	s := &Server{stats: stats, router: mux.NewRouter(), log: log}
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/stats", s.handleStats).Methods(http.MethodGet)
	return s
}

func (s *Server) Start(addr string) error {
	handler := cors.Default().Handler(s.router)
	s.log.Infow("api_listening", "addr", addr)
	return http.ListenAndServe(addr, handler)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.stats.Stats())
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warnw("response_encode_failed", "err", err)
	}
}
