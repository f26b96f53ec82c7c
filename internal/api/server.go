// Package api serves the engine's JSON surface and the WebSocket
// subscription endpoint.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/intelsphere/apex-feeds/internal/broadcast"
	"github.com/intelsphere/apex-feeds/internal/config"
	"github.com/intelsphere/apex-feeds/internal/engine"
	"github.com/intelsphere/apex-feeds/internal/feeds"
)

const defaultRecentLimit = 50

// Server exposes engine status, recent intelligence, feed administration and
// the live subscription channel over HTTP.
type Server struct {
	cfg       config.ServerConfig
	logger    *slog.Logger
	processor *engine.Processor
	hub       *broadcast.Hub

	httpServer *http.Server
}

// NewServer wires the route table. hub may be nil when broadcast is disabled.
func NewServer(cfg config.ServerConfig, logger *slog.Logger, processor *engine.Processor, hub *broadcast.Hub) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		processor: processor,
		hub:       hub,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/intelligence/recent", s.handleRecent)
	mux.HandleFunc("POST /api/v1/feeds/{id}/reset", s.handleFeedReset)
	if hub != nil {
		mux.HandleFunc("GET /ws", hub.ServeWS)
	}

	s.httpServer = &http.Server{
		Addr:    cfg.Address,
		Handler: mux,
	}
	return s
}

// Start blocks serving HTTP until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	s.logger.Info("api server listening", slog.String("address", s.cfg.Address))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within the configured graceful timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.GracefulTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the route table, used by tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.processor.Status())
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records := s.processor.Recent(limit)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(records),
		"records": records,
	})
}

func (s *Server) handleFeedReset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := s.processor.ResetFeed(id); err != nil {
		var cfgErr *feeds.ConfigError
		if errors.As(err, &cfgErr) {
			s.writeError(w, http.StatusNotFound, cfgErr.Error())
			return
		}
		s.logger.Error("feed reset failed", slog.String("feed", id), slog.Any("error", err))
		s.writeError(w, http.StatusInternalServerError, "feed reset failed")
		return
	}

	s.logger.Info("feed reset", slog.String("feed", id))
	s.writeJSON(w, http.StatusOK, map[string]string{"feedId": id, "status": "active"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("encode response", slog.Any("error", err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
