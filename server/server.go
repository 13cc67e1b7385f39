// Package server exposes the bot's health, metrics and snapshot endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hbdbot/bot"
)

// Bot is the part of the bot the status server reads and drives.
type Bot interface {
	Status() bot.Status
	Snapshot(ctx context.Context) error
}

// Server handles HTTP requests.
type Server struct {
	bot    Bot
	logger *slog.Logger
}

// New creates a new HTTP server handler.
func New(b Bot, logger *slog.Logger) *Server {
	return &Server{bot: b, logger: logger}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/savez", s.handleSave)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	// Configure server with timeouts to prevent resource exhaustion
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("Status server shutdown failed", "error", err)
		}
	}()

	s.logger.Info("Starting status server", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleRoot reports the bot status as JSON.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if err := json.NewEncoder(w).Encode(s.bot.Status()); err != nil {
		s.logger.Warn("Failed to write status response", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, s.logger, http.StatusOK, "healthy")
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.logger.Info("Snapshot endpoint triggered")

	err := s.bot.Snapshot(r.Context())
	switch {
	case errors.Is(err, bot.ErrNoCredentials):
		http.Error(w, "No access token configured", http.StatusConflict)
		return
	case err != nil:
		s.logger.Error("Snapshot failed", "error", err)
		http.Error(w, "Snapshot failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, s.logger, http.StatusOK, "saved")
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(map[string]string{"status": status}); err != nil {
		logger.Warn("Failed to write response", "error", err)
	}
}
