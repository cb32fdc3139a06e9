// Package server exposes the training and retrieval services over a
// REST API with a websocket channel for live job progress.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Server wraps the HTTP server with lifecycle management.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Server listening on port with all routes wired.
func New(port string, h *Handlers, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		httpServer: &http.Server{
			Addr:         ":" + port,
			Handler:      Router(h, logger),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 120 * time.Second, // generation responses can be slow
			IdleTimeout:  120 * time.Second,
		},
		logger: logger,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Router builds the chi router over h.
func Router(h *Handlers, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestLogger(logger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/agents/{agentID}/train", h.Train)
		r.Post("/agents/{agentID}/ask", h.Ask)
		r.Delete("/agents/{agentID}", h.DeleteAgent)
		r.Get("/agents/{agentID}/stats", h.AgentStats)

		r.Get("/jobs", h.ListJobs)
		r.Get("/jobs/{jobID}", h.GetJob)
		r.Get("/jobs/{jobID}/watch", h.WatchJob)

		r.Get("/config/retrieval", h.GetRetrievalConfig)
		r.Put("/config/retrieval", h.PutRetrievalConfig)

		r.Get("/metrics", h.Metrics)
	})

	return r
}
