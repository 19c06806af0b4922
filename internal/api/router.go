package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check
		r.Get("/health", s.handleHealth)

		// Simulation control
		r.Route("/simulation", func(r chi.Router) {
			r.Get("/", s.handleSimulationStatus)
			r.Post("/pause", s.handlePause)
			r.Post("/resume", s.handleResume)
			r.Post("/stop", s.handleStop)
			r.Put("/speed", s.handleSetSpeed)
			r.Put("/cycle-delay", s.handleSetCycleDelay)
		})

		// Device endpoints
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)

			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Post("/connect", s.handleConnectDevice)
				r.Post("/disconnect", s.handleDisconnectDevice)
				r.Post("/commands/{command}", s.handleCallCommand)

				r.Route("/params", func(r chi.Router) {
					r.Get("/", s.handleListParams)
					r.Get("/{param}", s.handleGetParam)
					r.Put("/{param}", s.handleSetParam)
				})
			})
		})

		// Journal queries
		r.Route("/journal", func(r chi.Router) {
			r.Get("/transitions", s.handleListTransitions)
			r.Get("/snapshots", s.handleListSnapshots)
		})

		// WebSocket event stream
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
