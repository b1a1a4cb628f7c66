package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(middleware.RequestSize(maxBodyBytes))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/system", s.handleSystem)

		r.Route("/valves", func(r chi.Router) {
			r.Get("/", s.handleListValves)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetValve)
				r.Put("/position", s.handleSetPosition)
			})
		})

		r.Get("/queue", s.handleQueue)
		r.Get("/calibration", s.handleCalibration)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"valves":  s.valves.Len(),
	})
}
