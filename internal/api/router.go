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

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/system", s.handleSystem)

		r.Get("/setup", s.handleGetSetup)
		r.Get("/stage/position", s.handleGetPosition)
		r.Get("/history", s.handleListHistory)
		r.Get("/ws", s.handleWebSocket)

		// Routes that drive hardware are rate limited.
		r.Group(func(r chi.Router) {
			r.Use(s.rateLimitMiddleware)

			r.Route("/setup/slots/{slot}", func(r chi.Router) {
				r.Put("/", s.handleBindSlot)
				r.Delete("/", s.handleUnbindSlot)
			})

			r.Put("/stage/position", s.handleSetPosition)
			r.Post("/stage/{slot}/home", s.handleHome)
			r.Put("/stage/{slot}/velocity", s.handleSetVelocity)

			r.Put("/lasers/{slot}", s.handleSetLaser)
			r.Post("/snap", s.handleSnap)
		})
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
