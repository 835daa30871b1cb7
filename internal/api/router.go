package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthTimeout bounds each component check behind /health.
const healthTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		if s.metrics != nil {
			r.Method(http.MethodGet, "/metrics", s.metrics)
		}

		r.Group(func(r chi.Router) {
			r.Use(s.rateLimitMiddleware)

			if s.secCfg.Auth.Enabled {
				r.Post("/token", s.handleToken)
			}

			r.Group(func(r chi.Router) {
				r.Use(s.authMiddleware)

				r.Post("/device_request", s.handleDeviceRequest)
				r.Get("/twins", s.handleTwins)
				r.Get("/dtu_state/{dtu_sn}", s.handleDTUState)
				r.Get("/sub_device_state/{dtu_sn}/{device_type}/{physical_id}", s.handleSubDeviceState)
				r.Get("/requests", s.handleListRequests)
				r.Get(s.wsPath(), s.handleWebSocket)
			})
		})
	})

	return r
}

// wsPath is the route of the twin feed relative to /api/v1.
func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return s.wsCfg.Path
}

// handleHealth reports the version and the state of each registered
// component. Any failing component turns the answer into a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := make(map[string]string, len(s.health))
	status, code := "ok", http.StatusOK

	for name, checker := range s.health {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		err := checker.HealthCheck(ctx)
		cancel()
		if err != nil {
			components[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
	})
}
