package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// readinessProbeTimeout bounds each dependency probe during GET /readyz.
const readinessProbeTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Probes (no auth required)
	r.Get("/health", s.handleHealth)
	r.Get("/readyz", s.handleReadyz)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/actuate", s.handleActuate)
		r.Post("/actuate/async", s.handleActuateAsync)

		r.Route("/actions/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetAction)
			r.Post("/confirm", s.handleConfirmAction)
			r.Post("/deny", s.handleDenyAction)
		})

		r.Get("/telemetry/recent", s.handleRecentTelemetry)
		r.Get("/audit", s.handleListAudit)

		r.Route("/vdi/tasks", func(r chi.Router) {
			r.Post("/browse", s.handleVDIBrowse)
			r.Post("/form-submit", s.handleVDIFormSubmit)
			r.Post("/download", s.handleVDIDownload)
		})

		// WebSocket telemetry stream
		wsPath := s.wsCfg.Path
		if wsPath == "" {
			wsPath = "/ws"
		}
		r.Get(wsPath, s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "actuation-core",
		"version": s.version,
	})
}

// handleReadyz probes the registered dependency checkers. Any failing
// probe turns the response into a 503 with per-dependency detail.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.readiness))
	ready := true

	for name, checker := range s.readiness {
		ctx, cancel := context.WithTimeout(r.Context(), readinessProbeTimeout)
		err := checker.HealthCheck(ctx)
		cancel()

		if err != nil {
			checks[name] = err.Error()
			ready = false
		} else {
			checks[name] = "ok"
		}
	}

	status := http.StatusOK
	state := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}

	writeJSON(w, status, map[string]any{
		"status": state,
		"checks": checks,
	})
}
