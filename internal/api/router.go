// Package api exposes the REST surface over the workflow service.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kd17290/workflow-automation/internal/service"
)

// NewRouter mounts the versioned API plus the root health endpoint used by
// load balancers.
func NewRouter(svc *service.WorkflowService, defaultPageLimit int) http.Handler {
	h := &Handlers{svc: svc, defaultPageLimit: defaultPageLimit}

	r := chi.NewRouter()
	r.Use(middleware.Logger)

	r.Get("/health", h.health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.health)

		r.Route("/workflows", func(r chi.Router) {
			r.Post("/", h.createWorkflow)
			r.Get("/", h.listWorkflows)
			r.Get("/{uuid}", h.getWorkflow)
			r.Delete("/{uuid}", h.deleteWorkflow)
		})

		r.Post("/trigger", h.trigger)

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", h.listRuns)
			r.Get("/{uuid}", h.getRun)
		})
	})

	return r
}
