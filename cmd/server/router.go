package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/textproc/internal/api/middleware"
	"github.com/phrazzld/textproc/internal/api/shared"
)

const healthCheckTimeout = 2 * time.Second

// pinger reports whether a backing dependency is reachable.
type pinger interface {
	Ping(ctx context.Context) error
}

// setupRouter creates and configures the application router.
func (app *application) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.TraceMiddleware(app.logger))

	r.Post("/process-text", app.handler.ProcessText)
	r.Get("/results/{task_id}", app.handler.GetTask)

	r.Route("/api/tasks", func(r chi.Router) {
		r.Post("/", app.handler.CreateTask)
		r.Get("/{task_id}", app.handler.GetTask)
		r.Patch("/{task_id}", app.handler.CompleteTask)
	})

	r.Get("/health", app.handleHealth)
	if app.metrics != nil {
		r.Method(http.MethodGet, "/metrics", app.metrics.Handler())
	}

	return r
}

func (app *application) handleHealth(w http.ResponseWriter, r *http.Request) {
	if app.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := app.health.Ping(ctx); err != nil {
			shared.RespondWithErrorAndLog(w, r, http.StatusServiceUnavailable,
				"Service temporarily unavailable", err)
			return
		}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}
