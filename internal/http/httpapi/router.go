package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"reelgen/internal/http/handlers"
	"reelgen/internal/infra"
	"reelgen/internal/middleware"
)

func NewRouter(app *handlers.App, cfg *infra.Config) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimiddleware.RealIP,
		chimiddleware.Recoverer,
		middleware.Logger(app.Logger),
		middleware.CORS(cfg.CORSOrigins),
	)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/healthz", app.Health)

		r.Group(func(r chi.Router) {
			// RateLimit keys by user id, so it must run after AuthJWT has
			// put the caller in the request context.
			r.Use(
				middleware.AuthJWT(cfg.JWTSecret),
				middleware.RateLimit(cfg.RateLimitPerMin, time.Minute),
			)

			r.Route("/tasks", func(r chi.Router) {
				r.Post("/", app.TasksCreate)
				r.Get("/{task_id}", app.TaskStatus)
				r.Post("/{task_id}/publish", app.TaskPublish)
				r.Post("/{task_id}/reject", app.TaskReject)
			})

			r.Get("/me/credits", app.MeCredits)
			r.Get("/me/ledger", app.MeLedger)
			r.Get("/videos", app.VideosFeed)
		})
	})

	return r
}
