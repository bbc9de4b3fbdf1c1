package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/colloquyhq/retrieval/internal/api"
	"github.com/colloquyhq/retrieval/internal/api/handlers"
	"github.com/colloquyhq/retrieval/internal/api/middleware"
)

type RouterConfig struct {
	ServiceToken    string
	DocumentHandler *handlers.DocumentHandler
	SearchHandler   *handlers.SearchHandler
	AnswerHandler   *handlers.AnswerHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.ServiceTokenAuth(cfg.ServiceToken))

		r.Route("/documents", func(r chi.Router) {
			r.Post("/changed", cfg.DocumentHandler.Changed)
			r.Post("/{type}/{id}/reindex", cfg.DocumentHandler.Reindex)
			r.Delete("/{type}/{id}", cfg.DocumentHandler.Delete)
		})

		r.Post("/search", cfg.SearchHandler.Search)
		r.Get("/suggest", cfg.SearchHandler.Suggest)
		r.Post("/answer", cfg.AnswerHandler.Answer)
	})

	return r
}
