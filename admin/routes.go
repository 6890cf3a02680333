package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// NewRouter builds the chi router served under /api
func NewRouter(handlers *AdminHandlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Liveness checks need no secret
	r.Get("/health", handlers.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware)

		r.Get("/stats", handlers.handleStats)

		r.Route("/notifylist", func(r chi.Router) {
			r.Post("/", handlers.handleRegister)
			r.Get("/", handlers.handleListRegistrations)
		})

		r.Route("/keys/{key}", func(r chi.Router) {
			r.Get("/", handlers.handleGetKey)
			r.Put("/", handlers.handleSetKey)
			r.Delete("/", handlers.handleDeleteKey)
			r.Post("/expire", handlers.handleExpireKey)
		})

		r.Route("/lists/{key}", func(r chi.Router) {
			r.Get("/", handlers.handleListRange)
			r.Post("/pop", handlers.handleListPop)
		})
	})

	log.Info().Msg("HTTP API enabled at /api")
	return r
}
