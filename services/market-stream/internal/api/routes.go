// services/market-stream/internal/api/routes.go
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes собирает роутер управления сессией.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Route("/session", func(r chi.Router) {
		r.Post("/", h.StartSession)
		r.Delete("/", h.Logout)
		r.Post("/pause", h.Pause)
		r.Post("/resume", h.Resume)
	})
	r.Get("/status", h.Status)
	r.Get("/logs", h.Logs)
	r.Get("/logs/stream", h.LogStream)

	return r
}
