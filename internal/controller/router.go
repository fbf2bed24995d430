package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

func (c controller) GetMux() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(c.requestIdMw)
	r.Use(c.requestLoggingMw)
	r.Use(cors.AllowAll().Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		//nolint:errcheck
		w.Write([]byte("OK"))
	})

	r.Get("/ws", c.serveRelay)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/search", c.searchVideos)

		r.Route("/rooms/{room-id}", func(r chi.Router) {
			r.Get("/player", c.getPlayer)
			r.Post("/player", c.initPlayer)
			r.Get("/participants", c.getParticipants)
			r.Get("/history", c.getHistory)
			r.Get("/settings", c.getSettings)
			r.Put("/settings", c.setSettings)

			r.Route("/queue", func(r chi.Router) {
				r.Get("/", c.getQueue)
				r.Post("/", c.addQueueItem)
				r.Post("/advance", c.advanceQueue)
				r.Route("/{item-id}", func(r chi.Router) {
					r.Delete("/", c.removeQueueItem)
					r.Post("/move", c.moveQueueItem)
				})
			})

			r.Route("/messages", func(r chi.Router) {
				r.Get("/", c.getMessages)
				r.Post("/", c.sendMessage)
			})
		})
	})

	return r
}
