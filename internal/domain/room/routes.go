package room

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns the read-only room API router
func (h *Handler) Routes(throttle func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	if throttle != nil {
		r.Use(throttle)
	}

	r.Get("/rooms", h.ListRooms)
	r.Get("/rooms/{id}", h.GetRoom)

	return r
}

// WSRoute returns the websocket endpoint handler
func (h *Handler) WSRoute() http.HandlerFunc {
	return h.WebSocket
}
