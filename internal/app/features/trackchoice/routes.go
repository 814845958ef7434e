// internal/app/features/trackchoice/routes.go
package trackchoice

import (
	"github.com/go-chi/chi/v5"
)

func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.HandleList)
	r.Put("/students/{id}", h.HandleSetChoice)
	r.Get("/students/{id}", h.HandleGetChoice)
	r.Post("/students/{id}/finalize", h.HandleFinalize)

	return r
}
