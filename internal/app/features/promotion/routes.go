// internal/app/features/promotion/routes.go
package promotion

import (
	"github.com/go-chi/chi/v5"
)

func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()

	r.Post("/advance", h.HandleAdvance)
	r.Post("/reconcile", h.HandleReconcile)
	r.Post("/pipeline", h.HandlePipeline)

	return r
}
