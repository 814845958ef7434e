// internal/app/features/groups/routes.go
package groups

import (
	"github.com/go-chi/chi/v5"
)

func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()

	r.Post("/{id}/status/validate", h.HandleValidateStatus)
	r.Get("/{id}/promotion-check", h.HandlePromotionCheck)
	r.Get("/{id}/audit", h.HandleAudit)

	return r
}
