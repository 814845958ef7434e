// internal/app/features/groups/handler.go
package groups

import (
	"net/http"
	"strconv"

	"github.com/campuskit/progresshub/internal/app/system/apperrors"
	"github.com/campuskit/progresshub/internal/app/system/groupstatus"
	"github.com/campuskit/progresshub/internal/app/system/timeouts"
	"github.com/campuskit/progresshub/internal/app/system/webjson"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Handler exposes the group status engine: settle one group's status, check
// member promotion, and run the read-only semester audit.
type Handler struct {
	Engine *groupstatus.Engine
	Log    *zap.Logger
}

func NewHandler(engine *groupstatus.Engine, logger *zap.Logger) *Handler {
	return &Handler{Engine: engine, Log: logger}
}

// HandleValidateStatus handles POST /groups/{id}/status/validate: derive and
// persist the group's status from its current membership. Idempotent; a
// second call with no membership change reports status_changed=false.
func (h *Handler) HandleValidateStatus(w http.ResponseWriter, r *http.Request) {
	groupID, err := pathID(r)
	if err != nil {
		webjson.WriteError(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "validate group status")
	defer cancel()

	res, err := h.Engine.ValidateAndUpdate(ctx, groupID)
	if err != nil {
		webjson.WriteError(w, h.Log, err)
		return
	}
	webjson.Write(w, http.StatusOK, res)
}

// HandlePromotionCheck handles GET /groups/{id}/promotion-check?target=N.
func (h *Handler) HandlePromotionCheck(w http.ResponseWriter, r *http.Request) {
	groupID, err := pathID(r)
	if err != nil {
		webjson.WriteError(w, h.Log, err)
		return
	}
	target, err := strconv.Atoi(r.URL.Query().Get("target"))
	if err != nil || target < 1 {
		webjson.WriteError(w, h.Log, apperrors.Validation("target", "target query parameter must be a positive integer"))
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "promotion check")
	defer cancel()

	res, err := h.Engine.CheckAllMembersPromoted(ctx, groupID, target)
	if err != nil {
		webjson.WriteError(w, h.Log, err)
		return
	}
	webjson.Write(w, http.StatusOK, res)
}

// HandleAudit handles GET /groups/{id}/audit?semester=N: the read-only
// consistency audit. Never mutates.
func (h *Handler) HandleAudit(w http.ResponseWriter, r *http.Request) {
	groupID, err := pathID(r)
	if err != nil {
		webjson.WriteError(w, h.Log, err)
		return
	}
	semester, err := strconv.Atoi(r.URL.Query().Get("semester"))
	if err != nil || semester < 1 {
		webjson.WriteError(w, h.Log, apperrors.Validation("semester", "semester query parameter must be a positive integer"))
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "group audit")
	defer cancel()

	res, err := h.Engine.ValidateForSemester(ctx, groupID, semester)
	if err != nil {
		webjson.WriteError(w, h.Log, err)
		return
	}
	webjson.Write(w, http.StatusOK, res)
}

func pathID(r *http.Request) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		return primitive.NilObjectID, apperrors.Validation("id", "malformed group id")
	}
	return id, nil
}
