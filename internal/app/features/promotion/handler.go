// internal/app/features/promotion/handler.go
package promotion

import (
	"net/http"

	studentstore "github.com/campuskit/progresshub/internal/app/store/students"
	"github.com/campuskit/progresshub/internal/app/system/apperrors"
	"github.com/campuskit/progresshub/internal/app/system/promote"
	"github.com/campuskit/progresshub/internal/app/system/reconcile"
	"github.com/campuskit/progresshub/internal/app/system/tasks"
	"github.com/campuskit/progresshub/internal/app/system/timeouts"
	"github.com/campuskit/progresshub/internal/app/system/webjson"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Handler exposes the operator trigger surface for semester advancement and
// reconciliation. Authentication is the surrounding application's concern;
// these routes are expected to be mounted behind its admin gate.
type Handler struct {
	Scheduler  *promote.Scheduler
	Reconciler *reconcile.Reconciler
	Pipeline   *tasks.Pipeline
	Validate   *validator.Validate
	Log        *zap.Logger
}

func NewHandler(scheduler *promote.Scheduler, reconciler *reconcile.Reconciler, pipeline *tasks.Pipeline, logger *zap.Logger) *Handler {
	return &Handler{
		Scheduler:  scheduler,
		Reconciler: reconciler,
		Pipeline:   pipeline,
		Validate:   validator.New(),
		Log:        logger,
	}
}

type advanceRequest struct {
	DegreeProgram string `json:"degree_program" validate:"required"`
	FromSemester  int    `json:"from_semester" validate:"required,min=1,max=11"`
}

// HandleAdvance handles POST /promotion/advance: one bulk semester advance
// for a cohort, no downstream correction.
func (h *Handler) HandleAdvance(w http.ResponseWriter, r *http.Request) {
	var req advanceRequest
	if err := h.decode(r, &req); err != nil {
		webjson.WriteError(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Batch(), h.Log, "cohort advance")
	defer cancel()

	res, err := h.Scheduler.Advance(ctx, req.DegreeProgram, req.FromSemester)
	if err != nil {
		webjson.WriteError(w, h.Log, err)
		return
	}
	webjson.Write(w, http.StatusOK, res)
}

type reconcileRequest struct {
	DegreeProgram string `json:"degree_program"`
	MinSemester   int    `json:"min_semester" validate:"min=0,max=12"`
}

// HandleReconcile handles POST /promotion/reconcile: one reconciliation pass
// over the cohort. Partial failures come back inside the report, not as an
// HTTP error.
func (h *Handler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if err := h.decode(r, &req); err != nil {
		webjson.WriteError(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Batch(), h.Log, "reconciliation run")
	defer cancel()

	rep, err := h.Reconciler.Run(ctx, studentstore.CohortFilter{
		DegreeProgram: req.DegreeProgram,
		MinSemester:   req.MinSemester,
	})
	if err != nil {
		webjson.WriteError(w, h.Log, err)
		return
	}
	webjson.Write(w, http.StatusOK, rep)
}

// HandlePipeline handles POST /promotion/pipeline: the ordered advance-then-
// reconcile pair for one cohort.
func (h *Handler) HandlePipeline(w http.ResponseWriter, r *http.Request) {
	var req advanceRequest
	if err := h.decode(r, &req); err != nil {
		webjson.WriteError(w, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Batch(), h.Log, "promotion pipeline")
	defer cancel()

	res, err := h.Pipeline.Run(ctx, req.DegreeProgram, req.FromSemester)
	if err != nil {
		webjson.WriteError(w, h.Log, err)
		return
	}
	webjson.Write(w, http.StatusOK, res)
}

// decode unmarshals and validates a request payload, normalizing validator
// failures into the app's ValidationError shape.
func (h *Handler) decode(r *http.Request, v any) error {
	if err := webjson.Decode(r, v); err != nil {
		return err
	}
	if err := h.Validate.Struct(v); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			return apperrors.Validation(errs[0].Field(), "failed %q validation", errs[0].Tag())
		}
		return apperrors.Validation("body", "invalid request")
	}
	return nil
}
