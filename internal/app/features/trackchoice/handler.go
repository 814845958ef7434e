// internal/app/features/trackchoice/handler.go
package trackchoice

import (
	"net/http"
	"strconv"
	"time"

	"github.com/campuskit/progresshub/internal/app/system/academicyear"
	"github.com/campuskit/progresshub/internal/app/system/apperrors"
	"github.com/campuskit/progresshub/internal/app/system/timeouts"
	"github.com/campuskit/progresshub/internal/app/system/trackselect"
	"github.com/campuskit/progresshub/internal/app/system/webjson"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Handler exposes the track selection registry: students submit a choice,
// administrators finalize and list.
type Handler struct {
	Registry *trackselect.Registry
	Validate *validator.Validate
	Log      *zap.Logger
}

func NewHandler(registry *trackselect.Registry, logger *zap.Logger) *Handler {
	return &Handler{
		Registry: registry,
		Validate: validator.New(),
		Log:      logger,
	}
}

type choiceRequest struct {
	Semester     int    `json:"semester" validate:"required,min=1,max=12"`
	Track        string `json:"track" validate:"required"`
	AcademicYear string `json:"academic_year"`
}

// HandleSetChoice handles PUT /track-choices/students/{id}: records the
// student's own choice for a semester.
func (h *Handler) HandleSetChoice(w http.ResponseWriter, r *http.Request) {
	studentID, err := pathID(r)
	if err != nil {
		webjson.WriteError(w, h.Log, err)
		return
	}
	var req choiceRequest
	if err := h.decode(r, &req); err != nil {
		webjson.WriteError(w, h.Log, err)
		return
	}
	year := req.AcademicYear
	if year == "" {
		year = academicyear.Default(time.Now())
	} else if !academicyear.Valid(year) {
		webjson.WriteError(w, h.Log, apperrors.Validation("academic_year", "want YYYY-YY, got %q", year))
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "set track choice")
	defer cancel()

	sel, err := h.Registry.SetChoice(ctx, studentID, req.Semester, req.Track, year)
	if err != nil {
		webjson.WriteError(w, h.Log, err)
		return
	}
	webjson.Write(w, http.StatusOK, sel)
}

type finalizeRequest struct {
	Semester     int    `json:"semester" validate:"required,min=1,max=12"`
	Track        string `json:"track" validate:"required"`
	ReviewedBy   string `json:"reviewed_by" validate:"required"`
	Remarks      string `json:"remarks"`
	AcademicYear string `json:"academic_year"`
}

// HandleFinalize handles POST /track-choices/students/{id}/finalize: the
// administrative action that fixes (or overrides) the track.
func (h *Handler) HandleFinalize(w http.ResponseWriter, r *http.Request) {
	studentID, err := pathID(r)
	if err != nil {
		webjson.WriteError(w, h.Log, err)
		return
	}
	var req finalizeRequest
	if err := h.decode(r, &req); err != nil {
		webjson.WriteError(w, h.Log, err)
		return
	}
	year := req.AcademicYear
	if year == "" {
		year = academicyear.Default(time.Now())
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "finalize track")
	defer cancel()

	sel, err := h.Registry.Finalize(ctx, studentID, req.Semester, req.Track, req.ReviewedBy, req.Remarks, year)
	if err != nil {
		webjson.WriteError(w, h.Log, err)
		return
	}
	webjson.Write(w, http.StatusOK, sel)
}

// HandleGetChoice handles GET /track-choices/students/{id}?semester=N.
// "Not yet chosen" is a 200 with a null body, not an error.
func (h *Handler) HandleGetChoice(w http.ResponseWriter, r *http.Request) {
	studentID, err := pathID(r)
	if err != nil {
		webjson.WriteError(w, h.Log, err)
		return
	}
	semester, err := strconv.Atoi(r.URL.Query().Get("semester"))
	if err != nil || semester < 1 {
		webjson.WriteError(w, h.Log, apperrors.Validation("semester", "semester query parameter must be a positive integer"))
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "get track choice")
	defer cancel()

	sel, err := h.Registry.GetChoice(ctx, studentID, semester)
	if err != nil {
		webjson.WriteError(w, h.Log, err)
		return
	}
	webjson.Write(w, http.StatusOK, sel)
}

// HandleList handles GET /track-choices with cohort query parameters.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	semester, err := strconv.Atoi(q.Get("semester"))
	if err != nil || semester < 1 {
		webjson.WriteError(w, h.Log, apperrors.Validation("semester", "semester query parameter must be a positive integer"))
		return
	}
	f := trackselect.Filter{
		DegreeProgram:      q.Get("degree_program"),
		Semester:           semester,
		AcademicYear:       q.Get("academic_year"),
		VerificationStatus: q.Get("verification_status"),
		Track:              q.Get("track"),
	}
	if f.DegreeProgram == "" {
		webjson.WriteError(w, h.Log, apperrors.Validation("degree_program", "degree_program query parameter is required"))
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "list track choices")
	defer cancel()

	rows, err := h.Registry.List(ctx, f)
	if err != nil {
		webjson.WriteError(w, h.Log, err)
		return
	}
	webjson.Write(w, http.StatusOK, rows)
}

func pathID(r *http.Request) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		return primitive.NilObjectID, apperrors.Validation("id", "malformed student id")
	}
	return id, nil
}

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
