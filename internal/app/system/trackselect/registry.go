// internal/app/system/trackselect/registry.go
package trackselect

import (
	"context"
	"sort"
	"time"

	studentstore "github.com/campuskit/progresshub/internal/app/store/students"
	"github.com/campuskit/progresshub/internal/app/system/apperrors"
	"github.com/campuskit/progresshub/internal/app/system/normalize"
	"github.com/campuskit/progresshub/internal/app/system/status"
	"github.com/campuskit/progresshub/internal/domain/models"

	"github.com/microcosm-cc/bluemonday"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// maxWriteRetries bounds the read-modify-retry loop on a version conflict.
const maxWriteRetries = 5

// Stages maps a degree program to the semester at which its students choose a
// track. A student may only submit a choice for that semester, and only once
// their current semester has reached it.
type Stages map[string]int

// DefaultStages covers the programs this deployment runs.
var DefaultStages = Stages{
	"mca":   5,
	"btech": 7,
	"mtech": 3,
}

// Registry records and queries per-student, per-semester track choices.
type Registry struct {
	students *studentstore.Store
	stages   Stages
	sanitize *bluemonday.Policy
	log      *zap.Logger
}

func New(students *studentstore.Store, stages Stages, logger *zap.Logger) *Registry {
	if stages == nil {
		stages = DefaultStages
	}
	return &Registry{
		students: students,
		stages:   stages,
		sanitize: bluemonday.StrictPolicy(),
		log:      logger,
	}
}

// SetChoice records the student's own track choice for a semester. It never
// touches the finalized track; finalization is a separate administrative
// action (Finalize).
func (r *Registry) SetChoice(ctx context.Context, studentID primitive.ObjectID, semester int, track, academicYear string) (models.TrackSelection, error) {
	if !status.ValidTrack(track) {
		return models.TrackSelection{}, apperrors.Validation("track", "unknown track %q", track)
	}

	for attempt := 0; attempt <= maxWriteRetries; attempt++ {
		st, err := r.students.GetByID(ctx, studentID)
		if err != nil {
			return models.TrackSelection{}, err
		}
		if err := r.checkStage(st, semester); err != nil {
			return models.TrackSelection{}, err
		}

		now := time.Now().UTC()
		selections, sel := upsertSelection(st.Selections, semester, academicYear)
		sel.ChosenTrack = track
		sel.ChoiceSubmittedAt = &now
		sel.UpdatedAt = now
		selections[indexOf(selections, semester)] = *sel

		ok, err := r.students.ReplaceSelections(ctx, studentID, st.Version, selections)
		if err != nil {
			return models.TrackSelection{}, err
		}
		if ok {
			r.log.Info("track choice recorded",
				zap.String("student_id", studentID.Hex()),
				zap.Int("semester", semester),
				zap.String("track", track))
			return *sel, nil
		}
		// Version miss: re-read and reapply.
	}
	return models.TrackSelection{}, apperrors.ErrConflict
}

// Finalize is the administrative action that fixes a student's track for a
// semester. Overriding an already-finalized track records the displaced value
// in PreviousTrack. Remarks are sanitized before storage.
func (r *Registry) Finalize(ctx context.Context, studentID primitive.ObjectID, semester int, track, reviewedBy, remarks, academicYear string) (models.TrackSelection, error) {
	if !status.ValidTrack(track) {
		return models.TrackSelection{}, apperrors.Validation("track", "unknown track %q", track)
	}

	for attempt := 0; attempt <= maxWriteRetries; attempt++ {
		st, err := r.students.GetByID(ctx, studentID)
		if err != nil {
			return models.TrackSelection{}, err
		}

		now := time.Now().UTC()
		selections, sel := upsertSelection(st.Selections, semester, academicYear)
		if sel.FinalizedTrack != "" && sel.FinalizedTrack != track {
			sel.PreviousTrack = sel.FinalizedTrack
		}
		sel.FinalizedTrack = track
		sel.VerificationStatus = status.VerificationVerified
		sel.ReviewedBy = reviewedBy
		sel.ReviewedAt = &now
		sel.AdminRemarks = r.sanitize.Sanitize(remarks)
		sel.UpdatedAt = now
		selections[indexOf(selections, semester)] = *sel

		ok, err := r.students.ReplaceSelections(ctx, studentID, st.Version, selections)
		if err != nil {
			return models.TrackSelection{}, err
		}
		if ok {
			r.log.Info("track finalized",
				zap.String("student_id", studentID.Hex()),
				zap.Int("semester", semester),
				zap.String("track", track),
				zap.String("reviewed_by", reviewedBy))
			return *sel, nil
		}
	}
	return models.TrackSelection{}, apperrors.ErrConflict
}

// GetChoice returns the student's selection for a semester, or nil when no
// choice has been made yet. "Not yet chosen" is not an error.
func (r *Registry) GetChoice(ctx context.Context, studentID primitive.ObjectID, semester int) (*models.TrackSelection, error) {
	st, err := r.students.GetByID(ctx, studentID)
	if err != nil {
		return nil, err
	}
	for i := range st.Selections {
		if st.Selections[i].Semester == semester {
			sel := st.Selections[i]
			return &sel, nil
		}
	}
	return nil, nil
}

// Filter narrows List. Degree, Semester, and AcademicYear identify the
// cohort; VerificationStatus and Track are optional refinements. Track
// matches either the chosen or the finalized track.
type Filter struct {
	DegreeProgram      string
	Semester           int
	AcademicYear       string
	VerificationStatus string
	Track              string
}

// Row pairs a student with their matching selection for list output.
type Row struct {
	StudentID    primitive.ObjectID    `json:"student_id"`
	FullName     string                `json:"full_name"`
	Email        string                `json:"email,omitempty"`
	EnrollmentNo string                `json:"enrollment_no"`
	Selection    models.TrackSelection `json:"selection"`
}

// List returns the cohort's selections matching the filter, sorted by a
// stable deterministic key: case-insensitive email when both sides have one,
// hex student ID otherwise. Determinism is required for reproducible
// paginated and exported output.
func (r *Registry) List(ctx context.Context, f Filter) ([]Row, error) {
	if f.VerificationStatus != "" && !status.ValidVerification(f.VerificationStatus) {
		return nil, apperrors.Validation("verification_status", "unknown verification status %q", f.VerificationStatus)
	}
	if f.Track != "" && !status.ValidTrack(f.Track) {
		return nil, apperrors.Validation("track", "unknown track %q", f.Track)
	}

	students, err := r.students.ListWithSelections(ctx, studentstore.SelectionFilter{
		DegreeProgram:      f.DegreeProgram,
		Semester:           f.Semester,
		AcademicYear:       f.AcademicYear,
		VerificationStatus: f.VerificationStatus,
	})
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(students))
	for _, st := range students {
		for _, sel := range st.Selections {
			if !matches(sel, f) {
				continue
			}
			rows = append(rows, Row{
				StudentID:    st.ID,
				FullName:     st.FullName,
				Email:        st.Email,
				EnrollmentNo: st.EnrollmentNo,
				Selection:    sel,
			})
			break
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Email != "" && b.Email != "" {
			ae, be := normalize.Email(a.Email), normalize.Email(b.Email)
			if ae != be {
				return ae < be
			}
		}
		return a.StudentID.Hex() < b.StudentID.Hex()
	})
	return rows, nil
}

func matches(sel models.TrackSelection, f Filter) bool {
	if sel.Semester != f.Semester {
		return false
	}
	if f.AcademicYear != "" && sel.AcademicYear != f.AcademicYear {
		return false
	}
	if f.VerificationStatus != "" && sel.VerificationStatus != f.VerificationStatus {
		return false
	}
	if f.Track != "" && sel.ChosenTrack != f.Track && sel.FinalizedTrack != f.Track {
		return false
	}
	return true
}

// checkStage validates that the student is at the program stage for this
// choice point.
func (r *Registry) checkStage(st models.Student, semester int) error {
	stage, known := r.stages[normalize.Program(st.DegreeProgram)]
	if !known {
		return apperrors.Validation("degree_program", "program %q has no track choice point", st.DegreeProgram)
	}
	if semester != stage {
		return apperrors.Validation("semester", "track choice for %s is made in semester %d, not %d", st.DegreeProgram, stage, semester)
	}
	if st.CurrentSemester < stage {
		return apperrors.Validation("current_semester", "student is in semester %d, before the choice point %d", st.CurrentSemester, stage)
	}
	return nil
}

// upsertSelection returns the selections slice guaranteed to hold an entry
// for the semester, plus a pointer to a copy of that entry for the caller to
// fill in. At most one entry exists per semester.
func upsertSelection(selections []models.TrackSelection, semester int, academicYear string) ([]models.TrackSelection, *models.TrackSelection) {
	if i := indexOf(selections, semester); i >= 0 {
		sel := selections[i]
		if sel.AcademicYear == "" {
			sel.AcademicYear = academicYear
		}
		return selections, &sel
	}
	sel := models.TrackSelection{
		Semester:           semester,
		AcademicYear:       academicYear,
		VerificationStatus: status.VerificationPending,
	}
	return append(selections, sel), &sel
}

func indexOf(selections []models.TrackSelection, semester int) int {
	for i := range selections {
		if selections[i].Semester == semester {
			return i
		}
	}
	return -1
}
