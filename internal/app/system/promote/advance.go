// internal/app/system/promote/advance.go
package promote

import (
	"context"

	studentstore "github.com/campuskit/progresshub/internal/app/store/students"
	"github.com/campuskit/progresshub/internal/app/system/apperrors"

	"go.uber.org/zap"
)

// Scheduler advances a cohort's semester counter. It performs no downstream
// group or project correction; that is the reconciler's job, and the two run
// as an ordered pipeline (advance, then reconcile) over the same cohort.
type Scheduler struct {
	students *studentstore.Store
	log      *zap.Logger
}

func New(students *studentstore.Store, logger *zap.Logger) *Scheduler {
	return &Scheduler{students: students, log: logger}
}

// AdvanceResult reports one bulk advance.
type AdvanceResult struct {
	DegreeProgram    string `json:"degree_program"`
	FromSemester     int    `json:"from_semester"`
	ToSemester       int    `json:"to_semester"`
	StudentsAdvanced int64  `json:"students_advanced"`
}

// Advance moves every student in (degreeProgram, fromSemester) to the next
// semester in a single bulk update, minimizing the window in which part of
// the cohort has advanced and part has not.
func (s *Scheduler) Advance(ctx context.Context, degreeProgram string, fromSemester int) (AdvanceResult, error) {
	if degreeProgram == "" {
		return AdvanceResult{}, apperrors.Validation("degree_program", "degree program is required")
	}
	if fromSemester < 1 {
		return AdvanceResult{}, apperrors.Validation("from_semester", "semester must be positive, got %d", fromSemester)
	}

	n, err := s.students.AdvanceCohort(ctx, degreeProgram, fromSemester)
	if err != nil {
		return AdvanceResult{}, err
	}

	res := AdvanceResult{
		DegreeProgram:    degreeProgram,
		FromSemester:     fromSemester,
		ToSemester:       fromSemester + 1,
		StudentsAdvanced: n,
	}
	s.log.Info("cohort advanced",
		zap.String("degree_program", degreeProgram),
		zap.Int("from_semester", fromSemester),
		zap.Int64("students", n))
	return res, nil
}
