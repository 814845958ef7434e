// internal/app/system/tasks/pipeline.go
package tasks

import (
	"context"
	"fmt"

	studentstore "github.com/campuskit/progresshub/internal/app/store/students"
	"github.com/campuskit/progresshub/internal/app/system/promote"
	"github.com/campuskit/progresshub/internal/app/system/reconcile"

	"go.uber.org/zap"
)

// Pipeline couples the semester advance and the reconciliation pass into one
// ordered two-step job over the same cohort. The two components stay
// separately invocable for operators, but the pipeline is the supported way
// to run the pair: advance first, then reconcile, never the reverse.
type Pipeline struct {
	scheduler  *promote.Scheduler
	reconciler *reconcile.Reconciler
	log        *zap.Logger
}

func NewPipeline(scheduler *promote.Scheduler, reconciler *reconcile.Reconciler, logger *zap.Logger) *Pipeline {
	return &Pipeline{scheduler: scheduler, reconciler: reconciler, log: logger}
}

// PipelineResult reports both steps of one pipeline run.
type PipelineResult struct {
	Advance   promote.AdvanceResult `json:"advance"`
	Reconcile reconcile.Report      `json:"reconcile"`
}

// Run advances the (degreeProgram, fromSemester) cohort, then reconciles the
// advanced cohort. When the advance fails nothing is reconciled; when it
// succeeds the reconciliation covers every student now at or past the new
// semester, so a student missed by an earlier partial run is swept up too.
func (p *Pipeline) Run(ctx context.Context, degreeProgram string, fromSemester int) (PipelineResult, error) {
	var out PipelineResult

	adv, err := p.scheduler.Advance(ctx, degreeProgram, fromSemester)
	if err != nil {
		return out, fmt.Errorf("advance cohort: %w", err)
	}
	out.Advance = adv

	rep, err := p.reconciler.Run(ctx, studentstore.CohortFilter{
		DegreeProgram: degreeProgram,
		MinSemester:   adv.ToSemester,
	})
	if err != nil {
		return out, fmt.Errorf("reconcile cohort: %w", err)
	}
	out.Reconcile = rep

	p.log.Info("promotion pipeline finished",
		zap.String("degree_program", degreeProgram),
		zap.Int("from_semester", fromSemester),
		zap.Int64("students_advanced", adv.StudentsAdvanced),
		zap.Int("students_reconciled", rep.StudentsProcessed),
		zap.Int("errors", len(rep.Errors)))
	return out, nil
}
