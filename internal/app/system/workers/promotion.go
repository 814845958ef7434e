// internal/app/system/workers/promotion.go
package workers

import (
	"context"
	"sync"
	"time"

	"github.com/campuskit/progresshub/internal/app/system/tasks"
	"github.com/campuskit/progresshub/internal/app/system/timeouts"

	"go.uber.org/zap"
)

// Promotion is a background worker that runs the promotion pipeline
// (advance, then reconcile) for one configured cohort on a fixed interval.
// It exists for deployments that roll semesters on a schedule; operators can
// always trigger the same pipeline on demand through the admin endpoints.
type Promotion struct {
	pipeline      *tasks.Pipeline
	log           *zap.Logger
	interval      time.Duration
	degreeProgram string
	fromSemester  int
	stopCh        chan struct{}
	wg            sync.WaitGroup
}

// NewPromotion creates a promotion worker for the (degreeProgram,
// fromSemester) cohort.
func NewPromotion(pipeline *tasks.Pipeline, logger *zap.Logger, interval time.Duration, degreeProgram string, fromSemester int) *Promotion {
	return &Promotion{
		pipeline:      pipeline,
		log:           logger,
		interval:      interval,
		degreeProgram: degreeProgram,
		fromSemester:  fromSemester,
		stopCh:        make(chan struct{}),
	}
}

// Start begins the background loop.
func (w *Promotion) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("promotion worker started",
		zap.Duration("interval", w.interval),
		zap.String("degree_program", w.degreeProgram),
		zap.Int("from_semester", w.fromSemester))
}

// Stop signals the worker to stop and waits for it to finish.
func (w *Promotion) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("promotion worker stopped")
}

func (w *Promotion) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.runOnce()
		}
	}
}

func (w *Promotion) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.Batch())
	defer cancel()

	res, err := w.pipeline.Run(ctx, w.degreeProgram, w.fromSemester)
	if err != nil {
		w.log.Error("scheduled promotion pipeline failed", zap.Error(err))
		return
	}
	if res.Advance.StudentsAdvanced > 0 || len(res.Reconcile.Errors) > 0 {
		w.log.Info("scheduled promotion pipeline ran",
			zap.Int64("students_advanced", res.Advance.StudentsAdvanced),
			zap.Int("errors", len(res.Reconcile.Errors)))
	}
}
