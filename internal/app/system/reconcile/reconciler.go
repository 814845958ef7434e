// internal/app/system/reconcile/reconciler.go
package reconcile

import (
	"context"
	"fmt"
	"sync"

	groupstore "github.com/campuskit/progresshub/internal/app/store/groups"
	projectstore "github.com/campuskit/progresshub/internal/app/store/projects"
	studentstore "github.com/campuskit/progresshub/internal/app/store/students"
	"github.com/campuskit/progresshub/internal/app/system/groupstatus"
	"github.com/campuskit/progresshub/internal/app/system/status"
	"github.com/campuskit/progresshub/internal/domain/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	// FinalSemester is the terminal semester in this domain. Groups at or
	// beyond it are outside the reconciler's group pass.
	FinalSemester = 8

	// DefaultWorkers bounds the pool that fans out per-entity work.
	DefaultWorkers = 4

	// maxWriteRetries bounds each read-modify-retry loop.
	maxWriteRetries = 5
)

// Reconciler converges student, group, and project records after a cohort's
// semester counter has advanced. Runs are idempotent and safe to re-run to
// completion: a second pass over unchanged data makes zero mutations.
type Reconciler struct {
	students *studentstore.Store
	groups   *groupstore.Store
	projects *projectstore.Store
	engine   *groupstatus.Engine
	workers  int
	log      *zap.Logger
}

func New(students *studentstore.Store, groups *groupstore.Store, projects *projectstore.Store, engine *groupstatus.Engine, workers int, logger *zap.Logger) *Reconciler {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Reconciler{
		students: students,
		groups:   groups,
		projects: projects,
		engine:   engine,
		workers:  workers,
		log:      logger,
	}
}

// BatchError records one entity's failure inside a batch. Failures never
// abort the batch; operators use the report to target manual follow-up.
type BatchError struct {
	Kind string `json:"kind"` // "student" | "group" | "project"
	ID   string `json:"id"`
	Msg  string `json:"msg"`
}

// Report is the structured result of one reconciliation run.
// CurrentProjectsUpdated and GroupMembershipsUpdated count students whose
// embedded arrays changed, not individual entries: one student with several
// stale entries contributes 1 (they are all closed in a single write).
type Report struct {
	RunID                   string       `json:"run_id"`
	StudentsProcessed       int          `json:"students_processed"`
	ProjectsUpdated         int          `json:"projects_updated"`
	CurrentProjectsUpdated  int          `json:"current_projects_updated"`
	GroupMembershipsUpdated int          `json:"group_memberships_updated"`
	GroupIDsCleared         int          `json:"group_ids_cleared"`
	GroupsDisbanded         int          `json:"groups_disbanded"`
	GroupsValidated         int          `json:"groups_validated"`
	Errors                  []BatchError `json:"errors"`
}

// Run executes one reconciliation pass over the cohort. Work across distinct
// students and distinct groups fans out over a bounded worker pool; the four
// steps within one student stay sequential because the later steps assume the
// earlier ones completed.
func (r *Reconciler) Run(ctx context.Context, cohort studentstore.CohortFilter) (Report, error) {
	report := Report{RunID: uuid.NewString()}
	log := r.log.With(zap.String("run_id", report.RunID))

	students, err := r.students.ListCohort(ctx, cohort)
	if err != nil {
		return report, fmt.Errorf("list cohort: %w", err)
	}

	var mu sync.Mutex
	r.forEach(len(students), func(i int) {
		st := students[i]
		counts, errs := r.reconcileStudent(ctx, st)
		mu.Lock()
		report.StudentsProcessed++
		report.ProjectsUpdated += counts.projects
		report.CurrentProjectsUpdated += counts.cacheEntries
		report.GroupMembershipsUpdated += counts.memberships
		report.GroupIDsCleared += counts.groupCleared
		report.Errors = append(report.Errors, errs...)
		mu.Unlock()
	})

	groups, err := r.groups.ListSemesterBelow(ctx, FinalSemester)
	if err != nil {
		return report, fmt.Errorf("list groups: %w", err)
	}

	r.forEach(len(groups), func(i int) {
		g := groups[i]
		disbanded, validated, errs := r.settleGroup(ctx, g)
		mu.Lock()
		if disbanded {
			report.GroupsDisbanded++
		}
		if validated {
			report.GroupsValidated++
		}
		report.Errors = append(report.Errors, errs...)
		mu.Unlock()
	})

	log.Info("reconciliation finished",
		zap.Int("students_processed", report.StudentsProcessed),
		zap.Int("projects_updated", report.ProjectsUpdated),
		zap.Int("groups_disbanded", report.GroupsDisbanded),
		zap.Int("groups_validated", report.GroupsValidated),
		zap.Int("errors", len(report.Errors)))
	return report, nil
}

// forEach fans n indexed jobs out over the worker pool and waits.
func (r *Reconciler) forEach(n int, job func(i int)) {
	sem := make(chan struct{}, r.workers)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			job(i)
		}(i)
	}
	wg.Wait()
}

type studentCounts struct {
	projects     int
	cacheEntries int
	memberships  int
	groupCleared int
}

// reconcileStudent runs the four close-out steps for one student, in order:
// stale projects completed, cache entries completed, memberships deactivated,
// stale active-group reference cleared. A failure in one step is recorded and
// the remaining steps still run; each step is independently idempotent.
func (r *Reconciler) reconcileStudent(ctx context.Context, st models.Student) (studentCounts, []BatchError) {
	var counts studentCounts
	var errs []BatchError
	fail := func(kind string, id primitive.ObjectID, err error) {
		errs = append(errs, BatchError{Kind: kind, ID: id.Hex(), Msg: err.Error()})
	}

	// Step 1: complete non-terminal projects from earlier semesters, whether
	// owned by the student or by a group the student actively belongs to
	// whose semester is behind.
	var staleGroupIDs []primitive.ObjectID
	for _, m := range st.GroupMemberships {
		if m.IsActive && m.Semester < st.CurrentSemester {
			staleGroupIDs = append(staleGroupIDs, m.GroupID)
		}
	}
	projects, err := r.projects.ListOpenBefore(ctx, st.ID, staleGroupIDs, st.CurrentSemester)
	if err != nil {
		fail("student", st.ID, fmt.Errorf("list stale projects: %w", err))
	} else {
		for _, p := range projects {
			changed, err := r.projects.Complete(ctx, p.ID, maxWriteRetries)
			if err != nil {
				fail("project", p.ID, err)
				continue
			}
			if changed {
				counts.projects++
			}
		}
	}

	// Step 2: the student's denormalized project cache.
	if n, err := r.students.CompleteStaleProjectRefs(ctx, st.ID, st.CurrentSemester); err != nil {
		fail("student", st.ID, fmt.Errorf("complete cached projects: %w", err))
	} else {
		counts.cacheEntries += int(n)
	}

	// Step 3: deactivate membership entries from earlier semesters.
	if n, err := r.students.DeactivateStaleMemberships(ctx, st.ID, st.CurrentSemester); err != nil {
		fail("student", st.ID, fmt.Errorf("deactivate memberships: %w", err))
	} else {
		counts.memberships += int(n)
	}

	// Step 4: clear the weak back-reference when it points at a stale group.
	if st.ActiveGroupID != nil {
		g, err := r.groups.GetByID(ctx, *st.ActiveGroupID)
		if err != nil {
			fail("student", st.ID, fmt.Errorf("resolve active group %s: %w", st.ActiveGroupID.Hex(), err))
		} else if g.Semester < st.CurrentSemester {
			cleared, err := r.students.ClearActiveGroup(ctx, st.ID, g.ID)
			if err != nil {
				fail("student", st.ID, fmt.Errorf("clear active group: %w", err))
			} else if cleared {
				counts.groupCleared++
			}
		}
	}

	return counts, errs
}

// settleGroup applies the group pass to one group: disband when empty,
// disband when every active member has moved past the group's semester,
// otherwise let the status engine settle ordinary drift.
func (r *Reconciler) settleGroup(ctx context.Context, g models.Group) (disbanded, validated bool, errs []BatchError) {
	fail := func(err error) {
		errs = append(errs, BatchError{Kind: "group", ID: g.ID.Hex(), Msg: err.Error()})
	}

	if g.ActiveMemberCount() == 0 {
		if g.Status == status.GroupDisbanded {
			return false, false, nil
		}
		res, err := r.engine.ValidateAndUpdate(ctx, g.ID)
		if err != nil {
			fail(err)
			return false, false, errs
		}
		return res.StatusChanged && res.CurrentStatus == status.GroupDisbanded, false, nil
	}

	var ids []primitive.ObjectID
	for _, m := range g.Members {
		if m.IsActive {
			ids = append(ids, m.StudentID)
		}
	}
	semesters, err := r.students.SemestersByIDs(ctx, ids)
	if err != nil {
		fail(fmt.Errorf("resolve member semesters: %w", err))
		return false, false, errs
	}

	allMovedOn := len(semesters) == len(ids)
	for _, id := range ids {
		if sem, found := semesters[id]; !found || sem <= g.Semester {
			allMovedOn = false
			break
		}
	}

	if allMovedOn {
		changed, err := r.disband(ctx, g.ID)
		if err != nil {
			fail(err)
			return false, false, errs
		}
		return changed, false, nil
	}

	res, err := r.engine.ValidateAndUpdate(ctx, g.ID)
	if err != nil {
		fail(err)
		return false, false, errs
	}
	return res.StatusChanged && res.CurrentStatus == status.GroupDisbanded, true, nil
}

// disband transitions a group to disbanded with the usual read-modify-retry
// loop. Unlike the engine's rules this also applies to groups whose members
// are still flagged active on the group document; the member set has already
// moved past the group's semester.
func (r *Reconciler) disband(ctx context.Context, groupID primitive.ObjectID) (bool, error) {
	for attempt := 0; attempt <= maxWriteRetries; attempt++ {
		g, err := r.groups.GetByID(ctx, groupID)
		if err != nil {
			return false, err
		}
		if g.Status == status.GroupDisbanded {
			return false, nil
		}
		ok, err := r.groups.CompareAndSwapStatus(ctx, groupID, g.Version, status.GroupDisbanded)
		if err != nil {
			return false, err
		}
		if ok {
			r.log.Info("group disbanded",
				zap.String("group_id", groupID.Hex()),
				zap.Int("semester", g.Semester),
				zap.String("previous_status", g.Status))
			return true, nil
		}
	}
	return false, fmt.Errorf("disband group %s: version retries exhausted", groupID.Hex())
}
