package tasks

import (
	"testing"

	groupstore "github.com/campuskit/progresshub/internal/app/store/groups"
	projectstore "github.com/campuskit/progresshub/internal/app/store/projects"
	studentstore "github.com/campuskit/progresshub/internal/app/store/students"
	"github.com/campuskit/progresshub/internal/app/system/apperrors"
	"github.com/campuskit/progresshub/internal/app/system/groupstatus"
	"github.com/campuskit/progresshub/internal/app/system/promote"
	"github.com/campuskit/progresshub/internal/app/system/reconcile"
	"github.com/campuskit/progresshub/internal/app/system/status"
	"github.com/campuskit/progresshub/internal/testutil"

	"go.uber.org/zap"
)

func setupPipeline(t *testing.T) (*Pipeline, *testutil.Fixtures, *studentstore.Store, *groupstore.Store) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()

	students := studentstore.New(db)
	groups := groupstore.New(db)
	projects := projectstore.New(db)
	engine := groupstatus.New(groups, students, logger)
	scheduler := promote.New(students, logger)
	reconciler := reconcile.New(students, groups, projects, engine, 2, logger)

	return NewPipeline(scheduler, reconciler, logger), testutil.NewFixtures(t, db), students, groups
}

// TestPipelineAdvancesThenReconciles runs the two-step job end to end: the
// cohort's counters move first, then the reconciler closes out everything the
// move left stale.
func TestPipelineAdvancesThenReconciles(t *testing.T) {
	p, fx, students, groups := setupPipeline(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	st := fx.CreateStudent(ctx, "Rising", "", "mca", 4)
	g := fx.CreateGroup(ctx, "Semester Four", 4, status.GroupComplete, st.ID)
	fx.AddMembership(ctx, st.ID, g.ID, 4, true, status.RoleLeader)
	fx.CreateStudentProject(ctx, "Old Solo Work", 4, status.ProjectActive, st.ID)

	res, err := p.Run(ctx, "mca", 4)
	if err != nil {
		t.Fatalf("pipeline Run failed: %v", err)
	}
	if res.Advance.StudentsAdvanced != 1 {
		t.Errorf("StudentsAdvanced = %d, want 1", res.Advance.StudentsAdvanced)
	}
	if res.Advance.ToSemester != 5 {
		t.Errorf("ToSemester = %d, want 5", res.Advance.ToSemester)
	}
	if res.Reconcile.StudentsProcessed != 1 {
		t.Errorf("StudentsProcessed = %d, want 1", res.Reconcile.StudentsProcessed)
	}
	if res.Reconcile.ProjectsUpdated != 1 {
		t.Errorf("ProjectsUpdated = %d, want 1", res.Reconcile.ProjectsUpdated)
	}
	if res.Reconcile.GroupsDisbanded != 1 {
		t.Errorf("GroupsDisbanded = %d, want 1", res.Reconcile.GroupsDisbanded)
	}

	gotStudent, err := students.GetByID(ctx, st.ID)
	if err != nil {
		t.Fatalf("student fetch failed: %v", err)
	}
	if gotStudent.CurrentSemester != 5 {
		t.Errorf("CurrentSemester = %d, want 5", gotStudent.CurrentSemester)
	}
	gotGroup, err := groups.GetByID(ctx, g.ID)
	if err != nil {
		t.Fatalf("group fetch failed: %v", err)
	}
	if gotGroup.Status != status.GroupDisbanded {
		t.Errorf("group status = %q, want disbanded", gotGroup.Status)
	}
}

func TestPipelineRejectsBadCohort(t *testing.T) {
	p, _, _, _ := setupPipeline(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := p.Run(ctx, "", 4); !apperrors.IsValidation(err) {
		t.Errorf("Run with empty program = %v, want validation error", err)
	}
}
