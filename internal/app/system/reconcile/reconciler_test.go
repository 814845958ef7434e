package reconcile

import (
	"testing"

	groupstore "github.com/campuskit/progresshub/internal/app/store/groups"
	projectstore "github.com/campuskit/progresshub/internal/app/store/projects"
	studentstore "github.com/campuskit/progresshub/internal/app/store/students"
	"github.com/campuskit/progresshub/internal/app/system/groupstatus"
	"github.com/campuskit/progresshub/internal/app/system/status"
	"github.com/campuskit/progresshub/internal/testutil"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type harness struct {
	students   *studentstore.Store
	groups     *groupstore.Store
	projects   *projectstore.Store
	reconciler *Reconciler
	fx         *testutil.Fixtures
}

func setup(t *testing.T) *harness {
	t.Helper()
	db := testutil.SetupTestDB(t)
	return newHarness(t, db)
}

func newHarness(t *testing.T, db *mongo.Database) *harness {
	t.Helper()
	logger := zap.NewNop()
	students := studentstore.New(db)
	groups := groupstore.New(db)
	projects := projectstore.New(db)
	engine := groupstatus.New(groups, students, logger)
	return &harness{
		students:   students,
		groups:     groups,
		projects:   projects,
		reconciler: New(students, groups, projects, engine, 2, logger),
		fx:         testutil.NewFixtures(t, db),
	}
}

// TestRunClosesOutAdvancedStudent walks the full cascade for one student who
// advanced out of a semester: open project completed, cache entry completed,
// membership deactivated, back-reference cleared, and the left-behind group
// disbanded.
func TestRunClosesOutAdvancedStudent(t *testing.T) {
	h := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	st := h.fx.CreateStudent(ctx, "Moved On", "moved@example.edu", "mca", 5)
	peer := h.fx.CreateStudent(ctx, "Peer", "peer@example.edu", "mca", 5)
	g := h.fx.CreateGroup(ctx, "Left Behind", 4, status.GroupComplete, st.ID, peer.ID)
	p := h.fx.CreateGroupProject(ctx, "Sem4 Build", 4, status.ProjectActive, g.ID)

	h.fx.AddMembership(ctx, st.ID, g.ID, 4, true, status.RoleLeader)
	h.fx.AddMembership(ctx, peer.ID, g.ID, 4, true, status.RoleMember)
	h.fx.AddProjectRef(ctx, st.ID, p.ID, 4, status.ProjectActive)

	report, err := h.reconciler.Run(ctx, studentstore.CohortFilter{DegreeProgram: "mca", MinSemester: 5})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(report.Errors) != 0 {
		t.Fatalf("Run recorded errors: %+v", report.Errors)
	}
	if report.StudentsProcessed != 2 {
		t.Errorf("StudentsProcessed = %d, want 2", report.StudentsProcessed)
	}
	if report.ProjectsUpdated != 1 {
		t.Errorf("ProjectsUpdated = %d, want 1", report.ProjectsUpdated)
	}
	if report.CurrentProjectsUpdated != 1 {
		t.Errorf("CurrentProjectsUpdated = %d, want 1", report.CurrentProjectsUpdated)
	}
	if report.GroupMembershipsUpdated != 2 {
		t.Errorf("GroupMembershipsUpdated = %d, want 2", report.GroupMembershipsUpdated)
	}
	if report.GroupIDsCleared != 2 {
		t.Errorf("GroupIDsCleared = %d, want 2", report.GroupIDsCleared)
	}
	if report.GroupsDisbanded != 1 {
		t.Errorf("GroupsDisbanded = %d, want 1", report.GroupsDisbanded)
	}

	gotProject, err := h.projects.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("project fetch failed: %v", err)
	}
	if gotProject.Status != status.ProjectCompleted {
		t.Errorf("project status = %q, want completed", gotProject.Status)
	}

	gotStudent, err := h.students.GetByID(ctx, st.ID)
	if err != nil {
		t.Fatalf("student fetch failed: %v", err)
	}
	if gotStudent.ActiveGroupID != nil {
		t.Errorf("active_group_id still set: %v", gotStudent.ActiveGroupID)
	}
	for _, m := range gotStudent.GroupMemberships {
		if m.GroupID == g.ID && m.IsActive {
			t.Error("stale membership still active")
		}
	}
	for _, ref := range gotStudent.CurrentProjects {
		if ref.ProjectID == p.ID && ref.Status != status.ProjectCompleted {
			t.Errorf("cache entry = %q, want completed", ref.Status)
		}
	}

	gotGroup, err := h.groups.GetByID(ctx, g.ID)
	if err != nil {
		t.Fatalf("group fetch failed: %v", err)
	}
	if gotGroup.Status != status.GroupDisbanded {
		t.Errorf("group status = %q, want disbanded", gotGroup.Status)
	}
	if gotGroup.IsActive {
		t.Error("disbanded group still active")
	}
}

// TestRunIsIdempotent re-runs the same reconciliation and requires the
// second pass to make zero mutations.
func TestRunIsIdempotent(t *testing.T) {
	h := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	st := h.fx.CreateStudent(ctx, "Repeat", "", "mca", 5)
	g := h.fx.CreateGroup(ctx, "Once Only", 4, status.GroupComplete, st.ID)
	p := h.fx.CreateStudentProject(ctx, "Old Work", 4, status.ProjectActive, st.ID)
	h.fx.AddMembership(ctx, st.ID, g.ID, 4, true, status.RoleLeader)
	h.fx.AddProjectRef(ctx, st.ID, p.ID, 4, status.ProjectActive)

	cohort := studentstore.CohortFilter{DegreeProgram: "mca", MinSemester: 5}
	first, err := h.reconciler.Run(ctx, cohort)
	if err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	if len(first.Errors) != 0 {
		t.Fatalf("first Run recorded errors: %+v", first.Errors)
	}

	afterFirst, _ := h.students.GetByID(ctx, st.ID)

	second, err := h.reconciler.Run(ctx, cohort)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if second.ProjectsUpdated != 0 || second.CurrentProjectsUpdated != 0 ||
		second.GroupMembershipsUpdated != 0 || second.GroupIDsCleared != 0 ||
		second.GroupsDisbanded != 0 {
		t.Errorf("second Run mutated data: %+v", second)
	}

	afterSecond, _ := h.students.GetByID(ctx, st.ID)
	if afterSecond.Version != afterFirst.Version {
		t.Errorf("second Run bumped student version from %d to %d", afterFirst.Version, afterSecond.Version)
	}
}

// TestRunLeavesCurrentGroupsAlone covers the mixed case: one member has
// advanced, one is still in the group's semester, so the group survives and
// only the advanced member's records close out.
func TestRunLeavesCurrentGroupsAlone(t *testing.T) {
	h := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	ahead := h.fx.CreateStudent(ctx, "Ahead", "", "mca", 5)
	behind := h.fx.CreateStudent(ctx, "Behind", "", "mca", 4)
	g := h.fx.CreateGroup(ctx, "Mixed", 4, status.GroupComplete, ahead.ID, behind.ID)
	h.fx.AddMembership(ctx, ahead.ID, g.ID, 4, true, status.RoleLeader)
	h.fx.AddMembership(ctx, behind.ID, g.ID, 4, true, status.RoleMember)

	report, err := h.reconciler.Run(ctx, studentstore.CohortFilter{DegreeProgram: "mca", MinSemester: 5})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.GroupsDisbanded != 0 {
		t.Errorf("GroupsDisbanded = %d, want 0", report.GroupsDisbanded)
	}
	if report.GroupsValidated != 1 {
		t.Errorf("GroupsValidated = %d, want 1", report.GroupsValidated)
	}

	gotGroup, _ := h.groups.GetByID(ctx, g.ID)
	if gotGroup.Status != status.GroupComplete {
		t.Errorf("group status = %q, want complete untouched", gotGroup.Status)
	}

	gotAhead, _ := h.students.GetByID(ctx, ahead.ID)
	for _, m := range gotAhead.GroupMemberships {
		if m.IsActive {
			t.Error("advanced member's membership still active")
		}
	}
	gotBehind, _ := h.students.GetByID(ctx, behind.ID)
	for _, m := range gotBehind.GroupMemberships {
		if !m.IsActive {
			t.Error("current member's membership deactivated")
		}
	}
}

// TestRunDisbandsEmptyGroups: a group with no active members converges to
// disbanded through the status engine, whatever its previous status.
func TestRunDisbandsEmptyGroups(t *testing.T) {
	h := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	g := h.fx.CreateGroup(ctx, "Ghost Ship", 4, status.GroupComplete)

	report, err := h.reconciler.Run(ctx, studentstore.CohortFilter{DegreeProgram: "mca"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.GroupsDisbanded != 1 {
		t.Errorf("GroupsDisbanded = %d, want 1", report.GroupsDisbanded)
	}
	got, _ := h.groups.GetByID(ctx, g.ID)
	if got.Status != status.GroupDisbanded {
		t.Errorf("group status = %q, want disbanded", got.Status)
	}
}

// TestRunSkipsFinalSemesterGroups: the group pass only walks groups below
// the terminal semester.
func TestRunSkipsFinalSemesterGroups(t *testing.T) {
	h := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	g := h.fx.CreateGroup(ctx, "Final Year", FinalSemester, status.GroupComplete)

	report, err := h.reconciler.Run(ctx, studentstore.CohortFilter{DegreeProgram: "mca"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.GroupsDisbanded != 0 || report.GroupsValidated != 0 {
		t.Errorf("final-semester group touched: %+v", report)
	}
	got, _ := h.groups.GetByID(ctx, g.ID)
	if got.Status != status.GroupComplete {
		t.Errorf("group status = %q, want complete untouched", got.Status)
	}
}

// TestRunRecordsFailuresWithoutAborting: a student whose back-reference
// points at a missing group produces a batch error, and the rest of the run
// still completes.
func TestRunRecordsFailuresWithoutAborting(t *testing.T) {
	h := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	broken := h.fx.CreateStudent(ctx, "Broken Ref", "", "mca", 5)
	h.fx.AddMembership(ctx, broken.ID, primitive.NewObjectID(), 4, true, status.RoleMember)

	healthy := h.fx.CreateStudent(ctx, "Healthy", "", "mca", 5)
	h.fx.CreateStudentProject(ctx, "Old Work", 4, status.ProjectActive, healthy.ID)

	report, err := h.reconciler.Run(ctx, studentstore.CohortFilter{DegreeProgram: "mca", MinSemester: 5})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(report.Errors) == 0 {
		t.Error("expected a batch error for the missing group")
	}
	if report.StudentsProcessed != 2 {
		t.Errorf("StudentsProcessed = %d, want 2 (failures must not abort)", report.StudentsProcessed)
	}
	if report.ProjectsUpdated != 1 {
		t.Errorf("ProjectsUpdated = %d, want the healthy student's project closed", report.ProjectsUpdated)
	}
}
