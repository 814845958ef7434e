package trackselect

import (
	"errors"
	"testing"

	studentstore "github.com/campuskit/progresshub/internal/app/store/students"
	"github.com/campuskit/progresshub/internal/app/system/apperrors"
	"github.com/campuskit/progresshub/internal/app/system/status"
	"github.com/campuskit/progresshub/internal/testutil"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func setupRegistry(t *testing.T) (*Registry, *testutil.Fixtures) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	return New(studentstore.New(db), DefaultStages, zap.NewNop()), testutil.NewFixtures(t, db)
}

func TestSetChoiceRecordsSelection(t *testing.T) {
	reg, fx := setupRegistry(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	st := fx.CreateStudent(ctx, "Asha Rao", "asha@example.edu", "mca", 5)

	sel, err := reg.SetChoice(ctx, st.ID, 5, status.TrackInternship, "2026-27")
	if err != nil {
		t.Fatalf("SetChoice failed: %v", err)
	}
	if sel.ChosenTrack != status.TrackInternship {
		t.Errorf("ChosenTrack = %q, want %q", sel.ChosenTrack, status.TrackInternship)
	}
	if sel.FinalizedTrack != "" {
		t.Errorf("SetChoice must not touch FinalizedTrack, got %q", sel.FinalizedTrack)
	}
	if sel.VerificationStatus != status.VerificationPending {
		t.Errorf("VerificationStatus = %q, want %q", sel.VerificationStatus, status.VerificationPending)
	}
	if sel.ChoiceSubmittedAt == nil {
		t.Error("ChoiceSubmittedAt not set")
	}

	// Changing the choice replaces the entry instead of adding a second one.
	if _, err := reg.SetChoice(ctx, st.ID, 5, status.TrackCoursework, "2026-27"); err != nil {
		t.Fatalf("second SetChoice failed: %v", err)
	}
	got, err := reg.GetChoice(ctx, st.ID, 5)
	if err != nil {
		t.Fatalf("GetChoice failed: %v", err)
	}
	if got == nil || got.ChosenTrack != status.TrackCoursework {
		t.Fatalf("GetChoice after change = %+v, want coursework", got)
	}
}

func TestSetChoiceStageValidation(t *testing.T) {
	reg, fx := setupRegistry(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	tests := []struct {
		name     string
		program  string
		current  int
		semester int
		track    string
	}{
		{"wrong semester for program", "mca", 5, 4, status.TrackInternship},
		{"student before choice point", "mca", 3, 5, status.TrackInternship},
		{"program without choice point", "bca", 5, 5, status.TrackInternship},
		{"unknown track", "mca", 5, 5, "research"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := fx.CreateStudent(ctx, "Test Student", "", tt.program, tt.current)
			_, err := reg.SetChoice(ctx, st.ID, tt.semester, tt.track, "2026-27")
			if !apperrors.IsValidation(err) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestFinalizeOverrideKeepsPreviousTrack(t *testing.T) {
	reg, fx := setupRegistry(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	st := fx.CreateStudent(ctx, "Bala Iyer", "bala@example.edu", "mca", 5)

	if _, err := reg.SetChoice(ctx, st.ID, 5, status.TrackInternship, "2026-27"); err != nil {
		t.Fatalf("SetChoice failed: %v", err)
	}

	sel, err := reg.Finalize(ctx, st.ID, 5, status.TrackInternship, "coordinator@example.edu", "approved", "2026-27")
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if sel.FinalizedTrack != status.TrackInternship {
		t.Errorf("FinalizedTrack = %q, want internship", sel.FinalizedTrack)
	}
	if sel.PreviousTrack != "" {
		t.Errorf("first finalization must not set PreviousTrack, got %q", sel.PreviousTrack)
	}
	if sel.VerificationStatus != status.VerificationVerified {
		t.Errorf("VerificationStatus = %q, want verified", sel.VerificationStatus)
	}
	if sel.ReviewedAt == nil {
		t.Error("ReviewedAt not set")
	}

	// Admin overrides to the other track: displaced value is preserved.
	sel, err = reg.Finalize(ctx, st.ID, 5, status.TrackCoursework, "hod@example.edu", "", "2026-27")
	if err != nil {
		t.Fatalf("override Finalize failed: %v", err)
	}
	if sel.FinalizedTrack != status.TrackCoursework {
		t.Errorf("FinalizedTrack = %q, want coursework", sel.FinalizedTrack)
	}
	if sel.PreviousTrack != status.TrackInternship {
		t.Errorf("PreviousTrack = %q, want internship", sel.PreviousTrack)
	}

	// The student's own choice survives the override untouched.
	got, err := reg.GetChoice(ctx, st.ID, 5)
	if err != nil {
		t.Fatalf("GetChoice failed: %v", err)
	}
	if got.ChosenTrack != status.TrackInternship {
		t.Errorf("ChosenTrack after override = %q, want internship", got.ChosenTrack)
	}
}

func TestFinalizeSanitizesRemarks(t *testing.T) {
	reg, fx := setupRegistry(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	st := fx.CreateStudent(ctx, "Chitra Nair", "", "mtech", 3)

	sel, err := reg.Finalize(ctx, st.ID, 3, status.TrackCoursework, "admin@example.edu",
		`<script>alert("x")</script>low CGPA`, "2026-27")
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if sel.AdminRemarks != "low CGPA" {
		t.Errorf("AdminRemarks = %q, want markup stripped", sel.AdminRemarks)
	}
}

func TestFinalizeWithoutPriorChoice(t *testing.T) {
	// Admins may finalize a track for a student who never submitted one.
	reg, fx := setupRegistry(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	st := fx.CreateStudent(ctx, "Dev Kumar", "", "btech", 7)

	sel, err := reg.Finalize(ctx, st.ID, 7, status.TrackInternship, "admin@example.edu", "", "2026-27")
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if sel.ChosenTrack != "" {
		t.Errorf("ChosenTrack = %q, want empty", sel.ChosenTrack)
	}
	if sel.FinalizedTrack != status.TrackInternship {
		t.Errorf("FinalizedTrack = %q, want internship", sel.FinalizedTrack)
	}
}

func TestGetChoiceAbsent(t *testing.T) {
	reg, fx := setupRegistry(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	st := fx.CreateStudent(ctx, "Esha Pillai", "", "mca", 5)

	sel, err := reg.GetChoice(ctx, st.ID, 5)
	if err != nil {
		t.Fatalf("GetChoice failed: %v", err)
	}
	if sel != nil {
		t.Errorf("expected nil selection for unchosen student, got %+v", sel)
	}
}

func TestGetChoiceUnknownStudent(t *testing.T) {
	reg, _ := setupRegistry(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, err := reg.GetChoice(ctx, primitive.NewObjectID(), 5)
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListDeterministicOrder(t *testing.T) {
	reg, fx := setupRegistry(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	// Insert out of order; two students share no email so the ID key decides.
	b := fx.CreateStudent(ctx, "Beta", "beta@example.edu", "mca", 5)
	a := fx.CreateStudent(ctx, "Alpha", "ALPHA@example.edu", "mca", 5)
	noMail1 := fx.CreateStudent(ctx, "NoMail One", "", "mca", 5)
	noMail2 := fx.CreateStudent(ctx, "NoMail Two", "", "mca", 5)

	for _, id := range []primitive.ObjectID{a.ID, b.ID, noMail1.ID, noMail2.ID} {
		if _, err := reg.SetChoice(ctx, id, 5, status.TrackInternship, "2026-27"); err != nil {
			t.Fatalf("SetChoice failed: %v", err)
		}
	}

	first, err := reg.List(ctx, Filter{DegreeProgram: "mca", Semester: 5, AcademicYear: "2026-27"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(first) != 4 {
		t.Fatalf("List returned %d rows, want 4", len(first))
	}
	// Emails sort case-insensitively ahead of the ID fallback pair.
	if first[0].Email != "ALPHA@example.edu" || first[1].Email != "beta@example.edu" {
		t.Errorf("email rows out of order: %q then %q", first[0].Email, first[1].Email)
	}
	if first[2].StudentID.Hex() > first[3].StudentID.Hex() {
		t.Errorf("ID-keyed rows out of order: %s then %s", first[2].StudentID.Hex(), first[3].StudentID.Hex())
	}

	// Repeated listing gives the identical order.
	second, err := reg.List(ctx, Filter{DegreeProgram: "mca", Semester: 5, AcademicYear: "2026-27"})
	if err != nil {
		t.Fatalf("second List failed: %v", err)
	}
	for i := range first {
		if first[i].StudentID != second[i].StudentID {
			t.Fatalf("row %d differs between runs: %s vs %s", i, first[i].StudentID.Hex(), second[i].StudentID.Hex())
		}
	}
}

func TestListFilters(t *testing.T) {
	reg, fx := setupRegistry(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	intern := fx.CreateStudent(ctx, "Intern Student", "i@example.edu", "mca", 5)
	course := fx.CreateStudent(ctx, "Course Student", "c@example.edu", "mca", 5)
	if _, err := reg.SetChoice(ctx, intern.ID, 5, status.TrackInternship, "2026-27"); err != nil {
		t.Fatalf("SetChoice failed: %v", err)
	}
	if _, err := reg.SetChoice(ctx, course.ID, 5, status.TrackCoursework, "2026-27"); err != nil {
		t.Fatalf("SetChoice failed: %v", err)
	}
	if _, err := reg.Finalize(ctx, course.ID, 5, status.TrackCoursework, "admin@example.edu", "", "2026-27"); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	rows, err := reg.List(ctx, Filter{DegreeProgram: "mca", Semester: 5, Track: status.TrackInternship})
	if err != nil {
		t.Fatalf("List by track failed: %v", err)
	}
	if len(rows) != 1 || rows[0].StudentID != intern.ID {
		t.Errorf("track filter returned %d rows, want just the internship student", len(rows))
	}

	rows, err = reg.List(ctx, Filter{DegreeProgram: "mca", Semester: 5, VerificationStatus: status.VerificationVerified})
	if err != nil {
		t.Fatalf("List by verification failed: %v", err)
	}
	if len(rows) != 1 || rows[0].StudentID != course.ID {
		t.Errorf("verification filter returned %d rows, want just the finalized student", len(rows))
	}

	if _, err := reg.List(ctx, Filter{DegreeProgram: "mca", Semester: 5, Track: "nonsense"}); !apperrors.IsValidation(err) {
		t.Errorf("expected validation error for bad track filter, got %v", err)
	}
}
