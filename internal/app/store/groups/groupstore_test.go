package groupstore

import (
	"errors"
	"testing"

	"github.com/campuskit/progresshub/internal/app/system/apperrors"
	"github.com/campuskit/progresshub/internal/app/system/indexes"
	"github.com/campuskit/progresshub/internal/app/system/status"
	"github.com/campuskit/progresshub/internal/domain/models"
	"github.com/campuskit/progresshub/internal/testutil"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func TestCreateAppliesDefaults(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	leader := primitive.NewObjectID()
	g, err := store.Create(ctx, models.Group{
		Name:     "Cache Crew",
		Semester: 5,
		LeaderID: leader,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if g.Status != status.GroupForming {
		t.Errorf("default status = %q, want forming", g.Status)
	}
	if !g.IsActive {
		t.Error("new group should be active")
	}
	if g.MinMembers != DefaultMinMembers || g.MaxMembers != DefaultMaxMembers {
		t.Errorf("defaults = %d/%d, want %d/%d", g.MinMembers, g.MaxMembers, DefaultMinMembers, DefaultMaxMembers)
	}
	if len(g.Members) != 1 || g.Members[0].StudentID != leader || g.Members[0].Role != status.RoleLeader {
		t.Errorf("leader not injected into member list: %+v", g.Members)
	}
	if g.Version != 0 {
		t.Errorf("initial version = %d, want 0", g.Version)
	}
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db, zap.NewNop()); err != nil {
		t.Fatalf("index setup: %v", err)
	}

	if _, err := store.Create(ctx, models.Group{Name: "Graph Gang", Semester: 5}); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	// Case-folded duplicate.
	_, err := store.Create(ctx, models.Group{Name: "GRAPH GANG", Semester: 5})
	if !errors.Is(err, ErrDuplicateGroupName) {
		t.Errorf("expected ErrDuplicateGroupName, got %v", err)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, err := store.GetByID(ctx, primitive.NewObjectID())
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCompareAndSwapStatus(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	g, err := store.Create(ctx, models.Group{Name: "Swap Squad", Semester: 5})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	ok, err := store.CompareAndSwapStatus(ctx, g.ID, g.Version, status.GroupComplete)
	if err != nil {
		t.Fatalf("CAS failed: %v", err)
	}
	if !ok {
		t.Fatal("CAS with current version should succeed")
	}

	// The stale version must miss without error.
	ok, err = store.CompareAndSwapStatus(ctx, g.ID, g.Version, status.GroupLocked)
	if err != nil {
		t.Fatalf("stale CAS errored: %v", err)
	}
	if ok {
		t.Error("CAS with stale version should miss")
	}

	got, err := store.GetByID(ctx, g.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Status != status.GroupComplete {
		t.Errorf("status = %q, want complete", got.Status)
	}
	if got.Version != g.Version+1 {
		t.Errorf("version = %d, want %d", got.Version, g.Version+1)
	}
}

func TestCompareAndSwapToDisbandedClearsActive(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	g, err := store.Create(ctx, models.Group{Name: "Doomed", Semester: 5})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := store.CompareAndSwapStatus(ctx, g.ID, g.Version, status.GroupDisbanded); err != nil {
		t.Fatalf("CAS failed: %v", err)
	}
	got, _ := store.GetByID(ctx, g.ID)
	if got.IsActive {
		t.Error("disbanded group must not stay active")
	}
}

func TestAddMemberRejectsDuplicate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	g, err := store.Create(ctx, models.Group{Name: "Dup Check", Semester: 5})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	sid := primitive.NewObjectID()
	if err := store.AddMember(ctx, g.ID, models.GroupMember{StudentID: sid, IsActive: true}); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	if err := store.AddMember(ctx, g.ID, models.GroupMember{StudentID: sid, IsActive: true}); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("duplicate AddMember = %v, want ErrNotFound", err)
	}

	got, _ := store.GetByID(ctx, g.ID)
	if n := got.ActiveMemberCount(); n != 1 {
		t.Errorf("active members = %d, want 1", n)
	}
}

func TestSetMemberActive(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	sid := primitive.NewObjectID()
	g, err := store.Create(ctx, models.Group{Name: "Flippers", Semester: 5, LeaderID: sid})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := store.SetMemberActive(ctx, g.ID, sid, false); err != nil {
		t.Fatalf("SetMemberActive failed: %v", err)
	}
	got, _ := store.GetByID(ctx, g.ID)
	if got.ActiveMemberCount() != 0 {
		t.Error("member still active after deactivation")
	}
	if got.Version != g.Version+1 {
		t.Errorf("version = %d, want bump to %d", got.Version, g.Version+1)
	}

	if err := store.SetMemberActive(ctx, g.ID, primitive.NewObjectID(), false); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("unknown member = %v, want ErrNotFound", err)
	}
}

func TestListSemesterBelowAndByStudent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	fx := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	sid := primitive.NewObjectID()
	old := fx.CreateGroup(ctx, "Old Guard", 4, status.GroupComplete, sid)
	fx.CreateGroup(ctx, "Current", 5, status.GroupComplete, sid)

	below, err := store.ListSemesterBelow(ctx, 5)
	if err != nil {
		t.Fatalf("ListSemesterBelow failed: %v", err)
	}
	if len(below) != 1 || below[0].ID != old.ID {
		t.Errorf("ListSemesterBelow(5) returned %d groups, want just the semester-4 one", len(below))
	}

	mine, err := store.ListByStudent(ctx, sid)
	if err != nil {
		t.Fatalf("ListByStudent failed: %v", err)
	}
	if len(mine) != 2 {
		t.Errorf("ListByStudent returned %d groups, want 2", len(mine))
	}
	if got, _ := store.ListByStudent(ctx, primitive.NewObjectID()); len(got) != 0 {
		t.Errorf("unknown student matched %d groups", len(got))
	}
}
