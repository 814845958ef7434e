package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/campuskit/progresshub/internal/app/system/status"
	"github.com/campuskit/progresshub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateStudent inserts a student in the given program and semester.
func (f *Fixtures) CreateStudent(ctx context.Context, fullName, email, program string, semester int) models.Student {
	f.t.Helper()

	now := time.Now().UTC()
	st := models.Student{
		ID:              primitive.NewObjectID(),
		FullName:        fullName,
		FullNameCI:      text.Fold(fullName),
		Email:           email,
		EnrollmentNo:    primitive.NewObjectID().Hex()[:9],
		DegreeProgram:   program,
		CurrentSemester: semester,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if _, err := f.db.Collection("students").InsertOne(ctx, st); err != nil {
		f.t.Fatalf("failed to create test student: %v", err)
	}
	return st
}

// CreateGroup inserts a group in the given semester led by the first student.
// All listed students become active members.
func (f *Fixtures) CreateGroup(ctx context.Context, name string, semester int, stat string, studentIDs ...primitive.ObjectID) models.Group {
	f.t.Helper()

	now := time.Now().UTC()
	g := models.Group{
		ID:         primitive.NewObjectID(),
		Name:       name,
		NameCI:     text.Fold(name),
		Semester:   semester,
		Status:     stat,
		IsActive:   stat != status.GroupDisbanded,
		MinMembers: 2,
		MaxMembers: 4,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for i, id := range studentIDs {
		role := status.RoleMember
		if i == 0 {
			role = status.RoleLeader
			g.LeaderID = id
		}
		g.Members = append(g.Members, models.GroupMember{
			StudentID: id,
			IsActive:  true,
			Role:      role,
		})
	}
	if _, err := f.db.Collection("groups").InsertOne(ctx, g); err != nil {
		f.t.Fatalf("failed to create test group: %v", err)
	}
	return g
}

// CreateStudentProject inserts a project owned by one student.
func (f *Fixtures) CreateStudentProject(ctx context.Context, title string, semester int, stat string, studentID primitive.ObjectID) models.Project {
	f.t.Helper()
	return f.createProject(ctx, title, semester, stat, &studentID, nil)
}

// CreateGroupProject inserts a project owned by a group.
func (f *Fixtures) CreateGroupProject(ctx context.Context, title string, semester int, stat string, groupID primitive.ObjectID) models.Project {
	f.t.Helper()
	return f.createProject(ctx, title, semester, stat, nil, &groupID)
}

func (f *Fixtures) createProject(ctx context.Context, title string, semester int, stat string, studentID, groupID *primitive.ObjectID) models.Project {
	f.t.Helper()

	now := time.Now().UTC()
	p := models.Project{
		ID:        primitive.NewObjectID(),
		Title:     title,
		Semester:  semester,
		Status:    stat,
		StudentID: studentID,
		GroupID:   groupID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := f.db.Collection("projects").InsertOne(ctx, p); err != nil {
		f.t.Fatalf("failed to create test project: %v", err)
	}
	return p
}

// AddMembership pushes an embedded membership entry onto the student document
// and mirrors the weak active_group_id back-reference when active.
func (f *Fixtures) AddMembership(ctx context.Context, studentID primitive.ObjectID, groupID primitive.ObjectID, semester int, active bool, role string) {
	f.t.Helper()

	update := bson.M{
		"$push": bson.M{"group_memberships": models.GroupMembership{
			GroupID:  groupID,
			Semester: semester,
			IsActive: active,
			Role:     role,
		}},
	}
	if active {
		update["$set"] = bson.M{"active_group_id": groupID}
	}
	if _, err := f.db.Collection("students").UpdateByID(ctx, studentID, update); err != nil {
		f.t.Fatalf("failed to add membership: %v", err)
	}
}

// AddProjectRef pushes a current-projects cache entry onto the student.
func (f *Fixtures) AddProjectRef(ctx context.Context, studentID primitive.ObjectID, projectID primitive.ObjectID, semester int, stat string) {
	f.t.Helper()

	if _, err := f.db.Collection("students").UpdateByID(ctx, studentID, bson.M{
		"$push": bson.M{"current_projects": models.ProjectRef{
			ProjectID: projectID,
			Semester:  semester,
			Status:    stat,
		}},
	}); err != nil {
		f.t.Fatalf("failed to add project ref: %v", err)
	}
}
