// internal/domain/models/student.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Student represents an enrolled student.
//
// NOTE:
//   - Group memberships, the current-projects cache, and track selections are
//     embedded on the student document. They are denormalized views kept
//     consistent by the promotion reconciler, not authoritative joins.
//   - CurrentSemester is monotonically non-decreasing; only the semester
//     promotion bulk update advances it.
type Student struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FullName     string             `bson:"full_name" json:"full_name"`
	FullNameCI   string             `bson:"full_name_ci" json:"full_name_ci"`
	Email        string             `bson:"email,omitempty" json:"email,omitempty"`
	EnrollmentNo string             `bson:"enrollment_no" json:"enrollment_no"`

	DegreeProgram   string `bson:"degree_program" json:"degree_program"`
	CurrentSemester int    `bson:"current_semester" json:"current_semester"`

	GroupMemberships []GroupMembership `bson:"group_memberships,omitempty" json:"group_memberships,omitempty"`
	CurrentProjects  []ProjectRef      `bson:"current_projects,omitempty" json:"current_projects,omitempty"`
	Selections       []TrackSelection  `bson:"selections,omitempty" json:"selections,omitempty"`

	// Weak back-reference to the group the student currently works in.
	// Cleared by the reconciler when the group's semester falls behind.
	ActiveGroupID *primitive.ObjectID `bson:"active_group_id,omitempty" json:"active_group_id,omitempty"`

	Version   int64     `bson:"version" json:"version"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// GroupMembership is one entry in a student's embedded membership history.
// IsActive is false once the membership's semester is behind the student's.
type GroupMembership struct {
	GroupID  primitive.ObjectID `bson:"group_id" json:"group_id"`
	Semester int                `bson:"semester" json:"semester"`
	IsActive bool               `bson:"is_active" json:"is_active"`
	Role     string             `bson:"role,omitempty" json:"role,omitempty"` // "leader" | "member"
}

// ProjectRef is a denormalized cache entry for a project the student is
// involved in. The authoritative status lives on the projects collection.
type ProjectRef struct {
	ProjectID primitive.ObjectID `bson:"project_id" json:"project_id"`
	Semester  int                `bson:"semester" json:"semester"`
	Status    string             `bson:"status" json:"status"`
}

// TrackSelection records a per-semester pathway choice. At most one entry per
// semester. FinalizedTrack is only ever written by an administrative action;
// an override records the displaced value in PreviousTrack.
type TrackSelection struct {
	Semester           int        `bson:"semester" json:"semester"`
	AcademicYear       string     `bson:"academic_year" json:"academic_year"`
	ChosenTrack        string     `bson:"chosen_track,omitempty" json:"chosen_track,omitempty"`
	FinalizedTrack     string     `bson:"finalized_track,omitempty" json:"finalized_track,omitempty"`
	VerificationStatus string     `bson:"verification_status" json:"verification_status"`
	AdminRemarks       string     `bson:"admin_remarks,omitempty" json:"admin_remarks,omitempty"`
	ReviewedBy         string     `bson:"reviewed_by,omitempty" json:"reviewed_by,omitempty"`
	ReviewedAt         *time.Time `bson:"reviewed_at,omitempty" json:"reviewed_at,omitempty"`
	PreviousTrack      string     `bson:"previous_track,omitempty" json:"previous_track,omitempty"`
	ChoiceSubmittedAt  *time.Time `bson:"choice_submitted_at,omitempty" json:"choice_submitted_at,omitempty"`
	UpdatedAt          time.Time  `bson:"updated_at" json:"updated_at"`
}
