// internal/domain/models/group.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Group represents a project group formed by students for one semester.
//
// NOTE:
//   - The member list is embedded on the group document. Student documents
//     carry a mirrored membership entry kept consistent by the promotion
//     reconciler.
//   - Status is a first-class field derived by the group status engine;
//     groups are never physically deleted ("disbanded" is soft-terminal).
//   - IsActive must always equal (Status != "disbanded").
type Group struct {
	ID     primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name   string             `bson:"name" json:"name"`
	NameCI string             `bson:"name_ci" json:"name_ci"`

	Semester int    `bson:"semester" json:"semester"`
	Status   string `bson:"status" json:"status"`
	IsActive bool   `bson:"is_active" json:"is_active"`

	MinMembers int `bson:"min_members" json:"min_members"`
	MaxMembers int `bson:"max_members" json:"max_members"`

	LeaderID primitive.ObjectID `bson:"leader_id" json:"leader_id"`
	Members  []GroupMember      `bson:"members" json:"members"`

	Version   int64     `bson:"version" json:"version"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// GroupMember is one entry in a group's embedded member list.
// Departed members stay in the list with IsActive=false, so membership
// history survives disbandment.
type GroupMember struct {
	StudentID primitive.ObjectID `bson:"student_id" json:"student_id"`
	IsActive  bool               `bson:"is_active" json:"is_active"`
	Role      string             `bson:"role" json:"role"` // "leader" | "member"
}

// ActiveMemberCount returns the number of members flagged active.
func (g *Group) ActiveMemberCount() int {
	n := 0
	for _, m := range g.Members {
		if m.IsActive {
			n++
		}
	}
	return n
}

// HasActiveLeader reports whether the group's leader appears among the
// active members.
func (g *Group) HasActiveLeader() bool {
	for _, m := range g.Members {
		if m.IsActive && m.StudentID == g.LeaderID {
			return true
		}
	}
	return false
}
