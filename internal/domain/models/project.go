// internal/domain/models/project.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Project represents a registered semester project. Exactly one of StudentID
// or GroupID is set; the other stays nil.
type Project struct {
	ID    primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title string             `bson:"title" json:"title"`

	Semester int    `bson:"semester" json:"semester"`
	Status   string `bson:"status" json:"status"`

	StudentID *primitive.ObjectID `bson:"student_id,omitempty" json:"student_id,omitempty"`
	GroupID   *primitive.ObjectID `bson:"group_id,omitempty" json:"group_id,omitempty"`

	// Version counts writes for optimistic concurrency. Status updates filter
	// on {_id, version} and increment it.
	Version   int64     `bson:"version" json:"version"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// OwnedByGroup reports whether the project belongs to a group rather than a
// single student.
func (p *Project) OwnedByGroup() bool {
	return p.GroupID != nil
}
