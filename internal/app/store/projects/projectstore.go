// internal/app/store/projects/projectstore.go
package projectstore

import (
	"context"
	"time"

	"github.com/campuskit/progresshub/internal/app/system/apperrors"
	"github.com/campuskit/progresshub/internal/app/system/status"
	"github.com/campuskit/progresshub/internal/domain/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("projects")}
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Project, error) {
	var p models.Project
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		if err == mongo.ErrNoDocuments {
			return models.Project{}, apperrors.ErrNotFound
		}
		return models.Project{}, err
	}
	return p, nil
}

// Create inserts a project at registration. Status defaults to registered.
// Exactly one owner must be set; both or neither is malformed input.
func (s *Store) Create(ctx context.Context, p models.Project) (models.Project, error) {
	if (p.StudentID == nil) == (p.GroupID == nil) {
		return models.Project{}, apperrors.Validation("owner", "exactly one of student_id or group_id must be set")
	}
	now := time.Now().UTC()
	p.ID = primitive.NewObjectID()
	if p.Status == "" {
		p.Status = status.ProjectRegistered
	}
	p.Version = 0
	p.CreatedAt = now
	p.UpdatedAt = now
	if _, err := s.c.InsertOne(ctx, p); err != nil {
		return models.Project{}, err
	}
	return p, nil
}

// ListOpenBefore returns non-terminal projects from semesters before the
// given one that are owned by the student directly or by one of the listed
// groups.
func (s *Store) ListOpenBefore(ctx context.Context, studentID primitive.ObjectID, groupIDs []primitive.ObjectID, semester int) ([]models.Project, error) {
	owners := bson.A{bson.M{"student_id": studentID}}
	if len(groupIDs) > 0 {
		owners = append(owners, bson.M{"group_id": bson.M{"$in": groupIDs}})
	}
	filter := bson.M{
		"semester": bson.M{"$lt": semester},
		"status":   bson.M{"$nin": bson.A{status.ProjectCompleted, status.ProjectCancelled}},
		"$or":      owners,
	}
	cur, err := s.c.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Project
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CompareAndSwapStatus writes a status under the version the caller read.
// Returns false (no error) on a version miss.
func (s *Store) CompareAndSwapStatus(ctx context.Context, id primitive.ObjectID, version int64, newStatus string) (bool, error) {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "version": version},
		bson.M{
			"$set": bson.M{
				"status":     newStatus,
				"updated_at": time.Now().UTC(),
			},
			"$inc": bson.M{"version": 1},
		})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

// Complete transitions a project to completed with a read-modify-retry loop:
// each version miss re-reads the document and reapplies against the fresh
// version instead of force-writing. Already-terminal projects are left alone
// and reported as unchanged.
func (s *Store) Complete(ctx context.Context, id primitive.ObjectID, maxRetries int) (bool, error) {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		p, err := s.GetByID(ctx, id)
		if err != nil {
			return false, err
		}
		if status.IsTerminalProject(p.Status) {
			return false, nil
		}
		ok, err := s.CompareAndSwapStatus(ctx, id, p.Version, status.ProjectCompleted)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, apperrors.ErrConflict
}
