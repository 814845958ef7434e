// internal/app/store/groups/groupstore.go
package groupstore

import (
	"context"
	"errors"
	"time"

	"github.com/campuskit/progresshub/internal/app/system/apperrors"
	"github.com/campuskit/progresshub/internal/app/system/status"
	"github.com/campuskit/progresshub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"

	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type Store struct {
	c *mongo.Collection
}

var ErrDuplicateGroupName = errors.New("a group with this name already exists")

// Default member bounds applied when a group is created without them.
const (
	DefaultMinMembers = 2
	DefaultMaxMembers = 4
)

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("groups")}
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Group, error) {
	var g models.Group
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&g); err != nil {
		if err == mongo.ErrNoDocuments {
			return models.Group{}, apperrors.ErrNotFound
		}
		return models.Group{}, err
	}
	return g, nil
}

// Create inserts a new group, applying documented defaults for any field the
// caller left unset. The leader is added to the member list when missing.
func (s *Store) Create(ctx context.Context, g models.Group) (models.Group, error) {
	now := time.Now().UTC()
	g.ID = primitive.NewObjectID()
	g.NameCI = text.Fold(g.Name)
	if g.Status == "" {
		g.Status = status.GroupForming
	}
	g.IsActive = g.Status != status.GroupDisbanded
	if g.MinMembers == 0 {
		g.MinMembers = DefaultMinMembers
	}
	if g.MaxMembers == 0 {
		g.MaxMembers = DefaultMaxMembers
	}
	if !g.LeaderID.IsZero() && !hasMember(g.Members, g.LeaderID) {
		g.Members = append([]models.GroupMember{{
			StudentID: g.LeaderID,
			IsActive:  true,
			Role:      status.RoleLeader,
		}}, g.Members...)
	}
	g.Version = 0
	g.CreatedAt = now
	g.UpdatedAt = now
	_, err := s.c.InsertOne(ctx, g)
	if err != nil {
		if wafflemongo.IsDup(err) {
			return models.Group{}, ErrDuplicateGroupName
		}
		return models.Group{}, err
	}
	return g, nil
}

func hasMember(members []models.GroupMember, id primitive.ObjectID) bool {
	for _, m := range members {
		if m.StudentID == id {
			return true
		}
	}
	return false
}

// CompareAndSwapStatus writes a new status only if the document still carries
// the version the caller read. Returns false (no error) on a version miss so
// the caller can re-read and reapply.
func (s *Store) CompareAndSwapStatus(ctx context.Context, id primitive.ObjectID, version int64, newStatus string) (bool, error) {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "version": version},
		bson.M{
			"$set": bson.M{
				"status":     newStatus,
				"is_active":  newStatus != status.GroupDisbanded,
				"updated_at": time.Now().UTC(),
			},
			"$inc": bson.M{"version": 1},
		})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

// SetMemberActive flips one member's active flag. The write targets a single
// array element, so it composes with concurrent writes to other fields and
// needs no version check; it still bumps the version so status writers racing
// with it retry against the fresh membership.
func (s *Store) SetMemberActive(ctx context.Context, groupID, studentID primitive.ObjectID, active bool) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": groupID, "members.student_id": studentID},
		bson.M{
			"$set": bson.M{
				"members.$.is_active": active,
				"updated_at":          time.Now().UTC(),
			},
			"$inc": bson.M{"version": 1},
		})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// AddMember appends a member entry. The filter rejects duplicate student IDs
// (embedded arrays have no unique index to lean on).
func (s *Store) AddMember(ctx context.Context, groupID primitive.ObjectID, m models.GroupMember) error {
	if m.Role == "" {
		m.Role = status.RoleMember
	}
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": groupID, "members.student_id": bson.M{"$ne": m.StudentID}},
		bson.M{
			"$push": bson.M{"members": m},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
			"$inc":  bson.M{"version": 1},
		})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// ListSemesterBelow returns every group with a semester before the given one,
// regardless of status. The reconciler's group pass walks this set.
func (s *Store) ListSemesterBelow(ctx context.Context, semester int) ([]models.Group, error) {
	cur, err := s.c.Find(ctx, bson.M{"semester": bson.M{"$lt": semester}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Group
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListByStudent returns groups whose member list contains an active entry for
// the student.
func (s *Store) ListByStudent(ctx context.Context, studentID primitive.ObjectID) ([]models.Group, error) {
	cur, err := s.c.Find(ctx, bson.M{
		"members": bson.M{"$elemMatch": bson.M{"student_id": studentID, "is_active": true}},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Group
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
