// internal/app/store/students/studentstore.go
package studentstore

import (
	"context"
	"errors"
	"time"

	"github.com/campuskit/progresshub/internal/app/system/apperrors"
	"github.com/campuskit/progresshub/internal/app/system/normalize"
	"github.com/campuskit/progresshub/internal/app/system/status"
	"github.com/campuskit/progresshub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"

	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

var ErrDuplicateEnrollment = errors.New("a student with this enrollment number already exists")

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("students")}
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Student, error) {
	var st models.Student
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&st); err != nil {
		if err == mongo.ErrNoDocuments {
			return models.Student{}, apperrors.ErrNotFound
		}
		return models.Student{}, err
	}
	return st, nil
}

// Create inserts a student at enrollment. Semester defaults to 1; embedded
// arrays start empty.
func (s *Store) Create(ctx context.Context, st models.Student) (models.Student, error) {
	now := time.Now().UTC()
	st.ID = primitive.NewObjectID()
	st.FullName = normalize.Name(st.FullName)
	st.FullNameCI = text.Fold(st.FullName)
	st.Email = normalize.Email(st.Email)
	st.DegreeProgram = normalize.Program(st.DegreeProgram)
	if st.CurrentSemester == 0 {
		st.CurrentSemester = 1
	}
	st.Version = 0
	st.CreatedAt = now
	st.UpdatedAt = now
	_, err := s.c.InsertOne(ctx, st)
	if err != nil {
		if wafflemongo.IsDup(err) {
			return models.Student{}, ErrDuplicateEnrollment
		}
		return models.Student{}, err
	}
	return st, nil
}

// CohortFilter selects students by degree program and a semester floor.
type CohortFilter struct {
	DegreeProgram string
	MinSemester   int
}

// ListCohort returns students matching the cohort filter.
func (s *Store) ListCohort(ctx context.Context, f CohortFilter) ([]models.Student, error) {
	filter := bson.M{}
	if f.DegreeProgram != "" {
		filter["degree_program"] = f.DegreeProgram
	}
	if f.MinSemester > 0 {
		filter["current_semester"] = bson.M{"$gte": f.MinSemester}
	}
	cur, err := s.c.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Student
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AdvanceCohort bumps current_semester for every student in (degreeProgram,
// fromSemester) in one bulk write, so the window where part of the cohort has
// advanced and part has not stays as small as the server allows.
func (s *Store) AdvanceCohort(ctx context.Context, degreeProgram string, fromSemester int) (int64, error) {
	res, err := s.c.UpdateMany(ctx,
		bson.M{"degree_program": degreeProgram, "current_semester": fromSemester},
		bson.M{
			"$inc": bson.M{"current_semester": 1, "version": 1},
			"$set": bson.M{"updated_at": time.Now().UTC()},
		})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// CompleteStaleProjectRefs marks current_projects cache entries older than
// the student's current semester as completed. Cache entries are low-stakes
// (the projects collection is authoritative), so this is a plain write with
// no version check.
//
// The returned count is documents changed, not entries: 1 when the student's
// cache had any stale entry (all of them are completed in the one write),
// 0 when there was nothing to do.
func (s *Store) CompleteStaleProjectRefs(ctx context.Context, studentID primitive.ObjectID, currentSemester int) (int64, error) {
	// The filter requires a qualifying entry so a no-op pass matches nothing
	// and leaves the version alone; re-runs must make zero mutations.
	res, err := s.c.UpdateOne(ctx,
		bson.M{
			"_id": studentID,
			"current_projects": bson.M{"$elemMatch": bson.M{
				"semester": bson.M{"$lt": currentSemester},
				"status":   bson.M{"$nin": bson.A{status.ProjectCompleted, status.ProjectCancelled}},
			}},
		},
		bson.M{
			"$set": bson.M{
				"current_projects.$[p].status": status.ProjectCompleted,
				"updated_at":                   time.Now().UTC(),
			},
			"$inc": bson.M{"version": 1},
		},
		arrayFilterOpt(bson.M{
			"p.semester": bson.M{"$lt": currentSemester},
			"p.status":   bson.M{"$nin": bson.A{status.ProjectCompleted, status.ProjectCancelled}},
		}))
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// DeactivateStaleMemberships flips is_active off for membership entries whose
// semester is behind the student's current one.
func (s *Store) DeactivateStaleMemberships(ctx context.Context, studentID primitive.ObjectID, currentSemester int) (int64, error) {
	res, err := s.c.UpdateOne(ctx,
		bson.M{
			"_id": studentID,
			"group_memberships": bson.M{"$elemMatch": bson.M{
				"semester":  bson.M{"$lt": currentSemester},
				"is_active": true,
			}},
		},
		bson.M{
			"$set": bson.M{
				"group_memberships.$[m].is_active": false,
				"updated_at":                       time.Now().UTC(),
			},
			"$inc": bson.M{"version": 1},
		},
		arrayFilterOpt(bson.M{
			"m.semester":  bson.M{"$lt": currentSemester},
			"m.is_active": true,
		}))
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// ClearActiveGroup drops the weak back-reference, but only while it still
// points at the group the caller inspected.
func (s *Store) ClearActiveGroup(ctx context.Context, studentID, groupID primitive.ObjectID) (bool, error) {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": studentID, "active_group_id": groupID},
		bson.M{
			"$unset": bson.M{"active_group_id": ""},
			"$set":   bson.M{"updated_at": time.Now().UTC()},
			"$inc":   bson.M{"version": 1},
		})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

// SemestersByIDs returns current_semester for each requested student that
// exists. Missing students are simply absent from the map.
func (s *Store) SemestersByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]int, error) {
	out := make(map[primitive.ObjectID]int, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := s.c.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var row struct {
			ID              primitive.ObjectID `bson:"_id"`
			CurrentSemester int                `bson:"current_semester"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out[row.ID] = row.CurrentSemester
	}
	return out, cur.Err()
}

// ReplaceSelections writes the full selections array under the version the
// caller read. Returns false on a version miss so the caller re-reads and
// reapplies; selections are status-defining and never written last-writer-wins.
func (s *Store) ReplaceSelections(ctx context.Context, studentID primitive.ObjectID, version int64, selections []models.TrackSelection) (bool, error) {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": studentID, "version": version},
		bson.M{
			"$set": bson.M{
				"selections": selections,
				"updated_at": time.Now().UTC(),
			},
			"$inc": bson.M{"version": 1},
		})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

// SelectionFilter narrows ListWithSelections. Degree, Semester, and
// AcademicYear identify the cohort; the rest are optional.
type SelectionFilter struct {
	DegreeProgram      string
	Semester           int
	AcademicYear       string
	VerificationStatus string
	Track              string // matches chosen or finalized track
}

// ListWithSelections returns students carrying a selection that matches the
// filter. Fine-grained selection matching is finished in Go by the caller;
// this query narrows the cohort server-side.
func (s *Store) ListWithSelections(ctx context.Context, f SelectionFilter) ([]models.Student, error) {
	elem := bson.M{"semester": f.Semester}
	if f.AcademicYear != "" {
		elem["academic_year"] = f.AcademicYear
	}
	if f.VerificationStatus != "" {
		elem["verification_status"] = f.VerificationStatus
	}
	filter := bson.M{
		"degree_program": f.DegreeProgram,
		"selections":     bson.M{"$elemMatch": elem},
	}
	cur, err := s.c.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Student
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// arrayFilterOpt builds the UpdateOptions for a single arrayFilters entry.
func arrayFilterOpt(cond bson.M) *options.UpdateOptions {
	return options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{cond},
	})
}
