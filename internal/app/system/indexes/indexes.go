// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

/*
EnsureAll is called at startup. Each ensure* function is idempotent.
We aggregate errors so any problem is visible and startup can fail fast.
*/
func EnsureAll(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	var problems []string

	if err := ensureStudents(ctx, db, logger); err != nil {
		problems = append(problems, "students: "+err.Error())
	}
	if err := ensureGroups(ctx, db, logger); err != nil {
		problems = append(problems, "groups: "+err.Error())
	}
	if err := ensureProjects(ctx, db, logger); err != nil {
		problems = append(problems, "projects: "+err.Error())
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// ensureIndexSet creates each desired index, treating "already exists with
// the same keys" as success. Unlike a migration it never drops data-bearing
// indexes; a genuine options conflict surfaces as an error for an operator.
func ensureIndexSet(ctx context.Context, coll *mongo.Collection, logger *zap.Logger, models []mongo.IndexModel) error {
	var errs []string

	for _, m := range models {
		name := ""
		if m.Options != nil && m.Options.Name != nil {
			name = *m.Options.Name
		}
		if _, err := coll.Indexes().CreateOne(ctx, m); err != nil {
			if isIndexExistsErr(err) {
				logger.Debug("index already present",
					zap.String("collection", coll.Name()),
					zap.String("name", name))
				continue
			}
			errs = append(errs, fmt.Sprintf("%s(%s): %v", coll.Name(), name, err))
			continue
		}
		logger.Info("index ensured",
			zap.String("collection", coll.Name()),
			zap.String("name", name))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// CreateOne on an identical spec is a no-op, but some servers report
// IndexOptionsConflict or IndexKeySpecsConflict for near-matches.
func isIndexExistsErr(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "IndexOptionsConflict") || strings.Contains(s, "IndexKeySpecsConflict")
}

func ensureStudents(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	c := db.Collection("students")
	return ensureIndexSet(ctx, c, logger, []mongo.IndexModel{
		// Enrollment numbers are globally unique.
		{
			Keys:    bson.D{{Key: "enrollment_no", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_students_enrollment"),
		},

		// Cohort selection: the scheduler's bulk advance and the reconciler's
		// cohort listing both filter on (degree_program, current_semester).
		{
			Keys: bson.D{
				{Key: "degree_program", Value: 1},
				{Key: "current_semester", Value: 1},
			},
			Options: options.Index().SetName("idx_students_program_semester"),
		},

		// Membership-array containment lookups.
		{
			Keys:    bson.D{{Key: "group_memberships.group_id", Value: 1}},
			Options: options.Index().SetName("idx_students_membership_group"),
		},

		// Track selection list path: cohort plus embedded selection fields.
		{
			Keys: bson.D{
				{Key: "degree_program", Value: 1},
				{Key: "selections.semester", Value: 1},
				{Key: "selections.academic_year", Value: 1},
			},
			Options: options.Index().SetName("idx_students_selections"),
		},
	})
}

func ensureGroups(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	c := db.Collection("groups")
	return ensureIndexSet(ctx, c, logger, []mongo.IndexModel{
		// Group names are unique (case/diacritics folded).
		{
			Keys:    bson.D{{Key: "name_ci", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_groups_nameci"),
		},

		// The reconciler's group pass scans by semester; status filters ride
		// the same prefix.
		{
			Keys: bson.D{
				{Key: "semester", Value: 1},
				{Key: "status", Value: 1},
			},
			Options: options.Index().SetName("idx_groups_semester_status"),
		},

		// Member containment lookups.
		{
			Keys:    bson.D{{Key: "members.student_id", Value: 1}},
			Options: options.Index().SetName("idx_groups_member_student"),
		},
	})
}

func ensureProjects(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	c := db.Collection("projects")
	return ensureIndexSet(ctx, c, logger, []mongo.IndexModel{
		// Owner lookups; sparse because exactly one owner field is set.
		{
			Keys:    bson.D{{Key: "student_id", Value: 1}},
			Options: options.Index().SetSparse(true).SetName("idx_projects_student"),
		},
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}},
			Options: options.Index().SetSparse(true).SetName("idx_projects_group"),
		},

		// Stale-project collection filters on (semester, status).
		{
			Keys: bson.D{
				{Key: "semester", Value: 1},
				{Key: "status", Value: 1},
			},
			Options: options.Index().SetName("idx_projects_semester_status"),
		},
	})
}
