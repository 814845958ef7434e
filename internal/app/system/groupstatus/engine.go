// internal/app/system/groupstatus/engine.go
package groupstatus

import (
	"context"
	"fmt"

	groupstore "github.com/campuskit/progresshub/internal/app/store/groups"
	studentstore "github.com/campuskit/progresshub/internal/app/store/students"
	"github.com/campuskit/progresshub/internal/app/system/apperrors"
	"github.com/campuskit/progresshub/internal/app/system/status"
	"github.com/campuskit/progresshub/internal/domain/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// maxStatusRetries bounds the read-modify-retry loop on a version conflict.
const maxStatusRetries = 5

// Result is the outcome of deriving a group's status from its membership
// snapshot. Err marks an invariant violation that must not be auto-corrected
// (active count above maximum); it is a result flag, not a returned error,
// because the call itself succeeded and no retry will help.
type Result struct {
	NewStatus string
	Changed   bool
	Reason    string
	Err       bool
}

// Compute derives the correct status for a group from its current membership
// snapshot. Pure: it never mutates and never touches storage. Rules apply in
// priority order; disbandment is the one rule that overrides even the
// administrator-protected finalized/locked states.
func Compute(g models.Group) Result {
	active := g.ActiveMemberCount()

	if active == 0 {
		return Result{
			NewStatus: status.GroupDisbanded,
			Changed:   g.Status != status.GroupDisbanded,
			Reason:    "no active members remain",
		}
	}

	if active > g.MaxMembers {
		return Result{
			NewStatus: g.Status,
			Err:       true,
			Reason: fmt.Sprintf("active member count %d exceeds maximum %d; manual intervention required, members are never auto-trimmed",
				active, g.MaxMembers),
		}
	}

	if status.IsProtected(g.Status) {
		if active < g.MinMembers {
			return Result{
				NewStatus: g.Status,
				Reason: fmt.Sprintf("status %q is administrator-protected with %d of %d minimum members; preserved, manual intervention may be needed",
					g.Status, active, g.MinMembers),
			}
		}
		return Result{NewStatus: g.Status, Reason: "no change"}
	}

	if active < g.MinMembers {
		return Result{
			NewStatus: status.GroupForming,
			Changed:   g.Status != status.GroupForming,
			Reason:    fmt.Sprintf("active member count %d is below minimum %d", active, g.MinMembers),
		}
	}

	switch g.Status {
	case status.GroupOpen, status.GroupForming, status.GroupInvitationsSent:
		return Result{
			NewStatus: status.GroupComplete,
			Changed:   true,
			Reason:    fmt.Sprintf("member count %d is within [%d,%d]", active, g.MinMembers, g.MaxMembers),
		}
	}

	return Result{NewStatus: g.Status, Reason: "no change"}
}

// Engine applies Compute against stored groups.
type Engine struct {
	groups   *groupstore.Store
	students *studentstore.Store
	log      *zap.Logger
}

func New(groups *groupstore.Store, students *studentstore.Store, logger *zap.Logger) *Engine {
	return &Engine{groups: groups, students: students, log: logger}
}

// UpdateResult reports a ValidateAndUpdate call.
type UpdateResult struct {
	StatusChanged  bool   `json:"status_changed"`
	PreviousStatus string `json:"previous_status"`
	CurrentStatus  string `json:"current_status"`
	MemberCount    int    `json:"member_count"`
	MinMembers     int    `json:"min_members"`
	MaxMembers     int    `json:"max_members"`
	Reason         string `json:"reason"`
	Err            bool   `json:"error,omitempty"`
}

// ValidateAndUpdate loads the group, derives its status, and persists the new
// status only when it changed. The write is optimistic: a version miss
// re-reads the group and re-derives from the fresh snapshot rather than
// force-writing, so a concurrent membership change is never clobbered.
func (e *Engine) ValidateAndUpdate(ctx context.Context, groupID primitive.ObjectID) (UpdateResult, error) {
	for attempt := 0; attempt <= maxStatusRetries; attempt++ {
		g, err := e.groups.GetByID(ctx, groupID)
		if err != nil {
			return UpdateResult{}, err
		}

		r := Compute(g)
		out := UpdateResult{
			StatusChanged:  r.Changed,
			PreviousStatus: g.Status,
			CurrentStatus:  r.NewStatus,
			MemberCount:    g.ActiveMemberCount(),
			MinMembers:     g.MinMembers,
			MaxMembers:     g.MaxMembers,
			Reason:         r.Reason,
			Err:            r.Err,
		}
		if !r.Changed {
			return out, nil
		}

		ok, err := e.groups.CompareAndSwapStatus(ctx, groupID, g.Version, r.NewStatus)
		if err != nil {
			return UpdateResult{}, err
		}
		if ok {
			e.log.Info("group status updated",
				zap.String("group_id", groupID.Hex()),
				zap.String("from", g.Status),
				zap.String("to", r.NewStatus),
				zap.String("reason", r.Reason))
			return out, nil
		}
		// Version miss: another writer touched the group. Loop re-reads.
	}
	return UpdateResult{}, apperrors.ErrConflict
}

// PromotionCheck reports whether every active member of a group has reached a
// target semester.
type PromotionCheck struct {
	AllPromoted      bool  `json:"all_promoted"`
	TotalMembers     int   `json:"total_members"`
	PromotedCount    int   `json:"promoted_count"`
	CurrentSemesters []int `json:"current_semesters"`
	GroupSemester    int   `json:"group_semester"`
	TargetSemester   int   `json:"target_semester"`
}

// CheckAllMembersPromoted reads the current semester of every active member.
// A group with zero active members is vacuously all-promoted.
func (e *Engine) CheckAllMembersPromoted(ctx context.Context, groupID primitive.ObjectID, targetSemester int) (PromotionCheck, error) {
	g, err := e.groups.GetByID(ctx, groupID)
	if err != nil {
		return PromotionCheck{}, err
	}

	var ids []primitive.ObjectID
	for _, m := range g.Members {
		if m.IsActive {
			ids = append(ids, m.StudentID)
		}
	}

	out := PromotionCheck{
		TotalMembers:   len(ids),
		GroupSemester:  g.Semester,
		TargetSemester: targetSemester,
	}
	if len(ids) == 0 {
		out.AllPromoted = true
		return out, nil
	}

	semesters, err := e.students.SemestersByIDs(ctx, ids)
	if err != nil {
		return PromotionCheck{}, err
	}

	all := true
	for _, id := range ids {
		sem, found := semesters[id]
		if !found {
			all = false
			continue
		}
		out.CurrentSemesters = append(out.CurrentSemesters, sem)
		if sem >= targetSemester {
			out.PromotedCount++
		} else {
			all = false
		}
	}
	out.AllPromoted = all && out.PromotedCount == out.TotalMembers
	return out, nil
}

// Audit is the read-only result of ValidateForSemester.
type Audit struct {
	Valid         bool     `json:"valid"`
	Issues        []string `json:"issues"`
	Warnings      []string `json:"warnings"`
	MemberCount   int      `json:"member_count"`
	GroupStatus   string   `json:"group_status"`
	GroupSemester int      `json:"group_semester"`
}

// ValidateForSemester audits a group against an expected semester. It never
// mutates; callers decide what to do with the findings.
func (e *Engine) ValidateForSemester(ctx context.Context, groupID primitive.ObjectID, semester int) (Audit, error) {
	g, err := e.groups.GetByID(ctx, groupID)
	if err != nil {
		return Audit{}, err
	}

	active := g.ActiveMemberCount()
	a := Audit{
		MemberCount:   active,
		GroupStatus:   g.Status,
		GroupSemester: g.Semester,
	}

	if g.Semester != semester {
		a.Issues = append(a.Issues, fmt.Sprintf("group semester %d does not match expected semester %d", g.Semester, semester))
	}
	if active == 0 && g.Status != status.GroupDisbanded {
		a.Issues = append(a.Issues, fmt.Sprintf("no active members but status is %q, not disbanded", g.Status))
	}
	if active > 0 && (active < g.MinMembers || active > g.MaxMembers) {
		a.Issues = append(a.Issues, fmt.Sprintf("active member count %d outside [%d,%d]", active, g.MinMembers, g.MaxMembers))
	}
	if g.Status != status.GroupDisbanded && !g.HasActiveLeader() {
		a.Issues = append(a.Issues, "leader is not among the active members")
	}
	if active >= g.MinMembers && active <= g.MaxMembers && g.Status == status.GroupForming {
		a.Warnings = append(a.Warnings, fmt.Sprintf("member count %d is within range but status is still %q", active, g.Status))
	}

	a.Valid = len(a.Issues) == 0
	return a, nil
}
