// internal/app/system/status/status.go
package status

// Group lifecycle statuses. A group is never physically deleted; Disbanded is
// the soft-terminal state and is the only status with IsActive == false.
const (
	GroupForming         = "forming"
	GroupOpen            = "open"
	GroupInvitationsSent = "invitations_sent"
	GroupComplete        = "complete"
	GroupFinalized       = "finalized"
	GroupLocked          = "locked"
	GroupDisbanded       = "disbanded"
)

// Project lifecycle statuses. Status only moves forward under normal
// workflow; the reconciler's close-out of a stale-semester project is the one
// sanctioned exception.
const (
	ProjectRegistered = "registered"
	ProjectActive     = "active"
	ProjectCompleted  = "completed"
	ProjectCancelled  = "cancelled"
)

// Per-semester pathway tracks a student can choose.
const (
	TrackInternship = "internship"
	TrackCoursework = "coursework"
)

// Verification states for a track selection.
const (
	VerificationPending  = "pending"
	VerificationVerified = "verified"
	VerificationRejected = "rejected"
)

// Membership roles inside a group.
const (
	RoleLeader = "leader"
	RoleMember = "member"
)

// IsProtected reports whether a group status is administrator-protected.
// Protected groups are never auto-demoted for being under minimum size.
func IsProtected(s string) bool {
	return s == GroupFinalized || s == GroupLocked
}

// IsTerminalProject reports whether a project status is terminal.
func IsTerminalProject(s string) bool {
	return s == ProjectCompleted || s == ProjectCancelled
}

// ValidTrack reports whether t is a recognized track value.
func ValidTrack(t string) bool {
	return t == TrackInternship || t == TrackCoursework
}

// ValidVerification reports whether v is a recognized verification state.
func ValidVerification(v string) bool {
	return v == VerificationPending || v == VerificationVerified || v == VerificationRejected
}
