// Package models defines the core domain types for the takedown case system.
package models

import (
	"time"
)

// CaseStatus represents the workflow state of a case.
type CaseStatus string

const (
	StatusSubmitted CaseStatus = "Submitted"
	StatusInReview  CaseStatus = "InReview"
	StatusApproved  CaseStatus = "Approved"
	StatusRejected  CaseStatus = "Rejected"
	StatusEscalated CaseStatus = "Escalated"
	StatusClosed    CaseStatus = "Closed"
)

// AllStatuses lists every case status.
func AllStatuses() []CaseStatus {
	return []CaseStatus{
		StatusSubmitted, StatusInReview, StatusApproved,
		StatusRejected, StatusEscalated, StatusClosed,
	}
}

// Terminal reports whether the status admits no further transitions.
func (s CaseStatus) Terminal() bool {
	return s == StatusClosed
}

// Timed reports whether a case in this status carries an SLA deadline.
func (s CaseStatus) Timed() bool {
	switch s {
	case StatusSubmitted, StatusInReview, StatusEscalated:
		return true
	}
	return false
}

// CasePriority represents case priority levels.
type CasePriority string

const (
	PriorityLow    CasePriority = "low"
	PriorityMedium CasePriority = "medium"
	PriorityHigh   CasePriority = "high"
	PriorityUrgent CasePriority = "urgent"
)

// Valid reports whether the priority is a known level.
func (p CasePriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Role identifies the actor category performing an action. The role is
// validated upstream by the authentication collaborator and trusted here.
type Role string

const (
	RoleVictim  Role = "victim"
	RoleOfficer Role = "officer"
	RoleAdmin   Role = "admin"
	RoleSystem  Role = "system"
)

// Actor is the pre-validated identity attached to every request.
type Actor struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Purpose string `json:"purpose,omitempty"`
}

// SystemActor is the actor used for scheduler-driven transitions.
var SystemActor = Actor{ID: "system", Role: RoleSystem}

// Action is the verb driving a state transition.
type Action string

const (
	ActionSubmit        Action = "submit"
	ActionStartReview   Action = "start_review"
	ActionApprove       Action = "approve"
	ActionReject        Action = "reject"
	ActionEscalate      Action = "escalate"
	ActionAutoEscalate  Action = "auto_escalate"
	ActionReassign      Action = "reassign"
	ActionOverrideClose Action = "override_close"
	ActionClose         Action = "close"
)

// ReasonCode is the closed vocabulary recorded on every transition.
type ReasonCode string

const (
	ReasonInitialSubmission    ReasonCode = "initial_submission"
	ReasonDuplicateDetected    ReasonCode = "duplicate_detected"
	ReasonOfficerAssignment    ReasonCode = "officer_assignment"
	ReasonContentHarmful       ReasonCode = "content_verified_harmful"
	ReasonContentSafe          ReasonCode = "content_verified_safe"
	ReasonFalseReport          ReasonCode = "false_report"
	ReasonJurisdictionIssue    ReasonCode = "jurisdiction_issue"
	ReasonInsufficientEvidence ReasonCode = "insufficient_evidence"
	ReasonSLAViolation         ReasonCode = "sla_violation"
	ReasonManualEscalation     ReasonCode = "manual_escalation"
	ReasonMaxEscalationReached ReasonCode = "max_escalation_reached"
	ReasonAdminOverride        ReasonCode = "admin_override"
	ReasonCaseClosed           ReasonCode = "case_closed"
)

// SubmissionKind distinguishes reported content forms.
type SubmissionKind string

const (
	KindURL  SubmissionKind = "URL"
	KindHash SubmissionKind = "HASH"
)

// Valid reports whether the kind is known.
func (k SubmissionKind) Valid() bool {
	return k == KindURL || k == KindHash
}

// Case represents a victim-submitted takedown request moving through the
// review workflow. OriginCaseID is set iff the case was classified as a
// duplicate of an earlier case; RootCaseID then points at the ultimate
// original for forensic queries. SLAViolated is sticky: once set it is
// never cleared, even after reassignment.
type Case struct {
	ID                string       `json:"id"`
	Status            CaseStatus   `json:"status"`
	Priority          CasePriority `json:"priority"`
	Jurisdiction      string       `json:"jurisdiction"`
	SubmitterID       string       `json:"submitter_id"`
	AssignedOfficerID string       `json:"assigned_officer_id,omitempty"`
	OriginCaseID      string       `json:"origin_case_id,omitempty"`
	RootCaseID        string       `json:"root_case_id,omitempty"`
	LineageDepth      int          `json:"lineage_depth"`
	EscalationLevel   int          `json:"escalation_level"`
	SLADueAt          *time.Time   `json:"sla_due_at,omitempty"`
	SLAViolated       bool         `json:"sla_violated"`
	Version           int64        `json:"version"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
	ResolvedAt        *time.Time   `json:"resolved_at,omitempty"`
}

// Original reports whether the case is a lineage root.
func (c *Case) Original() bool {
	return c.OriginCaseID == ""
}

// Submission is a single reported content item belonging to a case.
// (case_id, dedup_hash) is unique: the same fingerprint appears at most
// once per case but links separate cases.
type Submission struct {
	ID                string         `json:"id"`
	CaseID            string         `json:"case_id"`
	Kind              SubmissionKind `json:"kind"`
	Content           string         `json:"content"`
	NormalizedContent string         `json:"normalized_content"`
	DedupHash         string         `json:"dedup_hash"`
	CreatedAt         time.Time      `json:"created_at"`
}

// AuditEntry is one immutable record in a case's audit trail. Entries are
// ordered by Seq, a per-case monotonic sequence; CreatedAt is advisory.
// Checksum covers (ID, CaseID, ActorID, Action, OldState, NewState,
// CreatedAt) and is independently verifiable per entry.
type AuditEntry struct {
	ID         string         `json:"log_id"`
	CaseID     string         `json:"case_id"`
	Seq        int64          `json:"seq"`
	ActorID    string         `json:"actor_id"`
	Action     Action         `json:"action"`
	OldState   CaseStatus     `json:"old_state,omitempty"`
	NewState   CaseStatus     `json:"new_state"`
	ReasonCode ReasonCode     `json:"reason_code"`
	Meta       map[string]any `json:"meta,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	Checksum   string         `json:"checksum"`
}

// TimerType classifies the SLA timer attached to a timed state.
type TimerType string

const (
	TimerReview     TimerType = "review"
	TimerEscalation TimerType = "escalation"
	TimerResolution TimerType = "resolution"
)

// TimerStatus is the lifecycle state of an SLA timer.
type TimerStatus string

const (
	TimerPending   TimerStatus = "pending"
	TimerTriggered TimerStatus = "triggered"
	TimerCancelled TimerStatus = "cancelled"
)

// SLATimer is a projection of a case's deadline; the authoritative value
// is Case.SLADueAt.
type SLATimer struct {
	CaseID string      `json:"case_id"`
	Type   TimerType   `json:"timer_type"`
	Status TimerStatus `json:"status"`
	DueAt  time.Time   `json:"due_at"`
}

// TimerFor derives the timer projection for a case, or nil when the case
// carries no deadline.
func TimerFor(c *Case) *SLATimer {
	if c.SLADueAt == nil {
		return nil
	}
	t := &SLATimer{CaseID: c.ID, Status: TimerPending, DueAt: *c.SLADueAt}
	switch c.Status {
	case StatusInReview:
		t.Type = TimerReview
	case StatusEscalated:
		t.Type = TimerEscalation
	default:
		t.Type = TimerResolution
	}
	return t
}

// Notification is the payload handed to the notification collaborator.
// Delivery is best-effort and never rolls back a transition.
type Notification struct {
	CaseID      string    `json:"case_id"`
	EventType   string    `json:"event_type"`
	RecipientID string    `json:"recipient_id"`
	Severity    string    `json:"severity"`
	Message     string    `json:"message"`
	SentAt      time.Time `json:"sent_at"`
}

// Notification severities.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Notification event types.
const (
	EventCaseSubmitted  = "case_submitted"
	EventCaseTransition = "case_transition"
	EventCaseEscalated  = "case_escalated"
	EventSLAWarning     = "sla_warning"
	EventMaxEscalation  = "max_escalation_reached"
)
