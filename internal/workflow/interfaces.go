// Package workflow drives takedown cases through their review lifecycle:
// submission with dedup classification, role-gated transitions, SLA
// deadline bookkeeping and the per-transition audit trail.
package workflow

import (
	"context"
	"time"

	"github.com/GSharvesh/Hac-KP/pkg/models"
)

// ListFilter selects cases. Zero fields match everything.
type ListFilter struct {
	Statuses    []models.CaseStatus
	Priority    models.CasePriority
	SubmitterID string
	OfficerID   string
	// DueBefore matches cases whose SLA deadline is set and at or before
	// the given instant. The scheduler uses it to find overdue work.
	DueBefore *time.Time
	Limit     int
	Offset    int
}

// Repository persists cases. CreateCase and ApplyTransition are atomic:
// the case row, its submissions and the audit entry commit or fail
// together. ApplyTransition checks the case version and fails with
// ErrConflict when another writer got there first.
type Repository interface {
	GetCase(ctx context.Context, id string) (*models.Case, error)
	ListCases(ctx context.Context, filter ListFilter) ([]*models.Case, error)
	CreateCase(ctx context.Context, c *models.Case, subs []*models.Submission, entry *models.AuditEntry) error
	ApplyTransition(ctx context.Context, c *models.Case, entry *models.AuditEntry) error
	ListSubmissions(ctx context.Context, caseID string) ([]*models.Submission, error)
}

// SubmissionInput is one reported content item in a submit request.
type SubmissionInput struct {
	Kind    models.SubmissionKind
	Content string
}

// SubmitParams describes a new takedown request.
type SubmitParams struct {
	SubmitterID  string
	Priority     models.CasePriority
	Jurisdiction string
	Items        []SubmissionInput
}

// ExecuteOptions carries the optional parts of a transition request.
type ExecuteOptions struct {
	// Reason overrides the transition's default reason code. It must be
	// in the transition's allowed set.
	Reason models.ReasonCode
	// OfficerID names the officer for start_review and reassign.
	OfficerID string
	Meta      map[string]any
}

// Service is the case workflow engine.
type Service interface {
	// Submit normalizes and deduplicates the reported content, creates
	// the case with its lineage link and seeds the audit trail.
	Submit(ctx context.Context, params SubmitParams) (*models.Case, error)
	// Execute performs one state transition on behalf of an actor. It
	// holds the per-case lock for the duration, so audit sequence
	// numbers stay gapless under concurrency.
	Execute(ctx context.Context, caseID string, actor models.Actor, action models.Action, opts ExecuteOptions) (*models.Case, error)
	// CanTransition checks transition legality without performing it.
	CanTransition(c *models.Case, action models.Action, role models.Role) error
	Get(ctx context.Context, id string) (*models.Case, error)
	List(ctx context.Context, filter ListFilter) ([]*models.Case, error)
	// Lineage walks origin links from the case up to its root.
	Lineage(ctx context.Context, id string) ([]*models.Case, error)
	Submissions(ctx context.Context, caseID string) ([]*models.Submission, error)
}
