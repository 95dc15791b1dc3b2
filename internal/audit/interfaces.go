// Package audit handles the immutable per-case audit trail.
package audit

import (
	"context"

	"github.com/GSharvesh/Hac-KP/pkg/models"
)

// Repository defines audit trail persistence operations. Entries are
// append-only; there is deliberately no update or delete.
type Repository interface {
	// Insert persists a new audit entry.
	Insert(ctx context.Context, entry *models.AuditEntry) error
	// Get retrieves an audit entry by ID.
	Get(ctx context.Context, id string) (*models.AuditEntry, error)
	// ListByCase retrieves a case's entries ordered by sequence number.
	ListByCase(ctx context.Context, caseID string, limit, offset int) ([]*models.AuditEntry, error)
	// MaxSeq returns the highest sequence number for a case, 0 when none.
	MaxSeq(ctx context.Context, caseID string) (int64, error)
}

// Sequencer hands out the next per-case sequence number. The workflow
// holds the per-case lock while calling it, which keeps sequences gapless.
type Sequencer interface {
	NextSeq(ctx context.Context, caseID string) (int64, error)
}

// AppendParams describes one audit trail append.
type AppendParams struct {
	CaseID     string
	ActorID    string
	Action     models.Action
	OldState   models.CaseStatus
	NewState   models.CaseStatus
	ReasonCode models.ReasonCode
	Meta       map[string]any
}

// ExportFormat defines the export format.
type ExportFormat string

const (
	ExportFormatJSON ExportFormat = "json"
	ExportFormatCSV  ExportFormat = "csv"
)

// Service handles audit trail business logic.
type Service interface {
	Sequencer
	// Append records a new audit entry with the next sequence number.
	Append(ctx context.Context, params AppendParams) (*models.AuditEntry, error)
	// Get retrieves a single audit entry.
	Get(ctx context.Context, id string) (*models.AuditEntry, error)
	// List retrieves a case's audit trail in sequence order.
	List(ctx context.Context, caseID string, limit, offset int) ([]*models.AuditEntry, error)
	// VerifyIntegrity recomputes every checksum for the case and checks
	// the sequence range is gapless. It fails closed: any mismatch or
	// missing entry yields false and an error matching ErrIntegrityViolation.
	VerifyIntegrity(ctx context.Context, caseID string) (bool, error)
	// Export serializes a case's audit trail.
	Export(ctx context.Context, caseID string, format ExportFormat) ([]byte, error)
}
