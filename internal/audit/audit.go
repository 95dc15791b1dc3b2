package audit

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/GSharvesh/Hac-KP/pkg/errors"
	"github.com/GSharvesh/Hac-KP/pkg/models"
)

// NewService creates a new audit service.
func NewService(repo Repository) Service {
	return &serviceImpl{repo: repo}
}

type serviceImpl struct {
	repo Repository
}

// NewEntry builds an audit entry with its checksum. It is pure: callers
// that need atomicity with a case mutation persist the returned entry
// inside the same transaction as the case row.
func NewEntry(caseID string, seq int64, actorID string, action models.Action,
	oldState, newState models.CaseStatus, reason models.ReasonCode,
	meta map[string]any, at time.Time) *models.AuditEntry {

	entry := &models.AuditEntry{
		ID:         uuid.New().String(),
		CaseID:     caseID,
		Seq:        seq,
		ActorID:    actorID,
		Action:     action,
		OldState:   oldState,
		NewState:   newState,
		ReasonCode: reason,
		Meta:       meta,
		CreatedAt:  at.UTC(),
	}
	entry.Checksum = Checksum(entry)
	return entry
}

// Checksum computes the SHA-256 digest of the entry's identity tuple.
// Each entry is independently verifiable: the checksum of entry n does
// not depend on entry n-1, so verification never cascades.
func Checksum(entry *models.AuditEntry) string {
	h := sha256.New()
	h.Write([]byte(entry.ID))
	h.Write([]byte(entry.CaseID))
	h.Write([]byte(entry.ActorID))
	h.Write([]byte(entry.Action))
	h.Write([]byte(entry.OldState))
	h.Write([]byte(entry.NewState))
	h.Write([]byte(entry.CreatedAt.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(h.Sum(nil))
}

func (s *serviceImpl) NextSeq(ctx context.Context, caseID string) (int64, error) {
	max, err := s.repo.MaxSeq(ctx, caseID)
	if err != nil {
		return 0, fmt.Errorf("failed to read max sequence: %w", err)
	}
	return max + 1, nil
}

func (s *serviceImpl) Append(ctx context.Context, params AppendParams) (*models.AuditEntry, error) {
	if params.CaseID == "" {
		return nil, fmt.Errorf("case ID is required: %w", errors.ErrInvalidInput)
	}
	if params.ActorID == "" {
		return nil, fmt.Errorf("actor ID is required: %w", errors.ErrInvalidInput)
	}

	seq, err := s.NextSeq(ctx, params.CaseID)
	if err != nil {
		return nil, err
	}

	entry := NewEntry(params.CaseID, seq, params.ActorID, params.Action,
		params.OldState, params.NewState, params.ReasonCode, params.Meta, time.Now())

	if err := s.repo.Insert(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return entry, nil
}

func (s *serviceImpl) Get(ctx context.Context, id string) (*models.AuditEntry, error) {
	entry, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit entry: %w", err)
	}
	return entry, nil
}

func (s *serviceImpl) List(ctx context.Context, caseID string, limit, offset int) ([]*models.AuditEntry, error) {
	entries, err := s.repo.ListByCase(ctx, caseID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return entries, nil
}

func (s *serviceImpl) VerifyIntegrity(ctx context.Context, caseID string) (bool, error) {
	entries, err := s.repo.ListByCase(ctx, caseID, 0, 0)
	if err != nil {
		return false, fmt.Errorf("failed to load audit entries for verification: %w", err)
	}
	if len(entries) == 0 {
		return false, errors.NewIntegrityError(caseID, "", 0, "no audit entries recorded")
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })

	for i, entry := range entries {
		expectedSeq := int64(i + 1)
		if entry.Seq != expectedSeq {
			return false, errors.NewIntegrityError(caseID, entry.ID, expectedSeq,
				fmt.Sprintf("sequence gap: expected seq %d, found %d", expectedSeq, entry.Seq))
		}
		if Checksum(entry) != entry.Checksum {
			return false, errors.NewIntegrityError(caseID, entry.ID, entry.Seq, "checksum mismatch")
		}
	}
	return true, nil
}

func (s *serviceImpl) Export(ctx context.Context, caseID string, format ExportFormat) ([]byte, error) {
	entries, err := s.repo.ListByCase(ctx, caseID, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load audit entries for export: %w", err)
	}

	switch format {
	case ExportFormatJSON:
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal audit entries: %w", err)
		}
		return data, nil
	case ExportFormatCSV:
		return exportCSV(entries)
	default:
		return nil, fmt.Errorf("unsupported export format %q: %w", format, errors.ErrInvalidInput)
	}
}

func exportCSV(entries []*models.AuditEntry) ([]byte, error) {
	var buf strings.Builder
	writer := csv.NewWriter(&buf)

	header := []string{"entry_id", "case_id", "seq", "actor_id", "action", "old_state", "new_state", "reason_code", "created_at", "checksum"}
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, e := range entries {
		row := []string{
			e.ID,
			e.CaseID,
			fmt.Sprintf("%d", e.Seq),
			e.ActorID,
			string(e.Action),
			string(e.OldState),
			string(e.NewState),
			string(e.ReasonCode),
			e.CreatedAt.Format(time.RFC3339),
			e.Checksum,
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return []byte(buf.String()), writer.Error()
}
