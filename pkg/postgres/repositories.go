// Package postgres provides PostgreSQL repository implementations.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/GSharvesh/Hac-KP/internal/workflow"
	"github.com/GSharvesh/Hac-KP/pkg/errors"
	"github.com/GSharvesh/Hac-KP/pkg/models"
)

const caseColumns = `id, status, priority, jurisdiction, submitter_id, assigned_officer_id,
	origin_case_id, root_case_id, lineage_depth, escalation_level,
	sla_due_at, sla_violated, version, created_at, updated_at, resolved_at`

// =============================================================================
// Case Store
// =============================================================================

// Store implements case persistence: workflow.Repository, dedup.Repository
// and the scheduler's warning repository. Case creation and transitions
// run in a single transaction with their audit entry.
type Store struct {
	db *DB
}

// NewStore creates a new case store.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (*models.Case, error) {
	var (
		c            models.Case
		jurisdiction sql.NullString
		officer      sql.NullString
		origin       sql.NullString
		root         sql.NullString
		dueAt        sql.NullTime
		resolvedAt   sql.NullTime
	)
	err := row.Scan(&c.ID, &c.Status, &c.Priority, &jurisdiction, &c.SubmitterID, &officer,
		&origin, &root, &c.LineageDepth, &c.EscalationLevel,
		&dueAt, &c.SLAViolated, &c.Version, &c.CreatedAt, &c.UpdatedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	c.Jurisdiction = jurisdiction.String
	c.AssignedOfficerID = officer.String
	c.OriginCaseID = origin.String
	c.RootCaseID = root.String
	if dueAt.Valid {
		t := dueAt.Time
		c.SLADueAt = &t
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		c.ResolvedAt = &t
	}
	return &c, nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// GetCase retrieves a case by ID.
func (s *Store) GetCase(ctx context.Context, id string) (*models.Case, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+caseColumns+` FROM cases WHERE id = $1`, id)
	c, err := scanCase(row)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get case: %w", err)
	}
	return c, nil
}

// ListCases retrieves cases matching the filter, oldest first.
func (s *Store) ListCases(ctx context.Context, filter workflow.ListFilter) ([]*models.Case, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		conds = append(conds, "status = ANY("+arg(pq.Array(statuses))+")")
	}
	if filter.Priority != "" {
		conds = append(conds, "priority = "+arg(string(filter.Priority)))
	}
	if filter.SubmitterID != "" {
		conds = append(conds, "submitter_id = "+arg(filter.SubmitterID))
	}
	if filter.OfficerID != "" {
		conds = append(conds, "assigned_officer_id = "+arg(filter.OfficerID))
	}
	if filter.DueBefore != nil {
		conds = append(conds, "sla_due_at IS NOT NULL AND sla_due_at <= "+arg(*filter.DueBefore))
	}

	query := `SELECT ` + caseColumns + ` FROM cases`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var cases []*models.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan case: %w", err)
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

// CreateCase persists a case, its submissions and the initial audit
// entry in one transaction. A case classified as original whose content
// already exists fails with ErrDuplicateRace so the caller reclassifies.
func (s *Store) CreateCase(ctx context.Context, c *models.Case, subs []*models.Submission, entry *models.AuditEntry) error {
	return s.db.WithTx(ctx, func(tx *Tx) error {
		if c.Original() {
			for _, sub := range subs {
				var exists bool
				err := tx.QueryRowContext(ctx,
					`SELECT EXISTS(SELECT 1 FROM submissions WHERE dedup_hash = $1)`,
					sub.DedupHash,
				).Scan(&exists)
				if err != nil {
					return fmt.Errorf("failed to check fingerprint: %w", err)
				}
				if exists {
					return errors.ErrDuplicateRace
				}
			}
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO cases (`+caseColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
			c.ID, c.Status, c.Priority, nullStr(c.Jurisdiction), c.SubmitterID, nullStr(c.AssignedOfficerID),
			nullStr(c.OriginCaseID), nullStr(c.RootCaseID), c.LineageDepth, c.EscalationLevel,
			c.SLADueAt, c.SLAViolated, c.Version, c.CreatedAt, c.UpdatedAt, c.ResolvedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create case: %w", err)
		}

		for _, sub := range subs {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO submissions (id, case_id, kind, content, normalized_content, dedup_hash, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				sub.ID, sub.CaseID, sub.Kind, sub.Content, sub.NormalizedContent, sub.DedupHash, sub.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to create submission: %w", err)
			}
		}

		return insertAuditEntry(ctx, tx.Tx, entry)
	})
}

// ApplyTransition persists a transitioned case and its audit entry in
// one transaction. The update is versioned: a concurrent writer makes it
// fail with ErrConflict.
func (s *Store) ApplyTransition(ctx context.Context, c *models.Case, entry *models.AuditEntry) error {
	return s.db.WithTx(ctx, func(tx *Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE cases SET status = $2, assigned_officer_id = $3, escalation_level = $4,
				sla_due_at = $5, sla_violated = $6, version = $7, updated_at = $8, resolved_at = $9
			 WHERE id = $1 AND version = $10`,
			c.ID, c.Status, nullStr(c.AssignedOfficerID), c.EscalationLevel,
			c.SLADueAt, c.SLAViolated, c.Version, c.UpdatedAt, c.ResolvedAt,
			c.Version-1,
		)
		if err != nil {
			return fmt.Errorf("failed to update case: %w", err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			var exists bool
			if err := tx.QueryRowContext(ctx,
				`SELECT EXISTS(SELECT 1 FROM cases WHERE id = $1)`, c.ID,
			).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check case: %w", err)
			}
			if !exists {
				return errors.ErrNotFound
			}
			return errors.ErrConflict
		}

		return insertAuditEntry(ctx, tx.Tx, entry)
	})
}

// ListSubmissions retrieves a case's submissions.
func (s *Store) ListSubmissions(ctx context.Context, caseID string) ([]*models.Submission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, case_id, kind, content, normalized_content, dedup_hash, created_at
		 FROM submissions WHERE case_id = $1 ORDER BY created_at ASC`, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var subs []*models.Submission
	for rows.Next() {
		sub := &models.Submission{}
		if err := rows.Scan(&sub.ID, &sub.CaseID, &sub.Kind, &sub.Content,
			&sub.NormalizedContent, &sub.DedupHash, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// ResolveHash returns the earliest-created case holding the fingerprint.
func (s *Store) ResolveHash(ctx context.Context, hash string) (*models.Case, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT c.id, c.status, c.priority, c.jurisdiction, c.submitter_id, c.assigned_officer_id,
			c.origin_case_id, c.root_case_id, c.lineage_depth, c.escalation_level,
			c.sla_due_at, c.sla_violated, c.version, c.created_at, c.updated_at, c.resolved_at
		 FROM cases c
		 JOIN submissions sub ON sub.case_id = c.id
		 WHERE sub.dedup_hash = $1
		 ORDER BY c.created_at ASC, c.id ASC
		 LIMIT 1`, hash)
	c, err := scanCase(row)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve hash: %w", err)
	}
	return c, nil
}

// MarkWarned records an SLA warning for (caseID, dueAt). The primary key
// makes it idempotent: only the first insert reports true.
func (s *Store) MarkWarned(ctx context.Context, caseID string, dueAt time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO sla_warnings (case_id, due_at) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		caseID, dueAt)
	if err != nil {
		return false, fmt.Errorf("failed to record SLA warning: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// =============================================================================
// Audit Repository
// =============================================================================

// AuditRepository implements audit entry persistence. Entries are only
// ever inserted.
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertAuditEntry(ctx context.Context, ex execer, entry *models.AuditEntry) error {
	var meta []byte
	if entry.Meta != nil {
		var err error
		meta, err = json.Marshal(entry.Meta)
		if err != nil {
			return fmt.Errorf("failed to marshal audit meta: %w", err)
		}
	}

	_, err := ex.ExecContext(ctx,
		`INSERT INTO audit_entries (id, case_id, seq, actor_id, action, old_state, new_state, reason_code, meta, created_at, checksum)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID, entry.CaseID, entry.Seq, entry.ActorID, entry.Action,
		nullStr(string(entry.OldState)), entry.NewState, entry.ReasonCode, meta, entry.CreatedAt, entry.Checksum,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// Insert persists a new audit entry.
func (r *AuditRepository) Insert(ctx context.Context, entry *models.AuditEntry) error {
	return insertAuditEntry(ctx, r.db, entry)
}

const auditColumns = `id, case_id, seq, actor_id, action, old_state, new_state, reason_code, meta, created_at, checksum`

func scanAuditEntry(row rowScanner) (*models.AuditEntry, error) {
	var (
		e        models.AuditEntry
		oldState sql.NullString
		meta     []byte
	)
	err := row.Scan(&e.ID, &e.CaseID, &e.Seq, &e.ActorID, &e.Action,
		&oldState, &e.NewState, &e.ReasonCode, &meta, &e.CreatedAt, &e.Checksum)
	if err != nil {
		return nil, err
	}
	e.OldState = models.CaseStatus(oldState.String)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &e.Meta); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audit meta: %w", err)
		}
	}
	return &e, nil
}

// Get retrieves an audit entry by ID.
func (r *AuditRepository) Get(ctx context.Context, id string) (*models.AuditEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+auditColumns+` FROM audit_entries WHERE id = $1`, id)
	e, err := scanAuditEntry(row)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit entry: %w", err)
	}
	return e, nil
}

// ListByCase retrieves a case's entries ordered by sequence number.
func (r *AuditRepository) ListByCase(ctx context.Context, caseID string, limit, offset int) ([]*models.AuditEntry, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_entries WHERE case_id = $1 ORDER BY seq ASC`
	args := []any{caseID}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*models.AuditEntry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MaxSeq returns the highest sequence number for a case, 0 when none.
func (r *AuditRepository) MaxSeq(ctx context.Context, caseID string) (int64, error) {
	var max int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM audit_entries WHERE case_id = $1`, caseID,
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to get max sequence: %w", err)
	}
	return max, nil
}
