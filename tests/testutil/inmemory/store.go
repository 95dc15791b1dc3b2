package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/GSharvesh/Hac-KP/internal/workflow"
	"github.com/GSharvesh/Hac-KP/pkg/errors"
	"github.com/GSharvesh/Hac-KP/pkg/models"
)

// CaseStore is an in-memory case repository. It implements
// workflow.Repository, dedup.Repository and scheduler.WarningRepository,
// mirroring the transactional guarantees of the postgres store under a
// single mutex.
type CaseStore struct {
	mu       sync.RWMutex
	cases    map[string]*models.Case
	subs     map[string][]*models.Submission
	byHash   map[string]string
	warnings map[string]bool
	audit    *AuditRepository
}

// NewCaseStore creates an in-memory case store writing audit entries to
// the given repository.
func NewCaseStore(auditRepo *AuditRepository) *CaseStore {
	return &CaseStore{
		cases:    make(map[string]*models.Case),
		subs:     make(map[string][]*models.Submission),
		byHash:   make(map[string]string),
		warnings: make(map[string]bool),
		audit:    auditRepo,
	}
}

func (s *CaseStore) GetCase(ctx context.Context, id string) (*models.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cases[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *CaseStore) ListCases(ctx context.Context, filter workflow.ListFilter) ([]*models.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*models.Case
	for _, c := range s.cases {
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, c.Status) {
			continue
		}
		if filter.Priority != "" && c.Priority != filter.Priority {
			continue
		}
		if filter.SubmitterID != "" && c.SubmitterID != filter.SubmitterID {
			continue
		}
		if filter.OfficerID != "" && c.AssignedOfficerID != filter.OfficerID {
			continue
		}
		if filter.DueBefore != nil {
			if c.SLADueAt == nil || c.SLADueAt.After(*filter.DueBefore) {
				continue
			}
		}
		cp := *c
		results = append(results, &cp)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].CreatedAt.Before(results[j].CreatedAt) })

	if filter.Offset > 0 {
		if filter.Offset >= len(results) {
			return nil, nil
		}
		results = results[filter.Offset:]
	}
	if filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}
	return results, nil
}

func (s *CaseStore) CreateCase(ctx context.Context, c *models.Case, subs []*models.Submission, entry *models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.cases[c.ID]; exists {
		return errors.ErrConflict
	}
	// A case classified as original must not share a fingerprint with an
	// existing case; that means classification raced another create.
	if c.Original() {
		for _, sub := range subs {
			if _, seen := s.byHash[sub.DedupHash]; seen {
				return errors.ErrDuplicateRace
			}
		}
	}

	cp := *c
	s.cases[c.ID] = &cp
	for _, sub := range subs {
		scp := *sub
		s.subs[c.ID] = append(s.subs[c.ID], &scp)
		if _, seen := s.byHash[sub.DedupHash]; !seen {
			s.byHash[sub.DedupHash] = c.ID
		}
	}
	return s.audit.Insert(ctx, entry)
}

func (s *CaseStore) ApplyTransition(ctx context.Context, c *models.Case, entry *models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.cases[c.ID]
	if !ok {
		return errors.ErrNotFound
	}
	if c.Version != existing.Version+1 {
		return errors.ErrConflict
	}

	cp := *c
	s.cases[c.ID] = &cp
	return s.audit.Insert(ctx, entry)
}

func (s *CaseStore) ListSubmissions(ctx context.Context, caseID string) ([]*models.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subs := make([]*models.Submission, 0, len(s.subs[caseID]))
	for _, sub := range s.subs[caseID] {
		cp := *sub
		subs = append(subs, &cp)
	}
	return subs, nil
}

// ResolveHash implements dedup.Repository: the first case to record a
// fingerprint owns it.
func (s *CaseStore) ResolveHash(ctx context.Context, hash string) (*models.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byHash[hash]
	if !ok {
		return nil, errors.ErrNotFound
	}
	cp := *s.cases[id]
	return &cp, nil
}

// MarkWarned records an SLA warning for (caseID, dueAt). It returns true
// only for the first call with a given pair, making warnings idempotent.
func (s *CaseStore) MarkWarned(ctx context.Context, caseID string, dueAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := caseID + "|" + dueAt.UTC().Format(time.RFC3339Nano)
	if s.warnings[key] {
		return false, nil
	}
	s.warnings[key] = true
	return true, nil
}

// Put stores a case unconditionally, bypassing version checks. Tests use
// it to set up deadlines and escalation levels directly.
func (s *CaseStore) Put(c *models.Case) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.cases[c.ID] = &cp
}

func containsStatus(statuses []models.CaseStatus, status models.CaseStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}
