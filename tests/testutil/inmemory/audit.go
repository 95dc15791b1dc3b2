// Package inmemory provides in-memory implementations for testing.
package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/GSharvesh/Hac-KP/pkg/errors"
	"github.com/GSharvesh/Hac-KP/pkg/models"
)

// AuditRepository is an in-memory audit repository.
type AuditRepository struct {
	mu      sync.RWMutex
	entries map[string]*models.AuditEntry
}

// NewAuditRepository creates a new in-memory audit repository.
func NewAuditRepository() *AuditRepository {
	return &AuditRepository{
		entries: make(map[string]*models.AuditEntry),
	}
}

func (m *AuditRepository) Insert(ctx context.Context, entry *models.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	m.entries[entry.ID] = &cp
	return nil
}

func (m *AuditRepository) Get(ctx context.Context, id string) (*models.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	cp := *entry
	return &cp, nil
}

func (m *AuditRepository) ListByCase(ctx context.Context, caseID string, limit, offset int) ([]*models.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []*models.AuditEntry
	for _, e := range m.entries {
		if e.CaseID != caseID {
			continue
		}
		cp := *e
		results = append(results, &cp)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Seq < results[j].Seq })

	if offset > 0 {
		if offset >= len(results) {
			return nil, nil
		}
		results = results[offset:]
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *AuditRepository) MaxSeq(ctx context.Context, caseID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var max int64
	for _, e := range m.entries {
		if e.CaseID == caseID && e.Seq > max {
			max = e.Seq
		}
	}
	return max, nil
}

// Tamper mutates a stored entry in place, bypassing the append-only
// contract. Only integrity verification tests should use it.
func (m *AuditRepository) Tamper(id string, mutate func(*models.AuditEntry)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.entries[id]; ok {
		mutate(entry)
	}
}

// Delete removes a stored entry, bypassing the append-only contract.
// Only integrity verification tests should use it.
func (m *AuditRepository) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
}
