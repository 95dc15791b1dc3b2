// Package reporting aggregates case statistics and exposes audit trail
// exports and verification for compliance reviews.
package reporting

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/GSharvesh/Hac-KP/internal/audit"
	"github.com/GSharvesh/Hac-KP/internal/workflow"
	"github.com/GSharvesh/Hac-KP/pkg/errors"
	"github.com/GSharvesh/Hac-KP/pkg/models"
)

// Stats is an aggregate view over cases created since a given instant.
type Stats struct {
	TotalCases     int                          `json:"total_cases"`
	OpenCases      int                          `json:"open_cases"`
	ResolvedCases  int                          `json:"resolved_cases"`
	DuplicateCases int                          `json:"duplicate_cases"`
	SLAViolations  int                          `json:"sla_violations"`
	ByStatus       map[models.CaseStatus]int    `json:"by_status"`
	ByPriority     map[models.CasePriority]int  `json:"by_priority"`
	MeanResolution time.Duration                `json:"mean_resolution_ns"`
}

// Service produces compliance views over cases and audit trails.
type Service interface {
	Stats(ctx context.Context, since time.Time) (*Stats, error)
	// ExportAuditTrail verifies the trail before exporting; a tampered
	// trail is never exported.
	ExportAuditTrail(ctx context.Context, caseID string, format audit.ExportFormat) ([]byte, error)
	VerifyCase(ctx context.Context, caseID string) (bool, error)
}

// NewService creates the reporting service.
func NewService(cases workflow.Service, auditor audit.Service) Service {
	return &serviceImpl{cases: cases, auditor: auditor}
}

type serviceImpl struct {
	cases   workflow.Service
	auditor audit.Service
}

func (s *serviceImpl) Stats(ctx context.Context, since time.Time) (*Stats, error) {
	cases, err := s.cases.List(ctx, workflow.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}

	stats := &Stats{
		ByStatus:   make(map[models.CaseStatus]int),
		ByPriority: make(map[models.CasePriority]int),
	}

	var resolved int
	var totalResolution time.Duration
	for _, c := range cases {
		if !since.IsZero() && c.CreatedAt.Before(since) {
			continue
		}
		stats.TotalCases++
		stats.ByStatus[c.Status]++
		stats.ByPriority[c.Priority]++
		if !c.Original() {
			stats.DuplicateCases++
		}
		if c.SLAViolated {
			stats.SLAViolations++
		}
		if c.ResolvedAt != nil {
			stats.ResolvedCases++
			resolved++
			totalResolution += c.ResolvedAt.Sub(c.CreatedAt)
		} else if !c.Status.Terminal() {
			stats.OpenCases++
		}
	}
	if resolved > 0 {
		stats.MeanResolution = totalResolution / time.Duration(resolved)
	}
	return stats, nil
}

func (s *serviceImpl) ExportAuditTrail(ctx context.Context, caseID string, format audit.ExportFormat) ([]byte, error) {
	ok, err := s.auditor.VerifyIntegrity(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("refusing to export unverified trail: %w", err)
	}
	if !ok {
		return nil, errors.NewIntegrityError(caseID, "", 0, "trail failed verification before export")
	}
	return s.auditor.Export(ctx, caseID, format)
}

func (s *serviceImpl) VerifyCase(ctx context.Context, caseID string) (bool, error) {
	ok, err := s.auditor.VerifyIntegrity(ctx, caseID)
	if err != nil && !stderrors.Is(err, errors.ErrIntegrityViolation) {
		return false, err
	}
	return ok, nil
}
