// Package scheduler runs the periodic SLA sweep: overdue cases are
// escalated through the workflow engine and cases nearing their deadline
// get a one-time warning.
package scheduler

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/GSharvesh/Hac-KP/internal/notify"
	"github.com/GSharvesh/Hac-KP/internal/workflow"
	"github.com/GSharvesh/Hac-KP/pkg/errors"
	"github.com/GSharvesh/Hac-KP/pkg/metrics"
	"github.com/GSharvesh/Hac-KP/pkg/models"
)

// WarningRepository persists issued SLA warnings. MarkWarned is the
// idempotence gate: it returns true exactly once per (case, deadline)
// pair, so a warning is never sent twice for the same deadline.
type WarningRepository interface {
	MarkWarned(ctx context.Context, caseID string, dueAt time.Time) (bool, error)
}

// Config tunes the scheduler.
type Config struct {
	// Interval between sweeps.
	Interval time.Duration
	// WarningWindow is how far ahead of the deadline warnings fire.
	WarningWindow time.Duration
	// Concurrency bounds parallel escalations per sweep.
	Concurrency int
	// PoisonThreshold is the number of consecutive failures after which a
	// case is flagged and skipped.
	PoisonThreshold int
	// BatchSize caps how many cases one sweep loads.
	BatchSize int
}

// DefaultConfig returns the production scheduler configuration.
func DefaultConfig() Config {
	return Config{
		Interval:        5 * time.Minute,
		WarningWindow:   2 * time.Hour,
		Concurrency:     8,
		PoisonThreshold: 5,
		BatchSize:       500,
	}
}

// Scheduler drives time-based case transitions.
type Scheduler struct {
	cases    workflow.Service
	warnings WarningRepository
	notifier notify.Notifier
	metrics  *metrics.ServiceMetrics
	logger   *slog.Logger
	cfg      Config

	mu       sync.Mutex
	failures map[string]int
	poisoned map[string]bool
}

// New creates a scheduler.
func New(cases workflow.Service, warnings WarningRepository, notifier notify.Notifier,
	m *metrics.ServiceMetrics, logger *slog.Logger, cfg Config) *Scheduler {
	return &Scheduler{
		cases:    cases,
		warnings: warnings,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
		cfg:      cfg,
		failures: make(map[string]int),
		poisoned: make(map[string]bool),
	}
}

// Run sweeps immediately and then on every interval until the context is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	if err := s.Tick(ctx); err != nil {
		s.logger.ErrorContext(ctx, "scheduler sweep failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.logger.ErrorContext(ctx, "scheduler sweep failed", "error", err)
			}
		}
	}
}

// Tick runs one sweep: the escalation pass, then the warning pass.
func (s *Scheduler) Tick(ctx context.Context) error {
	start := time.Now()
	defer func() {
		s.metrics.SchedulerTickSecs.Observe(time.Since(start).Seconds())
	}()

	if err := s.escalationPass(ctx); err != nil {
		return fmt.Errorf("escalation pass: %w", err)
	}
	if err := s.warningPass(ctx); err != nil {
		return fmt.Errorf("warning pass: %w", err)
	}
	return nil
}

func timedStatuses() []models.CaseStatus {
	var statuses []models.CaseStatus
	for _, st := range models.AllStatuses() {
		if st.Timed() {
			statuses = append(statuses, st)
		}
	}
	return statuses
}

func (s *Scheduler) escalationPass(ctx context.Context) error {
	now := time.Now().UTC()
	overdue, err := s.cases.List(ctx, workflow.ListFilter{
		Statuses:  timedStatuses(),
		DueBefore: &now,
		Limit:     s.cfg.BatchSize,
	})
	if err != nil {
		return fmt.Errorf("failed to list overdue cases: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, c := range overdue {
		if s.IsPoisoned(c.ID) {
			continue
		}
		c := c
		g.Go(func() error {
			s.escalateOne(gctx, c)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) escalateOne(ctx context.Context, c *models.Case) {
	_, err := s.cases.Execute(ctx, c.ID, models.SystemActor, models.ActionAutoEscalate, workflow.ExecuteOptions{})
	switch {
	case err == nil:
		s.clearFailures(c.ID)
		s.metrics.EscalationsTotal.WithLabelValues("auto").Inc()

	// The case moved, closed or is held by another writer; it will be
	// picked up again next sweep if still relevant.
	case stderrors.Is(err, errors.ErrInvalidTransition),
		stderrors.Is(err, errors.ErrCaseClosed):
		s.clearFailures(c.ID)

	case stderrors.Is(err, errors.ErrBusy),
		stderrors.Is(err, errors.ErrConflict):
		s.logger.DebugContext(ctx, "case busy during escalation sweep", "case_id", c.ID)

	default:
		s.recordFailure(ctx, c.ID, err)
	}
}

func (s *Scheduler) warningPass(ctx context.Context) error {
	now := time.Now().UTC()
	horizon := now.Add(s.cfg.WarningWindow)
	nearing, err := s.cases.List(ctx, workflow.ListFilter{
		Statuses:  timedStatuses(),
		DueBefore: &horizon,
		Limit:     s.cfg.BatchSize,
	})
	if err != nil {
		return fmt.Errorf("failed to list cases nearing deadline: %w", err)
	}

	for _, c := range nearing {
		// Already overdue cases belong to the escalation pass.
		if c.SLADueAt == nil || !c.SLADueAt.After(now) {
			continue
		}
		first, err := s.warnings.MarkWarned(ctx, c.ID, *c.SLADueAt)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to record SLA warning", "case_id", c.ID, "error", err)
			continue
		}
		if !first {
			continue
		}

		recipient := c.AssignedOfficerID
		if recipient == "" {
			recipient = c.SubmitterID
		}
		n := notify.NewNotification(c.ID, models.EventSLAWarning, recipient, models.SeverityMedium,
			fmt.Sprintf("SLA deadline at %s is approaching", c.SLADueAt.Format(time.RFC3339)))
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.logger.WarnContext(ctx, "SLA warning delivery failed", "case_id", c.ID, "error", err)
		}
		s.metrics.SLAWarningsTotal.Inc()
	}
	return nil
}

func (s *Scheduler) clearFailures(caseID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, caseID)
}

func (s *Scheduler) recordFailure(ctx context.Context, caseID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures[caseID]++
	count := s.failures[caseID]
	if count < s.cfg.PoisonThreshold || s.poisoned[caseID] {
		s.logger.WarnContext(ctx, "escalation failed", "case_id", caseID, "attempt", count, "error", err)
		return
	}

	s.poisoned[caseID] = true
	s.metrics.PoisonCasesFlagged.Inc()
	s.logger.ErrorContext(ctx, "flagging case after repeated escalation failures",
		"case_id", caseID, "attempts", count, "error", err)
}

// IsPoisoned reports whether the case has been flagged and is excluded
// from sweeps.
func (s *Scheduler) IsPoisoned(caseID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.poisoned[caseID]
}

// Poisoned lists flagged cases for operator review.
func (s *Scheduler) Poisoned() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.poisoned))
	for id := range s.poisoned {
		ids = append(ids, id)
	}
	return ids
}

// Unpoison clears the flag after operator intervention.
func (s *Scheduler) Unpoison(caseID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.poisoned, caseID)
	delete(s.failures, caseID)
}
