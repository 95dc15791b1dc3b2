package workflow

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/GSharvesh/Hac-KP/internal/audit"
	"github.com/GSharvesh/Hac-KP/internal/dedup"
	"github.com/GSharvesh/Hac-KP/internal/lock"
	"github.com/GSharvesh/Hac-KP/internal/normalizer"
	"github.com/GSharvesh/Hac-KP/internal/notify"
	"github.com/GSharvesh/Hac-KP/pkg/errors"
	"github.com/GSharvesh/Hac-KP/pkg/models"
)

// Config tunes SLA budgets and locking.
type Config struct {
	// SLABudgets maps a priority to the time allowed in a timed state.
	SLABudgets map[models.CasePriority]time.Duration
	// ReassignBudget is the fresh deadline granted on reassignment.
	ReassignBudget time.Duration
	// MaxEscalations caps the escalation level.
	MaxEscalations int
	// EscalationFloor bounds how short an escalated deadline may get.
	EscalationFloor time.Duration
	LockWait        time.Duration
	LockTTL         time.Duration
}

// DefaultConfig returns the production SLA configuration.
func DefaultConfig() Config {
	return Config{
		SLABudgets: map[models.CasePriority]time.Duration{
			models.PriorityLow:    72 * time.Hour,
			models.PriorityMedium: 48 * time.Hour,
			models.PriorityHigh:   24 * time.Hour,
			models.PriorityUrgent: 12 * time.Hour,
		},
		ReassignBudget:  24 * time.Hour,
		MaxEscalations:  3,
		EscalationFloor: time.Hour,
		LockWait:        5 * time.Second,
		LockTTL:         30 * time.Second,
	}
}

// NewService creates the workflow engine.
func NewService(repo Repository, locker lock.Locker, resolver dedup.Resolver,
	sequencer audit.Sequencer, notifier notify.Notifier, logger *slog.Logger, cfg Config) Service {
	return &serviceImpl{
		repo:      repo,
		locker:    locker,
		resolver:  resolver,
		sequencer: sequencer,
		notifier:  notifier,
		logger:    logger,
		cfg:       cfg,
	}
}

type serviceImpl struct {
	repo      Repository
	locker    lock.Locker
	resolver  dedup.Resolver
	sequencer audit.Sequencer
	notifier  notify.Notifier
	logger    *slog.Logger
	cfg       Config
}

func (s *serviceImpl) Submit(ctx context.Context, params SubmitParams) (*models.Case, error) {
	if params.SubmitterID == "" {
		return nil, errors.NewValidationError("submitter_id", "submitter is required")
	}
	if !params.Priority.Valid() {
		return nil, errors.NewValidationError("priority", fmt.Sprintf("unknown priority %q", params.Priority))
	}
	if len(params.Items) == 0 {
		return nil, errors.NewValidationError("items", "at least one content item is required")
	}

	caseID := uuid.New().String()
	now := time.Now().UTC()

	subs := make([]*models.Submission, 0, len(params.Items))
	seen := make(map[string]bool)
	var hashes []string
	for i, item := range params.Items {
		res, err := normalizer.Normalize(item.Kind, item.Content)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		// The same fingerprint appears at most once per case.
		if seen[res.DedupHash] {
			continue
		}
		seen[res.DedupHash] = true
		hashes = append(hashes, res.DedupHash)
		subs = append(subs, &models.Submission{
			ID:                uuid.New().String(),
			CaseID:            caseID,
			Kind:              item.Kind,
			Content:           item.Content,
			NormalizedContent: res.NormalizedContent,
			DedupHash:         res.DedupHash,
			CreatedAt:         now,
		})
	}

	// Lock fingerprints in sorted order so two submissions sharing
	// content cannot deadlock, then classify under the locks. This keeps
	// concurrent submissions of the same content from both becoming
	// originals.
	locked := append([]string(nil), hashes...)
	sort.Strings(locked)
	for _, h := range locked {
		release, err := s.locker.Acquire(ctx, "fp:"+h, s.cfg.LockWait, s.cfg.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to lock fingerprint: %w", err)
		}
		defer release()
	}

	c, err := s.createClassified(ctx, caseID, params, subs, hashes, now)
	if stderrors.Is(err, errors.ErrDuplicateRace) {
		// Another writer created a case for this content between our
		// classification and commit. Reclassify and link to it.
		s.logger.WarnContext(ctx, "duplicate race on case creation, reclassifying", "case_id", caseID)
		c, err = s.createClassified(ctx, caseID, params, subs, hashes, now)
	}
	if err != nil {
		return nil, err
	}

	s.send(ctx, notify.NewNotification(c.ID, models.EventCaseSubmitted, c.SubmitterID,
		models.SeverityLow, "takedown request received"))
	return c, nil
}

func (s *serviceImpl) createClassified(ctx context.Context, caseID string, params SubmitParams,
	subs []*models.Submission, hashes []string, now time.Time) (*models.Case, error) {

	cls, err := s.resolver.Classify(ctx, hashes)
	if err != nil {
		return nil, fmt.Errorf("failed to classify submission: %w", err)
	}

	due := now.Add(s.budget(params.Priority))
	c := &models.Case{
		ID:           caseID,
		Status:       models.StatusSubmitted,
		Priority:     params.Priority,
		Jurisdiction: params.Jurisdiction,
		SubmitterID:  params.SubmitterID,
		SLADueAt:     &due,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	reason := models.ReasonInitialSubmission
	meta := map[string]any{"item_count": len(subs)}
	if cls.Duplicate {
		c.OriginCaseID = cls.OriginCaseID
		c.RootCaseID = cls.RootCaseID
		c.LineageDepth = cls.LineageDepth
		reason = models.ReasonDuplicateDetected
		meta["origin_case_id"] = cls.OriginCaseID
		meta["root_case_id"] = cls.RootCaseID
		meta["lineage_depth"] = cls.LineageDepth
		meta["matched_hash"] = cls.MatchedHash
	}

	entry := audit.NewEntry(caseID, 1, params.SubmitterID, models.ActionSubmit,
		"", models.StatusSubmitted, reason, meta, now)

	if err := s.repo.CreateCase(ctx, c, subs, entry); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *serviceImpl) Execute(ctx context.Context, caseID string, actor models.Actor,
	action models.Action, opts ExecuteOptions) (*models.Case, error) {

	release, err := s.locker.Acquire(ctx, "case:"+caseID, s.cfg.LockWait, s.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to lock case %s: %w", caseID, err)
	}
	defer release()

	c, err := s.repo.GetCase(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load case: %w", err)
	}
	if c.Status.Terminal() {
		return nil, fmt.Errorf("case %s admits no further transitions: %w", caseID, errors.ErrCaseClosed)
	}

	t, ok := Lookup(c.Status, action)
	if !ok {
		return nil, errors.NewTransitionError(caseID, string(c.Status), string(action),
			string(actor.Role), "no such transition from this state")
	}
	if !t.AllowsRole(actor.Role) {
		return nil, errors.NewTransitionError(caseID, string(c.Status), string(action),
			string(actor.Role), "role is not permitted to perform this action")
	}
	if !t.AllowsReason(opts.Reason) {
		return nil, errors.NewValidationError("reason_code",
			fmt.Sprintf("reason %q is not valid for action %q", opts.Reason, action))
	}

	now := time.Now().UTC()
	if t.RequiresOverdue && !overdue(c, now) {
		return nil, errors.NewTransitionError(caseID, string(c.Status), string(action),
			string(actor.Role), "SLA deadline has not passed")
	}

	reason := opts.Reason
	if reason == "" {
		reason = t.DefaultReason
	}

	updated := *c
	updated.Status = t.To
	updated.Version = c.Version + 1
	updated.UpdatedAt = now

	reason, err = s.applyEffect(&updated, t.Effect, action, reason, opts, now)
	if err != nil {
		return nil, err
	}

	seq, err := s.sequencer.NextSeq(ctx, caseID)
	if err != nil {
		return nil, err
	}
	entry := audit.NewEntry(caseID, seq, actor.ID, action, c.Status, updated.Status, reason, opts.Meta, now)

	if err := s.repo.ApplyTransition(ctx, &updated, entry); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "case transition",
		"case_id", caseID,
		"action", action,
		"actor_id", actor.ID,
		"role", actor.Role,
		"from", c.Status,
		"to", updated.Status,
		"reason", reason,
	)
	s.notifyTransition(ctx, &updated, reason)
	return &updated, nil
}

func (s *serviceImpl) applyEffect(c *models.Case, effect Effect, action models.Action,
	reason models.ReasonCode, opts ExecuteOptions, now time.Time) (models.ReasonCode, error) {

	switch effect {
	case EffectStartReview:
		if opts.OfficerID == "" {
			return reason, errors.NewValidationError("officer_id", "an officer must be assigned to start review")
		}
		// The submission deadline carries over; starting review grants
		// no extra time.
		c.AssignedOfficerID = opts.OfficerID

	case EffectResolve:
		c.SLADueAt = nil
		c.ResolvedAt = &now

	case EffectClose:
		c.SLADueAt = nil
		if c.ResolvedAt == nil {
			c.ResolvedAt = &now
		}

	case EffectReassign:
		if opts.OfficerID == "" {
			return reason, errors.NewValidationError("officer_id", "an officer must be assigned on reassignment")
		}
		c.AssignedOfficerID = opts.OfficerID
		due := now.Add(s.cfg.ReassignBudget)
		c.SLADueAt = &due

	case EffectEscalate:
		atCap := c.EscalationLevel >= s.cfg.MaxEscalations
		if atCap && action != models.ActionAutoEscalate {
			return reason, fmt.Errorf("case %s is at escalation level %d: %w",
				c.ID, c.EscalationLevel, errors.ErrEscalationCapped)
		}
		if !atCap {
			c.EscalationLevel++
		} else {
			// The deadline is still refreshed so the scheduler does not
			// re-fire every tick; the reason records that the cap held.
			reason = models.ReasonMaxEscalationReached
		}
		c.SLAViolated = true
		due := now.Add(s.escalationBudget(c.Priority, c.EscalationLevel))
		c.SLADueAt = &due
	}
	return reason, nil
}

// budget returns the full SLA allowance for a priority.
func (s *serviceImpl) budget(p models.CasePriority) time.Duration {
	if d, ok := s.cfg.SLABudgets[p]; ok {
		return d
	}
	return s.cfg.SLABudgets[models.PriorityMedium]
}

// escalationBudget halves the priority allowance per escalation level,
// bounded below by the configured floor.
func (s *serviceImpl) escalationBudget(p models.CasePriority, level int) time.Duration {
	d := s.budget(p)
	for i := 0; i < level; i++ {
		d /= 2
	}
	if d < s.cfg.EscalationFloor {
		d = s.cfg.EscalationFloor
	}
	return d
}

// overdue treats the deadline instant itself as expired.
func overdue(c *models.Case, now time.Time) bool {
	return c.SLADueAt != nil && !now.Before(*c.SLADueAt)
}

func (s *serviceImpl) CanTransition(c *models.Case, action models.Action, role models.Role) error {
	if c.Status.Terminal() {
		return errors.NewTransitionError(c.ID, string(c.Status), string(action),
			string(role), "case is in a terminal state")
	}
	t, ok := Lookup(c.Status, action)
	if !ok {
		return errors.NewTransitionError(c.ID, string(c.Status), string(action),
			string(role), "no such transition from this state")
	}
	if !t.AllowsRole(role) {
		return errors.NewTransitionError(c.ID, string(c.Status), string(action),
			string(role), "role is not permitted to perform this action")
	}
	if t.RequiresOverdue && !overdue(c, time.Now().UTC()) {
		return errors.NewTransitionError(c.ID, string(c.Status), string(action),
			string(role), "SLA deadline has not passed")
	}
	return nil
}

func (s *serviceImpl) Get(ctx context.Context, id string) (*models.Case, error) {
	c, err := s.repo.GetCase(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get case: %w", err)
	}
	return c, nil
}

func (s *serviceImpl) List(ctx context.Context, filter ListFilter) ([]*models.Case, error) {
	cases, err := s.repo.ListCases(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	return cases, nil
}

func (s *serviceImpl) Lineage(ctx context.Context, id string) ([]*models.Case, error) {
	chain := []*models.Case{}
	cur := id
	// The depth cap bounds real chains; the iteration cap guards against
	// a corrupted origin cycle.
	for i := 0; i <= dedup.DefaultMaxLineageDepth+1; i++ {
		c, err := s.repo.GetCase(ctx, cur)
		if err != nil {
			return nil, fmt.Errorf("failed to walk lineage: %w", err)
		}
		chain = append(chain, c)
		if c.Original() {
			return chain, nil
		}
		cur = c.OriginCaseID
	}
	return nil, fmt.Errorf("lineage for case %s does not terminate: %w", id, errors.ErrInternalError)
}

func (s *serviceImpl) Submissions(ctx context.Context, caseID string) ([]*models.Submission, error) {
	subs, err := s.repo.ListSubmissions(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	return subs, nil
}

func (s *serviceImpl) notifyTransition(ctx context.Context, c *models.Case, reason models.ReasonCode) {
	event := models.EventCaseTransition
	severity := models.SeverityMedium
	message := fmt.Sprintf("case moved to %s", c.Status)

	switch {
	case reason == models.ReasonMaxEscalationReached:
		event = models.EventMaxEscalation
		severity = models.SeverityCritical
		message = fmt.Sprintf("case remains overdue at maximum escalation level %d", c.EscalationLevel)
	case c.Status == models.StatusEscalated:
		event = models.EventCaseEscalated
		severity = models.SeverityHigh
		message = fmt.Sprintf("case escalated to level %d", c.EscalationLevel)
	}

	s.send(ctx, notify.NewNotification(c.ID, event, c.SubmitterID, severity, message))
}

func (s *serviceImpl) send(ctx context.Context, n *models.Notification) {
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.WarnContext(ctx, "notification delivery failed",
			"case_id", n.CaseID, "event_type", n.EventType, "error", err)
	}
}
