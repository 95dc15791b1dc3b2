package workflow_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GSharvesh/Hac-KP/internal/audit"
	"github.com/GSharvesh/Hac-KP/internal/dedup"
	"github.com/GSharvesh/Hac-KP/internal/lock"
	"github.com/GSharvesh/Hac-KP/internal/notify"
	"github.com/GSharvesh/Hac-KP/internal/workflow"
	"github.com/GSharvesh/Hac-KP/pkg/errors"
	"github.com/GSharvesh/Hac-KP/pkg/models"
	"github.com/GSharvesh/Hac-KP/tests/testutil"
	"github.com/GSharvesh/Hac-KP/tests/testutil/inmemory"
)

type harness struct {
	svc   workflow.Service
	store *inmemory.CaseStore
	audit audit.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	auditRepo := inmemory.NewAuditRepository()
	store := inmemory.NewCaseStore(auditRepo)
	auditSvc := audit.NewService(auditRepo)
	svc := workflow.NewService(
		store,
		lock.NewMemoryLocker(),
		dedup.NewResolver(store, 0),
		auditSvc,
		notify.NopNotifier{},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		workflow.DefaultConfig(),
	)
	return &harness{svc: svc, store: store, audit: auditSvc}
}

func (h *harness) submitURL(t *testing.T, url string) *models.Case {
	t.Helper()
	c, err := h.svc.Submit(context.Background(), workflow.SubmitParams{
		SubmitterID:  "victim-1",
		Priority:     models.PriorityMedium,
		Jurisdiction: "US-CA",
		Items:        []workflow.SubmissionInput{{Kind: models.KindURL, Content: url}},
	})
	require.NoError(t, err)
	return c
}

// setDue pins the case deadline so deadline-gated behavior can be
// exercised without waiting.
func (h *harness) setDue(t *testing.T, id string, due time.Time) {
	t.Helper()
	c, err := h.store.GetCase(context.Background(), id)
	require.NoError(t, err)
	c.SLADueAt = &due
	h.store.Put(c)
}

// setOverdue rewinds the case deadline so scheduler-style transitions fire.
func (h *harness) setOverdue(t *testing.T, id string) {
	h.setDue(t, id, time.Now().UTC().Add(-time.Hour))
}

var (
	officer = testutil.TestActor("officer-1", models.RoleOfficer)
	admin   = testutil.TestActor("admin-1", models.RoleAdmin)
	victim  = testutil.TestActor("victim-1", models.RoleVictim)
	system  = models.SystemActor
)

func TestSubmit(t *testing.T) {
	ctx := testutil.TestContext(t)

	t.Run("creates an original case with an armed deadline", func(t *testing.T) {
		h := newHarness(t)

		c := h.submitURL(t, "https://example.com/content")

		assert.Equal(t, models.StatusSubmitted, c.Status)
		assert.True(t, c.Original())
		assert.Equal(t, int64(1), c.Version)
		require.NotNil(t, c.SLADueAt)
		assert.WithinDuration(t, time.Now().Add(48*time.Hour), *c.SLADueAt, time.Minute)

		entries, err := h.audit.List(ctx, c.ID, 0, 0)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, models.ActionSubmit, entries[0].Action)
		assert.Equal(t, models.ReasonInitialSubmission, entries[0].ReasonCode)
		assert.Equal(t, int64(1), entries[0].Seq)
	})

	t.Run("equivalent content links as a duplicate", func(t *testing.T) {
		h := newHarness(t)
		original := h.submitURL(t, "https://example.com/content")

		dup := h.submitURL(t, "HTTPS://EXAMPLE.COM/content/?utm_source=mail")

		assert.Equal(t, original.ID, dup.OriginCaseID)
		assert.Equal(t, original.ID, dup.RootCaseID)
		assert.Equal(t, 1, dup.LineageDepth)

		entries, err := h.audit.List(ctx, dup.ID, 0, 0)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, models.ReasonDuplicateDetected, entries[0].ReasonCode)
		assert.Equal(t, original.ID, entries[0].Meta["origin_case_id"])
	})

	t.Run("a chain deepens through intermediate duplicates", func(t *testing.T) {
		h := newHarness(t)
		root := h.submitURL(t, "https://example.com/a")

		// The middle case shares content with the root and adds its own.
		mid, err := h.svc.Submit(ctx, workflow.SubmitParams{
			SubmitterID: "victim-2",
			Priority:    models.PriorityMedium,
			Items: []workflow.SubmissionInput{
				{Kind: models.KindURL, Content: "https://example.com/a"},
				{Kind: models.KindURL, Content: "https://example.com/b"},
			},
		})
		require.NoError(t, err)
		require.Equal(t, 1, mid.LineageDepth)

		leaf := h.submitURL(t, "https://example.com/b")

		assert.Equal(t, mid.ID, leaf.OriginCaseID)
		assert.Equal(t, root.ID, leaf.RootCaseID)
		assert.Equal(t, 2, leaf.LineageDepth)

		chain, err := h.svc.Lineage(ctx, leaf.ID)
		require.NoError(t, err)
		require.Len(t, chain, 3)
		assert.Equal(t, root.ID, chain[2].ID)
	})

	t.Run("repeated items collapse to one submission", func(t *testing.T) {
		h := newHarness(t)

		c, err := h.svc.Submit(ctx, workflow.SubmitParams{
			SubmitterID: "victim-1",
			Priority:    models.PriorityLow,
			Items: []workflow.SubmissionInput{
				{Kind: models.KindURL, Content: "https://example.com/x"},
				{Kind: models.KindURL, Content: "https://example.com/x/"},
			},
		})
		require.NoError(t, err)

		subs, err := h.svc.Submissions(ctx, c.ID)
		require.NoError(t, err)
		assert.Len(t, subs, 1)
	})

	t.Run("validation failures", func(t *testing.T) {
		h := newHarness(t)
		cases := map[string]workflow.SubmitParams{
			"missing submitter": {Priority: models.PriorityLow, Items: []workflow.SubmissionInput{{Kind: models.KindURL, Content: "https://example.com"}}},
			"unknown priority":  {SubmitterID: "v", Priority: "severe", Items: []workflow.SubmissionInput{{Kind: models.KindURL, Content: "https://example.com"}}},
			"no items":          {SubmitterID: "v", Priority: models.PriorityLow},
			"bad content":       {SubmitterID: "v", Priority: models.PriorityLow, Items: []workflow.SubmissionInput{{Kind: models.KindURL, Content: "ftp://example.com"}}},
		}

		for name, params := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := h.svc.Submit(ctx, params)
				require.Error(t, err)
				assert.ErrorIs(t, err, errors.ErrInvalidInput)
			})
		}
	})

	t.Run("a racing create is retried as a duplicate link", func(t *testing.T) {
		auditRepo := inmemory.NewAuditRepository()
		store := inmemory.NewCaseStore(auditRepo)
		resolver := &racingResolver{real: dedup.NewResolver(store, 0)}
		svc := workflow.NewService(store, lock.NewMemoryLocker(), resolver,
			audit.NewService(auditRepo), notify.NopNotifier{},
			slog.New(slog.NewTextHandler(io.Discard, nil)), workflow.DefaultConfig())

		// A committed case already owns the fingerprint, but the stale
		// resolver misses it on the first pass.
		first, err := svc.Submit(ctx, workflow.SubmitParams{
			SubmitterID: "victim-1",
			Priority:    models.PriorityMedium,
			Items:       []workflow.SubmissionInput{{Kind: models.KindURL, Content: "https://example.com/raced"}},
		})
		require.NoError(t, err)
		resolver.stale = true

		second, err := svc.Submit(ctx, workflow.SubmitParams{
			SubmitterID: "victim-2",
			Priority:    models.PriorityMedium,
			Items:       []workflow.SubmissionInput{{Kind: models.KindURL, Content: "https://example.com/raced"}},
		})

		require.NoError(t, err)
		assert.Equal(t, first.ID, second.OriginCaseID)
	})
}

// racingResolver reports "no duplicate" once, simulating a classification
// that raced a concurrent create.
type racingResolver struct {
	real  dedup.Resolver
	stale bool
}

func (r *racingResolver) Classify(ctx context.Context, hashes []string) (*dedup.Classification, error) {
	if r.stale {
		r.stale = false
		return &dedup.Classification{}, nil
	}
	return r.real.Classify(ctx, hashes)
}

func TestExecute(t *testing.T) {
	ctx := testutil.TestContext(t)

	t.Run("start review assigns the officer and keeps the deadline", func(t *testing.T) {
		h := newHarness(t)
		c := h.submitURL(t, "https://example.com/1")
		due := time.Now().UTC().Add(time.Hour)
		h.setDue(t, c.ID, due)

		updated, err := h.svc.Execute(ctx, c.ID, officer, models.ActionStartReview,
			workflow.ExecuteOptions{OfficerID: officer.ID})

		require.NoError(t, err)
		assert.Equal(t, models.StatusInReview, updated.Status)
		assert.Equal(t, officer.ID, updated.AssignedOfficerID)
		assert.Equal(t, int64(2), updated.Version)
		require.NotNil(t, updated.SLADueAt)
		assert.True(t, updated.SLADueAt.Equal(due), "starting review must not grant more time")
	})

	t.Run("start review requires an officer assignment", func(t *testing.T) {
		h := newHarness(t)
		c := h.submitURL(t, "https://example.com/1")

		_, err := h.svc.Execute(ctx, c.ID, officer, models.ActionStartReview, workflow.ExecuteOptions{})

		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
	})

	t.Run("approval resolves the case and clears the deadline", func(t *testing.T) {
		h := newHarness(t)
		c := h.submitURL(t, "https://example.com/1")
		_, err := h.svc.Execute(ctx, c.ID, officer, models.ActionStartReview,
			workflow.ExecuteOptions{OfficerID: officer.ID})
		require.NoError(t, err)

		updated, err := h.svc.Execute(ctx, c.ID, officer, models.ActionApprove, workflow.ExecuteOptions{})

		require.NoError(t, err)
		assert.Equal(t, models.StatusApproved, updated.Status)
		assert.Nil(t, updated.SLADueAt)
		assert.NotNil(t, updated.ResolvedAt)
	})

	t.Run("rejection accepts only vocabulary reasons", func(t *testing.T) {
		h := newHarness(t)
		c := h.submitURL(t, "https://example.com/1")

		_, err := h.svc.Execute(ctx, c.ID, officer, models.ActionReject,
			workflow.ExecuteOptions{Reason: "did not like it"})
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrInvalidInput)

		updated, err := h.svc.Execute(ctx, c.ID, officer, models.ActionReject,
			workflow.ExecuteOptions{Reason: models.ReasonJurisdictionIssue})
		require.NoError(t, err)
		assert.Equal(t, models.StatusRejected, updated.Status)
	})

	t.Run("roles outside the gate are rejected", func(t *testing.T) {
		h := newHarness(t)
		c := h.submitURL(t, "https://example.com/1")

		_, err := h.svc.Execute(ctx, c.ID, victim, models.ActionStartReview,
			workflow.ExecuteOptions{OfficerID: "officer-1"})

		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrInvalidTransition)

		var terr *errors.TransitionError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, string(models.RoleVictim), terr.Role)
	})

	t.Run("undefined edges are rejected", func(t *testing.T) {
		h := newHarness(t)
		c := h.submitURL(t, "https://example.com/1")

		_, err := h.svc.Execute(ctx, c.ID, officer, models.ActionApprove, workflow.ExecuteOptions{})

		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrInvalidTransition)
	})

	t.Run("admin override is confined to escalated cases", func(t *testing.T) {
		h := newHarness(t)
		c := h.submitURL(t, "https://example.com/1")

		_, err := h.svc.Execute(ctx, c.ID, admin, models.ActionOverrideClose, workflow.ExecuteOptions{})

		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrInvalidTransition)
	})

	t.Run("closed cases admit nothing", func(t *testing.T) {
		h := newHarness(t)
		c := h.submitURL(t, "https://example.com/1")
		h.setOverdue(t, c.ID)
		_, err := h.svc.Execute(ctx, c.ID, system, models.ActionAutoEscalate, workflow.ExecuteOptions{})
		require.NoError(t, err)
		_, err = h.svc.Execute(ctx, c.ID, admin, models.ActionOverrideClose, workflow.ExecuteOptions{})
		require.NoError(t, err)

		_, err = h.svc.Execute(ctx, c.ID, admin, models.ActionOverrideClose, workflow.ExecuteOptions{})

		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrCaseClosed)
	})

	t.Run("unknown case", func(t *testing.T) {
		h := newHarness(t)

		_, err := h.svc.Execute(ctx, "missing", admin, models.ActionOverrideClose, workflow.ExecuteOptions{})

		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrNotFound)
	})
}

func TestEscalation(t *testing.T) {
	ctx := testutil.TestContext(t)

	t.Run("auto escalation requires the deadline to have passed", func(t *testing.T) {
		h := newHarness(t)
		c := h.submitURL(t, "https://example.com/1")

		_, err := h.svc.Execute(ctx, c.ID, system, models.ActionAutoEscalate, workflow.ExecuteOptions{})

		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrInvalidTransition)
	})

	t.Run("overdue cases escalate with a shortened deadline", func(t *testing.T) {
		h := newHarness(t)
		c := h.submitURL(t, "https://example.com/1")
		h.setOverdue(t, c.ID)

		updated, err := h.svc.Execute(ctx, c.ID, system, models.ActionAutoEscalate, workflow.ExecuteOptions{})

		require.NoError(t, err)
		assert.Equal(t, models.StatusEscalated, updated.Status)
		assert.Equal(t, 1, updated.EscalationLevel)
		assert.True(t, updated.SLAViolated)
		require.NotNil(t, updated.SLADueAt)
		// Medium budget halves from 48h to 24h at level one.
		assert.WithinDuration(t, time.Now().Add(24*time.Hour), *updated.SLADueAt, time.Minute)
	})

	t.Run("the cap holds but the deadline still refreshes", func(t *testing.T) {
		h := newHarness(t)
		c := h.submitURL(t, "https://example.com/1")
		for i := 0; i < 3; i++ {
			h.setOverdue(t, c.ID)
			_, err := h.svc.Execute(ctx, c.ID, system, models.ActionAutoEscalate, workflow.ExecuteOptions{})
			require.NoError(t, err)
		}
		h.setOverdue(t, c.ID)

		updated, err := h.svc.Execute(ctx, c.ID, system, models.ActionAutoEscalate, workflow.ExecuteOptions{})

		require.NoError(t, err)
		assert.Equal(t, 3, updated.EscalationLevel)
		require.NotNil(t, updated.SLADueAt)
		assert.True(t, updated.SLADueAt.After(time.Now()))

		entries, err := h.audit.List(ctx, c.ID, 0, 0)
		require.NoError(t, err)
		last := entries[len(entries)-1]
		assert.Equal(t, models.ReasonMaxEscalationReached, last.ReasonCode)
	})

	t.Run("manual escalation marks the violation and shortens the deadline", func(t *testing.T) {
		h := newHarness(t)
		c := h.submitURL(t, "https://example.com/1")
		_, err := h.svc.Execute(ctx, c.ID, officer, models.ActionStartReview,
			workflow.ExecuteOptions{OfficerID: officer.ID})
		require.NoError(t, err)

		updated, err := h.svc.Execute(ctx, c.ID, officer, models.ActionEscalate, workflow.ExecuteOptions{})

		require.NoError(t, err)
		assert.Equal(t, models.StatusEscalated, updated.Status)
		assert.Equal(t, 1, updated.EscalationLevel)
		assert.True(t, updated.SLAViolated, "actor-initiated escalation is a violation too")
		require.NotNil(t, updated.SLADueAt)
		assert.WithinDuration(t, time.Now().Add(24*time.Hour), *updated.SLADueAt, time.Minute)
	})

	t.Run("manual escalation at the cap is refused", func(t *testing.T) {
		h := newHarness(t)
		c := h.submitURL(t, "https://example.com/1")
		for i := 0; i < 3; i++ {
			h.setOverdue(t, c.ID)
			_, err := h.svc.Execute(ctx, c.ID, system, models.ActionAutoEscalate, workflow.ExecuteOptions{})
			require.NoError(t, err)
		}
		_, err := h.svc.Execute(ctx, c.ID, admin, models.ActionReassign,
			workflow.ExecuteOptions{OfficerID: "officer-2"})
		require.NoError(t, err)

		_, err = h.svc.Execute(ctx, c.ID, officer, models.ActionEscalate, workflow.ExecuteOptions{})

		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrEscalationCapped)
	})

	t.Run("reassignment grants a fresh deadline and keeps the violation sticky", func(t *testing.T) {
		h := newHarness(t)
		c := h.submitURL(t, "https://example.com/1")
		h.setOverdue(t, c.ID)
		_, err := h.svc.Execute(ctx, c.ID, system, models.ActionAutoEscalate, workflow.ExecuteOptions{})
		require.NoError(t, err)

		updated, err := h.svc.Execute(ctx, c.ID, admin, models.ActionReassign,
			workflow.ExecuteOptions{OfficerID: "officer-2"})

		require.NoError(t, err)
		assert.Equal(t, models.StatusInReview, updated.Status)
		assert.Equal(t, "officer-2", updated.AssignedOfficerID)
		assert.True(t, updated.SLAViolated, "violation flag survives reassignment")
		require.NotNil(t, updated.SLADueAt)
		assert.WithinDuration(t, time.Now().Add(24*time.Hour), *updated.SLADueAt, time.Minute)
	})
}

func TestAuditTrailIntegrity(t *testing.T) {
	ctx := testutil.TestContext(t)

	t.Run("a full lifecycle yields a gapless verified trail", func(t *testing.T) {
		h := newHarness(t)
		c := h.submitURL(t, "https://example.com/1")

		_, err := h.svc.Execute(ctx, c.ID, officer, models.ActionStartReview,
			workflow.ExecuteOptions{OfficerID: officer.ID})
		require.NoError(t, err)
		_, err = h.svc.Execute(ctx, c.ID, officer, models.ActionApprove, workflow.ExecuteOptions{})
		require.NoError(t, err)
		_, err = h.svc.Execute(ctx, c.ID, officer, models.ActionClose, workflow.ExecuteOptions{})
		require.NoError(t, err)

		entries, err := h.audit.List(ctx, c.ID, 0, 0)
		require.NoError(t, err)
		require.Len(t, entries, 4)
		for i, e := range entries {
			assert.Equal(t, int64(i+1), e.Seq)
		}

		ok, err := h.audit.VerifyIntegrity(ctx, c.ID)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("stale writes are refused", func(t *testing.T) {
		h := newHarness(t)
		c := h.submitURL(t, "https://example.com/1")

		stale, err := h.store.GetCase(ctx, c.ID)
		require.NoError(t, err)
		stale.Version = 5
		stale.Status = models.StatusRejected

		err = h.store.ApplyTransition(ctx, stale, audit.NewEntry(
			c.ID, 2, "officer-1", models.ActionReject,
			models.StatusSubmitted, models.StatusRejected, models.ReasonFalseReport, nil, time.Now()))

		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrConflict)
	})
}

func TestCanTransition(t *testing.T) {
	h := newHarness(t)
	c := h.submitURL(t, "https://example.com/1")

	assert.NoError(t, h.svc.CanTransition(c, models.ActionStartReview, models.RoleOfficer))
	assert.Error(t, h.svc.CanTransition(c, models.ActionStartReview, models.RoleVictim))
	assert.Error(t, h.svc.CanTransition(c, models.ActionApprove, models.RoleOfficer))

	// The predicate itself enforces the deadline gate on auto escalation.
	assert.Error(t, h.svc.CanTransition(c, models.ActionAutoEscalate, models.RoleSystem))
	past := time.Now().UTC().Add(-time.Minute)
	c.SLADueAt = &past
	assert.NoError(t, h.svc.CanTransition(c, models.ActionAutoEscalate, models.RoleSystem))

	closed := &models.Case{ID: "x", Status: models.StatusClosed}
	assert.ErrorIs(t, h.svc.CanTransition(closed, models.ActionClose, models.RoleAdmin), errors.ErrInvalidTransition)
}
