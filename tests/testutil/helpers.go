// Package testutil provides test utilities and helpers.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/GSharvesh/Hac-KP/pkg/models"
)

// =============================================================================
// Test Fixtures
// =============================================================================

// TestCase creates a freshly submitted case with an active SLA deadline.
func TestCase(id string, priority models.CasePriority) *models.Case {
	now := time.Now().UTC()
	due := now.Add(48 * time.Hour)
	return &models.Case{
		ID:           id,
		Status:       models.StatusSubmitted,
		Priority:     priority,
		Jurisdiction: "US-CA",
		SubmitterID:  "victim-" + id,
		SLADueAt:     &due,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// TestDuplicateCase creates a case linked to an origin case.
func TestDuplicateCase(id, originID, rootID string, depth int) *models.Case {
	c := TestCase(id, models.PriorityMedium)
	c.OriginCaseID = originID
	c.RootCaseID = rootID
	c.LineageDepth = depth
	return c
}

// TestSubmission creates a submission row for a case.
func TestSubmission(caseID string, kind models.SubmissionKind, normalized, hash string) *models.Submission {
	return &models.Submission{
		ID:                uuid.New().String(),
		CaseID:            caseID,
		Kind:              kind,
		NormalizedContent: normalized,
		DedupHash:         hash,
		CreatedAt:         time.Now().UTC(),
	}
}

// TestActor creates an actor with the given role.
func TestActor(id string, role models.Role) models.Actor {
	return models.Actor{ID: id, Role: role}
}

// =============================================================================
// Assertion Helpers
// =============================================================================

// RequireEventually retries an assertion until it passes or times out.
func RequireEventually(t *testing.T, condition func() bool, timeout, interval time.Duration, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(interval)
	}
	require.Fail(t, msg)
}

// =============================================================================
// Context Helpers
// =============================================================================

// TestContext creates a context with a test timeout.
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestContextWithTimeout creates a context with a custom timeout.
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}
