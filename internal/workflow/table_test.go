package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GSharvesh/Hac-KP/pkg/models"
)

func TestTransitionTable(t *testing.T) {
	t.Run("closed is terminal", func(t *testing.T) {
		for key := range transitionTable {
			assert.NotEqual(t, models.StatusClosed, key.From,
				"no transition may leave the Closed state")
		}
	})

	t.Run("every row names at least one role", func(t *testing.T) {
		for key, row := range transitionTable {
			assert.NotEmpty(t, row.Roles, "transition %v has no roles", key)
		}
	})

	t.Run("default reasons are in the allowed set", func(t *testing.T) {
		for key, row := range transitionTable {
			assert.True(t, row.AllowsReason(row.DefaultReason),
				"transition %v default reason %q is not allowed", key, row.DefaultReason)
		}
	})

	t.Run("victims cannot transition cases", func(t *testing.T) {
		for _, status := range models.AllStatuses() {
			assert.Empty(t, AllowedActions(status, models.RoleVictim))
		}
	})

	t.Run("admin override exists only on escalated cases", func(t *testing.T) {
		row, ok := Lookup(models.StatusEscalated, models.ActionOverrideClose)
		require.True(t, ok)
		assert.Equal(t, models.StatusClosed, row.To)
		assert.True(t, row.AllowsRole(models.RoleAdmin))
		assert.False(t, row.AllowsRole(models.RoleOfficer))

		for _, status := range []models.CaseStatus{
			models.StatusSubmitted, models.StatusInReview,
			models.StatusApproved, models.StatusRejected,
		} {
			_, ok := Lookup(status, models.ActionOverrideClose)
			assert.False(t, ok, "unexpected override edge from %s", status)
		}
	})

	t.Run("manual escalation exists only from in review", func(t *testing.T) {
		row, ok := Lookup(models.StatusInReview, models.ActionEscalate)
		require.True(t, ok)
		assert.Equal(t, models.StatusEscalated, row.To)

		_, ok = Lookup(models.StatusSubmitted, models.ActionEscalate)
		assert.False(t, ok)
		_, ok = Lookup(models.StatusEscalated, models.ActionEscalate)
		assert.False(t, ok)
	})

	t.Run("auto escalation is system-only and gated on the deadline", func(t *testing.T) {
		for _, status := range []models.CaseStatus{models.StatusSubmitted, models.StatusInReview, models.StatusEscalated} {
			row, ok := Lookup(status, models.ActionAutoEscalate)
			require.True(t, ok)
			assert.Equal(t, []models.Role{models.RoleSystem}, row.Roles)
			assert.True(t, row.RequiresOverdue)
		}
	})

	t.Run("approved and rejected only close", func(t *testing.T) {
		for _, status := range []models.CaseStatus{models.StatusApproved, models.StatusRejected} {
			assert.ElementsMatch(t, []models.Action{models.ActionClose}, AllowedActions(status, models.RoleAdmin))
			assert.ElementsMatch(t, []models.Action{models.ActionClose}, AllowedActions(status, models.RoleOfficer))
			assert.Empty(t, AllowedActions(status, models.RoleSystem))
		}
	})
}

func TestOverdue(t *testing.T) {
	now := time.Now().UTC()

	t.Run("the deadline instant itself counts as overdue", func(t *testing.T) {
		c := &models.Case{SLADueAt: &now}
		assert.True(t, overdue(c, now))
		assert.True(t, overdue(c, now.Add(time.Second)))
		assert.False(t, overdue(c, now.Add(-time.Second)))
	})

	t.Run("a case without a deadline is never overdue", func(t *testing.T) {
		assert.False(t, overdue(&models.Case{}, now))
	})
}
