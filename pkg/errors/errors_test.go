// Package errors_test contains tests for error types.
package errors_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgErrors "github.com/GSharvesh/Hac-KP/pkg/errors"
)

func TestValidationError(t *testing.T) {
	t.Run("creates validation error", func(t *testing.T) {
		err := pkgErrors.NewValidationError("content", "URL must use http or https")

		assert.Equal(t, "content", err.Field)
		assert.Equal(t, "URL must use http or https", err.Message)
		assert.Contains(t, err.Error(), "content")
		assert.Contains(t, err.Error(), "URL must use http or https")
	})

	t.Run("matches ErrInvalidInput", func(t *testing.T) {
		err := pkgErrors.NewValidationError("kind", "unknown submission kind")

		assert.ErrorIs(t, err, pkgErrors.ErrInvalidInput)
	})
}

func TestTransitionError(t *testing.T) {
	t.Run("creates transition error", func(t *testing.T) {
		err := pkgErrors.NewTransitionError("case-1", "Closed", "start_review", "officer", "state is terminal")

		assert.Equal(t, "case-1", err.CaseID)
		assert.Contains(t, err.Error(), "start_review")
		assert.Contains(t, err.Error(), "Closed")
		assert.Contains(t, err.Error(), "officer")
	})

	t.Run("matches ErrInvalidTransition", func(t *testing.T) {
		err := pkgErrors.NewTransitionError("case-1", "Approved", "escalate", "admin", "no such edge")

		assert.ErrorIs(t, err, pkgErrors.ErrInvalidTransition)
	})

	t.Run("survives wrapping", func(t *testing.T) {
		err := fmt.Errorf("execute: %w",
			pkgErrors.NewTransitionError("case-2", "InReview", "submit", "victim", "no such edge"))

		assert.ErrorIs(t, err, pkgErrors.ErrInvalidTransition)
	})
}

func TestIntegrityError(t *testing.T) {
	t.Run("reports offending entry", func(t *testing.T) {
		err := pkgErrors.NewIntegrityError("case-9", "entry-3", 3, "checksum mismatch")

		assert.Contains(t, err.Error(), "case-9")
		assert.Contains(t, err.Error(), "seq 3")
		assert.ErrorIs(t, err, pkgErrors.ErrIntegrityViolation)
	})
}

func TestSentinelErrors(t *testing.T) {
	t.Run("sentinel errors are defined", func(t *testing.T) {
		require.Error(t, pkgErrors.ErrNotFound)
		require.Error(t, pkgErrors.ErrUnauthorized)
		require.Error(t, pkgErrors.ErrForbidden)
		require.Error(t, pkgErrors.ErrInvalidInput)
		require.Error(t, pkgErrors.ErrConflict)
		require.Error(t, pkgErrors.ErrInternalError)
		require.Error(t, pkgErrors.ErrInvalidTransition)
		require.Error(t, pkgErrors.ErrBusy)
		require.Error(t, pkgErrors.ErrIntegrityViolation)
		require.Error(t, pkgErrors.ErrDuplicateRace)
		require.Error(t, pkgErrors.ErrEscalationCapped)
		require.Error(t, pkgErrors.ErrPoisonCase)
	})

	t.Run("errors can be wrapped", func(t *testing.T) {
		wrapped := errors.Join(pkgErrors.ErrBusy, errors.New("additional context"))

		assert.ErrorIs(t, wrapped, pkgErrors.ErrBusy)
	})
}
