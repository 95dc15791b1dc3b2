// Package errors defines custom error types for the takedown case system.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error cases.
var (
	ErrNotFound           = errors.New("resource not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("access forbidden")
	ErrInvalidInput       = errors.New("invalid input")
	ErrConflict           = errors.New("resource conflict")
	ErrInternalError      = errors.New("internal error")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrBusy               = errors.New("case is busy")
	ErrIntegrityViolation = errors.New("audit integrity violation")
	ErrDuplicateRace      = errors.New("concurrent duplicate submission")
	ErrEscalationCapped   = errors.New("escalation level at configured maximum")
	ErrCaseClosed         = errors.New("case is closed")
	ErrPoisonCase         = errors.New("case flagged after repeated scheduler failures")
)

// ValidationError represents a validation error with field-specific details.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// Unwrap makes ValidationError match ErrInvalidInput.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// TransitionError describes a rejected state transition.
type TransitionError struct {
	CaseID string
	From   string
	Action string
	Role   string
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition '%s' from state '%s' rejected for role '%s': %s",
		e.Action, e.From, e.Role, e.Reason)
}

// Unwrap makes TransitionError match ErrInvalidTransition.
func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// NewTransitionError creates a new transition error.
func NewTransitionError(caseID, from, action, role, reason string) *TransitionError {
	return &TransitionError{CaseID: caseID, From: from, Action: action, Role: role, Reason: reason}
}

// IntegrityError reports a failed audit verification with the offending entry.
type IntegrityError struct {
	CaseID  string
	EntryID string
	Seq     int64
	Detail  string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("audit integrity failure for case '%s' at seq %d (entry %s): %s",
		e.CaseID, e.Seq, e.EntryID, e.Detail)
}

// Unwrap makes IntegrityError match ErrIntegrityViolation.
func (e *IntegrityError) Unwrap() error {
	return ErrIntegrityViolation
}

// NewIntegrityError creates a new integrity error.
func NewIntegrityError(caseID, entryID string, seq int64, detail string) *IntegrityError {
	return &IntegrityError{CaseID: caseID, EntryID: entryID, Seq: seq, Detail: detail}
}
