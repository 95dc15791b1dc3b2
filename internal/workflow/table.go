package workflow

import (
	"github.com/GSharvesh/Hac-KP/pkg/models"
)

// Effect names the side effect a transition applies beyond the status
// change itself.
type Effect int

const (
	EffectNone Effect = iota
	// EffectStartReview assigns the officer; the submission deadline
	// carries over unchanged.
	EffectStartReview
	// EffectResolve clears the deadline and stamps the resolution time.
	EffectResolve
	// EffectEscalate bumps the escalation level and shortens the deadline.
	EffectEscalate
	// EffectReassign hands the case to a new officer with a fresh deadline.
	EffectReassign
	// EffectClose clears the deadline on an already resolved case.
	EffectClose
)

type transitionKey struct {
	From   models.CaseStatus
	Action models.Action
}

// Transition is one row of the static transition table.
type Transition struct {
	To            models.CaseStatus
	Roles         []models.Role
	Reasons       []models.ReasonCode
	DefaultReason models.ReasonCode
	// RequiresOverdue gates scheduler-driven transitions on the case
	// deadline having passed.
	RequiresOverdue bool
	Effect          Effect
}

// AllowsRole reports whether the role may perform this transition.
func (t Transition) AllowsRole(role models.Role) bool {
	for _, r := range t.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AllowsReason reports whether the reason code is valid for this
// transition. An empty reason is always allowed; it resolves to the
// transition's default.
func (t Transition) AllowsReason(reason models.ReasonCode) bool {
	if reason == "" {
		return true
	}
	for _, r := range t.Reasons {
		if r == reason {
			return true
		}
	}
	return false
}

var rejectionReasons = []models.ReasonCode{
	models.ReasonFalseReport,
	models.ReasonContentSafe,
	models.ReasonJurisdictionIssue,
	models.ReasonInsufficientEvidence,
}

// transitionTable is the complete set of legal (state, action) pairs.
// Anything absent from this table is rejected; the table is the single
// source of truth for workflow legality.
var transitionTable = map[transitionKey]Transition{
	{models.StatusSubmitted, models.ActionStartReview}: {
		To:            models.StatusInReview,
		Roles:         []models.Role{models.RoleOfficer, models.RoleAdmin},
		Reasons:       []models.ReasonCode{models.ReasonOfficerAssignment},
		DefaultReason: models.ReasonOfficerAssignment,
		Effect:        EffectStartReview,
	},
	{models.StatusSubmitted, models.ActionReject}: {
		To:            models.StatusRejected,
		Roles:         []models.Role{models.RoleOfficer, models.RoleAdmin},
		Reasons:       rejectionReasons,
		DefaultReason: models.ReasonFalseReport,
		Effect:        EffectResolve,
	},
	{models.StatusSubmitted, models.ActionAutoEscalate}: {
		To:              models.StatusEscalated,
		Roles:           []models.Role{models.RoleSystem},
		Reasons:         []models.ReasonCode{models.ReasonSLAViolation},
		DefaultReason:   models.ReasonSLAViolation,
		RequiresOverdue: true,
		Effect:          EffectEscalate,
	},
	{models.StatusInReview, models.ActionApprove}: {
		To:            models.StatusApproved,
		Roles:         []models.Role{models.RoleOfficer, models.RoleAdmin},
		Reasons:       []models.ReasonCode{models.ReasonContentHarmful},
		DefaultReason: models.ReasonContentHarmful,
		Effect:        EffectResolve,
	},
	{models.StatusInReview, models.ActionReject}: {
		To:            models.StatusRejected,
		Roles:         []models.Role{models.RoleOfficer, models.RoleAdmin},
		Reasons:       rejectionReasons,
		DefaultReason: models.ReasonContentSafe,
		Effect:        EffectResolve,
	},
	{models.StatusInReview, models.ActionEscalate}: {
		To:            models.StatusEscalated,
		Roles:         []models.Role{models.RoleOfficer, models.RoleAdmin},
		Reasons:       []models.ReasonCode{models.ReasonManualEscalation},
		DefaultReason: models.ReasonManualEscalation,
		Effect:        EffectEscalate,
	},
	{models.StatusInReview, models.ActionAutoEscalate}: {
		To:              models.StatusEscalated,
		Roles:           []models.Role{models.RoleSystem},
		Reasons:         []models.ReasonCode{models.ReasonSLAViolation},
		DefaultReason:   models.ReasonSLAViolation,
		RequiresOverdue: true,
		Effect:          EffectEscalate,
	},
	{models.StatusEscalated, models.ActionAutoEscalate}: {
		To:              models.StatusEscalated,
		Roles:           []models.Role{models.RoleSystem},
		Reasons:         []models.ReasonCode{models.ReasonSLAViolation, models.ReasonMaxEscalationReached},
		DefaultReason:   models.ReasonSLAViolation,
		RequiresOverdue: true,
		Effect:          EffectEscalate,
	},
	{models.StatusEscalated, models.ActionReassign}: {
		To:            models.StatusInReview,
		Roles:         []models.Role{models.RoleAdmin},
		Reasons:       []models.ReasonCode{models.ReasonOfficerAssignment},
		DefaultReason: models.ReasonOfficerAssignment,
		Effect:        EffectReassign,
	},
	{models.StatusApproved, models.ActionClose}: {
		To:            models.StatusClosed,
		Roles:         []models.Role{models.RoleOfficer, models.RoleAdmin},
		Reasons:       []models.ReasonCode{models.ReasonCaseClosed},
		DefaultReason: models.ReasonCaseClosed,
		Effect:        EffectClose,
	},
	{models.StatusRejected, models.ActionClose}: {
		To:            models.StatusClosed,
		Roles:         []models.Role{models.RoleOfficer, models.RoleAdmin},
		Reasons:       []models.ReasonCode{models.ReasonCaseClosed},
		DefaultReason: models.ReasonCaseClosed,
		Effect:        EffectClose,
	},

	// The admin escape hatch for stuck escalations; no other state has
	// an override edge.
	{models.StatusEscalated, models.ActionOverrideClose}: {
		To:            models.StatusClosed,
		Roles:         []models.Role{models.RoleAdmin},
		Reasons:       []models.ReasonCode{models.ReasonAdminOverride},
		DefaultReason: models.ReasonAdminOverride,
		Effect:        EffectResolve,
	},
}

// Lookup returns the transition row for (from, action).
func Lookup(from models.CaseStatus, action models.Action) (Transition, bool) {
	t, ok := transitionTable[transitionKey{From: from, Action: action}]
	return t, ok
}

// AllowedActions lists the actions the role may perform on a case in the
// given state. The result order is stable.
func AllowedActions(from models.CaseStatus, role models.Role) []models.Action {
	candidates := []models.Action{
		models.ActionStartReview,
		models.ActionApprove,
		models.ActionReject,
		models.ActionEscalate,
		models.ActionAutoEscalate,
		models.ActionReassign,
		models.ActionClose,
		models.ActionOverrideClose,
	}

	var actions []models.Action
	for _, a := range candidates {
		if t, ok := Lookup(from, a); ok && t.AllowsRole(role) {
			actions = append(actions, a)
		}
	}
	return actions
}
