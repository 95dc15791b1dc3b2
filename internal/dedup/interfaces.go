// Package dedup classifies incoming submissions against previously seen
// content fingerprints and maintains case lineage.
package dedup

import (
	"context"

	"github.com/GSharvesh/Hac-KP/pkg/models"
)

// Repository resolves content fingerprints to the cases that first
// reported them.
type Repository interface {
	// ResolveHash returns the earliest-created case holding a submission
	// with the given dedup hash, or ErrNotFound when the hash is unseen.
	ResolveHash(ctx context.Context, hash string) (*models.Case, error)
}

// Classification is the dedup verdict for one incoming submission set.
// When Duplicate is false the remaining fields are zero.
type Classification struct {
	Duplicate    bool
	OriginCaseID string
	RootCaseID   string
	LineageDepth int
	MatchedHash  string
}

// Resolver decides whether a set of fingerprints duplicates earlier cases.
type Resolver interface {
	// Classify resolves each hash and, on a match, computes the lineage
	// link for the new case. With multiple matches the earliest-created
	// case wins.
	Classify(ctx context.Context, hashes []string) (*Classification, error)
}
