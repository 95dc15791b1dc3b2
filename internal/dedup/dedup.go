package dedup

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/GSharvesh/Hac-KP/pkg/errors"
	"github.com/GSharvesh/Hac-KP/pkg/models"
)

// DefaultMaxLineageDepth caps how long a duplicate chain may grow before
// new duplicates are attached directly to the lineage root.
const DefaultMaxLineageDepth = 8

// NewResolver creates a dedup resolver. A maxDepth of zero falls back to
// DefaultMaxLineageDepth.
func NewResolver(repo Repository, maxDepth int) Resolver {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxLineageDepth
	}
	return &resolverImpl{repo: repo, maxDepth: maxDepth}
}

type resolverImpl struct {
	repo     Repository
	maxDepth int
}

func (r *resolverImpl) Classify(ctx context.Context, hashes []string) (*Classification, error) {
	var (
		matched     *models.Case
		matchedHash string
	)

	for _, hash := range hashes {
		c, err := r.repo.ResolveHash(ctx, hash)
		if stderrors.Is(err, errors.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve hash: %w", err)
		}
		if matched == nil || earlier(c, matched) {
			matched = c
			matchedHash = hash
		}
	}

	if matched == nil {
		return &Classification{}, nil
	}

	root := matched.RootCaseID
	if matched.Original() {
		root = matched.ID
	}

	cls := &Classification{
		Duplicate:    true,
		OriginCaseID: matched.ID,
		RootCaseID:   root,
		LineageDepth: matched.LineageDepth + 1,
		MatchedHash:  matchedHash,
	}

	// A chain at the depth cap collapses: the new case attaches to the
	// lineage root so forensic walks stay bounded.
	if cls.LineageDepth > r.maxDepth {
		cls.OriginCaseID = root
		cls.LineageDepth = 1
	}
	return cls, nil
}

// earlier orders cases by creation time, falling back to ID so the
// ordering is total even with equal timestamps.
func earlier(a, b *models.Case) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}
