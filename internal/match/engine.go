package match

import (
	"context"
	"fmt"
	"sort"

	"github.com/ISYS3461-2025C-Atalanta-DEVision/JA-Backend-sub000/internal/model"
)

// CandidateSource supplies the profiles eligible for matching. Filtering on
// active/premium/not-expired happens at the source, before scoring, so the
// scored set stays bounded.
type CandidateSource interface {
	ActiveCandidates(ctx context.Context) ([]model.ProfileProjection, error)
}

// Engine scores every eligible profile against one job's criteria.
// It is side-effect-free: no notification creation, no writes.
type Engine struct {
	source CandidateSource
}

// NewEngine returns an Engine reading candidates from source.
func NewEngine(source CandidateSource) *Engine {
	return &Engine{source: source}
}

// FindMatches returns all profiles with a non-zero score against criteria,
// ordered by descending score. Ties keep the candidate enumeration order
// (stable sort). A profile scoring 0 is excluded entirely.
func (e *Engine) FindMatches(ctx context.Context, criteria model.MatchCriteria) ([]model.MatchResult, error) {
	profiles, err := e.source.ActiveCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}

	results := make([]model.MatchResult, 0, len(profiles))
	for _, p := range profiles {
		r := Score(p, criteria)
		if r.MatchScore > 0 {
			results = append(results, r)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].MatchScore > results[j].MatchScore
	})
	return results, nil
}
