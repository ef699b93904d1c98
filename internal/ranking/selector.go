package ranking

import (
	"cmp"
	"slices"
	"time"

	"github.com/qepting91/reddit-top/internal/domain"
)

// Views are the two orderings derived from one scored collection.
type Views struct {
	// Ranked holds at most topN posts by engagement.
	Ranked []domain.ScoredPost
	// Recent holds every post, newest first.
	Recent []domain.ScoredPost
}

// Select derives both views. Neither shares a backing array with scored.
func Select(scored []domain.ScoredPost, topN int) Views {
	ranked := slices.Clone(scored)
	slices.SortFunc(ranked, byEngagement)
	if topN < 0 {
		topN = 0
	}
	if len(ranked) > topN {
		ranked = slices.Clip(ranked[:topN])
	}

	recent := slices.Clone(scored)
	slices.SortFunc(recent, byRecency)

	if ranked == nil {
		ranked = []domain.ScoredPost{}
	}
	if recent == nil {
		recent = []domain.ScoredPost{}
	}
	return Views{Ranked: ranked, Recent: recent}
}

// byEngagement orders by score descending, then newer first, then id.
func byEngagement(a, b domain.ScoredPost) int {
	if c := cmp.Compare(b.EngagementScore, a.EngagementScore); c != 0 {
		return c
	}
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func byRecency(a, b domain.ScoredPost) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// RecentWithin re-filters a recency view to a narrower window and keeps the
// newest n posts (all of them when n <= 0). recent must already be newest first.
func RecentWithin(recent []domain.ScoredPost, window time.Duration, n int, now time.Time) []domain.ScoredPost {
	var out []domain.ScoredPost
	for _, p := range recent {
		if now.Sub(p.CreatedAt) > window {
			continue
		}
		out = append(out, p)
		if n > 0 && len(out) == n {
			break
		}
	}
	return out
}
