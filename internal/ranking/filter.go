// Package ranking turns raw posts into the ranked and recency views.
package ranking

import (
	"time"

	"github.com/qepting91/reddit-top/internal/domain"
)

// Engagement computes score*wScore + numComments*wComments + upvoteRatio*wRatio.
func Engagement(p domain.Post, w domain.Weights) float64 {
	return float64(p.Score)*w.Score + float64(p.NumComments)*w.Comments + p.UpvoteRatio*w.Ratio
}

// Apply keeps the posts created at most windowDays before now, boundary
// included, and scores them. The input slice is not modified.
func Apply(posts []domain.Post, windowDays int, w domain.Weights, now time.Time) []domain.ScoredPost {
	return applyWindow(posts, time.Duration(windowDays)*24*time.Hour, w, now)
}

// applyWindow is Apply with an arbitrary window length.
func applyWindow(posts []domain.Post, window time.Duration, w domain.Weights, now time.Time) []domain.ScoredPost {
	out := make([]domain.ScoredPost, 0, len(posts))
	for _, p := range posts {
		if now.Sub(p.CreatedAt) > window {
			continue
		}
		out = append(out, domain.ScoredPost{Post: p, EngagementScore: Engagement(p, w)})
	}
	return out
}
