package domain

import (
	"context"
	"strings"
	"time"
)

// Post is one item from a community feed.
type Post struct {
	ID          string    `json:"id"`
	Community   string    `json:"subreddit"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	CreatedAt   time.Time `json:"created_at"`
	Score       int       `json:"score"`
	NumComments int       `json:"num_comments"`
	UpvoteRatio float64   `json:"upvote_ratio"`
	Permalink   string    `json:"permalink"`
	URL         string    `json:"url"`
	Body        string    `json:"selftext,omitempty"`
	Flair       string    `json:"flair,omitempty"`
	Subscribers int       `json:"subreddit_subscribers,omitempty"`
}

// PostKey identifies a post across pages and runs.
type PostKey struct {
	Community string
	ID        string
}

func (p Post) Key() PostKey {
	return PostKey{Community: strings.ToLower(p.Community), ID: p.ID}
}

// ScoredPost is a Post with the engagement score computed by one filtering pass.
type ScoredPost struct {
	Post
	EngagementScore float64 `json:"engagement_score"`
}

// Weights are the coefficients of the engagement formula.
type Weights struct {
	Score    float64 `json:"score"`
	Comments float64 `json:"comments"`
	Ratio    float64 `json:"ratio"`
}

// Page is one response of the "newest posts" listing. After is empty when
// the feed is exhausted.
type Page struct {
	Posts []Post
	After string
}

// Collector defines the upstream operations every client implements.
type Collector interface {
	FetchNewPage(ctx context.Context, community string, limit int, after string) (Page, error)
	// FetchPost retrieves a single post. community may be empty when only
	// the id is known.
	FetchPost(ctx context.Context, community, id string) (Post, error)
}
