package collector

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/go-resty/resty/v2"
	"github.com/qepting91/reddit-top/internal/domain"
)

const (
	// MaxPageSize is the largest page the listing endpoint serves.
	MaxPageSize = 100

	maxBodyRunes = 500
	siteURL      = "https://reddit.com"
)

// postData is the subset of a Reddit "t3" thing we keep.
type postData struct {
	ID                   string  `json:"id"`
	Title                string  `json:"title"`
	Subreddit            string  `json:"subreddit"`
	Author               string  `json:"author"`
	URL                  string  `json:"url"`
	Permalink            string  `json:"permalink"`
	Selftext             string  `json:"selftext"`
	LinkFlairText        string  `json:"link_flair_text"`
	Score                int     `json:"score"`
	NumComments          int     `json:"num_comments"`
	UpvoteRatio          float64 `json:"upvote_ratio"`
	CreatedUTC           float64 `json:"created_utc"`
	SubredditSubscribers int     `json:"subreddit_subscribers"`
}

type listingResponse struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Kind string   `json:"kind"`
			Data postData `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

func (d postData) toPost(fallbackCommunity string) domain.Post {
	community := d.Subreddit
	if community == "" {
		community = fallbackCommunity
	}
	author := d.Author
	if author == "" {
		author = "[deleted]"
	}
	return domain.Post{
		ID:          d.ID,
		Community:   community,
		Title:       d.Title,
		Author:      author,
		CreatedAt:   fromUnix(d.CreatedUTC),
		Score:       d.Score,
		NumComments: max(d.NumComments, 0),
		UpvoteRatio: clampRatio(d.UpvoteRatio),
		Permalink:   absolutePermalink(d.Permalink),
		URL:         d.URL,
		Body:        truncateRunes(d.Selftext, maxBodyRunes),
		Flair:       d.LinkFlairText,
		Subscribers: d.SubredditSubscribers,
	}
}

func fromUnix(secs float64) time.Time {
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC()
}

func clampRatio(r float64) float64 {
	switch {
	case math.IsNaN(r) || r < 0:
		return 0
	case r > 1:
		return 1
	default:
		return r
	}
}

func absolutePermalink(p string) string {
	if p == "" || p[0] != '/' {
		return p
	}
	return siteURL + p
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// listingStatus maps a non-200 listing status to the error taxonomy.
// Reddit answers unknown communities with a redirect to search, so 3xx
// counts as unavailable too.
func listingStatus(status int) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusNotFound, status == http.StatusForbidden,
		status >= 300 && status < 400:
		return fmt.Errorf("%w: status %d", domain.ErrCommunityUnavailable, status)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", domain.ErrRateLimited, status)
	default:
		return fmt.Errorf("%w: status %d", domain.ErrNetworkFailure, status)
	}
}

func postStatus(status int) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusNotFound, status >= 300 && status < 400:
		return fmt.Errorf("%w: status %d", domain.ErrPostNotFound, status)
	case status == http.StatusForbidden:
		return fmt.Errorf("%w: post is private or restricted (status %d)", domain.ErrCommunityUnavailable, status)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", domain.ErrRateLimited, status)
	default:
		return fmt.Errorf("%w: status %d", domain.ErrNetworkFailure, status)
	}
}

// shouldRetry retries transport failures, 5xx and 429. Budget exhaustion and
// caller cancellation are final.
func shouldRetry(resp *resty.Response, err error) bool {
	if err != nil {
		return errors.Is(err, domain.ErrNetworkFailure)
	}
	if resp == nil {
		return true
	}
	return resp.StatusCode() >= 500 || resp.StatusCode() == http.StatusTooManyRequests
}

func newRetryExecutor(maxRetries int) failsafe.Executor[*resty.Response] {
	policy := retrypolicy.NewBuilder[*resty.Response]().
		HandleIf(shouldRetry).
		WithMaxRetries(maxRetries).
		WithBackoff(200*time.Millisecond, 2*time.Second).
		WithJitterFactor(0.1).
		ReturnLastFailure().
		Build()
	return failsafe.With(policy)
}

// noRedirects makes resty hand back 3xx responses as-is.
var noRedirects = resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
})
