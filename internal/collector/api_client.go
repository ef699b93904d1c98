package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/loganintech/go-reddit/v2/reddit"
	"github.com/qepting91/reddit-top/internal/budget"
	"github.com/qepting91/reddit-top/internal/domain"
)

// Credentials for a Reddit "script" app. Empty credentials select the
// read-only client.
type Credentials struct {
	ID       string
	Secret   string
	Username string
	Password string
}

// APIClient goes through go-reddit, authenticated when credentials are given.
type APIClient struct {
	client *reddit.Client
	budget *budget.Budget
}

// NewAPIClient builds the go-reddit client. opts are applied after the
// user agent, e.g. reddit.WithBaseURL to point it at another host.
func NewAPIClient(creds Credentials, userAgent string, b *budget.Budget, opts ...reddit.Opt) (*APIClient, error) {
	if b == nil {
		return nil, fmt.Errorf("api client needs a rate budget")
	}
	opts = append([]reddit.Opt{reddit.WithUserAgent(userAgent)}, opts...)

	var (
		client *reddit.Client
		err    error
	)
	if creds.ID == "" {
		client, err = reddit.NewReadonlyClient(opts...)
	} else {
		client, err = reddit.NewClient(reddit.Credentials{
			ID:       creds.ID,
			Secret:   creds.Secret,
			Username: creds.Username,
			Password: creds.Password,
		}, opts...)
	}
	if err != nil {
		return nil, err
	}
	return &APIClient{client: client, budget: b}, nil
}

func (ac *APIClient) FetchNewPage(ctx context.Context, community string, limit int, after string) (domain.Page, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	if err := ac.budget.Acquire(ctx); err != nil {
		return domain.Page{}, fmt.Errorf("r/%s: %w", community, err)
	}

	posts, resp, err := ac.client.Subreddit.NewPosts(ctx, community, &reddit.ListOptions{Limit: limit, After: after})
	ac.observe(resp)
	if err != nil {
		return domain.Page{}, fmt.Errorf("r/%s: %w", community, classifyAPIError(ctx, err, listingStatus))
	}

	page := domain.Page{Posts: make([]domain.Post, 0, len(posts))}
	if resp != nil {
		page.After = resp.After
	}
	for _, p := range posts {
		page.Posts = append(page.Posts, fromRedditPost(p, community))
	}
	return page, nil
}

func (ac *APIClient) FetchPost(ctx context.Context, community, id string) (domain.Post, error) {
	if err := ac.budget.Acquire(ctx); err != nil {
		return domain.Post{}, fmt.Errorf("post %s: %w", id, err)
	}

	pc, resp, err := ac.client.Post.Get(ctx, id)
	ac.observe(resp)
	if err != nil {
		return domain.Post{}, fmt.Errorf("post %s: %w", id, classifyAPIError(ctx, err, postStatus))
	}
	if pc == nil || pc.Post == nil {
		return domain.Post{}, fmt.Errorf("post %s: %w", id, domain.ErrPostNotFound)
	}
	return fromRedditPost(pc.Post, community), nil
}

func (ac *APIClient) observe(resp *reddit.Response) {
	if resp == nil || resp.Rate.Reset.IsZero() {
		return
	}
	ac.budget.Observe(resp.Rate.Remaining, resp.Rate.Reset)
}

func classifyAPIError(ctx context.Context, err error, byStatus func(int) error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var rateErr *reddit.RateLimitError
	if errors.As(err, &rateErr) {
		return fmt.Errorf("%w: %v", domain.ErrRateLimited, err)
	}
	var respErr *reddit.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil && respErr.Response.StatusCode != http.StatusOK {
		return byStatus(respErr.Response.StatusCode)
	}
	return fmt.Errorf("%w: %v", domain.ErrNetworkFailure, err)
}

func fromRedditPost(p *reddit.Post, fallbackCommunity string) domain.Post {
	d := postData{
		ID:                   p.ID,
		Title:                p.Title,
		Subreddit:            p.SubredditName,
		Author:               p.Author,
		URL:                  p.URL,
		Permalink:            p.Permalink,
		Selftext:             p.Body,
		LinkFlairText:        p.LinkFlairText,
		Score:                p.Score,
		NumComments:          p.NumberOfComments,
		UpvoteRatio:          float64(p.UpvoteRatio),
		SubredditSubscribers: p.SubredditSubscribers,
	}
	post := d.toPost(fallbackCommunity)
	if p.Created != nil {
		post.CreatedAt = p.Created.Time.UTC()
	}
	return post
}
