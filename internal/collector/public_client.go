package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/go-resty/resty/v2"
	"github.com/qepting91/reddit-top/internal/budget"
	"github.com/qepting91/reddit-top/internal/domain"
)

const publicBaseURL = "https://www.reddit.com"

// PublicClient reads the unauthenticated JSON endpoints.
type PublicClient struct {
	http     *resty.Client
	budget   *budget.Budget
	executor failsafe.Executor[*resty.Response]
}

type PublicOption func(*PublicClient)

// WithBaseURL points the client at another host, e.g. a test server.
func WithBaseURL(u string) PublicOption {
	return func(pc *PublicClient) { pc.http.SetBaseURL(u) }
}

// WithRetries overrides how many times a transient failure is retried.
func WithRetries(n int) PublicOption {
	return func(pc *PublicClient) { pc.executor = newRetryExecutor(n) }
}

func NewPublicClient(userAgent string, b *budget.Budget, opts ...PublicOption) (*PublicClient, error) {
	if userAgent == "" {
		return nil, fmt.Errorf("a User-Agent is required for public mode")
	}
	if b == nil {
		return nil, fmt.Errorf("public client needs a rate budget")
	}
	pc := &PublicClient{
		http: resty.New().
			SetBaseURL(publicBaseURL).
			SetTimeout(15*time.Second).
			SetHeader("User-Agent", userAgent).
			SetRedirectPolicy(noRedirects),
		budget:   b,
		executor: newRetryExecutor(2),
	}
	for _, opt := range opts {
		opt(pc)
	}
	return pc, nil
}

func (pc *PublicClient) FetchNewPage(ctx context.Context, community string, limit int, after string) (domain.Page, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}

	resp, err := pc.get(ctx, "/r/{community}/new.json", func(r *resty.Request) {
		r.SetPathParam("community", community).
			SetQueryParam("limit", strconv.Itoa(limit)).
			SetQueryParam("raw_json", "1")
		if after != "" {
			r.SetQueryParam("after", after)
		}
	})
	if err != nil {
		return domain.Page{}, fmt.Errorf("r/%s: %w", community, err)
	}
	if err := listingStatus(resp.StatusCode()); err != nil {
		return domain.Page{}, fmt.Errorf("r/%s: %w", community, err)
	}

	var listing listingResponse
	if err := json.Unmarshal(resp.Body(), &listing); err != nil {
		return domain.Page{}, fmt.Errorf("r/%s: %w: decode listing: %v", community, domain.ErrNetworkFailure, err)
	}

	page := domain.Page{After: listing.Data.After}
	for _, child := range listing.Data.Children {
		if child.Kind != "" && child.Kind != "t3" {
			continue
		}
		page.Posts = append(page.Posts, child.Data.toPost(community))
	}
	return page, nil
}

func (pc *PublicClient) FetchPost(ctx context.Context, community, id string) (domain.Post, error) {
	path := "/comments/{id}.json"
	if community != "" {
		path = "/r/{community}/comments/{id}.json"
	}

	resp, err := pc.get(ctx, path, func(r *resty.Request) {
		r.SetPathParam("id", id).SetQueryParam("raw_json", "1").SetQueryParam("limit", "1")
		if community != "" {
			r.SetPathParam("community", community)
		}
	})
	if err != nil {
		return domain.Post{}, fmt.Errorf("post %s: %w", id, err)
	}
	if err := postStatus(resp.StatusCode()); err != nil {
		return domain.Post{}, fmt.Errorf("post %s: %w", id, err)
	}

	// The post endpoint answers [post listing, comment listing].
	var listings []listingResponse
	if err := json.Unmarshal(resp.Body(), &listings); err != nil {
		return domain.Post{}, fmt.Errorf("post %s: %w: decode: %v", id, domain.ErrNetworkFailure, err)
	}
	if len(listings) == 0 || len(listings[0].Data.Children) == 0 {
		return domain.Post{}, fmt.Errorf("post %s: %w: empty response", id, domain.ErrPostNotFound)
	}
	return listings[0].Data.Children[0].Data.toPost(community), nil
}

// get sends one GET through the retry policy, charging the shared budget for
// every attempt.
func (pc *PublicClient) get(ctx context.Context, path string, build func(*resty.Request)) (*resty.Response, error) {
	return pc.executor.WithContext(ctx).Get(func() (*resty.Response, error) {
		if err := pc.budget.Acquire(ctx); err != nil {
			return nil, err
		}
		req := pc.http.R().SetContext(ctx)
		build(req)
		resp, err := req.Get(path)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %v", domain.ErrNetworkFailure, err)
		}
		pc.budget.ObserveHeaders(resp.Header())
		if resp.StatusCode() == http.StatusTooManyRequests {
			pc.budget.Exhaust(budget.RetryAfter(resp.Header()))
		}
		return resp, nil
	})
}
