package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/qepting91/reddit-top/internal/budget"
	"github.com/qepting91/reddit-top/internal/domain"
)

const (
	DefaultMaxHops = 5
	canonicalBase  = "https://www.reddit.com"
)

// Resolver follows share links hop by hop until they reveal a post id.
type Resolver struct {
	http    *resty.Client
	budget  *budget.Budget
	maxHops int
	logger  *slog.Logger
}

type Option func(*Resolver)

// WithBaseURL sends hop requests to another host. Locations are still
// interpreted relative to reddit.com.
func WithBaseURL(u string) Option {
	return func(r *Resolver) { r.http.SetBaseURL(u) }
}

func WithMaxHops(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxHops = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

func New(userAgent string, b *budget.Budget, opts ...Option) *Resolver {
	r := &Resolver{
		http: resty.New().
			SetBaseURL(canonicalBase).
			SetTimeout(10*time.Second).
			SetHeader("User-Agent", userAgent).
			SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			})),
		budget:  b,
		maxHops: DefaultMaxHops,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveString parses raw and resolves the result.
func (r *Resolver) ResolveString(ctx context.Context, raw string) (domain.PostReference, error) {
	return r.Resolve(ctx, Parse(raw))
}

// Resolve returns a RefPostByID reference or a classified error. Resolving a
// RefPostByID reference returns it unchanged without any request.
func (r *Resolver) Resolve(ctx context.Context, ref domain.PostReference) (domain.PostReference, error) {
	switch ref.Kind {
	case domain.RefPostByID:
		return ref, nil
	case domain.RefShortCode:
		return r.follow(ctx, ref)
	case domain.RefCommunityOnly:
		return ref, fmt.Errorf("r/%s: %w", ref.Community, domain.ErrNotAPost)
	case domain.RefInvalid:
		return ref, fmt.Errorf("%q: %w", ref.Raw, domain.ErrUnrecognizedFormat)
	default:
		return ref, fmt.Errorf("reference kind %d: %w", ref.Kind, domain.ErrUnrecognizedFormat)
	}
}

func (r *Resolver) follow(ctx context.Context, ref domain.PostReference) (domain.PostReference, error) {
	current, _ := url.Parse(ref.URL())
	visited := map[string]bool{}

	for hop := 1; hop <= r.maxHops; hop++ {
		key := current.Path + "?" + current.RawQuery
		if visited[key] {
			return ref, fmt.Errorf("%s: %w: revisited %s", ref, domain.ErrRedirectLoop, current.Path)
		}
		visited[key] = true

		location, err := r.hop(ctx, current)
		if err != nil {
			return ref, fmt.Errorf("%s: %w", ref, err)
		}
		next, err := current.Parse(location)
		if err != nil {
			return ref, fmt.Errorf("%s: %w: bad Location %q", ref, domain.ErrUnrecognizedFormat, location)
		}

		parsed := Parse(next.String())
		r.logger.Debug("Followed share redirect", "ref", ref.String(), "hop", hop, "location", next.String(), "kind", parsed.Kind.String())
		switch parsed.Kind {
		case domain.RefPostByID:
			return parsed, nil
		case domain.RefCommunityOnly:
			return ref, fmt.Errorf("%s: %w: share link led to r/%s", ref, domain.ErrNotAPost, parsed.Community)
		}
		if !isRedditHost(next.Hostname()) {
			return ref, fmt.Errorf("%s: %w: redirected off-site to %s", ref, domain.ErrUnrecognizedFormat, next.Hostname())
		}
		current = next
	}
	return ref, fmt.Errorf("%s: %w: gave up after %d hops", ref, domain.ErrRedirectLoop, r.maxHops)
}

// hop requests u without following redirects and returns the Location.
func (r *Resolver) hop(ctx context.Context, u *url.URL) (string, error) {
	if r.budget != nil {
		if err := r.budget.Acquire(ctx); err != nil {
			return "", err
		}
	}

	resp, err := r.http.R().SetContext(ctx).Get(u.RequestURI())
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v", domain.ErrNetworkFailure, err)
	}
	if r.budget != nil {
		r.budget.ObserveHeaders(resp.Header())
	}

	status := resp.StatusCode()
	switch {
	case status >= 300 && status < 400:
		loc := resp.Header().Get("Location")
		if loc == "" {
			return "", fmt.Errorf("%w: redirect without Location", domain.ErrUnrecognizedFormat)
		}
		return loc, nil
	case status == http.StatusNotFound:
		return "", fmt.Errorf("%w: share link returned 404", domain.ErrPostNotFound)
	case status == http.StatusTooManyRequests:
		if r.budget != nil {
			r.budget.Exhaust(budget.RetryAfter(resp.Header()))
		}
		return "", fmt.Errorf("%w: status %d", domain.ErrRateLimited, status)
	case status >= 500:
		return "", fmt.Errorf("%w: status %d", domain.ErrNetworkFailure, status)
	default:
		return "", fmt.Errorf("%w: share link answered %d without redirecting", domain.ErrUnrecognizedFormat, status)
	}
}

func isRedditHost(host string) bool {
	host = strings.ToLower(host)
	return host == "reddit.com" || strings.HasSuffix(host, ".reddit.com")
}
