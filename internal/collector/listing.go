package collector

import (
	"context"
	"errors"
	"log/slog"

	"github.com/qepting91/reddit-top/internal/domain"
)

// Fetcher walks the "newest posts" listing of one community page by page.
type Fetcher struct {
	source   domain.Collector
	pageSize int
	logger   *slog.Logger
}

func NewFetcher(source domain.Collector, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{source: source, pageSize: MaxPageSize, logger: logger}
}

// WithPageSize returns a copy of f that requests pages of n posts.
func (f *Fetcher) WithPageSize(n int) *Fetcher {
	cp := *f
	if n > 0 && n <= MaxPageSize {
		cp.pageSize = n
	}
	return &cp
}

// FetchRecent returns up to limit posts of community, newest first.
//
// Pagination stops when limit posts are collected, a page comes back short
// or no cursor is returned. A community that is missing or private yields
// ErrCommunityUnavailable and no posts. A network failure or an exhausted
// budget yields the posts collected so far, possibly none, together with the
// error. Cancelling ctx discards everything.
func (f *Fetcher) FetchRecent(ctx context.Context, community string, limit int) ([]domain.Post, error) {
	if limit <= 0 {
		return nil, nil
	}

	seen := make(map[domain.PostKey]struct{}, limit)
	posts := make([]domain.Post, 0, limit)
	after := ""
	pages := 0

	for len(posts) < limit {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		want := min(f.pageSize, limit-len(posts))
		page, err := f.source.FetchNewPage(ctx, community, want, after)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if errors.Is(err, domain.ErrCommunityUnavailable) {
				return nil, err
			}
			f.logger.Warn("Pagination interrupted, keeping partial result",
				"community", community, "pages", pages, "posts", len(posts), "err", err)
			return posts, err
		}
		pages++

		added := 0
		for _, p := range page.Posts {
			if p.Community == "" {
				p.Community = community
			}
			key := p.Key()
			if _, dup := seen[key]; dup {
				f.logger.Warn("Duplicate post id across pages", "community", community, "id", p.ID, "page", pages)
				continue
			}
			seen[key] = struct{}{}
			posts = append(posts, p)
			added++
		}

		if len(page.Posts) < want || page.After == "" {
			break
		}
		// A repeated cursor or a page of nothing new would replay forever.
		if page.After == after || added == 0 {
			f.logger.Warn("Listing cursor stalled, keeping collected posts",
				"community", community, "cursor", page.After, "pages", pages, "posts", len(posts))
			break
		}
		after = page.After
	}

	if len(posts) > limit {
		posts = posts[:limit]
	}
	f.logger.Debug("Fetched listing", "community", community, "pages", pages, "posts", len(posts))
	return posts, nil
}
