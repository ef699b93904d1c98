// Package lookup resolves an arbitrary post reference and fetches the post.
package lookup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/qepting91/reddit-top/internal/domain"
	"golang.org/x/sync/singleflight"
)

// sharedFetchTimeout bounds a coalesced fetch, which outlives the caller
// that started it.
const sharedFetchTimeout = 30 * time.Second

// Resolver turns a raw reference into a RefPostByID reference.
type Resolver interface {
	ResolveString(ctx context.Context, raw string) (domain.PostReference, error)
}

// Tracker answers whether a community is in the configured list.
type Tracker interface {
	Contains(name string) bool
}

// Result is the outcome of one successful lookup.
type Result struct {
	Post        domain.Post          `json:"post"`
	Reference   domain.PostReference `json:"-"`
	Community   string               `json:"community"`
	Tracked     bool                 `json:"is_tracked"`
	Subscribers int                  `json:"subscribers"`
}

// Observer receives the duration and error class of every lookup.
type Observer func(d time.Duration, kind string)

type Service struct {
	resolver Resolver
	source   domain.Collector
	tracker  Tracker
	group    singleflight.Group
	observe  Observer
	logger   *slog.Logger
}

func NewService(resolver Resolver, source domain.Collector, tracker Tracker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{resolver: resolver, source: source, tracker: tracker, logger: logger}
}

// WithObserver installs a callback run after every lookup.
func (s *Service) WithObserver(o Observer) *Service {
	s.observe = o
	return s
}

// FetchPost resolves raw and retrieves the post it names. Identical
// references requested at the same time share one upstream fetch.
func (s *Service) FetchPost(ctx context.Context, raw string) (Result, error) {
	start := time.Now()
	res, err := s.fetch(ctx, raw)
	if s.observe != nil {
		s.observe(time.Since(start), domain.Kind(err))
	}
	if err != nil {
		s.logger.Warn("Lookup failed", "ref", raw, "kind", domain.Kind(err), "err", err)
		return Result{}, err
	}
	s.logger.Info("Lookup complete", "ref", res.Reference.String(), "community", res.Community, "tracked", res.Tracked)
	return res, nil
}

func (s *Service) fetch(ctx context.Context, raw string) (Result, error) {
	ref, err := s.resolver.ResolveString(ctx, raw)
	if err != nil {
		return Result{}, err
	}

	// The shared call runs detached so one caller giving up does not fail
	// the others waiting on the same key.
	key := ref.Community + "/" + ref.ID
	ch := s.group.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedFetchTimeout)
		defer cancel()
		return s.source.FetchPost(fctx, ref.Community, ref.ID)
	})
	var out singleflight.Result
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case out = <-ch:
	}
	if out.Err != nil {
		return Result{}, fmt.Errorf("fetch %s: %w", ref, out.Err)
	}
	post := out.Val.(domain.Post)

	community := post.Community
	if community == "" {
		community = ref.Community
	}
	res := Result{
		Post:        post,
		Reference:   ref,
		Community:   community,
		Subscribers: post.Subscribers,
	}
	if s.tracker != nil {
		res.Tracked = s.tracker.Contains(community)
	}
	return res, nil
}
