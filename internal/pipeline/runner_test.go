package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/qepting91/reddit-top/internal/collector"
	"github.com/qepting91/reddit-top/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var clock = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

type staticList []string

func (s staticList) List() []string { return s }

// routedSource answers "missing" with a 404 classification and "flaky" with
// a network failure, delegating everything else to the mock.
type routedSource struct {
	mock *collector.MockClient
	gate chan struct{}
}

func (s *routedSource) FetchNewPage(ctx context.Context, community string, limit int, after string) (domain.Page, error) {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return domain.Page{}, ctx.Err()
		}
	}
	switch {
	case strings.EqualFold(community, "missing"):
		return domain.Page{}, fmt.Errorf("r/%s: %w", community, domain.ErrCommunityUnavailable)
	case strings.EqualFold(community, "flaky") && after != "":
		return domain.Page{}, fmt.Errorf("r/%s: %w", community, domain.ErrNetworkFailure)
	}
	return s.mock.FetchNewPage(ctx, community, limit, after)
}

func (s *routedSource) FetchPost(ctx context.Context, community, id string) (domain.Post, error) {
	return s.mock.FetchPost(ctx, community, id)
}

func newRunner(src domain.Collector, names ...string) *Runner {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fetcher := collector.NewFetcher(src, logger).WithPageSize(50)
	return NewRunner(fetcher, staticList(names), Options{
		Limit:       120,
		TopN:        10,
		WindowDays:  7,
		Weights:     domain.Weights{Score: 1, Comments: 2, Ratio: 50},
		Concurrency: 3,
	}, logger).WithClock(func() time.Time { return clock })
}

func mockSource() *routedSource {
	return &routedSource{mock: &collector.MockClient{PerCommunity: 150, Now: func() time.Time { return clock }}}
}

func TestRunIsolatesUnavailableCommunity(t *testing.T) {
	r := newRunner(mockSource(), "golang", "missing", "rust")

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 3)

	assert.Equal(t, []string{"golang", "missing", "rust"}, []string{
		report.Results[0].Community, report.Results[1].Community, report.Results[2].Community,
	})

	missing := report.Results[1]
	assert.Equal(t, "community_unavailable", missing.ErrorKind)
	assert.NotNil(t, missing.Raw)
	assert.Empty(t, missing.Raw)
	assert.Empty(t, missing.Ranked)
	assert.Empty(t, missing.Recent)

	for _, i := range []int{0, 2} {
		res := report.Results[i]
		assert.Empty(t, res.Error)
		assert.Len(t, res.Raw, 120)
		// mock posts are two hours apart; the 7-day boundary keeps 0..84
		assert.Len(t, res.Recent, 85)
		assert.Len(t, res.Ranked, 10)
	}
}

func TestRunKeepsPartialResults(t *testing.T) {
	r := newRunner(mockSource(), "flaky")

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	res := report.Results[0]
	assert.Equal(t, "network_failure", res.ErrorKind)
	assert.Len(t, res.Raw, 50)
	assert.Len(t, res.Ranked, 10)
}

func TestRunViewsAreOrdered(t *testing.T) {
	r := newRunner(mockSource(), "golang")
	report, err := r.Run(context.Background())
	require.NoError(t, err)

	res := report.Results[0]
	for i := 1; i < len(res.Ranked); i++ {
		assert.GreaterOrEqual(t, res.Ranked[i-1].EngagementScore, res.Ranked[i].EngagementScore)
	}
	for i := 1; i < len(res.Recent); i++ {
		assert.False(t, res.Recent[i].CreatedAt.After(res.Recent[i-1].CreatedAt))
	}
	raw, windowed, ranked := report.Totals()
	assert.Equal(t, 120, raw)
	assert.Equal(t, 85, windowed)
	assert.Equal(t, 10, ranked)
}

func TestRunRejectsOverlap(t *testing.T) {
	src := mockSource()
	src.gate = make(chan struct{})
	r := newRunner(src, "golang")

	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		_, firstErr = r.Run(context.Background())
	}()

	require.Eventually(t, func() bool { return r.running.Load() }, time.Second, time.Millisecond)
	_, err := r.Run(context.Background())
	require.ErrorIs(t, err, ErrRunInProgress)

	close(src.gate)
	wg.Wait()
	require.NoError(t, firstErr)

	_, err = r.Run(context.Background())
	require.NoError(t, err, "a finished run must release the guard")
}

func TestRunCancelledReturnsNothing(t *testing.T) {
	src := mockSource()
	src.gate = make(chan struct{})
	r := newRunner(src, "golang", "rust")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := r.Run(ctx)
	require.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, report.Results)
}

func TestRunReportsEachResult(t *testing.T) {
	r := newRunner(mockSource(), "golang", "missing")
	var mu sync.Mutex
	seen := map[string]string{}
	r.OnResult = func(res domain.CommunityResult) {
		mu.Lock()
		defer mu.Unlock()
		seen[res.Community] = res.ErrorKind
	}
	_, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"golang": "", "missing": "community_unavailable"}, seen)
}
