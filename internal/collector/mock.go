package collector

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"time"

	"github.com/qepting91/reddit-top/internal/domain"
)

// MockClient implements domain.Collector with generated data. Pages follow
// the same cursor contract as the real listing.
type MockClient struct {
	Latency      time.Duration
	PerCommunity int
	// Now anchors the generated timestamps.
	Now func() time.Time
}

func NewMockClient() *MockClient {
	return &MockClient{Latency: 200 * time.Millisecond, PerCommunity: 150, Now: time.Now}
}

func (mc *MockClient) FetchNewPage(ctx context.Context, sub string, limit int, after string) (domain.Page, error) {
	if err := mc.wait(ctx); err != nil {
		return domain.Page{}, err
	}
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}

	start := 0
	if after != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(after, "t3_mock"))
		if err != nil {
			return domain.Page{}, fmt.Errorf("r/%s: %w: bad cursor %q", sub, domain.ErrNetworkFailure, after)
		}
		start = n + 1
	}

	var page domain.Page
	for i := start; i < mc.PerCommunity && len(page.Posts) < limit; i++ {
		page.Posts = append(page.Posts, mc.post(sub, i))
	}
	if n := len(page.Posts); n == limit && start+n < mc.PerCommunity {
		page.After = fmt.Sprintf("t3_mock%d", start+n-1)
	}
	return page, nil
}

func (mc *MockClient) FetchPost(ctx context.Context, community, id string) (domain.Post, error) {
	if err := mc.wait(ctx); err != nil {
		return domain.Post{}, err
	}
	i, err := strconv.Atoi(strings.TrimPrefix(id, "mock"))
	if err != nil || i < 0 || i >= mc.PerCommunity {
		return domain.Post{}, fmt.Errorf("post %s: %w", id, domain.ErrPostNotFound)
	}
	if community == "" {
		community = "mock"
	}
	return mc.post(community, i), nil
}

func (mc *MockClient) post(sub string, i int) domain.Post {
	h := fnv.New32a()
	fmt.Fprintf(h, "%s/%d", strings.ToLower(sub), i)
	seed := h.Sum32()

	now := time.Now
	if mc.Now != nil {
		now = mc.Now
	}
	id := fmt.Sprintf("mock%d", i)
	return domain.Post{
		ID:          id,
		Community:   sub,
		Title:       fmt.Sprintf("[%s] Simulated discussion #%d", sub, i),
		Author:      "simulated_user",
		CreatedAt:   now().Add(-time.Duration(i) * 2 * time.Hour).UTC().Truncate(time.Second),
		Score:       int(seed % 500),
		NumComments: int(seed>>9) % 80,
		UpvoteRatio: 0.5 + float64(seed%50)/100,
		Permalink:   fmt.Sprintf("%s/r/%s/comments/%s/", siteURL, sub, id),
		URL:         fmt.Sprintf("%s/r/%s/comments/%s/", siteURL, sub, id),
	}
}

func (mc *MockClient) wait(ctx context.Context) error {
	if mc.Latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(mc.Latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
