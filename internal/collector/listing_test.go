package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/qepting91/reddit-top/internal/domain"
)

type pageCall struct {
	limit int
	after string
}

// scriptedSource serves pre-built pages in order and records every call.
type scriptedSource struct {
	pages []domain.Page
	errAt int
	err   error
	calls []pageCall
}

func (s *scriptedSource) FetchNewPage(ctx context.Context, community string, limit int, after string) (domain.Page, error) {
	s.calls = append(s.calls, pageCall{limit: limit, after: after})
	i := len(s.calls) - 1
	if s.err != nil && i == s.errAt {
		return domain.Page{}, s.err
	}
	if i >= len(s.pages) {
		return domain.Page{}, nil
	}
	return s.pages[i], nil
}

func (s *scriptedSource) FetchPost(ctx context.Context, community, id string) (domain.Post, error) {
	return domain.Post{}, domain.ErrPostNotFound
}

func makePage(from, n int, after string) domain.Page {
	p := domain.Page{After: after}
	for i := from; i < from+n; i++ {
		p.Posts = append(p.Posts, domain.Post{ID: fmt.Sprintf("p%d", i), CreatedAt: time.Unix(int64(10000-i), 0)})
	}
	return p
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFetchRecentPaginatesWithCursor(t *testing.T) {
	src := &scriptedSource{pages: []domain.Page{
		makePage(0, 3, "t3_p2"),
		makePage(3, 3, "t3_p5"),
		makePage(6, 3, "t3_p8"),
	}}
	f := NewFetcher(src, quietLogger()).WithPageSize(3)

	posts, err := f.FetchRecent(context.Background(), "golang", 7)
	if err != nil {
		t.Fatalf("FetchRecent: %v", err)
	}
	if len(posts) != 7 {
		t.Fatalf("got %d posts; want 7", len(posts))
	}
	want := []pageCall{{3, ""}, {3, "t3_p2"}, {1, "t3_p5"}}
	if len(src.calls) != len(want) {
		t.Fatalf("calls = %+v; want %+v", src.calls, want)
	}
	for i := range want {
		if src.calls[i] != want[i] {
			t.Fatalf("call %d = %+v; want %+v", i, src.calls[i], want[i])
		}
	}
	for _, p := range posts {
		if p.Community != "golang" {
			t.Fatalf("community not filled in: %+v", p)
		}
	}
}

func TestFetchRecentStopsOnShortPage(t *testing.T) {
	src := &scriptedSource{pages: []domain.Page{
		makePage(0, 3, "t3_p2"),
		makePage(3, 2, "t3_p4"),
		makePage(5, 3, "t3_p7"),
	}}
	f := NewFetcher(src, quietLogger()).WithPageSize(3)

	posts, err := f.FetchRecent(context.Background(), "golang", 100)
	if err != nil {
		t.Fatalf("FetchRecent: %v", err)
	}
	if len(posts) != 5 || len(src.calls) != 2 {
		t.Fatalf("posts=%d calls=%d; want 5 posts from 2 pages", len(posts), len(src.calls))
	}
}

func TestFetchRecentStopsWithoutCursor(t *testing.T) {
	src := &scriptedSource{pages: []domain.Page{makePage(0, 3, ""), makePage(3, 3, "x")}}
	f := NewFetcher(src, quietLogger()).WithPageSize(3)

	posts, err := f.FetchRecent(context.Background(), "golang", 100)
	if err != nil {
		t.Fatalf("FetchRecent: %v", err)
	}
	if len(posts) != 3 || len(src.calls) != 1 {
		t.Fatalf("posts=%d calls=%d; want a single page", len(posts), len(src.calls))
	}
}

func TestFetchRecentDropsDuplicateIDs(t *testing.T) {
	second := makePage(2, 3, "")
	second.Posts[0].ID = "p1" // repeats the last post of page one
	second.Posts[0].Title = "duplicate"
	src := &scriptedSource{pages: []domain.Page{makePage(0, 3, "t3_p2"), second}}
	f := NewFetcher(src, quietLogger()).WithPageSize(3)

	posts, err := f.FetchRecent(context.Background(), "golang", 100)
	if err != nil {
		t.Fatalf("FetchRecent: %v", err)
	}
	if len(posts) != 5 {
		t.Fatalf("got %d posts; want 5 after dropping the duplicate", len(posts))
	}
	for _, p := range posts {
		if p.Title == "duplicate" {
			t.Fatalf("the first occurrence must win, got %+v", p)
		}
	}
}

func TestFetchRecentStopsOnRepeatedCursor(t *testing.T) {
	src := &replayingSource{page: makePage(0, 3, "t3_same")}
	f := NewFetcher(src, quietLogger()).WithPageSize(3)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	posts, err := f.FetchRecent(ctx, "golang", 100)
	if err != nil {
		t.Fatalf("FetchRecent: %v", err)
	}
	if len(posts) != 3 {
		t.Fatalf("got %d posts; want the 3 from the replayed page", len(posts))
	}
	// first page, then the replay that adds nothing
	if src.calls != 2 {
		t.Fatalf("calls = %d; want 2", src.calls)
	}
}

func TestFetchRecentStopsOnPageOfSeenPosts(t *testing.T) {
	src := &scriptedSource{pages: []domain.Page{
		makePage(0, 3, "t3_p2"),
		makePage(0, 3, "t3_p9"),
		makePage(3, 3, "t3_p5"),
	}}
	f := NewFetcher(src, quietLogger()).WithPageSize(3)

	posts, err := f.FetchRecent(context.Background(), "golang", 100)
	if err != nil {
		t.Fatalf("FetchRecent: %v", err)
	}
	if len(posts) != 3 || len(src.calls) != 2 {
		t.Fatalf("posts=%d calls=%d; want 3 posts from 2 pages", len(posts), len(src.calls))
	}
}

func TestFetchRecentChecksContextBetweenPages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &replayingSource{page: makePage(0, 3, "t3_next"), onCall: cancel}
	f := NewFetcher(src, quietLogger()).WithPageSize(3)

	posts, err := f.FetchRecent(ctx, "golang", 100)
	if !errors.Is(err, context.Canceled) || posts != nil {
		t.Fatalf("posts=%v err=%v; want nil and context.Canceled", posts, err)
	}
	if src.calls != 1 {
		t.Fatalf("calls = %d; want no request after cancellation", src.calls)
	}
}

// replayingSource ignores the cursor and serves the same page every time.
type replayingSource struct {
	page   domain.Page
	onCall func()
	calls  int
}

func (s *replayingSource) FetchNewPage(ctx context.Context, community string, limit int, after string) (domain.Page, error) {
	s.calls++
	if s.onCall != nil {
		s.onCall()
	}
	return s.page, nil
}

func (s *replayingSource) FetchPost(ctx context.Context, community, id string) (domain.Post, error) {
	return domain.Post{}, domain.ErrPostNotFound
}

func TestFetchRecentKeepsPartialResultOnNetworkFailure(t *testing.T) {
	src := &scriptedSource{
		pages: []domain.Page{makePage(0, 3, "t3_p2")},
		errAt: 1,
		err:   fmt.Errorf("r/golang: %w: connection reset", domain.ErrNetworkFailure),
	}
	f := NewFetcher(src, quietLogger()).WithPageSize(3)

	posts, err := f.FetchRecent(context.Background(), "golang", 100)
	if !errors.Is(err, domain.ErrNetworkFailure) {
		t.Fatalf("err = %v; want ErrNetworkFailure", err)
	}
	if len(posts) != 3 {
		t.Fatalf("got %d posts; want the 3 from the first page", len(posts))
	}
}

func TestFetchRecentCommunityUnavailable(t *testing.T) {
	src := &scriptedSource{errAt: 0, err: fmt.Errorf("r/gone: %w: status 404", domain.ErrCommunityUnavailable)}
	f := NewFetcher(src, quietLogger())

	posts, err := f.FetchRecent(context.Background(), "gone", 100)
	if !errors.Is(err, domain.ErrCommunityUnavailable) {
		t.Fatalf("err = %v; want ErrCommunityUnavailable", err)
	}
	if len(posts) != 0 {
		t.Fatalf("got %d posts for an unavailable community", len(posts))
	}
}

func TestFetchRecentCancelledDiscardsPosts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &cancellingSource{cancel: cancel}
	f := NewFetcher(src, quietLogger()).WithPageSize(3)

	posts, err := f.FetchRecent(ctx, "golang", 100)
	if !errors.Is(err, context.Canceled) || posts != nil {
		t.Fatalf("posts=%v err=%v; want nil and context.Canceled", posts, err)
	}
}

type cancellingSource struct {
	cancel func()
	n      int
}

func (s *cancellingSource) FetchNewPage(ctx context.Context, community string, limit int, after string) (domain.Page, error) {
	s.n++
	if s.n == 2 {
		s.cancel()
		return domain.Page{}, ctx.Err()
	}
	return makePage(0, limit, "t3_next"), nil
}

func (s *cancellingSource) FetchPost(ctx context.Context, community, id string) (domain.Post, error) {
	return domain.Post{}, nil
}

func TestFetchRecentAgainstMock(t *testing.T) {
	mc := &MockClient{PerCommunity: 230, Now: time.Now}
	f := NewFetcher(mc, quietLogger())

	posts, err := f.FetchRecent(context.Background(), "golang", 250)
	if err != nil {
		t.Fatalf("FetchRecent: %v", err)
	}
	if len(posts) != 230 {
		t.Fatalf("got %d posts; want the whole mock feed of 230", len(posts))
	}
	for i := 1; i < len(posts); i++ {
		if posts[i].CreatedAt.After(posts[i-1].CreatedAt) {
			t.Fatalf("posts not newest-first at %d", i)
		}
	}
}
