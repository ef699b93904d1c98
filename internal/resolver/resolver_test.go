package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/qepting91/reddit-top/internal/budget"
	"github.com/qepting91/reddit-top/internal/domain"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want domain.PostReference
	}{
		{"https://www.reddit.com/r/test/comments/abc123/some-title/", domain.PostByID("test", "abc123")},
		{"https://old.reddit.com/r/golang/comments/1abcdef/", domain.PostByID("golang", "1abcdef")},
		{"reddit.com/r/golang/comments/1abcdef", domain.PostByID("golang", "1abcdef")},
		{"https://www.reddit.com/r/test/comments/abc123/title/?utm_source=share", domain.PostByID("test", "abc123")},
		{"https://www.reddit.com/comments/abc123/", domain.PostByID("", "abc123")},
		{"https://redd.it/abc123", domain.PostByID("", "abc123")},
		{"https://www.reddit.com/r/test/s/xyz789", domain.PostByShortCode("test", "xyz789")},
		{"https://www.reddit.com/r/test/s/1AbCdEfGhI", domain.PostByShortCode("test", "1AbCdEfGhI")},
		{"https://www.reddit.com/r/golang/", domain.CommunityOnly("golang")},
		{"https://reddit.com/r/golang/top", domain.CommunityOnly("golang")},
	}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			if got := Parse(c.in); got != c.want {
				t.Fatalf("Parse(%q) = %+v; want %+v", c.in, got, c.want)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{
		"",
		"not a url",
		"https://example.com/r/test/comments/abc123/",
		"https://redd.it/",
		"https://redd.it/AB",
		"https://www.reddit.com/user/someone",
		"https://www.reddit.com/r/test/comments/",
		"https://www.reddit.com/r/test/s/",
		"ftp://reddit.com/r/test/comments/abc123/",
		"https://www.reddit.com/r/bad-name/comments/abc123/",
	} {
		if got := Parse(in); got.Kind != domain.RefInvalid {
			t.Fatalf("Parse(%q) = %+v; want invalid", in, got)
		}
	}
}

func TestResolveWithoutNetwork(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()
	r := New("test", nil, WithBaseURL(srv.URL))

	ref, err := r.ResolveString(context.Background(), "https://www.reddit.com/r/test/comments/abc123/some-title/")
	if err != nil || ref != domain.PostByID("test", "abc123") {
		t.Fatalf("ref=%+v err=%v", ref, err)
	}
	again, err := r.Resolve(context.Background(), ref)
	if err != nil || again != ref {
		t.Fatalf("resolving a canonical ref must be the identity, got %+v %v", again, err)
	}

	if _, err := r.ResolveString(context.Background(), "https://www.reddit.com/r/golang/"); !errors.Is(err, domain.ErrNotAPost) {
		t.Fatalf("err = %v; want ErrNotAPost", err)
	}
	if _, err := r.ResolveString(context.Background(), "garbage"); !errors.Is(err, domain.ErrUnrecognizedFormat) {
		t.Fatalf("err = %v; want ErrUnrecognizedFormat", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("made %d requests; want none", hits.Load())
	}
}

func TestResolveShareLinkSingleHop(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/r/test/s/xyz789" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Location", "https://www.reddit.com/r/test/comments/abc123/some_title/?share_id=q")
		w.WriteHeader(http.StatusMovedPermanently)
	}))
	defer srv.Close()
	r := New("test", budget.New(budget.Options{}), WithBaseURL(srv.URL))

	ref, err := r.ResolveString(context.Background(), "https://www.reddit.com/r/test/s/xyz789")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ref != domain.PostByID("test", "abc123") {
		t.Fatalf("ref = %+v", ref)
	}
	if hits.Load() != 1 {
		t.Fatalf("made %d requests; want exactly one", hits.Load())
	}
}

func TestResolveShareLinkChain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/r/test/s/first1":
			http.Redirect(w, r, "/r/test/s/second2", http.StatusFound)
		case "/r/test/s/second2":
			http.Redirect(w, r, "/r/test/comments/def456/", http.StatusFound)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	r := New("test", nil, WithBaseURL(srv.URL))

	ref, err := r.Resolve(context.Background(), domain.PostByShortCode("test", "first1"))
	if err != nil || ref != domain.PostByID("test", "def456") {
		t.Fatalf("ref=%+v err=%v", ref, err)
	}
}

func TestResolveTooManyHops(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		http.Redirect(w, r, fmt.Sprintf("/r/test/s/hop%04d", n), http.StatusFound)
	}))
	defer srv.Close()
	r := New("test", nil, WithBaseURL(srv.URL), WithMaxHops(3))

	ref, err := r.ResolveString(context.Background(), "https://www.reddit.com/r/test/s/start1")
	if !errors.Is(err, domain.ErrRedirectLoop) {
		t.Fatalf("err = %v; want ErrRedirectLoop", err)
	}
	if ref.Kind == domain.RefPostByID {
		t.Fatalf("must not guess an id, got %+v", ref)
	}
	if hits.Load() != 3 {
		t.Fatalf("made %d requests; want the hop bound of 3", hits.Load())
	}
}

func TestResolveRedirectCycle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/r/test/s/aaaa1" {
			http.Redirect(w, r, "/r/test/s/bbbb2", http.StatusFound)
			return
		}
		http.Redirect(w, r, "/r/test/s/aaaa1", http.StatusFound)
	}))
	defer srv.Close()
	r := New("test", nil, WithBaseURL(srv.URL))

	if _, err := r.ResolveString(context.Background(), "https://www.reddit.com/r/test/s/aaaa1"); !errors.Is(err, domain.ErrRedirectLoop) {
		t.Fatalf("err = %v; want ErrRedirectLoop", err)
	}
}

func TestResolveShareLinkFailures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{"not found", func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) }, domain.ErrPostNotFound},
		{"no redirect", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }, domain.ErrUnrecognizedFormat},
		{"off-site", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "https://example.com/login", http.StatusFound)
		}, domain.ErrUnrecognizedFormat},
		{"to community", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/r/test/", http.StatusFound)
		}, domain.ErrNotAPost},
		{"server error", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) }, domain.ErrNetworkFailure},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			srv := httptest.NewServer(c.handler)
			defer srv.Close()
			r := New("test", nil, WithBaseURL(srv.URL))
			if _, err := r.ResolveString(context.Background(), "https://www.reddit.com/r/test/s/xyz789"); !errors.Is(err, c.want) {
				t.Fatalf("err = %v; want %v", err, c.want)
			}
		})
	}
}

func TestResolveChargesBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/r/test/comments/abc123/", http.StatusFound)
	}))
	defer srv.Close()
	b := budget.New(budget.Options{MaxWait: 20 * time.Millisecond})
	b.Observe(0, time.Now().Add(time.Hour))
	r := New("test", b, WithBaseURL(srv.URL))

	if _, err := r.ResolveString(context.Background(), "https://www.reddit.com/r/test/s/xyz789"); !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("err = %v; want ErrRateLimited", err)
	}
}

func TestResolveRejectedHopExhaustsBudget(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()
	b := budget.New(budget.Options{MaxWait: 20 * time.Millisecond})
	r := New("test", b, WithBaseURL(srv.URL))

	if _, err := r.ResolveString(context.Background(), "https://www.reddit.com/r/test/s/xyz789"); !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("err = %v; want ErrRateLimited", err)
	}
	st := b.Snapshot()
	if !st.Known || st.Remaining != 0 {
		t.Fatalf("budget = %+v; want exhausted after a 429", st)
	}
	if until := time.Until(st.ResetAt); until < 25*time.Second || until > 31*time.Second {
		t.Fatalf("reset in %s; want about 30s from Retry-After", until)
	}

	// the next lookup waits on the budget instead of hitting the upstream
	if _, err := r.ResolveString(context.Background(), "https://www.reddit.com/r/test/s/abc999"); !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("err = %v; want ErrRateLimited", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("upstream hit %d times; want 1", hits.Load())
	}
}
