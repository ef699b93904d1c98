package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/qepting91/reddit-top/internal/budget"
	"github.com/qepting91/reddit-top/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBudgetGauge(t *testing.T) {
	b := budget.New(budget.Options{})
	m := New(b)

	body := scrape(t, m)
	assert.Contains(t, body, "reddit_top_rate_budget_remaining -1")

	b.Observe(42, time.Now().Add(time.Minute))
	assert.Contains(t, scrape(t, m), "reddit_top_rate_budget_remaining 42")
}

func TestObserveResult(t *testing.T) {
	m := New(nil)
	m.ObserveResult(domain.CommunityResult{Community: "golang", Raw: make([]domain.Post, 3), Ranked: make([]domain.ScoredPost, 2)})
	m.ObserveResult(domain.CommunityResult{Community: "missing", ErrorKind: "community_unavailable"})

	body := scrape(t, m)
	assert.Contains(t, body, `reddit_top_community_posts{community="golang",view="raw"} 3`)
	assert.Contains(t, body, `reddit_top_community_posts{community="golang",view="ranked"} 2`)
	assert.Contains(t, body, `reddit_top_community_failures_total{kind="community_unavailable"} 1`)
}

func TestObserveLookup(t *testing.T) {
	m := New(nil)
	m.ObserveLookup(10*time.Millisecond, "")
	m.ObserveLookup(10*time.Millisecond, "not_a_post")
	body := scrape(t, m)
	assert.Contains(t, body, `reddit_top_lookup_duration_seconds_count{outcome="ok"} 1`)
	assert.Contains(t, body, `reddit_top_lookup_duration_seconds_count{outcome="not_a_post"} 1`)
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return strings.TrimSpace(rec.Body.String())
}
