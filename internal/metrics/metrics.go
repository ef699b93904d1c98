// Package metrics holds the prometheus collectors of the service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/qepting91/reddit-top/internal/budget"
	"github.com/qepting91/reddit-top/internal/domain"
)

type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequests   *prometheus.CounterVec
	LookupDuration *prometheus.HistogramVec
	PipelineRuns   *prometheus.CounterVec
	CommunityPosts *prometheus.GaugeVec
	CommunityFails *prometheus.CounterVec
}

// New registers every collector on a private registry. b may be nil.
func New(b *budget.Budget) *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reddit_top_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "status"}),
		LookupDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reddit_top_lookup_duration_seconds",
			Help:    "Resolve-and-fetch latency by outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		PipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reddit_top_pipeline_runs_total",
			Help: "Pipeline runs by status.",
		}, []string{"status"}),
		CommunityPosts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "reddit_top_community_posts",
			Help: "Posts per community in the last run, by view.",
		}, []string{"community", "view"}),
		CommunityFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reddit_top_community_failures_total",
			Help: "Per-community fetch failures by error kind.",
		}, []string{"kind"}),
	}
	m.Registry.MustRegister(m.HTTPRequests, m.LookupDuration, m.PipelineRuns, m.CommunityPosts, m.CommunityFails)

	if b != nil {
		m.Registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "reddit_top_rate_budget_remaining",
			Help: "Remaining upstream request allowance, -1 while unknown.",
		}, func() float64 {
			s := b.Snapshot()
			if !s.Known {
				return -1
			}
			return float64(s.Remaining)
		}))
	}
	return m
}

// ObserveLookup matches lookup.Observer.
func (m *Metrics) ObserveLookup(d time.Duration, kind string) {
	if kind == "" {
		kind = "ok"
	}
	m.LookupDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveResult matches the pipeline result hook.
func (m *Metrics) ObserveResult(res domain.CommunityResult) {
	m.CommunityPosts.WithLabelValues(res.Community, "raw").Set(float64(len(res.Raw)))
	m.CommunityPosts.WithLabelValues(res.Community, "ranked").Set(float64(len(res.Ranked)))
	m.CommunityPosts.WithLabelValues(res.Community, "recent").Set(float64(len(res.Recent)))
	if res.ErrorKind != "" {
		m.CommunityFails.WithLabelValues(res.ErrorKind).Inc()
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
