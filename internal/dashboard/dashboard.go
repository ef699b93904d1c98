// Package dashboard renders a pipeline Report as an HTML page of charts.
package dashboard

import (
	"io"
	"math"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	"github.com/qepting91/reddit-top/internal/domain"
	"github.com/qepting91/reddit-top/internal/ranking"
)

const day = 24 * time.Hour

// Activity windows shown on the recent activity chart.
var activityWindows = []struct {
	label  string
	window time.Duration
}{
	{"Last 24h", day},
	{"Last 7 days", 7 * day},
	{"Last 30 days", 30 * day},
}

// Render writes the dashboard for report to w. now anchors the activity windows.
func Render(w io.Writer, report domain.Report, now time.Time) error {
	page := components.NewPage()
	page.AddCharts(
		engagementChart(report),
		shareChart(report),
		activityChart(report, now),
	)
	return page.Render(w)
}

// 1. Ranked engagement per community
func engagementChart(report domain.Report) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Top Engagement",
			Subtitle: "Best and average engagement score of the ranked view",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)

	var names []string
	var best, avg []opts.BarData
	for _, res := range report.Results {
		names = append(names, res.Community)
		var top, sum float64
		for i, p := range res.Ranked {
			if i == 0 {
				top = p.EngagementScore
			}
			sum += p.EngagementScore
		}
		mean := 0.0
		if n := len(res.Ranked); n > 0 {
			mean = sum / float64(n)
		}
		best = append(best, opts.BarData{Value: round1(top)})
		avg = append(avg, opts.BarData{Value: round1(mean)})
	}
	bar.SetXAxis(names).
		AddSeries("Top post", best).
		AddSeries("Ranked average", avg)
	return bar
}

// 2. Share of windowed posts per community
func shareChart(report domain.Report) *charts.Pie {
	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros}),
		charts.WithTitleOpts(opts.Title{Title: "Community Share"}),
	)

	var items []opts.PieData
	for _, res := range report.Results {
		if len(res.Recent) == 0 {
			continue
		}
		items = append(items, opts.PieData{Name: res.Community, Value: len(res.Recent)})
	}
	pie.AddSeries("Posts", items)
	return pie
}

// 3. Posts per community over the day, week and month windows
func activityChart(report domain.Report, now time.Time) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros}),
		charts.WithTitleOpts(opts.Title{Title: "Recent Activity"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)

	var names []string
	for _, res := range report.Results {
		names = append(names, res.Community)
	}
	bar.SetXAxis(names)
	for _, aw := range activityWindows {
		data := make([]opts.BarData, 0, len(report.Results))
		for _, res := range report.Results {
			data = append(data, opts.BarData{Value: len(ranking.RecentWithin(res.Recent, aw.window, 0, now))})
		}
		bar.AddSeries(aw.label, data)
	}
	return bar
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
