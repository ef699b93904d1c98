package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/qepting91/reddit-top/internal/domain"
	"github.com/qepting91/reddit-top/internal/storage"
)

var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#7C3AED")).
		MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#3B82F6"))

	boxStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#3B82F6")).
		Padding(0, 1)

	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	rankStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Width(4)
)

func renderReport(report domain.Report) string {
	var sections []string
	raw, windowed, ranked := report.Totals()
	sections = append(sections, titleStyle.Render(fmt.Sprintf(
		"Top posts, last %d days (%d collected, %d in window, %d ranked)",
		report.WindowDays, raw, windowed, ranked)))

	for _, res := range report.Results {
		var b strings.Builder
		b.WriteString(headerStyle.Render("r/" + res.Community))
		if res.ErrorKind != "" {
			b.WriteString("  " + errStyle.Render(res.ErrorKind))
		}
		b.WriteString("\n")
		if len(res.Ranked) == 0 {
			b.WriteString(dimStyle.Render("no posts in window"))
		}
		for i, p := range res.Ranked {
			if i > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "%s%s %s", rankStyle.Render(fmt.Sprintf("%d.", i+1)),
				truncate(p.Title, 70),
				dimStyle.Render(fmt.Sprintf("(%.1f, %d pts, %d comments)", p.EngagementScore, p.Score, p.NumComments)))
		}
		sections = append(sections, boxStyle.Render(b.String()))
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func renderCommunities(names []string) string {
	if len(names) == 0 {
		return dimStyle.Render("no communities tracked")
	}
	lines := make([]string, len(names))
	for i, n := range names {
		lines[i] = "r/" + n
	}
	return boxStyle.Render(headerStyle.Render(fmt.Sprintf("%d communities", len(names))) + "\n" + strings.Join(lines, "\n"))
}

func renderHistory(records []storage.RunRecord) string {
	if len(records) == 0 {
		return dimStyle.Render("no runs recorded yet")
	}
	success := 0
	lines := make([]string, 0, len(records))
	for _, r := range records {
		status := okStyle.Render("● " + r.Status)
		if r.Status != storage.StatusSuccess {
			status = errStyle.Render("● " + r.Status)
		} else {
			success++
		}
		line := fmt.Sprintf("%s  %-9s %s  %6.1fs  raw=%d ranked=%d",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Command, status,
			r.DurationSeconds, r.Metrics["raw"], r.Metrics["ranked"])
		if r.Error != "" {
			line += "  " + dimStyle.Render(truncate(r.Error, 60))
		}
		lines = append(lines, line)
	}
	header := headerStyle.Render(fmt.Sprintf("%d runs, %d ok, %d failed", len(records), success, len(records)-success))
	return boxStyle.Render(header + "\n" + strings.Join(lines, "\n"))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
