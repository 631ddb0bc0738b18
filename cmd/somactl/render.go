package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"soma/internal/domain"
)

var (
	headerStyle      = lipgloss.NewStyle().Bold(true)
	improvementStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10b981"))
	regressionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#ef4444"))
	neutralStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3af"))
)

const (
	idWidth     = 6
	dateWidth   = 12
	metricWidth = 16
)

func trendStyle(t domain.Trend) lipgloss.Style {
	switch t {
	case domain.TrendImprovement:
		return improvementStyle
	case domain.TrendRegression:
		return regressionStyle
	default:
		return neutralStyle
	}
}

func signed(v float64) string {
	return fmt.Sprintf("%+.1f", v)
}

func cell(s string, width int) string {
	return lipgloss.NewStyle().Width(width).Render(s)
}

func metricHeader(metrics []domain.Metric) string {
	var b strings.Builder
	for _, m := range metrics {
		info := m.Info()
		b.WriteString(cell(fmt.Sprintf("%s (%s)", info.Label, info.Unit), metricWidth))
	}
	return b.String()
}

// renderHistory prints one line per entry, newest first, with each value
// followed by its colored change against the previous entry.
func renderHistory(w io.Writer, rows []domain.HistoryRow) {
	fmt.Fprintln(w, headerStyle.Render(cell("ID", idWidth)+cell("DATE", dateWidth)+metricHeader(domain.Metrics)))
	for _, row := range rows {
		var b strings.Builder
		b.WriteString(cell(fmt.Sprintf("#%d", row.Measurement.ID), idWidth))
		b.WriteString(cell(row.Measurement.Date, dateWidth))
		for _, m := range domain.Metrics {
			text := fmt.Sprintf("%.1f", m.Value(row.Measurement))
			if d := row.Deltas[m]; d.Valid {
				text += " " + trendStyle(d.Trend).Render("("+signed(d.Value)+")")
			}
			b.WriteString(cell(text, metricWidth))
		}
		fmt.Fprintln(w, b.String())
	}
}

// renderSeries prints an ascending series as a plain table.
func renderSeries(w io.Writer, points []domain.Measurement, metrics []domain.Metric, unit string) {
	header := cell("DATE", dateWidth)
	for _, m := range metrics {
		info := m.Info()
		u := info.Unit
		if m == domain.MetricWeight {
			u = unit
		}
		header += cell(fmt.Sprintf("%s (%s)", info.Label, u), metricWidth)
	}
	fmt.Fprintln(w, headerStyle.Render(header))
	for _, p := range points {
		line := cell(p.Date, dateWidth)
		for _, m := range metrics {
			line += cell(fmt.Sprintf("%.1f", m.Value(p)), metricWidth)
		}
		fmt.Fprintln(w, line)
	}
}

func renderSummary(w io.Writer, s *domain.Summary) {
	fmt.Fprintf(w, "%s %s to %s\n", headerStyle.Render("Progress"), s.Since, s.Current)
	for _, c := range s.Changes {
		info := c.Metric.Info()
		fmt.Fprintf(w, "  %s%s\n",
			cell(info.Label, 10),
			trendStyle(c.Trend).Render(fmt.Sprintf("%s %s  %s", signed(c.Diff), info.Unit, c.Trend)),
		)
	}
}
