package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/MikeSquared-Agency/mixsig/internal/analysis"
)

const barWidth = 20

var (
	colorAccent = lipgloss.Color("#7C3AED")
	colorMuted  = lipgloss.Color("#6C7086")
	colorWarn   = lipgloss.Color("#F9E2AF")
	colorHigh   = lipgloss.Color("#F38BA8")
	colorLow    = lipgloss.Color("#A6E3A1")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	headingStyle = lipgloss.NewStyle().Bold(true).MarginTop(1)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorAccent).Padding(0, 1)
	nameStyle    = lipgloss.NewStyle().Width(36)
)

func indexColor(index float64) lipgloss.Color {
	switch {
	case index >= 60:
		return colorHigh
	case index >= 30:
		return colorWarn
	default:
		return colorLow
	}
}

func bar(score float64) string {
	filled := int(score*barWidth + 0.5)
	filled = max(0, min(barWidth, filled))
	return strings.Repeat("█", filled) + mutedStyle.Render(strings.Repeat("░", barWidth-filled))
}

func renderReport(r analysis.Report) string {
	var b strings.Builder

	header := fmt.Sprintf("%s\n%s %s   %s %.2f",
		titleStyle.Render("Mixed-signal report"),
		mutedStyle.Render("index"),
		lipgloss.NewStyle().Bold(true).Foreground(indexColor(r.MixedSignalIndex)).Render(fmt.Sprintf("%.1f/100", r.MixedSignalIndex)),
		mutedStyle.Render("confidence"),
		r.Confidence,
	)
	b.WriteString(boxStyle.Render(header))
	b.WriteString("\n\n")
	b.WriteString(r.SummaryText)
	b.WriteString("\n")

	if len(r.Detectors) > 0 {
		b.WriteString(headingStyle.Render("Detectors"))
		b.WriteString("\n")
		for _, d := range r.Detectors {
			line := fmt.Sprintf("%s %s %.3f", nameStyle.Render(d.Name), bar(d.Score), d.Score)
			if sub, ok := r.SubScores[d.Name]; ok {
				line += mutedStyle.Render(fmt.Sprintf("  weight %.1f", sub.Weight))
			}
			b.WriteString(line + "\n")
			if d.Explanation != "" {
				b.WriteString("  " + mutedStyle.Render(d.Explanation) + "\n")
			}
		}
	}

	m := r.TimelineMetrics
	if len(m.InitiationCounts) > 0 || len(m.ResponseTimeStats) > 0 {
		b.WriteString(headingStyle.Render("Participants"))
		b.WriteString("\n")
		for _, name := range participantNames(r) {
			line := fmt.Sprintf("%s started %d conversation(s)", nameStyle.Render(name), m.InitiationCounts[name])
			if rs, ok := m.ResponseTimeStats[name]; ok {
				line += fmt.Sprintf(", median reply %.1f min over %d replies", rs.MedianMinutes, rs.Count)
			}
			b.WriteString(line + "\n")
		}
		if m.Streaks != nil {
			b.WriteString(mutedStyle.Render(fmt.Sprintf("longest daily streak: %d day(s)", m.Streaks.LongestDailyStreak)) + "\n")
		}
	}

	if len(r.MomentsOfAmbiguity) > 0 {
		b.WriteString(headingStyle.Render("Moments of ambiguity"))
		b.WriteString("\n")
		for i, mo := range r.MomentsOfAmbiguity {
			fmt.Fprintf(&b, "%d. %s %s\n", i+1, lipgloss.NewStyle().Bold(true).Render(mo.Label),
				mutedStyle.Render(fmt.Sprintf("(%s to %s, %d message(s))",
					mo.WindowStart.Format(time.DateTime), mo.WindowEnd.Format(time.DateTime), len(mo.EvidenceIDs))))
			for _, ex := range mo.Excerpts {
				fmt.Fprintf(&b, "   %s %s: %s\n", mutedStyle.Render(ex.TS.Format(time.DateTime)), ex.Sender, ex.TextPrefix)
			}
		}
	}

	return b.String()
}

func participantNames(r analysis.Report) []string {
	seen := make(map[string]bool)
	for name := range r.TimelineMetrics.InitiationCounts {
		seen[name] = true
	}
	for name := range r.TimelineMetrics.ResponseTimeStats {
		seen[name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
