// Package timeline aggregates engagement metrics over a chronologically
// ordered message stream. Metrics are recomputed in full on every run.
package timeline

import (
	"fmt"
	"sort"
	"time"

	"github.com/MikeSquared-Agency/mixsig/internal/features"
)

// engagementWindow is the number of messages in each rolling sentiment window.
const engagementWindow = 10

// Metrics is the aggregate timeline for one upload. The zero value marshals
// to an empty JSON object.
type Metrics struct {
	MessagesPerDay    map[string]int           `json:"messages_per_day,omitempty"`
	MessagesPerWeek   map[string]int           `json:"messages_per_week,omitempty"`
	ResponseTimeStats map[string]ResponseStats `json:"response_time_stats,omitempty"`
	InitiationCounts  map[string]int           `json:"initiation_counts,omitempty"`
	Streaks           *Streaks                 `json:"streaks,omitempty"`
	EngagementShifts  []EngagementShift        `json:"engagement_shifts,omitempty"`
}

// ResponseStats summarises one sender's reply latency in minutes.
type ResponseStats struct {
	AvgMinutes    float64 `json:"avg_minutes"`
	MedianMinutes float64 `json:"median_minutes"`
	Count         int     `json:"count"`
}

// Streaks holds day-continuity statistics.
type Streaks struct {
	LongestDailyStreak int `json:"longest_daily_streak"`
}

// EngagementShift is one rolling window of message sentiment.
type EngagementShift struct {
	EndTS        time.Time `json:"end_ts"`
	AvgSentiment float64   `json:"avg_sentiment"`
	MessageCount int       `json:"message_count"`
}

// Build computes the timeline metrics. Input is sorted chronologically
// before aggregation; an empty input yields zero-value Metrics.
func Build(msgs []features.Tagged) Metrics {
	if len(msgs) == 0 {
		return Metrics{}
	}
	sorted := features.SortTagged(msgs)

	perDay := make(map[string]int)
	initiations := make(map[string]int)
	latencies := make(map[string][]float64)
	var shifts []EngagementShift

	for _, idx := range features.ConversationStarts(sorted, features.ConversationGap) {
		initiations[sorted[idx].SenderName]++
	}

	for i, msg := range sorted {
		perDay[dayKey(msg.Timestamp)]++

		if i > 0 && sorted[i-1].SenderID != msg.SenderID {
			minutes := msg.Timestamp.Sub(sorted[i-1].Timestamp).Minutes()
			latencies[msg.SenderName] = append(latencies[msg.SenderName], minutes)
		}

		if i >= engagementWindow-1 {
			window := sorted[i-engagementWindow+1 : i+1]
			var sum float64
			for _, w := range window {
				sum += w.Sentiment
			}
			shifts = append(shifts, EngagementShift{
				EndTS:        msg.Timestamp,
				AvgSentiment: sum / float64(len(window)),
				MessageCount: len(window),
			})
		}
	}

	return Metrics{
		MessagesPerDay:    perDay,
		MessagesPerWeek:   byWeek(perDay),
		ResponseTimeStats: responseStats(latencies),
		InitiationCounts:  initiations,
		Streaks:           &Streaks{LongestDailyStreak: longestStreak(perDay)},
		EngagementShifts:  shifts,
	}
}

func dayKey(ts time.Time) string {
	return ts.UTC().Format(time.DateOnly)
}

func byWeek(perDay map[string]int) map[string]int {
	weekly := make(map[string]int)
	for day, count := range perDay {
		d, err := time.Parse(time.DateOnly, day)
		if err != nil {
			continue
		}
		year, week := d.ISOWeek()
		weekly[fmt.Sprintf("%d-W%02d", year, week)] += count
	}
	return weekly
}

func responseStats(latencies map[string][]float64) map[string]ResponseStats {
	stats := make(map[string]ResponseStats, len(latencies))
	for sender, values := range latencies {
		if len(values) == 0 {
			continue
		}
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)
		var sum float64
		for _, v := range sorted {
			sum += v
		}
		stats[sender] = ResponseStats{
			AvgMinutes:    sum / float64(len(sorted)),
			MedianMinutes: sorted[len(sorted)/2],
			Count:         len(sorted),
		}
	}
	return stats
}

func longestStreak(perDay map[string]int) int {
	if len(perDay) == 0 {
		return 0
	}
	days := make([]string, 0, len(perDay))
	for d := range perDay {
		days = append(days, d)
	}
	sort.Strings(days)

	longest, current := 1, 1
	prev, _ := time.Parse(time.DateOnly, days[0])
	for _, day := range days[1:] {
		d, err := time.Parse(time.DateOnly, day)
		if err != nil {
			continue
		}
		if d.Sub(prev) == 24*time.Hour {
			current++
			if current > longest {
				longest = current
			}
		} else {
			current = 1
		}
		prev = d
	}
	return longest
}
