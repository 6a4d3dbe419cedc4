// Package moments groups detector evidence into time-bounded, ranked
// "moments of ambiguity" for human review.
package moments

import (
	"sort"
	"time"

	"github.com/MikeSquared-Agency/mixsig/internal/detectors"
	"github.com/MikeSquared-Agency/mixsig/internal/features"
)

const (
	// DefaultTopN is used when the caller passes a non-positive top-N.
	DefaultTopN = 5

	windowPadding = 2 * time.Hour
	maxExcerpts   = 4
	excerptRunes  = 220
)

// Moment is one detector's evidence window.
type Moment struct {
	Label              string    `json:"label"`
	WindowStart        time.Time `json:"window_start"`
	WindowEnd          time.Time `json:"window_end"`
	DetectorsTriggered []string  `json:"detectors_triggered"`
	EvidenceIDs        []string  `json:"evidence_ids"`
	Excerpts           []Excerpt `json:"excerpts"`
}

// Excerpt is a truncated evidence message shown with a moment.
type Excerpt struct {
	MessageID  string    `json:"message_id"`
	Sender     string    `json:"sender"`
	TS         time.Time `json:"ts"`
	TextPrefix string    `json:"text_prefix,omitempty"`
}

var labels = map[string]string{
	detectors.InitiationImbalance:            "Initiation mismatch",
	detectors.ResponseLatencyAsymmetry:       "Response delay gap",
	detectors.WarmColdCycles:                 "Warm-cold flip",
	detectors.BoundarySettingLanguage:        "Boundary-setting pattern",
	detectors.UnresolvedFutureTalk:           "Plan suggested then dropped",
	detectors.AffectionDistanceContradiction: "Affection-distance contradiction",
}

// Label returns the human-readable label for a detector name.
func Label(detector string) string {
	if l, ok := labels[detector]; ok {
		return l
	}
	return detector
}

// Build emits one moment per detector with resolvable evidence, ranked by
// evidence count (descending, stable) and truncated to topN. Windows from
// different detectors are never merged, even when they overlap.
func Build(msgs []features.Tagged, results []detectors.Result, topN int) []Moment {
	if topN <= 0 {
		topN = DefaultTopN
	}

	byID := make(map[string]features.Tagged, len(msgs))
	for _, m := range msgs {
		byID[m.ID] = m
	}

	out := make([]Moment, 0, len(results))
	for _, r := range results {
		var evidence []features.Tagged
		for _, id := range r.EvidenceIDs {
			if m, ok := byID[id]; ok {
				evidence = append(evidence, m)
			}
		}
		if len(evidence) == 0 {
			continue
		}
		evidence = features.SortTagged(evidence)

		ids := make([]string, len(evidence))
		for i, m := range evidence {
			ids[i] = m.ID
		}

		excerpts := make([]Excerpt, 0, maxExcerpts)
		for _, m := range evidence[:min(maxExcerpts, len(evidence))] {
			excerpts = append(excerpts, Excerpt{
				MessageID:  m.ID,
				Sender:     m.SenderName,
				TS:         m.Timestamp.UTC(),
				TextPrefix: Truncate(m.Text, excerptRunes),
			})
		}

		out = append(out, Moment{
			Label:              Label(r.Name),
			WindowStart:        evidence[0].Timestamp.Add(-windowPadding).UTC(),
			WindowEnd:          evidence[len(evidence)-1].Timestamp.Add(windowPadding).UTC(),
			DetectorsTriggered: []string{r.Name},
			EvidenceIDs:        ids,
			Excerpts:           excerpts,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return len(out[i].EvidenceIDs) > len(out[j].EvidenceIDs)
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
