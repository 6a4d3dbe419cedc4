package llm

import (
	"slices"
	"strings"
)

// DefaultHighlights is the number of highlights kept on a report.
const DefaultHighlights = 10

var (
	slowReplyKeywords = []string{"reply", "latency", "delay", "response"}
	redFlagKeywords   = []string{"boundary", "contradiction", "unresolved", "red flag", "distance", "warm-cold", "warm cold"}
	delayTagKeywords  = []string{"slow", "delay", "latency"}
)

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// signalType classifies a signal by its name.
func signalType(name string) string {
	n := strings.ToLower(name)
	switch {
	case containsAny(n, slowReplyKeywords):
		return HighlightSlowReply
	case containsAny(n, redFlagKeywords):
		return HighlightRedFlag
	default:
		return HighlightMixedSignal
	}
}

func timelineHighlightType(t string) string {
	if t == TimelineCool {
		return HighlightSlowReply
	}
	return HighlightMixedSignal
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// BuildHighlights derives highlights from signal evidence, falling back to
// the timeline when no signal carries an excerpt. Red flags come first.
func BuildHighlights(a Assessment, topN int) []Highlight {
	if topN <= 0 {
		topN = DefaultHighlights
	}

	var all []Highlight
	for _, sig := range a.Signals {
		for _, ev := range sig.Evidence {
			if strings.TrimSpace(ev.Excerpt) == "" {
				continue
			}
			all = append(all, Highlight{
				Type:      signalType(sig.Name),
				Label:     orDefault(sig.Name, "Signal evidence"),
				Timestamp: ev.Timestamp,
				Sender:    orDefault(ev.Sender, "Unknown"),
				Excerpt:   ev.Excerpt,
				Tags:      []string{},
			})
		}
	}

	if len(all) == 0 {
		for _, item := range a.Timeline {
			if len(all) == topN {
				break
			}
			all = append(all, Highlight{
				Type:      timelineHighlightType(item.Type),
				Label:     "Timeline evidence",
				Timestamp: item.Timestamp,
				Sender:    "Unknown",
				Excerpt:   item.Message,
				Tags:      append([]string{}, item.Tags...),
			})
		}
	}

	out := make([]Highlight, 0, min(topN, len(all)))
	for _, h := range all {
		if h.Type == HighlightRedFlag && len(out) < topN {
			out = append(out, h)
		}
	}
	for _, h := range all {
		if h.Type != HighlightRedFlag && len(out) < topN {
			out = append(out, h)
		}
	}
	return out
}

// Enrich attaches highlights to the report and keeps stats consistent with
// them: a reply-delay asymmetry gets a slow-reply highlight when the
// timeline can supply one, otherwise the ratio is reset to parity.
func Enrich(a Assessment, topN int) Report {
	if topN <= 0 {
		topN = DefaultHighlights
	}
	highlights := BuildHighlights(a, topN)

	hasSlow := func() bool {
		return slices.ContainsFunc(highlights, func(h Highlight) bool { return h.Type == HighlightSlowReply })
	}

	if a.Stats.ReplyDelayRatio >= 1 && !hasSlow() {
		for _, item := range a.Timeline {
			if strings.TrimSpace(item.Message) == "" {
				continue
			}
			if item.Type != TimelineCool && !containsAny(strings.ToLower(strings.Join(item.Tags, " ")), delayTagKeywords) {
				continue
			}
			tags := item.Tags
			if len(tags) > 3 {
				tags = tags[:3]
			}
			synth := Highlight{
				Type:      HighlightSlowReply,
				Label:     "Reply delay asymmetry",
				Timestamp: item.Timestamp,
				Sender:    "Unknown",
				Excerpt:   item.Message,
				Tags:      append([]string{}, tags...),
			}
			highlights = append([]Highlight{synth}, highlights...)
			break
		}
	}
	if !hasSlow() {
		a.Stats.ReplyDelayRatio = 1.0
	}

	if len(highlights) > topN {
		highlights = highlights[:topN]
	}
	red := 0
	for _, h := range highlights {
		if h.Type == HighlightRedFlag {
			red++
		}
	}
	a.Stats.RedFlags = red

	return Report{Assessment: a, Highlights: highlights}
}
