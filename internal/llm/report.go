package llm

import (
	"fmt"
	"strings"
	"time"
)

const maxTimelineItems = 10

// Timeline entry types.
const (
	TimelineWarm  = "warm"
	TimelineCool  = "cool"
	TimelineMixed = "mixed"
)

// Highlight types.
const (
	HighlightRedFlag     = "red_flag"
	HighlightSlowReply   = "slow_reply"
	HighlightMixedSignal = "mixed_signal"
)

// Assessment is the part of the report the model produces.
type Assessment struct {
	MixedSignalIndex int            `json:"mixed_signal_index" jsonschema:"description=Integer from 0 to 100"`
	Confidence       float64        `json:"confidence" jsonschema:"description=Number from 0 to 1"`
	Summary          string         `json:"summary"`
	Timeline         []TimelineItem `json:"timeline" jsonschema:"description=At most 10 items in chronological order"`
	Stats            Stats          `json:"stats"`
	Signals          []Signal       `json:"signals"`
}

type TimelineItem struct {
	Timestamp string   `json:"timestamp" jsonschema:"description=ISO 8601 timestamp of the message"`
	Message   string   `json:"message" jsonschema:"description=Direct excerpt of the message text"`
	Tags      []string `json:"tags"`
	Type      string   `json:"type" jsonschema:"enum=warm,enum=cool,enum=mixed"`
}

type Stats struct {
	InitiationPercent float64 `json:"initiation_percent" jsonschema:"description=Percent of conversations started by the first participant"`
	ReplyDelayRatio   float64 `json:"reply_delay_ratio" jsonschema:"description=Slower responder's median reply time divided by the faster one's"`
	RedFlags          int     `json:"red_flags"`
}

type Signal struct {
	Name        string     `json:"name"`
	Score       float64    `json:"score" jsonschema:"description=Number from 0 to 1"`
	Explanation string     `json:"explanation"`
	Evidence    []Evidence `json:"evidence"`
}

type Evidence struct {
	Timestamp string `json:"timestamp"`
	Excerpt   string `json:"excerpt" jsonschema:"description=Direct quote from the message text"`
	Sender    string `json:"sender"`
}

// Highlight is a UI-facing moment derived from signals and timeline.
type Highlight struct {
	Type      string   `json:"type"`
	Label     string   `json:"label"`
	Timestamp string   `json:"timestamp"`
	Sender    string   `json:"sender"`
	Excerpt   string   `json:"excerpt"`
	Tags      []string `json:"tags"`
}

// Report is a validated model assessment plus derived highlights.
type Report struct {
	Assessment
	Highlights []Highlight `json:"highlights"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func normalizeTimestamp(s string) (string, bool) {
	t, ok := parseTimestamp(s)
	if !ok {
		return "", false
	}
	return t.UTC().Format(time.RFC3339), true
}

// Validate checks range and enum constraints the schema cannot express and
// normalises timestamps to RFC 3339 UTC.
func (a *Assessment) Validate() error {
	var problems []string
	addf := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if a.MixedSignalIndex < 0 || a.MixedSignalIndex > 100 {
		addf("mixed_signal_index %d out of range", a.MixedSignalIndex)
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		addf("confidence %v out of range", a.Confidence)
	}
	if strings.TrimSpace(a.Summary) == "" {
		addf("summary is empty")
	}
	if len(a.Timeline) > maxTimelineItems {
		addf("timeline has %d items", len(a.Timeline))
	}
	for i := range a.Timeline {
		item := &a.Timeline[i]
		switch item.Type {
		case TimelineWarm, TimelineCool, TimelineMixed:
		default:
			addf("timeline[%d].type %q invalid", i, item.Type)
		}
		ts, ok := normalizeTimestamp(item.Timestamp)
		if !ok {
			addf("timeline[%d].timestamp %q invalid", i, item.Timestamp)
		}
		item.Timestamp = ts
		if item.Tags == nil {
			item.Tags = []string{}
		}
	}
	if a.Stats.InitiationPercent < 0 || a.Stats.InitiationPercent > 100 {
		addf("stats.initiation_percent %v out of range", a.Stats.InitiationPercent)
	}
	if a.Stats.ReplyDelayRatio < 0 {
		addf("stats.reply_delay_ratio %v negative", a.Stats.ReplyDelayRatio)
	}
	if a.Stats.RedFlags < 0 {
		addf("stats.red_flags %d negative", a.Stats.RedFlags)
	}
	for i := range a.Signals {
		sig := &a.Signals[i]
		if strings.TrimSpace(sig.Name) == "" {
			addf("signals[%d].name is empty", i)
		}
		if sig.Score < 0 || sig.Score > 1 {
			addf("signals[%d].score %v out of range", i, sig.Score)
		}
		for j := range sig.Evidence {
			ev := &sig.Evidence[j]
			ts, ok := normalizeTimestamp(ev.Timestamp)
			if !ok {
				addf("signals[%d].evidence[%d].timestamp %q invalid", i, j, ev.Timestamp)
			}
			ev.Timestamp = ts
		}
		if sig.Evidence == nil {
			sig.Evidence = []Evidence{}
		}
	}
	if a.Timeline == nil {
		a.Timeline = []TimelineItem{}
	}
	if a.Signals == nil {
		a.Signals = []Signal{}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidReport, strings.Join(problems, "; "))
	}
	return nil
}
