package features

import (
	"sort"
	"strings"
	"time"
)

// ConversationGap is the silence after which a message opens a new conversation.
const ConversationGap = 6 * time.Hour

// Extractor tags messages with sentiment and lexicon markers.
// It holds no per-run state and is safe for concurrent use.
type Extractor struct {
	lexicon   Lexicon
	sentiment SentimentScorer
}

// NewExtractor builds an extractor. A nil scorer falls back to the built-in
// lexicon sentiment scorer.
func NewExtractor(lex Lexicon, scorer SentimentScorer) *Extractor {
	if scorer == nil {
		scorer = NewLexiconSentiment()
	}
	return &Extractor{lexicon: lex.normalized(), sentiment: scorer}
}

// Extract tags each message independently, preserving order and length.
func (e *Extractor) Extract(msgs []Message) []Tagged {
	out := make([]Tagged, len(msgs))
	for i, m := range msgs {
		out[i] = e.tag(m)
	}
	return out
}

func (e *Extractor) tag(m Message) Tagged {
	lowered := strings.ToLower(m.Text)
	t := Tagged{
		Message:    m,
		Affection:  containsAny(lowered, e.lexicon.Affection),
		Avoidance:  containsAny(lowered, e.lexicon.Avoidance),
		Hedge:      containsAny(lowered, e.lexicon.Hedge),
		Boundary:   containsAny(lowered, e.lexicon.Boundary),
		FutureTalk: containsAny(lowered, e.lexicon.FutureTalk),
	}
	if m.Text != "" {
		t.Sentiment = e.sentiment.Score(m.Text)
	}
	return t
}

// SortChronological returns a copy of msgs ordered by timestamp. Ties keep
// their input order.
func SortChronological(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// SortTagged is SortChronological for tagged messages.
func SortTagged(msgs []Tagged) []Tagged {
	out := make([]Tagged, len(msgs))
	copy(out, msgs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// ConversationStarts returns the indices of messages that open a conversation:
// the first message, and any message arriving more than gap after the one
// before it. msgs must already be in chronological order.
func ConversationStarts(msgs []Tagged, gap time.Duration) []int {
	var starts []int
	for i, msg := range msgs {
		if i == 0 || msg.Timestamp.Sub(msgs[i-1].Timestamp) > gap {
			starts = append(starts, i)
		}
	}
	return starts
}
