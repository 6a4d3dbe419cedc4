package features

import "time"

// Message is a single normalized chat message handed to the pipeline.
type Message struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"ts"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Text       string    `json:"text"`
}

// Tagged is a Message plus the per-message markers derived from its text.
type Tagged struct {
	Message

	Sentiment  float64 `json:"sentiment"` // compound score in [-1, 1]
	Affection  bool    `json:"affection"`
	Avoidance  bool    `json:"avoidance"`
	Hedge      bool    `json:"hedge"`
	Boundary   bool    `json:"boundary"`
	FutureTalk bool    `json:"future_talk"`
}
