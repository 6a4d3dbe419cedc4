package parsing

import (
	"errors"
	"time"
)

// Supported export platforms.
const (
	PlatformWhatsApp = "whatsapp"
	PlatformIMessage = "imessage"
	PlatformGeneric  = "generic"
)

var (
	// ErrUnsupportedPlatform is returned for an unknown platform name.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	// ErrMalformed is returned when an export cannot be decoded at all.
	ErrMalformed = errors.New("malformed chat export")
)

// Message is one parsed chat line, timestamped in UTC.
type Message struct {
	Timestamp time.Time
	Sender    string
	Text      string
}

// Chat is a parsed export: participants sorted by name and messages sorted
// ascending by timestamp.
type Chat struct {
	Participants []string
	Messages     []Message
	Parser       string
}
