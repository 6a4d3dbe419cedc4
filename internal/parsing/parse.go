// Package parsing turns exported chat logs into a normalized message stream.
package parsing

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// Parse decodes an export for platform. Naive timestamps are read in the
// IANA zone tz ("" means UTC).
func Parse(r io.Reader, platform, tz string) (*Chat, error) {
	loc, err := LoadLocation(tz)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(strings.TrimSpace(platform)) {
	case PlatformWhatsApp:
		return ParseWhatsApp(r, loc)
	case PlatformIMessage:
		return ParseIMessage(r, loc)
	case PlatformGeneric:
		return ParseGeneric(r, loc)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPlatform, platform)
	}
}

// LoadLocation resolves an IANA zone name, defaulting to UTC.
func LoadLocation(tz string) (*time.Location, error) {
	if strings.TrimSpace(tz) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	return loc, nil
}

// finish converts timestamps to UTC, sorts messages stably, and merges the
// declared participants with every sender seen.
func finish(parser string, declared []string, msgs []Message) *Chat {
	seen := make(map[string]bool)
	for _, p := range declared {
		seen[p] = true
	}
	for i := range msgs {
		msgs[i].Timestamp = msgs[i].Timestamp.UTC()
		seen[msgs[i].Sender] = true
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})

	participants := make([]string, 0, len(seen))
	for p := range seen {
		participants = append(participants, p)
	}
	sort.Strings(participants)

	return &Chat{Participants: participants, Messages: msgs, Parser: parser}
}
