package parsing

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
)

var whatsAppLine = regexp.MustCompile(`^(\d{1,2}[/-]\d{1,2}[/-]\d{2,4}),\s(\d{1,2}:\d{2})(?:\s?([APMapm]{2}))?\s-\s([^:]+):\s(.*)$`)

// Month-first layouts are tried before day-first ones.
var (
	whatsApp24h = []string{"1/2/06 15:04", "2/1/06 15:04", "1/2/2006 15:04", "2/1/2006 15:04"}
	whatsApp12h = []string{"1/2/06 3:04 PM", "2/1/06 3:04 PM", "1/2/2006 3:04 PM", "2/1/2006 3:04 PM"}
)

// ParseWhatsApp reads a WhatsApp .txt export. Lines that do not start a
// message are appended to the previous message; leading lines before the
// first message are dropped.
func ParseWhatsApp(r io.Reader, loc *time.Location) (*Chat, error) {
	var msgs []Message

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		m := whatsAppLine.FindStringSubmatch(line)
		if m == nil {
			if n := len(msgs); n > 0 {
				msgs[n-1].Text = strings.TrimSpace(msgs[n-1].Text + "\n" + line)
			}
			continue
		}

		ts, err := parseWhatsAppTime(m[1], m[2], m[3], loc)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, Message{
			Timestamp: ts,
			Sender:    strings.TrimSpace(m[4]),
			Text:      strings.TrimSpace(m[5]),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan whatsapp export: %w", err)
	}

	return finish("whatsapp_txt", nil, msgs), nil
}

func parseWhatsAppTime(date, clock, ampm string, loc *time.Location) (time.Time, error) {
	date = strings.ReplaceAll(date, "-", "/")
	raw := date + " " + clock
	layouts := whatsApp24h
	if ampm != "" {
		raw += " " + strings.ToUpper(ampm)
		layouts = whatsApp12h
	}
	for _, layout := range layouts {
		if ts, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparseable whatsapp timestamp %q", ErrMalformed, raw)
}
