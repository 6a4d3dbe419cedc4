package parsing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

type jsonExport struct {
	Participants []json.RawMessage `json:"participants"`
	Messages     []jsonRow         `json:"messages"`
}

type jsonRow struct {
	TS        json.RawMessage `json:"ts"`
	Timestamp json.RawMessage `json:"timestamp"`
	Date      json.RawMessage `json:"date"`
	Sender    json.RawMessage `json:"sender"`
	From      json.RawMessage `json:"from"`
	Text      json.RawMessage `json:"text"`
}

// isoLayouts are tried in order for string timestamps without an explicit
// RFC 3339 offset.
var isoLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseGeneric reads the generic JSON export:
// {"participants": [...], "messages": [{"ts", "sender", "text"}]}.
func ParseGeneric(r io.Reader, loc *time.Location) (*Chat, error) {
	export, err := decodeExport(r)
	if err != nil {
		return nil, err
	}

	var msgs []Message
	for _, row := range export.Messages {
		if isEmpty(row.TS) {
			continue
		}
		ts, err := parseJSONTime(row.TS, loc, false)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, Message{
			Timestamp: ts,
			Sender:    coerce(row.Sender, "unknown"),
			Text:      coerce(row.Text, ""),
		})
	}

	return finish("generic_json", declared(export.Participants), msgs), nil
}

// ParseIMessage reads an iMessage JSON export. Senders come from "sender" or
// "from"; timestamps from "ts", "timestamp" or "date", either epoch seconds
// or ISO 8601 strings.
func ParseIMessage(r io.Reader, loc *time.Location) (*Chat, error) {
	export, err := decodeExport(r)
	if err != nil {
		return nil, err
	}

	var msgs []Message
	for _, row := range export.Messages {
		raw := firstPresent(row.TS, row.Timestamp, row.Date)
		if raw == nil {
			continue
		}
		ts, err := parseJSONTime(raw, loc, true)
		if err != nil {
			return nil, err
		}
		sender := coerce(firstPresent(row.Sender, row.From), "unknown")
		msgs = append(msgs, Message{Timestamp: ts, Sender: sender, Text: coerce(row.Text, "")})
	}

	return finish("imessage_json", declared(export.Participants), msgs), nil
}

func decodeExport(r io.Reader) (*jsonExport, error) {
	var export jsonExport
	dec := json.NewDecoder(r)
	if err := dec.Decode(&export); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &export, nil
}

func declared(raw []json.RawMessage) []string {
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if s := coerce(p, ""); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func isEmpty(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) ||
		bytes.Equal(trimmed, []byte(`""`)) || bytes.Equal(trimmed, []byte("0")) ||
		bytes.Equal(trimmed, []byte("false"))
}

func firstPresent(values ...json.RawMessage) json.RawMessage {
	for _, v := range values {
		if !isEmpty(v) {
			return v
		}
	}
	return nil
}

// coerce renders a JSON scalar as text. Strings are unquoted; other values
// keep their JSON spelling.
func coerce(raw json.RawMessage, fallback string) string {
	if isEmpty(raw) {
		return fallback
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}

func parseJSONTime(raw json.RawMessage, loc *time.Location, allowEpoch bool) (time.Time, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		if !allowEpoch {
			return time.Time{}, fmt.Errorf("%w: timestamp %s is not a string", ErrMalformed, raw)
		}
		secs, err := strconv.ParseFloat(string(bytes.TrimSpace(raw)), 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: timestamp %s", ErrMalformed, raw)
		}
		whole, frac := math.Modf(secs)
		return time.Unix(int64(whole), int64(frac*1e9)).UTC(), nil
	}
	return parseISO(s, loc)
}

func parseISO(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	for _, layout := range isoLayouts {
		if strings.HasSuffix(layout, "Z07:00") {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, nil
			}
			continue
		}
		if ts, err := time.ParseInLocation(layout, s, loc); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparseable timestamp %q", ErrMalformed, s)
}
