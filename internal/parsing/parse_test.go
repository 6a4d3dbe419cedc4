package parsing

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const whatsAppExport = `Messages and calls are end-to-end encrypted.
1/15/24, 9:05 PM - Alex: hey, want to get dinner friday?
1/15/24, 9:40 PM - Sam: maybe, kinda busy
still not sure about the weekend
1/16/24, 8:00 AM - Alex: ok let me know ❤️
`

func TestParseWhatsApp_12Hour(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	chat, err := Parse(strings.NewReader(whatsAppExport), "WhatsApp", "America/New_York")
	require.NoError(t, err)

	assert.Equal(t, "whatsapp_txt", chat.Parser)
	assert.Equal(t, []string{"Alex", "Sam"}, chat.Participants)
	require.Len(t, chat.Messages, 3)

	first := chat.Messages[0]
	assert.Equal(t, time.Date(2024, 1, 15, 21, 5, 0, 0, ny).UTC(), first.Timestamp)
	assert.Equal(t, time.UTC, first.Timestamp.Location())
	assert.Equal(t, "Alex", first.Sender)
	assert.Equal(t, "maybe, kinda busy\nstill not sure about the weekend", chat.Messages[1].Text)
}

func TestParseWhatsApp_24HourDayFirst(t *testing.T) {
	export := "25/12/2023, 18:30 - Jo: merry christmas\n26-12-2023, 07:15 - Kim: you too\n"

	chat, err := ParseWhatsApp(strings.NewReader(export), time.UTC)
	require.NoError(t, err)

	require.Len(t, chat.Messages, 2)
	assert.Equal(t, time.Date(2023, 12, 25, 18, 30, 0, 0, time.UTC), chat.Messages[0].Timestamp)
	assert.Equal(t, time.Date(2023, 12, 26, 7, 15, 0, 0, time.UTC), chat.Messages[1].Timestamp)
}

func TestParseWhatsApp_SortsOutOfOrderLines(t *testing.T) {
	export := "2/1/24, 10:00 - B: second\n1/1/24, 10:00 - A: first\n"

	chat, err := ParseWhatsApp(strings.NewReader(export), time.UTC)
	require.NoError(t, err)

	assert.Equal(t, "first", chat.Messages[0].Text)
}

func TestParseWhatsApp_BadTimestamp(t *testing.T) {
	_, err := ParseWhatsApp(strings.NewReader("13/13/24, 10:00 - A: hi\n"), time.UTC)
	assert.True(t, errors.Is(err, ErrMalformed), "got %v", err)
}

func TestParseIMessage(t *testing.T) {
	export := `{
		"participants": ["Me"],
		"messages": [
			{"from": "Riley", "text": "you up?", "date": "2024-03-01T23:10:00"},
			{"sender": "Me", "text": "yes", "timestamp": 1709334660},
			{"sender": "Riley", "text": 42, "ts": "2024-03-01T22:00:00Z"},
			{"sender": "Ghost", "text": "no time"}
		]
	}`
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	chat, err := Parse(strings.NewReader(export), PlatformIMessage, "Europe/Berlin")
	require.NoError(t, err)

	assert.Equal(t, "imessage_json", chat.Parser)
	assert.Equal(t, []string{"Me", "Riley"}, chat.Participants)
	require.Len(t, chat.Messages, 3)
	assert.Equal(t, "42", chat.Messages[0].Text, "non-string text is coerced")
	assert.Equal(t, time.Date(2024, 3, 1, 23, 10, 0, 0, berlin).UTC(), chat.Messages[1].Timestamp)
	assert.Equal(t, time.Unix(1709334660, 0).UTC(), chat.Messages[2].Timestamp)
}

func TestParseGeneric(t *testing.T) {
	export := `{
		"participants": ["A", "B", "Silent"],
		"messages": [
			{"ts": "2024-05-02T10:00:00+02:00", "sender": "B", "text": "later"},
			{"ts": "2024-05-01 09:00:00", "sender": "A", "text": "morning"},
			{"ts": "", "sender": "A", "text": "dropped"},
			{"ts": "2024-05-03T10:00:00Z", "text": "who?"}
		]
	}`

	chat, err := Parse(strings.NewReader(export), "generic", "")
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "Silent", "unknown"}, chat.Participants)
	require.Len(t, chat.Messages, 3)
	assert.Equal(t, time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC), chat.Messages[0].Timestamp)
	assert.Equal(t, time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC), chat.Messages[1].Timestamp)
	assert.Equal(t, "unknown", chat.Messages[2].Sender)
}

func TestParseGeneric_RejectsEpoch(t *testing.T) {
	_, err := Parse(strings.NewReader(`{"messages":[{"ts": 1700000000, "sender": "A"}]}`), "generic", "")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse(strings.NewReader("{}"), "telegram", "")
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)

	_, err = Parse(strings.NewReader("{not json"), "generic", "")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Parse(strings.NewReader("{}"), "generic", "Mars/Olympus_Mons")
	assert.Error(t, err)
}
