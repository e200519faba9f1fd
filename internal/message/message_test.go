package message

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJSONRoundTrip(t *testing.T) {
	in := Message{
		Platform:   PlatformKick,
		Channel:    "somechannel",
		Username:   "someuser",
		Text:       "hello from the other side",
		Timestamp:  time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC),
		SenderID:   "123456",
		Slug:       "someuser",
		Badges:     []string{"moderator", "og"},
		MessageID:  "a1b2c3",
		ChatroomID: 424242,
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out Message
	require.NoError(t, json.Unmarshal(data, &out))
	require.Equal(t, in, out)
}

func TestOptionalFieldsOmitted(t *testing.T) {
	in := Message{
		Platform:  PlatformTwitch,
		Channel:   "somechannel",
		Username:  "someuser",
		Text:      "hi",
		Timestamp: time.Now().UTC(),
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)

	require.NotContains(t, string(data), "sender_id")
	require.NotContains(t, string(data), "badges")
	require.NotContains(t, string(data), "chatroom_id")
}
