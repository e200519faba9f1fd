package kick

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/john/chatsift/internal/message"
)

func newTestConnector(t *testing.T) *Connector {
	t.Helper()
	return New("somechannel", StaticResolver{ChatroomID: 42}, zerolog.Nop())
}

// chatFrame builds a broker frame with the double-encoded data field, the way
// the wire actually delivers it.
func chatFrame(t *testing.T, payload map[string]any) []byte {
	t.Helper()

	inner, err := json.Marshal(payload)
	require.NoError(t, err)

	frame, err := json.Marshal(map[string]any{
		"event":   `App\Events\ChatMessageEvent`,
		"data":    string(inner),
		"channel": "chatrooms.42.v2",
	})
	require.NoError(t, err)

	return frame
}

func TestProcessFrameChatMessage(t *testing.T) {
	c := newTestConnector(t)

	_, msg := c.processFrame(chatFrame(t, map[string]any{
		"id":          "msg-1",
		"chatroom_id": 42,
		"content":     "Hello world check this out",
		"type":        "message",
		"created_at":  "2026-03-14T15:09:26+00:00",
		"sender": map[string]any{
			"id":       777,
			"username": "someuser",
			"slug":     "someuser",
			"identity": map[string]any{
				"color": "#ff0000",
				"badges": []map[string]any{
					{"type": "moderator", "text": "Moderator"},
					{"type": "og", "text": "OG"},
				},
			},
		},
	}))

	require.NotNil(t, msg)
	assert.Equal(t, message.PlatformKick, msg.Platform)
	assert.Equal(t, "somechannel", msg.Channel)
	assert.Equal(t, "someuser", msg.Username)
	assert.Equal(t, "Hello world check this out", msg.Text)
	assert.Equal(t, "777", msg.SenderID)
	assert.Equal(t, "someuser", msg.Slug)
	assert.Equal(t, []string{"moderator", "og"}, msg.Badges)
	assert.Equal(t, "msg-1", msg.MessageID)
	assert.Equal(t, 42, msg.ChatroomID)
	assert.Equal(t, time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC), msg.Timestamp)
}

func TestProcessFrameIgnoresOtherEvents(t *testing.T) {
	c := newTestConnector(t)

	frame := []byte(`{"event":"pusher:subscribe_succeeded","data":"{}","channel":"chatrooms.42.v2"}`)
	reply, msg := c.processFrame(frame)

	assert.Nil(t, reply)
	assert.Nil(t, msg)
}

func TestProcessFrameAnswersPing(t *testing.T) {
	c := newTestConnector(t)

	reply, msg := c.processFrame([]byte(`{"event":"pusher:ping","data":"{}"}`))

	assert.Nil(t, msg)
	require.NotNil(t, reply)
	assert.Contains(t, string(reply), "pusher:pong")
}

func TestProcessFrameDropsMalformed(t *testing.T) {
	c := newTestConnector(t)

	for _, frame := range [][]byte{
		[]byte(`not json`),
		[]byte(`{"event":"App\\Events\\ChatMessageEvent","data":{"content":"object not string"}}`),
		[]byte(`{"event":"App\\Events\\ChatMessageEvent","data":"also not json"}`),
	} {
		reply, msg := c.processFrame(frame)
		assert.Nil(t, reply, "frame %s", frame)
		assert.Nil(t, msg, "frame %s", frame)
	}
}

func TestSubscribeFrames(t *testing.T) {
	frames := subscribeFrames(42)
	require.Len(t, frames, 2)

	assert.JSONEq(t,
		`{"event":"pusher:subscribe","data":{"auth":"","channel":"chatrooms.42.v2"}}`,
		string(frames[0]))
	assert.JSONEq(t,
		`{"event":"pusher:subscribe","data":{"auth":"","channel":"channel.42"}}`,
		string(frames[1]))
}

func TestParseChannelDocument(t *testing.T) {
	body := `{"id":1,"slug":"someuser","chatroom":{"id":4242}}`

	id, slug, err := parseChannelDocument("someuser", body)
	require.NoError(t, err)
	assert.Equal(t, 4242, id)
	assert.Equal(t, "someuser", slug)
}

func TestParseChannelDocumentFailures(t *testing.T) {
	for name, body := range map[string]string{
		"not json":    "<html>blocked</html>",
		"no chatroom": `{"id":1,"slug":"someuser"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := parseChannelDocument("someuser", body)

			var resErr *ResolutionError
			require.ErrorAs(t, err, &resErr)
			assert.Equal(t, "someuser", resErr.Channel)
		})
	}
}

func TestStaticResolver(t *testing.T) {
	id, slug, err := StaticResolver{ChatroomID: 7}.Resolve(context.Background(), "somechannel")
	require.NoError(t, err)
	assert.Equal(t, 7, id)
	assert.Equal(t, "somechannel", slug)

	_, _, err = StaticResolver{}.Resolve(context.Background(), "somechannel")
	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
}

func TestResolutionErrorMessage(t *testing.T) {
	err := &ResolutionError{Channel: "somechannel", Err: fmt.Errorf("boom")}
	assert.Contains(t, err.Error(), "somechannel")
	assert.Contains(t, err.Error(), "boom")
}
