package twitch

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/john/chatsift/internal/message"
)

func newTestConnector(t *testing.T) *Connector {
	t.Helper()
	return New("somechannel", zerolog.Nop())
}

func TestProcessLinePing(t *testing.T) {
	c := newTestConnector(t)

	reply, msg := c.processLine("PING :tmi.twitch.tv")

	assert.Equal(t, "PONG", reply)
	assert.Nil(t, msg)
}

func TestProcessLineChatMessage(t *testing.T) {
	c := newTestConnector(t)

	line := ":someuser!someuser@someuser.tmi.twitch.tv PRIVMSG #somechannel :Hello world check this out"
	reply, msg := c.processLine(line)

	assert.Empty(t, reply)
	require.NotNil(t, msg)
	assert.Equal(t, message.PlatformTwitch, msg.Platform)
	assert.Equal(t, "somechannel", msg.Channel)
	assert.Equal(t, "someuser", msg.Username)
	assert.Equal(t, "Hello world check this out", msg.Text)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestProcessLineTaggedChatMessage(t *testing.T) {
	c := newTestConnector(t)

	line := "@badges=moderator/1,subscriber/12;display-name=SomeUser;user-id=4242 " +
		":someuser!someuser@someuser.tmi.twitch.tv PRIVMSG #somechannel :tagged hello"
	reply, msg := c.processLine(line)

	assert.Empty(t, reply)
	require.NotNil(t, msg)
	assert.Equal(t, "4242", msg.SenderID)
	assert.ElementsMatch(t, []string{"moderator", "subscriber"}, msg.Badges)
}

func TestProcessLineIgnoresOtherTraffic(t *testing.T) {
	c := newTestConnector(t)

	for _, line := range []string{
		":tmi.twitch.tv 001 justinfan123 :Welcome, GLHF!",
		":someuser!someuser@someuser.tmi.twitch.tv JOIN #somechannel",
		":tmi.twitch.tv CAP * ACK :twitch.tv/tags",
		"garbage that is not irc at all",
	} {
		reply, msg := c.processLine(line)
		assert.Empty(t, reply, "line %q", line)
		assert.Nil(t, msg, "line %q", line)
	}
}

func TestGuestNickIsRandomizedGuest(t *testing.T) {
	c := newTestConnector(t)
	assert.Regexp(t, `^justinfan\d+$`, c.nick)
}
