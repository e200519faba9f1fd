package preprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsBotKnownAccounts(t *testing.T) {
	for _, name := range []string{
		"nightbot", "streamelements", "streamlabs", "moobot",
		"commanderroot", "pretzelrocks", "streamcaptainapp", "BotRix",
		"fossabot",
	} {
		assert.True(t, IsBot(name), "expected %q to be a bot", name)
	}
}

func TestIsBotIsCaseSensitive(t *testing.T) {
	assert.False(t, IsBot("Nightbot"))
	assert.False(t, IsBot("botrix"))
	assert.False(t, IsBot("someuser"))
	assert.False(t, IsBot(""))
}

func TestHasEmote(t *testing.T) {
	assert.True(t, HasEmote("[emote:37226:KEKW]"))
	assert.True(t, HasEmote("nice play [emote:37226:KEKW] lol"))
	assert.False(t, HasEmote("no emotes here"))
	assert.False(t, HasEmote("[emote:abc:KEKW]"))
	assert.False(t, HasEmote("[emote:123]"))
}

func TestHasMinWordsBoundary(t *testing.T) {
	assert.True(t, HasMinWords("one two three four", 4))
	assert.False(t, HasMinWords("one two three", 4))
	assert.True(t, HasMinWords("  padded   whitespace   still four  words", 4))
}

func TestHasMinChars(t *testing.T) {
	assert.False(t, HasMinChars("gm", 3))
	assert.True(t, HasMinChars("gm!", 3))
	assert.True(t, HasMinChars("héllo", 3))
}

func TestRemoveURLs(t *testing.T) {
	assert.Equal(t, "check  out", RemoveURLs("check https://example.com/x out"))
	assert.Equal(t, "see  now", RemoveURLs("see www.example.com now"))
	assert.Equal(t, "no links here", RemoveURLs("no links here"))
}

func TestRemoveURLsIsIdempotent(t *testing.T) {
	inputs := []string{
		"check https://example.com/x out",
		"http://a.example and www.b.example together",
		"plain text",
	}
	for _, in := range inputs {
		once := RemoveURLs(in)
		assert.Equal(t, once, RemoveURLs(once), "input %q", in)
	}
}
