package preprocess

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Quality gates: a message needs at least this many whitespace-separated
// words and this many characters to be worth keeping.
const (
	MinWords = 4
	MinChars = 3
)

// knownBots are chat-bot accounts whose messages are dropped unconditionally.
// Matching is exact and case-sensitive.
var knownBots = map[string]struct{}{
	"nightbot":         {},
	"streamelements":   {},
	"streamlabs":       {},
	"moobot":           {},
	"commanderroot":    {},
	"pretzelrocks":     {},
	"streamcaptainapp": {},
	"BotRix":           {},
	"fossabot":         {},
}

var (
	urlPattern   = regexp.MustCompile(`https?://\S+|www\.\S+`)
	emotePattern = regexp.MustCompile(`\[emote:\d+:\w+\]`)
)

// IsBot reports whether username is one of the known chat-bot accounts.
func IsBot(username string) bool {
	_, ok := knownBots[username]
	return ok
}

// HasEmote reports whether text contains an inline emote marker of the form
// [emote:<digits>:<name>].
func HasEmote(text string) bool {
	return emotePattern.MatchString(text)
}

// HasMinWords reports whether text splits into at least min
// whitespace-separated words.
func HasMinWords(text string, min int) bool {
	return len(strings.Fields(text)) >= min
}

// HasMinChars reports whether text is at least min characters long.
func HasMinChars(text string, min int) bool {
	return utf8.RuneCountInString(text) >= min
}

// RemoveURLs strips every http(s) and www URL from text. Idempotent.
func RemoveURLs(text string) string {
	return urlPattern.ReplaceAllString(text, "")
}
