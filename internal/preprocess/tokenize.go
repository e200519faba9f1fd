package preprocess

import (
	"github.com/clipperhouse/uax29/iterators/filter"
	"github.com/clipperhouse/uax29/words"
)

// Tokenize splits text into word-level tokens by Unicode word boundaries
// (UAX #29) and removes stop-words. Token order is preserved;
// pure-punctuation segments are not tokens.
func Tokenize(text string) []string {
	seg := words.NewSegmenter([]byte(text))
	seg.Filter(filter.Wordlike)

	var tokens []string
	for seg.Next() {
		token := seg.Text()
		if _, stop := stopWords[token]; stop {
			continue
		}
		tokens = append(tokens, token)
	}

	return tokens
}
