package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/john/chatsift/internal/message"
	"github.com/john/chatsift/internal/preprocess"
)

func TestStdoutWritesOneJSONLine(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdout(&buf)

	rec := preprocess.Record{
		ID:            "rec-1",
		Platform:      message.PlatformTwitch,
		Channel:       "somechannel",
		Username:      "someuser",
		Message:       "Hello world check this out",
		MessageTokens: []string{"Hello", "world", "check"},
	}
	require.NoError(t, s.Accept(context.Background(), rec))

	var out preprocess.Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, rec.ID, out.ID)
	assert.Equal(t, rec.MessageTokens, out.MessageTokens)
}

type erroringSink struct{}

func (erroringSink) Accept(context.Context, preprocess.Record) error {
	return errors.New("sink on fire")
}

type countingSink struct{ n int }

func (s *countingSink) Accept(context.Context, preprocess.Record) error {
	s.n++
	return nil
}

func TestMultiDeliversPastFailures(t *testing.T) {
	counter := &countingSink{}
	m := Multi{erroringSink{}, counter}

	err := m.Accept(context.Background(), preprocess.Record{})

	assert.Error(t, err)
	assert.Equal(t, 1, counter.n)
}
