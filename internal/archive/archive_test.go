package archive

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/john/chatsift/internal/message"
	"github.com/john/chatsift/internal/preprocess"
)

func testRecord(id string) preprocess.Record {
	return preprocess.Record{
		ID:            id,
		Platform:      message.PlatformTwitch,
		Channel:       "somechannel",
		Username:      "someuser",
		Message:       "Hello world check this out",
		MessageTokens: []string{"Hello", "world", "check"},
		Timestamp:     time.Now().UTC(),
	}
}

func TestRecordsLandAsJSONLines(t *testing.T) {
	dir := t.TempDir()
	a := New(dir, 10, 60, 100, zerolog.Nop())
	require.NoError(t, os.MkdirAll(dir, 0755))

	fileChan := make(chan string, 10)

	require.NoError(t, a.record(testRecord("rec-1")))
	require.NoError(t, a.record(testRecord("rec-2")))
	a.flushAll(fileChan)

	path := <-fileChan
	assert.Contains(t, filepath.Base(path), "twitch_somechannel_")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec preprocess.Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		ids = append(ids, rec.ID)
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, []string{"rec-1", "rec-2"}, ids)
}

func TestBufferFlushesWhenFull(t *testing.T) {
	dir := t.TempDir()
	a := New(dir, 2, 60, 100, zerolog.Nop())

	require.NoError(t, a.record(testRecord("rec-1")))
	require.NoError(t, a.record(testRecord("rec-2")))

	// Buffer size reached: both records must already be on disk.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), "rec-1")
	assert.Contains(t, string(data), "rec-2")
}

func TestSeparateFilesPerPlatform(t *testing.T) {
	dir := t.TempDir()
	a := New(dir, 1, 60, 100, zerolog.Nop())

	twitchRec := testRecord("rec-1")
	kickRec := testRecord("rec-2")
	kickRec.Platform = message.PlatformKick

	require.NoError(t, a.record(twitchRec))
	require.NoError(t, a.record(kickRec))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
