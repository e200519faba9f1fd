package archive

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/john/chatsift/internal/observability"
	"github.com/john/chatsift/internal/preprocess"
)

// fileWriter manages a single JSONL file.
type fileWriter struct {
	file         *os.File
	writer       *bufio.Writer
	createdAt    time.Time
	bytesWritten int64
	buffer       []preprocess.Record
	platform     string
	channel      string
	filename     string
}

// Archive buffers cleaned records and writes them to rotating JSONL files,
// one file per platform and channel. Rotated files are announced on a file
// channel so a shipper can pick them up. This is the feed the offline
// topic-modeling job consumes.
type Archive struct {
	outputDir       string
	bufferSize      int
	rotateMinutes   int
	rotateMegabytes int64
	logger          zerolog.Logger

	records chan preprocess.Record

	currentFiles map[string]*fileWriter // key: "platform_channel"
	mu           sync.Mutex
}

// New creates a new archive writing under outputDir.
func New(outputDir string, bufferSize, rotateMinutes, rotateMegabytes int, logger zerolog.Logger) *Archive {
	return &Archive{
		outputDir:       outputDir,
		bufferSize:      bufferSize,
		rotateMinutes:   rotateMinutes,
		rotateMegabytes: int64(rotateMegabytes) * 1024 * 1024,
		logger:          logger.With().Str("component", "archive").Logger(),
		records:         make(chan preprocess.Record, bufferSize),
		currentFiles:    make(map[string]*fileWriter),
	}
}

// Accept implements preprocess.Sink by queueing the record for the archive
// loop. Records arriving after shutdown are dropped; the archive is
// best-effort like everything downstream of the bus.
func (a *Archive) Accept(ctx context.Context, rec preprocess.Record) error {
	select {
	case a.records <- rec:
		observability.RecordsEmitted.WithLabelValues("archive").Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run writes queued records until ctx is cancelled, announcing every rotated
// file on fileChan. Open files are flushed, closed and announced on every
// exit path.
func (a *Archive) Run(ctx context.Context, fileChan chan<- string) error {
	if err := os.MkdirAll(a.outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case rec := <-a.records:
			if err := a.record(rec); err != nil {
				a.logger.Error().Err(err).Msg("record write failed")
			}

		case <-ticker.C:
			a.checkRotation(fileChan)

		case <-ctx.Done():
			a.logger.Info().Msg("archive shutting down, flushing")
			a.flushAll(fileChan)
			return ctx.Err()
		}
	}
}

// record buffers a single record, flushing when the buffer fills.
func (a *Archive) record(rec preprocess.Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := fmt.Sprintf("%s_%s", strings.ToLower(string(rec.Platform)), rec.Channel)
	fw := a.currentFiles[key]

	if fw == nil {
		var err error
		fw, err = a.createFileWriter(strings.ToLower(string(rec.Platform)), rec.Channel)
		if err != nil {
			return fmt.Errorf("create file writer: %w", err)
		}
		a.currentFiles[key] = fw
	}

	fw.buffer = append(fw.buffer, rec)

	if len(fw.buffer) >= a.bufferSize {
		if err := a.flushFileWriter(fw); err != nil {
			return fmt.Errorf("flush buffer: %w", err)
		}
	}

	return nil
}

func (a *Archive) createFileWriter(platform, channel string) (*fileWriter, error) {
	timestamp := time.Now().UTC().Format("20060102_1504")
	filename := fmt.Sprintf("%s_%s_%s.jsonl", platform, channel, timestamp)

	file, err := os.Create(filepath.Join(a.outputDir, filename))
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	a.logger.Info().Str("file", filename).Msg("opened new archive file")

	return &fileWriter{
		file:      file,
		writer:    bufio.NewWriter(file),
		createdAt: time.Now(),
		buffer:    make([]preprocess.Record, 0, a.bufferSize),
		platform:  platform,
		channel:   channel,
		filename:  filename,
	}, nil
}

// flushFileWriter writes buffered records to disk.
func (a *Archive) flushFileWriter(fw *fileWriter) error {
	for _, rec := range fw.buffer {
		data, err := json.Marshal(rec)
		if err != nil {
			a.logger.Error().Err(err).Msg("record marshal failed")
			continue
		}

		n, err := fw.writer.Write(data)
		if err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		fw.bytesWritten += int64(n)

		if err := fw.writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
		fw.bytesWritten++
	}

	fw.buffer = fw.buffer[:0]

	return fw.writer.Flush()
}

// checkRotation rotates any file past its time or size limit.
func (a *Archive) checkRotation(fileChan chan<- string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for key, fw := range a.currentFiles {
		rotate := false

		if time.Since(fw.createdAt).Minutes() >= float64(a.rotateMinutes) {
			rotate = true
			a.logger.Info().Str("file", fw.filename).Msg("rotating archive file (time limit)")
		}
		if fw.bytesWritten >= a.rotateMegabytes {
			rotate = true
			a.logger.Info().Str("file", fw.filename).Msg("rotating archive file (size limit)")
		}

		if rotate {
			a.rotateFile(key, fw, fileChan)
		}
	}
}

// rotateFile closes the current file, announces it, and opens a fresh one.
func (a *Archive) rotateFile(key string, fw *fileWriter, fileChan chan<- string) {
	a.closeFileWriter(fw, fileChan)

	newFw, err := a.createFileWriter(fw.platform, fw.channel)
	if err != nil {
		a.logger.Error().Err(err).Msg("reopen after rotation failed")
		delete(a.currentFiles, key)
		return
	}

	a.currentFiles[key] = newFw
}

// flushAll closes every open file and announces them.
func (a *Archive) flushAll(fileChan chan<- string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for key, fw := range a.currentFiles {
		a.closeFileWriter(fw, fileChan)
		delete(a.currentFiles, key)
	}
}

func (a *Archive) closeFileWriter(fw *fileWriter, fileChan chan<- string) {
	if err := a.flushFileWriter(fw); err != nil {
		a.logger.Error().Err(err).Msg("flush during close failed")
	}
	if err := fw.file.Close(); err != nil {
		a.logger.Error().Err(err).Msg("close archive file failed")
	}

	path := filepath.Join(a.outputDir, fw.filename)
	select {
	case fileChan <- path:
		a.logger.Info().Str("file", fw.filename).Msg("queued archive file for shipping")
	default:
		a.logger.Warn().Str("file", fw.filename).Msg("ship queue full, file left on disk")
	}
}
