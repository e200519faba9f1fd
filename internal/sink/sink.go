package sink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/john/chatsift/internal/bus"
	"github.com/john/chatsift/internal/observability"
	"github.com/john/chatsift/internal/preprocess"
)

// Stdout writes each cleaned record as one JSON line, for operators watching
// the pipeline directly.
type Stdout struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewStdout creates a Stdout sink. Passing nil writes to os.Stdout.
func NewStdout(w io.Writer) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	return &Stdout{enc: json.NewEncoder(w)}
}

// Accept implements preprocess.Sink.
func (s *Stdout) Accept(_ context.Context, rec preprocess.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enc.Encode(rec); err != nil {
		return err
	}
	observability.RecordsEmitted.WithLabelValues("stdout").Inc()
	return nil
}

// Forward republishes cleaned records on the bus, one topic per channel, for
// downstream consumers.
type Forward struct {
	bus *bus.Bus
}

// NewForward creates a Forward sink publishing through b.
func NewForward(b *bus.Bus) *Forward {
	return &Forward{bus: b}
}

// Accept implements preprocess.Sink.
func (f *Forward) Accept(ctx context.Context, rec preprocess.Record) error {
	if err := f.bus.Publish(ctx, bus.ProcessedTopic(rec.Channel), rec); err != nil {
		return err
	}
	observability.RecordsEmitted.WithLabelValues("forward").Inc()
	return nil
}

// Multi fans one record out to several sinks. Every sink sees the record even
// when an earlier one fails; errors are joined.
type Multi []preprocess.Sink

// Accept implements preprocess.Sink.
func (m Multi) Accept(ctx context.Context, rec preprocess.Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Accept(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
