package preprocess

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/john/chatsift/internal/bus"
	"github.com/john/chatsift/internal/message"
	"github.com/john/chatsift/internal/observability"
)

// Record is the cleaned output of the pipeline: identity fields passed
// through, URLs stripped from the message, stop-words removed from the
// tokens. The ID is assigned at emission.
type Record struct {
	ID            string           `json:"id"`
	Platform      message.Platform `json:"platform"`
	Channel       string           `json:"channel"`
	Username      string           `json:"username"`
	Message       string           `json:"message"`
	MessageTokens []string         `json:"message_tokens"`
	Slug          string           `json:"slug,omitempty"`
	SenderID      string           `json:"sender_id,omitempty"`
	Badges        []string         `json:"badges,omitempty"`
	Timestamp     time.Time        `json:"timestamp"`
}

// Sink receives cleaned records. Implementations decide disposition:
// printing, forwarding on the bus, archiving.
type Sink interface {
	Accept(ctx context.Context, rec Record) error
}

// Processing outcomes, used as the status label on the pipeline metric.
// Drops are normal terminal outcomes, not errors.
const (
	StatusEmitted         = "emitted"
	StatusDroppedDecode   = "dropped_decode"
	StatusDroppedBot      = "dropped_bot"
	StatusDroppedEmote    = "dropped_emote"
	StatusDroppedShort    = "dropped_short"
	StatusUnknownPlatform = "unknown_platform"
)

// Pipeline subscribes to one channel's chat topic and runs every delivery
// through the filter chain. Per-message processing is stateless, so any
// number of pipelines for different channels can run side by side.
type Pipeline struct {
	channel string
	sink    Sink
	logger  zerolog.Logger
}

// NewPipeline creates a pipeline for channel emitting into sink.
func NewPipeline(channel string, sink Sink, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		channel: channel,
		sink:    sink,
		logger:  logger.With().Str("component", "preprocess").Str("channel", channel).Logger(),
	}
}

// Run consumes the channel's chat topic until ctx is cancelled. The
// subscription is released on every exit path.
func (p *Pipeline) Run(ctx context.Context, b *bus.Bus) error {
	sub, err := b.Subscribe(ctx, bus.ChatTopic(p.channel))
	if err != nil {
		return err
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-sub.Messages():
			if !ok {
				return fmt.Errorf("bus subscription closed")
			}
			p.handle(ctx, []byte(delivery.Payload))
		}
	}
}

func (p *Pipeline) handle(ctx context.Context, payload []byte) {
	var msg message.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		observability.PipelineProcessed.WithLabelValues(StatusDroppedDecode).Inc()
		p.logger.Debug().Err(err).Msg("undecodable delivery dropped")
		return
	}

	rec, status := Process(msg)
	observability.PipelineProcessed.WithLabelValues(status).Inc()
	if rec == nil {
		if status == StatusUnknownPlatform {
			p.logger.Debug().Str("platform", string(msg.Platform)).Msg("unknown platform tag dropped")
		}
		return
	}

	if err := p.sink.Accept(ctx, *rec); err != nil {
		p.logger.Warn().Err(err).Msg("sink rejected record")
	}
}

// Process runs the filter chain on one canonical message: bot check, emote
// check, quality gates, URL strip, tokenize. It returns the cleaned record
// and the outcome status; a nil record means the message was dropped.
func Process(msg message.Message) (*Record, string) {
	switch msg.Platform {
	case message.PlatformTwitch, message.PlatformKick:
	default:
		return nil, StatusUnknownPlatform
	}

	if IsBot(msg.Username) {
		return nil, StatusDroppedBot
	}
	// Raw-text check, ahead of the quality gates.
	if HasEmote(msg.Text) {
		return nil, StatusDroppedEmote
	}
	if !HasMinWords(msg.Text, MinWords) || !HasMinChars(msg.Text, MinChars) {
		return nil, StatusDroppedShort
	}

	cleaned := RemoveURLs(msg.Text)

	rec := &Record{
		ID:            uuid.NewString(),
		Platform:      msg.Platform,
		Channel:       msg.Channel,
		Username:      msg.Username,
		Message:       cleaned,
		MessageTokens: Tokenize(cleaned),
		Timestamp:     msg.Timestamp,
	}

	if msg.Platform == message.PlatformKick {
		rec.Slug = msg.Slug
		rec.SenderID = msg.SenderID
		rec.Badges = msg.Badges
	}

	return rec, StatusEmitted
}
