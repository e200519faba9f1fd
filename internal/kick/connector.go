package kick

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/john/chatsift/internal/bus"
	"github.com/john/chatsift/internal/message"
	"github.com/john/chatsift/internal/observability"
)

const (
	// Kick rides on a shared Pusher cluster; the app key is public and baked
	// into the site's own client.
	brokerURL = "wss://ws-us2.pusher.com/app/eb1d5f283081a78b932c?protocol=7&client=js&version=7.6.0&flash=false"

	chatMessageEvent = `App\Events\ChatMessageEvent`
	pingEvent        = "pusher:ping"

	handshakeTimeout = 10 * time.Second
	maxBackoff       = 2 * time.Minute
)

// Connector maintains an anonymous session to one Kick channel's event stream
// and publishes every chat message event as a canonical message.
type Connector struct {
	channel  string
	resolver RoomResolver
	logger   zerolog.Logger
}

// New creates a connector for channel using resolver to find its chatroom id.
func New(channel string, resolver RoomResolver, logger zerolog.Logger) *Connector {
	return &Connector{
		channel:  channel,
		resolver: resolver,
		logger:   logger.With().Str("component", "kick").Str("channel", channel).Logger(),
	}
}

// Start resolves the chatroom id and runs the connect/read loop under
// exponential-backoff supervision until ctx is cancelled. A failed first
// resolution returns before any socket is opened; on reconnect the id is
// resolved again since stale ids point at dead rooms.
func (c *Connector) Start(ctx context.Context, pub bus.Publisher) error {
	chatroomID, slug, err := c.resolver.Resolve(ctx, c.channel)
	if err != nil {
		return err
	}
	c.logger.Info().Int("chatroom_id", chatroomID).Str("slug", slug).Msg("resolved chatroom")

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = maxBackoff
	bo.MaxElapsedTime = 0

	first := true
	op := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		if !first {
			id, _, err := c.resolver.Resolve(ctx, c.channel)
			if err != nil {
				return err
			}
			chatroomID = id
		}
		first = false

		err := c.run(ctx, pub, chatroomID, bo)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		observability.Reconnects.WithLabelValues(string(message.PlatformKick)).Inc()
		return err
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Warn().Err(err).Dur("retry_in", wait).Msg("connection lost, reconnecting")
	}

	return backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify)
}

// run owns one broker connection for its whole lifetime; the socket is
// released on every exit path.
func (c *Connector) run(ctx context.Context, pub bus.Publisher, chatroomID int, bo *backoff.ExponentialBackOff) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}

	conn, _, err := dialer.DialContext(ctx, brokerURL, nil)
	if err != nil {
		return fmt.Errorf("dial event broker: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for _, frame := range subscribeFrames(chatroomID) {
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
	}

	c.logger.Info().Msg("connected to event broker, listening for messages")
	bo.Reset()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}

		reply, msg := c.processFrame(payload)
		if reply != nil {
			if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
				return fmt.Errorf("keep-alive reply: %w", err)
			}
		}
		if msg == nil {
			continue
		}

		observability.MessagesIngested.WithLabelValues(string(msg.Platform), c.channel).Inc()

		if err := pub.Publish(ctx, bus.ChatTopic(c.channel), msg); err != nil {
			c.logger.Warn().Err(err).Msg("publish failed, message dropped")
			continue
		}
		observability.MessagesPublished.WithLabelValues(string(msg.Platform), c.channel).Inc()
	}
}

// subscribeCommand is an outbound broker control frame. Auth stays empty:
// public chatrooms accept anonymous subscriptions.
type subscribeCommand struct {
	Event string        `json:"event"`
	Data  subscribeData `json:"data"`
}

type subscribeData struct {
	Auth    string `json:"auth"`
	Channel string `json:"channel"`
}

// subscribeFrames builds the two control frames sent right after connect: one
// for the chatroom-scoped topic, one for the channel-scoped one.
func subscribeFrames(chatroomID int) [][]byte {
	topics := []string{
		fmt.Sprintf("chatrooms.%d.v2", chatroomID),
		fmt.Sprintf("channel.%d", chatroomID),
	}

	frames := make([][]byte, 0, len(topics))
	for _, topic := range topics {
		frame, _ := json.Marshal(subscribeCommand{
			Event: "pusher:subscribe",
			Data:  subscribeData{Auth: "", Channel: topic},
		})
		frames = append(frames, frame)
	}

	return frames
}

// envelope is the generic inbound frame; Data is itself JSON-encoded.
type envelope struct {
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
	Channel string          `json:"channel"`
}

// chatPayload is the nested chat message event body.
type chatPayload struct {
	ID         string `json:"id"`
	ChatroomID int    `json:"chatroom_id"`
	Content    string `json:"content"`
	Type       string `json:"type"`
	CreatedAt  string `json:"created_at"`
	Sender     struct {
		ID       int    `json:"id"`
		Username string `json:"username"`
		Slug     string `json:"slug"`
		Identity struct {
			Color  string `json:"color"`
			Badges []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"badges"`
		} `json:"identity"`
	} `json:"sender"`
}

// processFrame turns one raw broker frame into an optional keep-alive reply
// and an optional canonical message. Malformed frames and uninteresting
// events are dropped without ceremony.
func (c *Connector) processFrame(raw []byte) (reply []byte, msg *message.Message) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.logger.Debug().Err(err).Msg("undecodable frame dropped")
		return nil, nil
	}

	switch env.Event {
	case pingEvent:
		pong, _ := json.Marshal(map[string]any{"event": "pusher:pong", "data": map[string]any{}})
		return pong, nil
	case chatMessageEvent:
		// fall through below
	default:
		return nil, nil
	}

	// The payload is double-encoded: a JSON string holding JSON.
	var inner string
	if err := json.Unmarshal(env.Data, &inner); err != nil {
		c.logger.Debug().Err(err).Msg("chat event with non-string data dropped")
		return nil, nil
	}

	var payload chatPayload
	if err := json.Unmarshal([]byte(inner), &payload); err != nil {
		c.logger.Debug().Err(err).Msg("undecodable chat payload dropped")
		return nil, nil
	}
	if payload.Content == "" || payload.Sender.Username == "" {
		return nil, nil
	}

	badges := make([]string, 0, len(payload.Sender.Identity.Badges))
	for _, badge := range payload.Sender.Identity.Badges {
		badges = append(badges, badge.Type)
	}
	if len(badges) == 0 {
		badges = nil
	}

	return nil, &message.Message{
		Platform:   message.PlatformKick,
		Channel:    c.channel,
		Username:   payload.Sender.Username,
		Text:       payload.Content,
		Timestamp:  parseCreatedAt(payload.CreatedAt),
		SenderID:   strconv.Itoa(payload.Sender.ID),
		Slug:       payload.Sender.Slug,
		Badges:     badges,
		MessageID:  payload.ID,
		ChatroomID: payload.ChatroomID,
	}
}

// parseCreatedAt parses the platform's reported creation time, falling back
// to the observation time when the format shifts under us.
func parseCreatedAt(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}
