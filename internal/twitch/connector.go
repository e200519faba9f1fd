package twitch

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	irc "github.com/gempir/go-twitch-irc/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/john/chatsift/internal/bus"
	"github.com/john/chatsift/internal/message"
	"github.com/john/chatsift/internal/observability"
)

const (
	gatewayURL = "wss://irc-ws.chat.twitch.tv:443"

	// Anonymous handshake: the gateway accepts any oauth placeholder for
	// justinfan nicknames, read-only.
	passLine = "PASS oauth:abcdefghijk"
	capsLine = "CAP REQ :twitch.tv/tags"

	pongReply        = "PONG"
	handshakeTimeout = 10 * time.Second
	maxBackoff       = 2 * time.Minute
)

// Connector maintains an anonymous read-only session to one Twitch channel
// and publishes every chat line as a canonical message.
type Connector struct {
	channel string
	nick    string
	logger  zerolog.Logger
}

// New creates a connector for channel.
func New(channel string, logger zerolog.Logger) *Connector {
	return &Connector{
		channel: strings.ToLower(strings.TrimPrefix(channel, "#")),
		nick:    fmt.Sprintf("justinfan%05d", rand.Intn(100000)),
		logger:  logger.With().Str("component", "twitch").Str("channel", channel).Logger(),
	}
}

// Start runs the connect/read loop under exponential-backoff supervision
// until ctx is cancelled. Connection loss is logged and retried; only
// cancellation ends the loop.
func (c *Connector) Start(ctx context.Context, pub bus.Publisher) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = maxBackoff
	bo.MaxElapsedTime = 0

	op := func() error {
		err := c.run(ctx, pub, bo)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		observability.Reconnects.WithLabelValues(string(message.PlatformTwitch)).Inc()
		return err
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Warn().Err(err).Dur("retry_in", wait).Msg("connection lost, reconnecting")
	}

	return backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify)
}

// run owns one connection for its whole lifetime; the socket is released on
// every exit path.
func (c *Connector) run(ctx context.Context, pub bus.Publisher, bo *backoff.ExponentialBackOff) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}

	conn, _, err := dialer.DialContext(ctx, gatewayURL, nil)
	if err != nil {
		return fmt.Errorf("dial chat gateway: %w", err)
	}
	defer conn.Close()

	// Unblock the pending read when the operator shuts us down.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	handshake := []string{
		passLine,
		"NICK " + c.nick,
		"JOIN #" + c.channel,
		capsLine,
	}
	for _, line := range handshake {
		if err := writeLine(conn, line); err != nil {
			return fmt.Errorf("handshake: %w", err)
		}
	}

	c.logger.Info().Str("nick", c.nick).Msg("connected to chat gateway")
	bo.Reset()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}

		for _, line := range strings.Split(string(payload), "\r\n") {
			if line == "" {
				continue
			}

			reply, msg := c.processLine(line)
			if reply != "" {
				// The server drops clients that sit on a PING.
				if err := writeLine(conn, reply); err != nil {
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
}

// processLine turns one raw IRC line into an optional keep-alive reply and an
// optional canonical message. Anything that is neither a liveness probe nor a
// well-formed chat line is ignored.
func (c *Connector) processLine(line string) (reply string, msg *message.Message) {
	if strings.HasPrefix(line, "PING") {
		return pongReply, nil
	}

	pm, ok := irc.ParseMessage(line).(*irc.PrivateMessage)
	if !ok || pm.Message == "" {
		return "", nil
	}

	return "", &message.Message{
		Platform:  message.PlatformTwitch,
		Channel:   c.channel,
		Username:  pm.User.Name,
		Text:      pm.Message,
		Timestamp: time.Now().UTC(),
		SenderID:  pm.User.ID,
		Badges:    badgeTypes(pm.User.Badges),
	}
}

// badgeTypes flattens the badge map to its type names, sorted for stable
// output.
func badgeTypes(badges map[string]int) []string {
	if len(badges) == 0 {
		return nil
	}

	types := make([]string, 0, len(badges))
	for badge := range badges {
		types = append(types, badge)
	}
	sort.Strings(types)

	return types
}

func writeLine(conn *websocket.Conn, line string) error {
	return conn.WriteMessage(websocket.TextMessage, []byte(line))
}
