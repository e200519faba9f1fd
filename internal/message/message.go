package message

import "time"

// Platform identifies the originating chat platform of a message.
type Platform string

const (
	PlatformTwitch Platform = "Twitch"
	PlatformKick   Platform = "Kick"
)

// Message is the canonical chat message envelope every platform listener
// publishes to the bus. Platform, Channel, Text and Timestamp are always set;
// the remaining fields carry whatever the platform reported.
type Message struct {
	Platform  Platform  `json:"platform"`
	Channel   string    `json:"channel"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`

	// Populated by the Kick listener; the Twitch listener fills SenderID and
	// Badges only when the server granted the message-tags capability.
	SenderID   string   `json:"sender_id,omitempty"`
	Slug       string   `json:"slug,omitempty"`
	Badges     []string `json:"badges,omitempty"`
	MessageID  string   `json:"message_id,omitempty"`
	ChatroomID int      `json:"chatroom_id,omitempty"`
}
