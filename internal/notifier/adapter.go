// Package notifier bridges Emby playback and library events to chat
// platforms and runs the background loops (command polling, session
// monitoring, scheduling).
package notifier

import (
	"context"
	"time"
)

// Adapter is the interface that platform-specific implementations must
// satisfy. Telegram is the primary adapter and the only one that carries
// inbound commands; Discord and Slack are outbound-only targets whose
// Listen channel simply stays silent.
type Adapter interface {
	// Connect establishes a connection to the chat platform.
	Connect(ctx context.Context) error

	// Listen returns a channel of inbound messages from the platform.
	// The channel is closed when the context is cancelled or the adapter
	// is closed. Listen must only be called after Connect.
	Listen(ctx context.Context) (<-chan InboundMessage, error)

	// Send delivers an outbound message. Implementations log and drop on
	// failure; a photo message that cannot be delivered degrades to a
	// text message carrying the caption.
	Send(ctx context.Context, msg OutboundMessage) error

	// Close gracefully shuts down the adapter connection.
	Close() error
}

// InboundMessage represents a message received from the chat platform.
type InboundMessage struct {
	Platform  string    // e.g. "telegram"
	ChatID    string    // platform-specific chat/channel identifier
	UserName  string    // human-readable sender name
	Text      string    // raw message text
	Timestamp time.Time // when the message was sent
}

// OutboundMessage represents a message to be sent to the chat platform.
// When PhotoURL or PhotoData is set the message is a photo with Text as
// its caption; otherwise it is plain text.
type OutboundMessage struct {
	ChatID    string // target chat; empty means the configured default
	Text      string // message text or photo caption
	PhotoURL  string // remote image sent by reference
	PhotoData []byte // binary image uploaded as multipart content
}

// IsPhoto reports whether the message carries an image.
func (m OutboundMessage) IsPhoto() bool {
	return m.PhotoURL != "" || len(m.PhotoData) > 0
}
