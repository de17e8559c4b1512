// Package slack implements the notifier Adapter for Slack. It is an
// outbound-only notification target posting through the Web API; commands
// arrive over Telegram.
package slack

import (
	"context"
	"fmt"
	"sync"

	"github.com/embywatch/embywatch/internal/notifier"
	slackapi "github.com/slack-go/slack"
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	AuthTest() (*slackapi.AuthTestResponse, error)
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Adapter implements notifier.Adapter for Slack.
type Adapter struct {
	client    slackClient
	botToken  string
	channelID string
	mu        sync.Mutex
	connected bool
	closed    bool
	inbound   chan notifier.InboundMessage
}

// AdapterOpts holds parameters for creating a Slack Adapter.
type AdapterOpts struct {
	BotToken  string // xoxb-... Slack bot token
	ChannelID string // channel to post notifications to
	// For testing: inject a mock client instead of the real Slack API.
	Client slackClient
}

// New creates a Slack Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("slack: channel id is required")
	}
	a := &Adapter{
		botToken:  opts.BotToken,
		channelID: opts.ChannelID,
		inbound:   make(chan notifier.InboundMessage),
	}
	if opts.Client != nil {
		a.client = opts.Client
	}
	return a, nil
}

// Connect verifies the token with an auth test.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("slack: adapter already closed")
	}
	if a.client == nil {
		a.client = slackapi.New(a.botToken)
	}
	if _, err := a.client.AuthTest(); err != nil {
		return fmt.Errorf("slack: auth test: %w", err)
	}
	a.connected = true
	return nil
}

// Listen returns the inbound channel. The channel never delivers: Slack is
// an outbound-only target here. It is closed when ctx ends.
func (a *Adapter) Listen(ctx context.Context) (<-chan notifier.InboundMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil, fmt.Errorf("slack: not connected")
	}
	go func() {
		<-ctx.Done()
		close(a.inbound)
	}()
	return a.inbound, nil
}

// Send posts a message to the configured channel. A photo URL becomes an
// image block under the caption; binary photo data cannot be posted
// without a file-upload scope, so it degrades to the caption text.
func (a *Adapter) Send(ctx context.Context, msg notifier.OutboundMessage) error {
	a.mu.Lock()
	client := a.client
	connected := a.connected
	a.mu.Unlock()
	if !connected {
		return fmt.Errorf("slack: not connected")
	}

	options := []slackapi.MsgOption{slackapi.MsgOptionText(msg.Text, false)}
	if msg.PhotoURL != "" {
		options = append(options, slackapi.MsgOptionAttachments(slackapi.Attachment{
			ImageURL: msg.PhotoURL,
		}))
	}

	if _, _, err := client.PostMessage(a.channelID, options...); err != nil {
		if msg.IsPhoto() {
			// Degrade to caption-only text.
			_, _, terr := client.PostMessage(a.channelID, slackapi.MsgOptionText(msg.Text, false))
			if terr == nil {
				return nil
			}
		}
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

// Close marks the adapter as closed.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.connected = false
	return nil
}
