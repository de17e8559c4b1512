// Package discord implements the notifier Adapter for Discord using the
// Gateway WebSocket. It is an outbound-only notification target; commands
// arrive over Telegram.
package discord

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/embywatch/embywatch/internal/notifier"
)

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	Open() error
	Close() error
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// realSession wraps *discordgo.Session to implement the session interface.
type realSession struct {
	s *discordgo.Session
}

func (r *realSession) Open() error  { return r.s.Open() }
func (r *realSession) Close() error { return r.s.Close() }
func (r *realSession) ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return r.s.ChannelMessageSend(channelID, content, options...)
}
func (r *realSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return r.s.ChannelMessageSendComplex(channelID, data, options...)
}

// Adapter implements notifier.Adapter for Discord.
type Adapter struct {
	sess      session
	botToken  string
	channelID string
	mu        sync.Mutex
	connected bool
	closed    bool
	inbound   chan notifier.InboundMessage
}

// AdapterOpts holds parameters for creating a Discord Adapter.
type AdapterOpts struct {
	BotToken  string // Discord bot token
	ChannelID string // channel to post notifications to
	// For testing: inject a mock session instead of the real Discord API.
	Session session
}

// New creates a Discord Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("discord: channel id is required")
	}
	a := &Adapter{
		botToken:  opts.BotToken,
		channelID: opts.ChannelID,
		inbound:   make(chan notifier.InboundMessage),
	}
	if opts.Session != nil {
		a.sess = opts.Session
	}
	return a, nil
}

// Connect establishes the Discord Gateway WebSocket connection.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("discord: adapter already closed")
	}
	if a.sess == nil {
		dg, err := discordgo.New("Bot " + a.botToken)
		if err != nil {
			return fmt.Errorf("discord: create session: %w", err)
		}
		dg.Identify.Intents = discordgo.IntentsGuildMessages
		a.sess = &realSession{s: dg}
	}
	if err := a.sess.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	a.connected = true
	return nil
}

// Listen returns the inbound channel. The channel never delivers: Discord
// is an outbound-only target here. It is closed when ctx ends.
func (a *Adapter) Listen(ctx context.Context) (<-chan notifier.InboundMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil, fmt.Errorf("discord: not connected")
	}
	go func() {
		<-ctx.Done()
		close(a.inbound)
	}()
	return a.inbound, nil
}

// Send posts a message to the configured channel. Photo messages become an
// embed (URL reference) or a file upload (binary data); on photo failure
// the caption is sent as plain text.
func (a *Adapter) Send(ctx context.Context, msg notifier.OutboundMessage) error {
	a.mu.Lock()
	sess := a.sess
	connected := a.connected
	a.mu.Unlock()
	if !connected {
		return fmt.Errorf("discord: not connected")
	}

	if !msg.IsPhoto() {
		_, err := sess.ChannelMessageSend(a.channelID, msg.Text)
		if err != nil {
			return fmt.Errorf("discord: send message: %w", err)
		}
		return nil
	}

	data := &discordgo.MessageSend{Content: msg.Text}
	if msg.PhotoURL != "" {
		data.Embed = &discordgo.MessageEmbed{
			Image:     &discordgo.MessageEmbedImage{URL: msg.PhotoURL},
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
	} else {
		data.Files = []*discordgo.File{{
			Name:        "poster.jpg",
			ContentType: "image/jpeg",
			Reader:      bytes.NewReader(msg.PhotoData),
		}}
	}
	if _, err := sess.ChannelMessageSendComplex(a.channelID, data); err != nil {
		if _, terr := sess.ChannelMessageSend(a.channelID, msg.Text); terr != nil {
			return fmt.Errorf("discord: send photo: %w", err)
		}
	}
	return nil
}

// Close shuts down the Gateway connection.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.connected = false
	if a.sess != nil {
		return a.sess.Close()
	}
	return nil
}
