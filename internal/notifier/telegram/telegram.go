// Package telegram implements the notifier Adapter for the Telegram Bot
// API. It is the primary platform: getUpdates long-polling carries inbound
// commands, sendMessage/sendPhoto carry notifications.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/embywatch/embywatch/internal/config"
	"github.com/embywatch/embywatch/internal/notifier"
	"github.com/rs/zerolog"
)

const (
	// longPollTimeout is the server-side wait passed to getUpdates.
	longPollTimeout = 25 * time.Second
	// errorBackoff is how long the polling loop sleeps after a failure.
	errorBackoff = 5 * time.Second
	// sendTimeout bounds sendMessage calls.
	sendTimeout = 10 * time.Second
	// photoTimeout bounds sendPhoto uploads.
	photoTimeout = 35 * time.Second
	// captionLimit is Telegram's maximum photo caption length.
	captionLimit = 1024
)

// update is a Telegram update. Only fields we need.
type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		From struct {
			UserName  string `json:"username"`
			FirstName string `json:"first_name"`
		} `json:"from"`
		Text string `json:"text"`
		Date int64  `json:"date"`
	} `json:"message,omitempty"`
}

// Adapter implements notifier.Adapter for Telegram.
type Adapter struct {
	store   *config.Store
	baseURL string
	log     zerolog.Logger

	mu        sync.Mutex
	connected bool
	closed    bool
	inbound   chan notifier.InboundMessage

	// offset is the next update id to acknowledge. Owned exclusively by
	// the polling goroutine; held only in memory, so a restart may see
	// redelivered updates.
	offset int64
}

// AdapterOpts holds parameters for creating a Telegram Adapter.
type AdapterOpts struct {
	Store   *config.Store
	BaseURL string // defaults to the public Bot API; tests override
	Log     zerolog.Logger
}

// New creates a Telegram Adapter. The bot token and proxy are read from the
// settings store on every call, not cached.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("telegram: store is required")
	}
	base := opts.BaseURL
	if base == "" {
		base = "https://api.telegram.org"
	}
	return &Adapter{
		store:   opts.Store,
		baseURL: base,
		log:     opts.Log,
		inbound: make(chan notifier.InboundMessage, 100),
	}, nil
}

// url builds the Bot API method URL with the current token.
func (a *Adapter) url(method string) (string, error) {
	cfg := a.store.Snapshot()
	if cfg.Telegram.Token == "" {
		return "", fmt.Errorf("telegram: bot token not configured")
	}
	return a.baseURL + "/bot" + cfg.Telegram.Token + "/" + method, nil
}

// client builds an HTTP client honoring the proxy currently in settings.
func (a *Adapter) client(timeout time.Duration) *http.Client {
	c := &http.Client{Timeout: timeout}
	cfg := a.store.Snapshot()
	if cfg.Telegram.Proxy != "" {
		if proxyURL, err := url.Parse(cfg.Telegram.Proxy); err == nil {
			c.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}
	return c
}

// Connect validates the token and registers the bot command menu.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("telegram: adapter already closed")
	}
	if _, err := a.url("getMe"); err != nil {
		return err
	}
	a.connected = true

	if err := a.setCommands(ctx); err != nil {
		a.log.Warn().Err(err).Msg("register bot commands failed")
	}
	return nil
}

// setCommands registers the command menu via setMyCommands.
func (a *Adapter) setCommands(ctx context.Context) error {
	var commands []map[string]string
	for _, c := range notifier.Commands() {
		commands = append(commands, map[string]string{
			"command":     c.Command,
			"description": c.Description,
		})
	}
	return a.post(ctx, "setMyCommands", map[string]any{"commands": commands}, sendTimeout)
}

// Listen starts the long-polling goroutine and returns the inbound channel.
func (a *Adapter) Listen(ctx context.Context) (<-chan notifier.InboundMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil, fmt.Errorf("telegram: not connected")
	}
	go a.poll(ctx)
	return a.inbound, nil
}

// poll long-polls getUpdates until ctx is cancelled, advancing the offset
// past every received update. Failures back off for errorBackoff. The
// inbound channel is closed here, on loop exit, never in Close, so a send
// can never race a close.
func (a *Adapter) poll(ctx context.Context) {
	defer close(a.inbound)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		updates, err := a.getUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			a.log.Debug().Err(err).Msg("getUpdates failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(errorBackoff):
			}
			continue
		}

		for _, u := range updates {
			a.offset = u.UpdateID + 1
			if u.Message == nil {
				continue
			}
			name := u.Message.From.UserName
			if name == "" {
				name = u.Message.From.FirstName
			}
			msg := notifier.InboundMessage{
				Platform:  "telegram",
				ChatID:    strconv.FormatInt(u.Message.Chat.ID, 10),
				UserName:  name,
				Text:      u.Message.Text,
				Timestamp: time.Unix(u.Message.Date, 0),
			}
			select {
			case a.inbound <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

// getUpdates issues one long-poll request for updates past the offset.
func (a *Adapter) getUpdates(ctx context.Context) ([]update, error) {
	u, err := a.url("getUpdates")
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("timeout", strconv.Itoa(int(longPollTimeout/time.Second)))
	if a.offset != 0 {
		q.Set("offset", strconv.FormatInt(a.offset, 10))
	}

	ctx, cancel := context.WithTimeout(ctx, longPollTimeout+sendTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client(0).Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram: getUpdates: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram: getUpdates: unexpected status %s", resp.Status)
	}

	var wrapper struct {
		OK     bool     `json:"ok"`
		Result []update `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		return nil, fmt.Errorf("telegram: decode updates: %w", err)
	}
	if !wrapper.OK {
		return nil, fmt.Errorf("telegram: api responded with not ok")
	}
	return wrapper.Result, nil
}

// Send delivers a message. Photo messages that fail for any reason degrade
// to a plain text message carrying the caption; text failures are returned
// to the caller, which logs and drops.
func (a *Adapter) Send(ctx context.Context, msg notifier.OutboundMessage) error {
	chatID := msg.ChatID
	if chatID == "" {
		chatID = a.store.Snapshot().Telegram.ChatID
	}
	if chatID == "" {
		return fmt.Errorf("telegram: no chat target configured")
	}

	if msg.IsPhoto() {
		if err := a.sendPhoto(ctx, chatID, msg); err != nil {
			a.log.Warn().Err(err).Msg("sendPhoto failed, falling back to text")
			return a.sendMessage(ctx, chatID, msg.Text)
		}
		return nil
	}
	return a.sendMessage(ctx, chatID, msg.Text)
}

func (a *Adapter) sendMessage(ctx context.Context, chatID, text string) error {
	return a.post(ctx, "sendMessage", map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}, sendTimeout)
}

func (a *Adapter) sendPhoto(ctx context.Context, chatID string, msg notifier.OutboundMessage) error {
	caption := msg.Text
	if len([]rune(caption)) > captionLimit {
		caption = string([]rune(caption)[:captionLimit])
	}

	if msg.PhotoURL != "" {
		return a.post(ctx, "sendPhoto", map[string]any{
			"chat_id":    chatID,
			"photo":      msg.PhotoURL,
			"caption":    caption,
			"parse_mode": "Markdown",
		}, sendTimeout)
	}
	return a.uploadPhoto(ctx, chatID, caption, msg.PhotoData)
}

// uploadPhoto sends binary image data as multipart content.
func (a *Adapter) uploadPhoto(ctx context.Context, chatID, caption string, data []byte) error {
	u, err := a.url("sendPhoto")
	if err != nil {
		return err
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	w.WriteField("chat_id", chatID)
	w.WriteField("caption", caption)
	w.WriteField("parse_mode", "Markdown")
	part, err := w.CreateFormFile("photo", "image.jpg")
	if err != nil {
		return fmt.Errorf("telegram: build multipart: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("telegram: write photo: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("telegram: close multipart: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, photoTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := a.client(0).Do(req)
	if err != nil {
		return fmt.Errorf("telegram: sendPhoto: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram: sendPhoto: unexpected status %s", resp.Status)
	}
	return nil
}

// post issues a JSON POST to a Bot API method.
func (a *Adapter) post(ctx context.Context, method string, body any, timeout time.Duration) error {
	u, err := a.url(method)
	if err != nil {
		return err
	}
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("telegram: marshal %s: %w", method, err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.client(0).Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %s: %w", method, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram: %s: unexpected status %s", method, resp.Status)
	}
	return nil
}

// Close marks the adapter as closed. The inbound channel is owned and
// closed by the polling goroutine when its context ends.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.connected = false
	return nil
}
