package notifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/embywatch/embywatch/internal/config"
	"github.com/embywatch/embywatch/internal/stats"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Router dispatches inbound chat commands. Senders whose chat id does not
// match the configured admin receive a denial reply and nothing else;
// unrecognized text from the admin is ignored silently.
type Router struct {
	store    *config.Store
	db       *gorm.DB
	sessions SessionSource
	log      zerolog.Logger
}

// RouterOpts holds parameters for creating a Router.
type RouterOpts struct {
	Store    *config.Store
	DB       *gorm.DB
	Sessions SessionSource
	Log      zerolog.Logger
}

// NewRouter creates a Router.
func NewRouter(opts RouterOpts) (*Router, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("notifier: router: store is required")
	}
	if opts.DB == nil {
		return nil, fmt.Errorf("notifier: router: db is required")
	}
	return &Router{
		store:    opts.Store,
		db:       opts.DB,
		sessions: opts.Sessions,
		log:      opts.Log,
	}, nil
}

// Commands returns the command menu registered with the chat platform.
func Commands() []struct{ Command, Description string } {
	return []struct{ Command, Description string }{
		{"stats", "Playback report for the last 24 hours"},
		{"now", "Who is playing right now"},
	}
}

// Handle processes one inbound message and sends any reply through send.
func (r *Router) Handle(ctx context.Context, msg InboundMessage, send func(ctx context.Context, out OutboundMessage)) {
	cfg := r.store.Snapshot()
	if cfg.Telegram.ChatID == "" || msg.ChatID != cfg.Telegram.ChatID {
		r.log.Warn().Str("chat", msg.ChatID).Str("user", msg.UserName).Msg("command from unauthorized chat")
		send(ctx, OutboundMessage{ChatID: msg.ChatID, Text: "Access denied."})
		return
	}

	cmd := strings.ToLower(strings.TrimSpace(msg.Text))
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}

	switch cmd {
	case "/stats":
		text, err := stats.BuildReport(stats.NewQuery(r.db, cfg.HiddenUsers), "daily")
		if err != nil {
			r.log.Error().Err(err).Msg("stats command failed")
			return
		}
		send(ctx, OutboundMessage{ChatID: msg.ChatID, Text: text})
	case "/now":
		send(ctx, OutboundMessage{ChatID: msg.ChatID, Text: r.nowPlayingText(ctx)})
	default:
		// Unrecognized text is ignored.
	}
}

// nowPlayingText reports the count of active sessions from the live list.
func (r *Router) nowPlayingText(ctx context.Context) string {
	if r.sessions == nil {
		return "Media server is not configured."
	}
	sessions, err := r.sessions.Sessions(ctx)
	if err != nil {
		return "Media server is unreachable."
	}
	var lines []string
	for _, s := range sessions {
		if s.NowPlayingItem == nil {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", s.UserName, ItemTitle(s.NowPlayingItem)))
	}
	if len(lines) == 0 {
		return "Nothing is playing."
	}
	return fmt.Sprintf("%d active session(s):\n%s", len(lines), strings.Join(lines, "\n"))
}
