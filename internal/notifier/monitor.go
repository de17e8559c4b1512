package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/embywatch/embywatch/internal/emby"
	"github.com/rs/zerolog"
)

// DefaultMonitorInterval is how often the live session list is polled.
const DefaultMonitorInterval = 10 * time.Second

// SessionSource abstracts the Emby session listing for testability.
type SessionSource interface {
	Sessions(ctx context.Context) ([]emby.Session, error)
}

// Monitor detects playback start transitions against the live session list.
// It notifies only on start: session stop is handled by silently dropping
// the id from the active set, the missing stop notification is intentional.
type Monitor struct {
	src      SessionSource
	interval time.Duration
	log      zerolog.Logger

	// active maps session id -> currently-playing marker. Owned
	// exclusively by the monitor loop; never shared.
	active map[string]bool
	// seeded is set after the first successful fetch. The first snapshot
	// establishes a baseline without notifying, so sessions already live
	// at startup never produce spurious starts.
	seeded bool
}

// MonitorOpts holds parameters for creating a Monitor.
type MonitorOpts struct {
	Source   SessionSource
	Interval time.Duration // defaults to DefaultMonitorInterval
	Log      zerolog.Logger
}

// NewMonitor creates a Monitor.
func NewMonitor(opts MonitorOpts) (*Monitor, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("notifier: monitor: session source is required")
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	return &Monitor{
		src:      opts.Source,
		interval: interval,
		log:      opts.Log,
		active:   make(map[string]bool),
	}, nil
}

// Poll runs one detection cycle and returns the sessions that started
// playing since the previous cycle. On fetch failure the active set is left
// untouched so the next successful fetch does not re-notify.
func (m *Monitor) Poll(ctx context.Context) ([]emby.Session, error) {
	sessions, err := m.src.Sessions(ctx)
	if err != nil {
		return nil, err
	}

	current := make(map[string]bool, len(sessions))
	var started []emby.Session
	for _, s := range sessions {
		if s.NowPlayingItem == nil {
			continue
		}
		current[s.ID] = true
		if m.active[s.ID] {
			continue
		}
		m.active[s.ID] = true
		if m.seeded {
			started = append(started, s)
		}
	}

	// Drop tracked ids that vanished from the live list.
	for id := range m.active {
		if !current[id] {
			delete(m.active, id)
		}
	}

	m.seeded = true
	return started, nil
}

// ActiveCount returns how many sessions are currently tracked as playing.
func (m *Monitor) ActiveCount() int {
	return len(m.active)
}

// Run starts the monitor loop. Detected starts are delivered through send;
// fetch failures are logged and retried on the next tick.
func (m *Monitor) Run(ctx context.Context, send func(ctx context.Context, msg OutboundMessage)) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			started, err := m.Poll(ctx)
			if err != nil {
				m.log.Debug().Err(err).Msg("session poll failed")
				continue
			}
			for _, s := range started {
				send(ctx, OutboundMessage{Text: BuildPlaybackCaption(s)})
			}
		}
	}
}
