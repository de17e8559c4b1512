package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/embywatch/embywatch/internal/config"
	"github.com/embywatch/embywatch/internal/emby"
	"github.com/embywatch/embywatch/internal/models"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// DefaultGracePeriod is how long the relay waits after a new-item event
// before fetching details, giving the metadata scraper time to finish.
const DefaultGracePeriod = 5 * time.Second

// Event is an inbound webhook payload from the media server. Only the
// fields we act on.
type Event struct {
	Event string     `json:"Event"`
	Item  *emby.Item `json:"Item,omitempty"`
	User  struct {
		ID   string `json:"Id"`
		Name string `json:"Name"`
	} `json:"User"`
	Session *struct {
		Client     string `json:"Client"`
		DeviceName string `json:"DeviceName"`
	} `json:"Session,omitempty"`
}

// ItemSource abstracts the Emby item/image lookups for testability.
type ItemSource interface {
	Item(ctx context.Context, id string) (*emby.Item, error)
	Image(ctx context.Context, itemID string) ([]byte, string, error)
}

// Relay turns library and playback webhook events into activity rows and
// chat notifications. Every failure in this path is logged and dropped:
// it runs as best-effort background work with no user-visible errors.
type Relay struct {
	store *config.Store
	db    *gorm.DB
	items ItemSource
	send  func(ctx context.Context, msg OutboundMessage)
	log   zerolog.Logger
	grace time.Duration
}

// RelayOpts holds parameters for creating a Relay.
type RelayOpts struct {
	Store *config.Store
	DB    *gorm.DB
	Items ItemSource
	Send  func(ctx context.Context, msg OutboundMessage)
	Log   zerolog.Logger
	Grace time.Duration // defaults to DefaultGracePeriod
}

// NewRelay creates a Relay.
func NewRelay(opts RelayOpts) (*Relay, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("notifier: relay: store is required")
	}
	if opts.DB == nil {
		return nil, fmt.Errorf("notifier: relay: db is required")
	}
	if opts.Send == nil {
		return nil, fmt.Errorf("notifier: relay: send func is required")
	}
	grace := opts.Grace
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Relay{
		store: opts.Store,
		db:    opts.DB,
		items: opts.Items,
		send:  opts.Send,
		log:   opts.Log,
		grace: grace,
	}, nil
}

// HandleEvent dispatches one webhook event. Unrecognized event kinds are
// ignored.
func (r *Relay) HandleEvent(ctx context.Context, ev Event) {
	switch ev.Event {
	case "item.added", "library.new":
		if r.store.Snapshot().Notify.OnNewItem {
			r.itemAdded(ctx, ev)
		}
	case "playback.start":
		r.recordPlayback(ev)
		if r.store.Snapshot().Notify.OnPlay {
			r.notifyPlaybackStart(ctx, ev)
		}
	case "playback.stop":
		// The start event already produced the activity row; recording
		// the stop too would count every session twice.
	default:
		r.log.Debug().Str("event", ev.Event).Msg("webhook event ignored")
	}
}

// itemAdded waits out the grace period, fetches full item details, and
// sends the new-item notification. Season items are suppressed entirely.
func (r *Relay) itemAdded(ctx context.Context, ev Event) {
	if ev.Item == nil || ev.Item.ID == "" {
		return
	}

	select {
	case <-time.After(r.grace):
	case <-ctx.Done():
		return
	}

	item := ev.Item
	if r.items != nil {
		full, err := r.items.Item(ctx, ev.Item.ID)
		if err != nil {
			r.log.Warn().Err(err).Str("item", ev.Item.ID).Msg("fetch item details failed")
		} else {
			item = full
		}
	}
	if item.Type == "Season" {
		return
	}

	msg := OutboundMessage{Text: BuildItemCaption(item)}
	if item.HasPrimaryImage() && r.items != nil {
		data, _, err := r.items.Image(ctx, item.ID)
		if err != nil {
			r.log.Debug().Err(err).Str("item", item.ID).Msg("fetch primary image failed")
		} else {
			msg.PhotoData = data
		}
	}
	r.send(ctx, msg)
}

// recordPlayback appends one activity row for a playback event.
func (r *Relay) recordPlayback(ev Event) {
	if ev.Item == nil {
		return
	}
	row := models.PlaybackActivity{
		Date:     time.Now(),
		UserID:   ev.User.ID,
		UserName: ev.User.Name,
		ItemID:   ev.Item.ID,
		ItemName: ItemTitle(ev.Item),
		ItemType: ev.Item.Type,
		Duration: int(ev.Item.RunTimeTicks / 10_000_000),
	}
	if ev.Session != nil {
		row.Client = ev.Session.Client
		row.DeviceName = ev.Session.DeviceName
	}
	if err := r.db.Create(&row).Error; err != nil {
		r.log.Error().Err(err).Msg("record playback failed")
	}
}

func (r *Relay) notifyPlaybackStart(ctx context.Context, ev Event) {
	if ev.Item == nil {
		return
	}
	s := emby.Session{UserName: ev.User.Name, NowPlayingItem: ev.Item}
	if ev.Session != nil {
		s.Client = ev.Session.Client
		s.DeviceName = ev.Session.DeviceName
	}
	r.send(ctx, OutboundMessage{Text: BuildPlaybackCaption(s)})
}
