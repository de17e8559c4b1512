package notifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/embywatch/embywatch/internal/config"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// MediaServer is the slice of the Emby client the daemon needs.
type MediaServer interface {
	SessionSource
	UserDisabler
	ItemSource
}

// Daemon owns the three long-running loops: inbound command polling, the
// live-session monitor, and the minute-granularity scheduler. All loops
// are started together by Run and stopped together when the context is
// cancelled; each loop owns its mutable state exclusively, so there is no
// inter-loop locking.
type Daemon struct {
	store   *config.Store
	db      *gorm.DB
	server  MediaServer
	adapter Adapter
	extras  []Adapter
	log     zerolog.Logger

	monitorInterval time.Duration
	schedulerPoll   time.Duration

	relay *Relay
}

// DaemonOpts holds parameters for creating a Daemon.
type DaemonOpts struct {
	Store   *config.Store
	DB      *gorm.DB
	Server  MediaServer
	Adapter Adapter   // primary platform, carries inbound commands
	Extras  []Adapter // outbound-only notification targets
	Log     zerolog.Logger

	MonitorInterval time.Duration // defaults to DefaultMonitorInterval
	SchedulerPoll   time.Duration // defaults to DefaultSchedulerPoll
	Grace           time.Duration // relay grace period
}

// NewDaemon creates a Daemon.
func NewDaemon(opts DaemonOpts) (*Daemon, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("notifier: store is required")
	}
	if opts.DB == nil {
		return nil, fmt.Errorf("notifier: db is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("notifier: adapter is required")
	}
	d := &Daemon{
		store:           opts.Store,
		db:              opts.DB,
		server:          opts.Server,
		adapter:         opts.Adapter,
		extras:          opts.Extras,
		log:             opts.Log,
		monitorInterval: opts.MonitorInterval,
		schedulerPoll:   opts.SchedulerPoll,
	}

	var items ItemSource
	if opts.Server != nil {
		items = opts.Server
	}
	relay, err := NewRelay(RelayOpts{
		Store: opts.Store,
		DB:    opts.DB,
		Items: items,
		Send:  d.Broadcast,
		Log:   opts.Log,
		Grace: opts.Grace,
	})
	if err != nil {
		return nil, err
	}
	d.relay = relay
	return d, nil
}

// Relay returns the event relay, shared with the webhook handler.
func (d *Daemon) Relay() *Relay {
	return d.relay
}

// Broadcast sends a message to the primary adapter and every extra target.
// Delivery failures are logged and dropped per adapter.
func (d *Daemon) Broadcast(ctx context.Context, msg OutboundMessage) {
	if err := d.adapter.Send(ctx, msg); err != nil {
		d.log.Warn().Err(err).Msg("send failed")
	}
	for _, a := range d.extras {
		extra := msg
		extra.ChatID = "" // extras always post to their configured channel
		if err := a.Send(ctx, extra); err != nil {
			d.log.Warn().Err(err).Msg("send to extra target failed")
		}
	}
}

// Run starts all loops and blocks until ctx is cancelled. On shutdown the
// adapters are closed; worst-case shutdown latency is the remaining
// timeout of whichever outbound call is in flight.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("notifier: connect: %w", err)
	}
	for _, a := range d.extras {
		if err := a.Connect(ctx); err != nil {
			d.log.Warn().Err(err).Msg("extra target connect failed")
		}
	}

	inbound, err := d.adapter.Listen(ctx)
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("notifier: listen: %w", err)
	}

	router, err := NewRouter(RouterOpts{
		Store:    d.store,
		DB:       d.db,
		Sessions: d.sessionSource(),
		Log:      d.log,
	})
	if err != nil {
		d.adapter.Close()
		return err
	}

	scheduler, err := NewScheduler(SchedulerOpts{
		DB:       d.db,
		Store:    d.store,
		Disabler: d.userDisabler(),
		Send:     d.Broadcast,
		Log:      d.log,
		Poll:     d.schedulerPoll,
	})
	if err != nil {
		d.adapter.Close()
		return err
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-inbound:
				if !ok {
					return
				}
				router.Handle(ctx, msg, d.Broadcast)
			}
		}
	}()

	if src := d.sessionSource(); src != nil {
		monitor, err := NewMonitor(MonitorOpts{
			Source:   src,
			Interval: d.monitorInterval,
			Log:      d.log,
		})
		if err != nil {
			d.adapter.Close()
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			monitor.Run(ctx, d.Broadcast)
		}()
	} else {
		d.log.Info().Msg("media server not configured; session monitor disabled")
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		scheduler.Run(ctx)
	}()

	d.log.Info().Msg("notifier online")

	<-ctx.Done()
	if err := d.adapter.Close(); err != nil {
		d.log.Warn().Err(err).Msg("close adapter")
	}
	for _, a := range d.extras {
		a.Close()
	}
	wg.Wait()
	d.log.Info().Msg("notifier stopped")
	return nil
}

func (d *Daemon) sessionSource() SessionSource {
	if d.server == nil {
		return nil
	}
	return d.server
}

func (d *Daemon) userDisabler() UserDisabler {
	if d.server == nil {
		return nil
	}
	return d.server
}
