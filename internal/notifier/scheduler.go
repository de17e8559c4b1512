package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/embywatch/embywatch/internal/config"
	"github.com/embywatch/embywatch/internal/models"
	"github.com/embywatch/embywatch/internal/stats"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Scheduler timing defaults.
const (
	DefaultSchedulerPoll = 5 * time.Second
	dailyJobHour         = 9
	dailyJobMinute       = 0
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom,
// month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// cronMatches reports whether a 5-field cron expression fires at t,
// compared at minute granularity. Returns false on parse error.
func cronMatches(expr string, t time.Time) bool {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return false
	}
	minute := t.Truncate(time.Minute)
	return sched.Next(minute.Add(-time.Second)).Equal(minute)
}

// UserDisabler abstracts the Emby disable-account call for testability.
type UserDisabler interface {
	SetUserDisabled(ctx context.Context, userID string, disabled bool) error
}

// Scheduler fires wall-clock-triggered jobs at most once per minute: the
// 09:00 expiration sweep and daily report, plus administrator-defined
// scheduled pushes matched by cron expression. There are no catch-up
// semantics: minutes that pass while the process is down are skipped.
type Scheduler struct {
	db       *gorm.DB
	store    *config.Store
	disabler UserDisabler
	send     func(ctx context.Context, msg OutboundMessage)
	log      zerolog.Logger
	now      func() time.Time
	poll     time.Duration

	// lastMinute is the last minute boundary acted on, guaranteeing at
	// most one firing per minute under frequent polling.
	lastMinute time.Time
}

// SchedulerOpts holds parameters for creating a Scheduler.
type SchedulerOpts struct {
	DB       *gorm.DB
	Store    *config.Store
	Disabler UserDisabler
	Send     func(ctx context.Context, msg OutboundMessage)
	Log      zerolog.Logger
	Now      func() time.Time // defaults to time.Now
	Poll     time.Duration    // defaults to DefaultSchedulerPoll
}

// NewScheduler creates a Scheduler.
func NewScheduler(opts SchedulerOpts) (*Scheduler, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("notifier: scheduler: db is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("notifier: scheduler: store is required")
	}
	if opts.Send == nil {
		return nil, fmt.Errorf("notifier: scheduler: send func is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	poll := opts.Poll
	if poll <= 0 {
		poll = DefaultSchedulerPoll
	}
	return &Scheduler{
		db:       opts.DB,
		store:    opts.Store,
		disabler: opts.Disabler,
		send:     opts.Send,
		log:      opts.Log,
		now:      now,
		poll:     poll,
	}, nil
}

// Run polls the wall clock until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx, s.now())
		}
	}
}

// Tick acts on the minute boundary containing t. Repeated calls within the
// same minute are no-ops.
func (s *Scheduler) Tick(ctx context.Context, t time.Time) {
	minute := t.Truncate(time.Minute)
	if minute.Equal(s.lastMinute) {
		return
	}
	s.lastMinute = minute

	cfg := s.store.Snapshot()

	if t.Hour() == dailyJobHour && t.Minute() == dailyJobMinute {
		s.runSweep(ctx, t)
		if cfg.Telegram.ChatID != "" {
			s.sendReport(ctx, "daily", cfg.Telegram.ChatID)
		}
	}

	for _, push := range cfg.ScheduledPushes {
		if !cronMatches(push.Period, t) {
			continue
		}
		target := push.UserID
		if target == "" {
			target = cfg.Telegram.ChatID
		}
		s.sendReport(ctx, push.Theme, target)
	}
}

// runSweep disables every account whose expiration date is strictly before
// today. Per-user failures are logged and skipped so one failure does not
// block the sweep; disabling an already-disabled account is a no-op.
func (s *Scheduler) runSweep(ctx context.Context, today time.Time) {
	if s.disabler == nil {
		return
	}
	expired, err := s.ExpiredUsers(today)
	if err != nil {
		s.log.Error().Err(err).Msg("expiration sweep query failed")
		return
	}
	for _, meta := range expired {
		if err := s.disabler.SetUserDisabled(ctx, meta.UserID, true); err != nil {
			s.log.Warn().Err(err).Str("user", meta.UserID).Msg("disable expired user failed")
			continue
		}
		s.log.Info().Str("user", meta.UserID).Str("expired", meta.ExpireDate).Msg("expired user disabled")
	}
}

// ExpiredUsers returns metadata rows whose non-empty expiration date is
// strictly earlier than today's date.
func (s *Scheduler) ExpiredUsers(today time.Time) ([]models.UserMetadata, error) {
	var rows []models.UserMetadata
	cutoff := today.Format("2006-01-02")
	err := s.db.
		Where("expire_date != '' AND expire_date < ?", cutoff).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Scheduler) sendReport(ctx context.Context, theme, target string) {
	cfg := s.store.Snapshot()
	text, err := stats.BuildReport(stats.NewQuery(s.db, cfg.HiddenUsers), theme)
	if err != nil {
		s.log.Error().Err(err).Str("theme", theme).Msg("build report failed")
		return
	}
	s.send(ctx, OutboundMessage{ChatID: target, Text: text})
}
