package notifier

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/embywatch/embywatch/internal/config"
	"github.com/embywatch/embywatch/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// recordingDisabler records disable calls and optionally fails per user.
type recordingDisabler struct {
	mu       sync.Mutex
	disabled []string
	failFor  map[string]bool
}

func (r *recordingDisabler) SetUserDisabled(ctx context.Context, userID string, disabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFor[userID] {
		return fmt.Errorf("server unavailable")
	}
	r.disabled = append(r.disabled, userID)
	return nil
}

func openSchedulerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.PlaybackActivity{}, &models.UserMetadata{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

type sentRecorder struct {
	mu   sync.Mutex
	msgs []OutboundMessage
}

func (r *sentRecorder) send(ctx context.Context, msg OutboundMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *sentRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func newTestScheduler(t *testing.T, db *gorm.DB, store *config.Store, disabler UserDisabler, rec *sentRecorder) *Scheduler {
	t.Helper()
	s, err := NewScheduler(SchedulerOpts{
		DB:       db,
		Store:    store,
		Disabler: disabler,
		Send:     rec.send,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return s
}

func TestScheduler_DailyJobsFireOnceThroughBoundaryMinute(t *testing.T) {
	db := openSchedulerTestDB(t)
	store := config.NewStoreWith("", &config.Config{
		Telegram: config.TelegramConfig{ChatID: "42"},
	})
	rec := &sentRecorder{}
	s := newTestScheduler(t, db, store, nil, rec)

	// Poll every 5 seconds across the whole 09:00 minute.
	base := time.Date(2024, 1, 1, 8, 59, 55, 0, time.Local)
	for i := 0; i < 20; i++ {
		s.Tick(context.Background(), base.Add(time.Duration(i*5)*time.Second))
	}
	if rec.count() != 1 {
		t.Errorf("daily push fired %d times, want exactly 1", rec.count())
	}
}

func TestScheduler_NoFireOutsideDailyMinute(t *testing.T) {
	db := openSchedulerTestDB(t)
	store := config.NewStoreWith("", &config.Config{
		Telegram: config.TelegramConfig{ChatID: "42"},
	})
	rec := &sentRecorder{}
	s := newTestScheduler(t, db, store, nil, rec)

	s.Tick(context.Background(), time.Date(2024, 1, 1, 14, 30, 0, 0, time.Local))
	if rec.count() != 0 {
		t.Errorf("push fired outside 09:00, count = %d", rec.count())
	}
}

func TestScheduler_ExpirationSweepBoundary(t *testing.T) {
	db := openSchedulerTestDB(t)
	rows := []models.UserMetadata{
		{UserID: "past", ExpireDate: "2020-01-01"},
		{UserID: "future", ExpireDate: "2999-01-01"},
		{UserID: "never", ExpireDate: ""},
		{UserID: "today", ExpireDate: "2024-01-01"},
	}
	if err := db.Create(&rows).Error; err != nil {
		t.Fatal(err)
	}

	store := config.NewStoreWith("", nil)
	disabler := &recordingDisabler{}
	rec := &sentRecorder{}
	s := newTestScheduler(t, db, store, disabler, rec)

	today := time.Date(2024, 1, 1, 9, 0, 0, 0, time.Local)
	s.runSweep(context.Background(), today)

	if len(disabler.disabled) != 1 || disabler.disabled[0] != "past" {
		t.Errorf("disabled = %v, want exactly [past] (strictly-before-today)", disabler.disabled)
	}
}

func TestScheduler_SweepFailureDoesNotBlockOthers(t *testing.T) {
	db := openSchedulerTestDB(t)
	rows := []models.UserMetadata{
		{UserID: "a", ExpireDate: "2020-01-01"},
		{UserID: "b", ExpireDate: "2020-02-01"},
	}
	if err := db.Create(&rows).Error; err != nil {
		t.Fatal(err)
	}

	disabler := &recordingDisabler{failFor: map[string]bool{"a": true}}
	rec := &sentRecorder{}
	s := newTestScheduler(t, db, config.NewStoreWith("", nil), disabler, rec)

	s.runSweep(context.Background(), time.Date(2024, 1, 1, 9, 0, 0, 0, time.Local))
	if len(disabler.disabled) != 1 || disabler.disabled[0] != "b" {
		t.Errorf("disabled = %v, want [b] despite a failing", disabler.disabled)
	}
}

func TestScheduler_ScheduledPushMatchesCron(t *testing.T) {
	db := openSchedulerTestDB(t)
	store := config.NewStoreWith("", &config.Config{
		ScheduledPushes: []config.ScheduledPush{
			{ID: "p1", UserID: "777", Period: "30 18 * * *", Theme: "weekly"},
		},
	})
	rec := &sentRecorder{}
	s := newTestScheduler(t, db, store, nil, rec)

	s.Tick(context.Background(), time.Date(2024, 1, 1, 18, 29, 0, 0, time.Local))
	if rec.count() != 0 {
		t.Fatalf("push fired a minute early")
	}
	s.Tick(context.Background(), time.Date(2024, 1, 1, 18, 30, 3, 0, time.Local))
	if rec.count() != 1 {
		t.Fatalf("push count = %d, want 1", rec.count())
	}
	rec.mu.Lock()
	got := rec.msgs[0]
	rec.mu.Unlock()
	if got.ChatID != "777" {
		t.Errorf("ChatID = %q, want push user id", got.ChatID)
	}
}

func TestCronMatches(t *testing.T) {
	at := time.Date(2024, 1, 1, 9, 0, 30, 0, time.Local) // Monday
	cases := []struct {
		expr string
		want bool
	}{
		{"0 9 * * *", true},
		{"0 9 * * 1", true},  // Monday
		{"0 9 * * 2", false}, // Tuesday
		{"1 9 * * *", false},
		{"not a cron", false},
	}
	for _, c := range cases {
		if got := cronMatches(c.expr, at); got != c.want {
			t.Errorf("cronMatches(%q) = %v, want %v", c.expr, got, c.want)
		}
	}
}
