package notifier

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/embywatch/embywatch/internal/config"
	"github.com/embywatch/embywatch/internal/emby"
	"github.com/embywatch/embywatch/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fakeItemSource serves canned items and images.
type fakeItemSource struct {
	items    map[string]*emby.Item
	imageErr error
}

func (f *fakeItemSource) Item(ctx context.Context, id string) (*emby.Item, error) {
	item, ok := f.items[id]
	if !ok {
		return nil, fmt.Errorf("item %s not found", id)
	}
	return item, nil
}

func (f *fakeItemSource) Image(ctx context.Context, itemID string) ([]byte, string, error) {
	if f.imageErr != nil {
		return nil, "", f.imageErr
	}
	return []byte{1, 2, 3}, "image/jpeg", nil
}

func openRelayTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.PlaybackActivity{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

func newTestRelay(t *testing.T, db *gorm.DB, store *config.Store, items ItemSource, rec *sentRecorder) *Relay {
	t.Helper()
	r, err := NewRelay(RelayOpts{
		Store: store,
		DB:    db,
		Items: items,
		Send:  rec.send,
		Grace: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return r
}

func withPrimary(item *emby.Item) *emby.Item {
	item.ImageTags.Primary = "tag"
	return item
}

// newItemStore returns a settings store with new-item notifications on.
func newItemStore() *config.Store {
	return config.NewStoreWith("", &config.Config{Notify: config.NotifyConfig{OnNewItem: true}})
}

func TestRelay_ItemAddedSendsPhotoCaption(t *testing.T) {
	db := openRelayTestDB(t)
	rec := &sentRecorder{}
	items := &fakeItemSource{items: map[string]*emby.Item{
		"i1": withPrimary(&emby.Item{ID: "i1", Type: "Movie", Name: "Heat", Overview: "Crime epic."}),
	}}
	r := newTestRelay(t, db, newItemStore(), items, rec)

	r.HandleEvent(context.Background(), Event{Event: "item.added", Item: &emby.Item{ID: "i1"}})

	if rec.count() != 1 {
		t.Fatalf("sent = %d, want 1", rec.count())
	}
	msg := rec.msgs[0]
	if len(msg.PhotoData) == 0 {
		t.Error("expected photo data attached")
	}
	if !strings.Contains(msg.Text, "Heat") {
		t.Errorf("caption = %q, want item name", msg.Text)
	}
}

func TestRelay_SeasonSuppressed(t *testing.T) {
	db := openRelayTestDB(t)
	rec := &sentRecorder{}
	items := &fakeItemSource{items: map[string]*emby.Item{
		"s1": {ID: "s1", Type: "Season", Name: "Season 2"},
	}}
	r := newTestRelay(t, db, newItemStore(), items, rec)

	r.HandleEvent(context.Background(), Event{Event: "library.new", Item: &emby.Item{ID: "s1"}})

	if rec.count() != 0 {
		t.Errorf("sent = %d, want 0 (Season items are suppressed)", rec.count())
	}
}

func TestRelay_ImageFailureFallsBackToText(t *testing.T) {
	db := openRelayTestDB(t)
	rec := &sentRecorder{}
	items := &fakeItemSource{
		items: map[string]*emby.Item{
			"i1": withPrimary(&emby.Item{ID: "i1", Type: "Movie", Name: "Heat"}),
		},
		imageErr: fmt.Errorf("image unavailable"),
	}
	r := newTestRelay(t, db, newItemStore(), items, rec)

	r.HandleEvent(context.Background(), Event{Event: "item.added", Item: &emby.Item{ID: "i1"}})

	if rec.count() != 1 {
		t.Fatalf("sent = %d, want 1", rec.count())
	}
	if rec.msgs[0].IsPhoto() {
		t.Error("expected text-only message when the image fetch fails")
	}
}

func TestRelay_PlaybackStartRecordsActivity(t *testing.T) {
	db := openRelayTestDB(t)
	rec := &sentRecorder{}
	store := config.NewStoreWith("", &config.Config{Notify: config.NotifyConfig{OnPlay: true}})
	r := newTestRelay(t, db, store, nil, rec)

	ev := Event{Event: "playback.start", Item: &emby.Item{ID: "i1", Name: "Heat", Type: "Movie", RunTimeTicks: 60 * 10_000_000}}
	ev.User.ID = "u1"
	ev.User.Name = "alice"
	r.HandleEvent(context.Background(), ev)

	var rows []models.PlaybackActivity
	if err := db.Find(&rows).Error; err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("activity rows = %d, want 1", len(rows))
	}
	if rows[0].UserName != "alice" || rows[0].Duration != 60 {
		t.Errorf("row = %+v", rows[0])
	}
	if rec.count() != 1 {
		t.Errorf("sent = %d, want 1 (on_play enabled)", rec.count())
	}
}

func TestRelay_PlaybackStopDoesNotDoubleCount(t *testing.T) {
	db := openRelayTestDB(t)
	rec := &sentRecorder{}
	store := config.NewStoreWith("", &config.Config{Notify: config.NotifyConfig{OnPlay: true}})
	r := newTestRelay(t, db, store, nil, rec)

	item := &emby.Item{ID: "i1", Name: "Heat", Type: "Movie"}
	r.HandleEvent(context.Background(), Event{Event: "playback.start", Item: item})
	r.HandleEvent(context.Background(), Event{Event: "playback.stop", Item: item})

	var count int64
	db.Model(&models.PlaybackActivity{}).Count(&count)
	if count != 1 {
		t.Errorf("activity rows = %d, want 1 (one session is one play)", count)
	}
	if rec.count() != 1 {
		t.Errorf("sent = %d, want 1 (stop never notifies)", rec.count())
	}
}

func TestRelay_ItemAddedSuppressedWhenToggleOff(t *testing.T) {
	db := openRelayTestDB(t)
	rec := &sentRecorder{}
	items := &fakeItemSource{items: map[string]*emby.Item{
		"i1": {ID: "i1", Type: "Movie", Name: "Heat"},
	}}
	store := config.NewStoreWith("", &config.Config{Notify: config.NotifyConfig{OnNewItem: false}})
	r := newTestRelay(t, db, store, items, rec)

	r.HandleEvent(context.Background(), Event{Event: "item.added", Item: &emby.Item{ID: "i1"}})
	r.HandleEvent(context.Background(), Event{Event: "library.new", Item: &emby.Item{ID: "i1"}})

	if rec.count() != 0 {
		t.Errorf("sent = %d, want 0 (notify.on_new_item disabled)", rec.count())
	}
}

func TestRelay_UnknownEventIgnored(t *testing.T) {
	db := openRelayTestDB(t)
	rec := &sentRecorder{}
	r := newTestRelay(t, db, config.NewStoreWith("", nil), nil, rec)

	r.HandleEvent(context.Background(), Event{Event: "system.wakeup"})
	if rec.count() != 0 {
		t.Errorf("sent = %d, want 0", rec.count())
	}
}

func TestRelay_MissingItemDetailsStillNotifies(t *testing.T) {
	db := openRelayTestDB(t)
	rec := &sentRecorder{}
	items := &fakeItemSource{items: map[string]*emby.Item{}}
	r := newTestRelay(t, db, newItemStore(), items, rec)

	r.HandleEvent(context.Background(), Event{Event: "item.added", Item: &emby.Item{ID: "gone", Name: "Partial", Type: "Movie"}})

	if rec.count() != 1 {
		t.Fatalf("sent = %d, want 1 (falls back to webhook payload)", rec.count())
	}
	if !strings.Contains(rec.msgs[0].Text, "Partial") {
		t.Errorf("caption = %q", rec.msgs[0].Text)
	}
}
