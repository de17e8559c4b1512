package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const fullYAML = `
emby:
  host: http://10.0.0.5:8096/
  api_key: abc123

database:
  driver: mysql
  host: 10.0.0.6
  name: embywatch_prod

telegram:
  token: "12345:token"
  chat_id: "987654"
  proxy: http://127.0.0.1:7890

webhook:
  token: hook-secret

admin:
  password: hunter2

notify:
  on_play: true
  on_new_item: true

hidden_users:
  - demo
  - kiosk

scheduled_pushes:
  - id: alice-weekly
    user_id: u-1
    period: weekly
    theme: weekly
  - id: ops-custom
    user_id: u-2
    period: "30 8 * * *"
`

const minimalYAML = `
emby:
  host: http://localhost:8096
  api_key: k
`

func TestParse_FullConfig(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Emby.Host != "http://10.0.0.5:8096" {
		t.Errorf("Emby.Host = %q, want trailing slash trimmed", cfg.Emby.Host)
	}
	if cfg.Database.Driver != "mysql" {
		t.Errorf("Database.Driver = %q, want mysql", cfg.Database.Driver)
	}
	if cfg.Database.Port != 3306 {
		t.Errorf("Database.Port = %d, want 3306 (default)", cfg.Database.Port)
	}
	if cfg.Telegram.Proxy != "http://127.0.0.1:7890" {
		t.Errorf("Telegram.Proxy = %q", cfg.Telegram.Proxy)
	}
	if len(cfg.HiddenUsers) != 2 {
		t.Fatalf("len(HiddenUsers) = %d, want 2", len(cfg.HiddenUsers))
	}
	if len(cfg.ScheduledPushes) != 2 {
		t.Fatalf("len(ScheduledPushes) = %d, want 2", len(cfg.ScheduledPushes))
	}
	if cfg.ScheduledPushes[0].Period != "0 9 * * 1" {
		t.Errorf("Period = %q, want weekly shorthand expanded", cfg.ScheduledPushes[0].Period)
	}
	if cfg.ScheduledPushes[1].Period != "30 8 * * *" {
		t.Errorf("Period = %q, want raw cron kept", cfg.ScheduledPushes[1].Period)
	}
	if cfg.ScheduledPushes[1].Theme != "daily" {
		t.Errorf("Theme = %q, want daily (default)", cfg.ScheduledPushes[1].Theme)
	}
}

func TestParse_MinimalConfig_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Database.Driver = %q, want sqlite (default)", cfg.Database.Driver)
	}
	if cfg.Database.Path != "embywatch.db" {
		t.Errorf("Database.Path = %q, want embywatch.db (default)", cfg.Database.Path)
	}
}

func TestParse_BadDriver(t *testing.T) {
	_, err := Parse([]byte("database:\n  driver: oracle\n"))
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
	if !strings.Contains(err.Error(), "oracle") {
		t.Errorf("error = %v, want driver named", err)
	}
}

func TestParse_PushMissingID(t *testing.T) {
	yaml := `
scheduled_pushes:
  - user_id: u-1
    period: daily
`
	if _, err := Parse([]byte(yaml)); err == nil {
		t.Fatal("expected error for push without id")
	}
}

func TestNormalizePeriod(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"daily", "0 9 * * *"},
		{"Weekly", "0 9 * * 1"},
		{" 15 7 * * * ", "15 7 * * *"},
	}
	for _, c := range cases {
		if got := NormalizePeriod(c.in); got != c.want {
			t.Errorf("NormalizePeriod(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestStore_UpdatePersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "embywatch.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Update(func(c *Config) { c.Emby.APIKey = "rotated" }); err != nil {
		t.Fatalf("update: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Emby.APIKey != "rotated" {
		t.Errorf("APIKey = %q, want rotated (mutation not persisted)", reloaded.Emby.APIKey)
	}
}

func TestStore_AddRemovePush(t *testing.T) {
	store := NewStoreWith("", nil)

	if err := store.AddPush(ScheduledPush{ID: "p1", UserID: "u", Period: "0 9 * * *"}); err != nil {
		t.Fatal(err)
	}
	if err := store.AddPush(ScheduledPush{ID: "p1", UserID: "u2", Period: "0 9 * * *"}); err != nil {
		t.Fatal(err)
	}
	cfg := store.Snapshot()
	if len(cfg.ScheduledPushes) != 1 {
		t.Fatalf("len(ScheduledPushes) = %d, want 1 (same id replaces)", len(cfg.ScheduledPushes))
	}
	if cfg.ScheduledPushes[0].UserID != "u2" {
		t.Errorf("UserID = %q, want u2", cfg.ScheduledPushes[0].UserID)
	}

	if err := store.RemovePush("p1"); err != nil {
		t.Fatal(err)
	}
	if n := len(store.Snapshot().ScheduledPushes); n != 0 {
		t.Errorf("len(ScheduledPushes) = %d, want 0 after remove", n)
	}
}

func TestStore_MissingFileStartsEmpty(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := store.Snapshot().Database.Driver; got != "sqlite" {
		t.Errorf("Database.Driver = %q, want sqlite default", got)
	}
}
