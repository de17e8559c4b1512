// Package config provides YAML-based configuration loading for embywatch.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level embywatch configuration, loaded from embywatch.yaml.
// It doubles as the mutable settings record: administrative requests change
// fields through Store and the whole file is rewritten on each mutation.
type Config struct {
	Emby     EmbyConfig     `yaml:"emby"`
	Database DatabaseConfig `yaml:"database"`
	Telegram TelegramConfig `yaml:"telegram"`
	Discord  DiscordConfig  `yaml:"discord"`
	Slack    SlackConfig    `yaml:"slack"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Admin    AdminConfig    `yaml:"admin"`
	Notify   NotifyConfig   `yaml:"notify"`

	// HiddenUsers are excluded from every stats query and report.
	HiddenUsers []string `yaml:"hidden_users"`

	// ScheduledPushes are administrator-defined recurring report deliveries.
	ScheduledPushes []ScheduledPush `yaml:"scheduled_pushes"`
}

// EmbyConfig holds connection settings for the Emby server.
type EmbyConfig struct {
	Host   string `yaml:"host"`
	APIKey string `yaml:"api_key"`
}

// DatabaseConfig selects the activity store backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" (default) or "mysql"
	Path   string `yaml:"path"`   // sqlite file path
	Host   string `yaml:"host"`   // mysql only
	Port   int    `yaml:"port"`   // mysql only
	Name   string `yaml:"name"`   // mysql database name
	User   string `yaml:"user"`   // mysql user
}

// TelegramConfig holds the primary chat platform settings. Telegram is the
// only platform that accepts inbound commands.
type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID string `yaml:"chat_id"` // admin chat; also the default push target
	Proxy  string `yaml:"proxy"`   // optional outbound proxy URL
}

// DiscordConfig holds settings for the optional Discord notification target.
type DiscordConfig struct {
	Token   string `yaml:"token"`
	Channel string `yaml:"channel"`
}

// SlackConfig holds settings for the optional Slack notification target.
type SlackConfig struct {
	AppToken string `yaml:"app_token"`
	BotToken string `yaml:"bot_token"`
	Channel  string `yaml:"channel"`
}

// WebhookConfig guards the inbound webhook endpoint.
type WebhookConfig struct {
	Token string `yaml:"token"` // shared secret passed as ?token=
}

// AdminConfig guards the administrative HTTP API.
type AdminConfig struct {
	Password string `yaml:"password"`
}

// NotifyConfig holds feature toggles for outbound notifications.
type NotifyConfig struct {
	OnPlay    bool `yaml:"on_play"`
	OnNewItem bool `yaml:"on_new_item"`
}

// ScheduledPush is a recurring report delivery: Period is a 5-field cron
// expression (the shorthands "daily" and "weekly" are normalized at load).
type ScheduledPush struct {
	ID     string `yaml:"id" json:"id"`
	UserID string `yaml:"user_id" json:"user_id"`
	Period string `yaml:"period" json:"period"`
	Theme  string `yaml:"theme" json:"theme"` // "daily" or "weekly" report variant
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "embywatch.db"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.Name == "" {
			c.Database.Name = "embywatch"
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
	}
	c.Emby.Host = strings.TrimRight(c.Emby.Host, "/")
	for i := range c.ScheduledPushes {
		c.ScheduledPushes[i].Period = NormalizePeriod(c.ScheduledPushes[i].Period)
		if c.ScheduledPushes[i].Theme == "" {
			c.ScheduledPushes[i].Theme = "daily"
		}
	}
}

// NormalizePeriod maps period shorthands to 5-field cron expressions.
// Unknown values pass through unchanged and are validated by the scheduler.
func NormalizePeriod(period string) string {
	switch strings.ToLower(strings.TrimSpace(period)) {
	case "daily":
		return "0 9 * * *"
	case "weekly":
		return "0 9 * * 1"
	default:
		return strings.TrimSpace(period)
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported (sqlite, mysql)", c.Database.Driver))
	}
	for i, p := range c.ScheduledPushes {
		if p.ID == "" {
			errs = append(errs, fmt.Sprintf("scheduled_pushes[%d].id is required", i))
		}
		if p.Period == "" {
			errs = append(errs, fmt.Sprintf("scheduled_pushes[%d].period is required", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
