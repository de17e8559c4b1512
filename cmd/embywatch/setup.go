package main

import (
	"fmt"
	"os"
	"time"

	"github.com/embywatch/embywatch/internal/config"
	"github.com/embywatch/embywatch/internal/db"
	"github.com/embywatch/embywatch/internal/notifier"
	"github.com/embywatch/embywatch/internal/notifier/discord"
	"github.com/embywatch/embywatch/internal/notifier/slack"
	"github.com/embywatch/embywatch/internal/notifier/telegram"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const defaultConfigPath = "embywatch.yaml"

// newLogger builds the process logger writing to stderr.
func newLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Logger()
}

// openStore loads the settings store from the config file.
func openStore(configPath string) (*config.Store, error) {
	store, err := config.NewStore(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	return store, nil
}

// openDB connects to the activity database and migrates the schema.
func openDB(store *config.Store) (*gorm.DB, error) {
	cfg := store.Snapshot()
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return nil, err
	}
	return gormDB, nil
}

// buildAdapters creates the primary Telegram adapter plus any configured
// outbound-only extras. Telegram is required: it carries inbound commands.
func buildAdapters(store *config.Store, log zerolog.Logger) (notifier.Adapter, []notifier.Adapter, error) {
	cfg := store.Snapshot()
	if cfg.Telegram.Token == "" {
		return nil, nil, fmt.Errorf("telegram.token is required for the notifier")
	}
	primary, err := telegram.New(telegram.AdapterOpts{Store: store, Log: log})
	if err != nil {
		return nil, nil, err
	}

	var extras []notifier.Adapter
	if cfg.Discord.Token != "" && cfg.Discord.Channel != "" {
		d, err := discord.New(discord.AdapterOpts{
			BotToken:  cfg.Discord.Token,
			ChannelID: cfg.Discord.Channel,
		})
		if err != nil {
			return nil, nil, err
		}
		extras = append(extras, d)
	}
	if cfg.Slack.BotToken != "" && cfg.Slack.Channel != "" {
		s, err := slack.New(slack.AdapterOpts{
			BotToken:  cfg.Slack.BotToken,
			ChannelID: cfg.Slack.Channel,
		})
		if err != nil {
			return nil, nil, err
		}
		extras = append(extras, s)
	}
	return primary, extras, nil
}
