package main

import (
	"context"
	"fmt"
	"time"

	"github.com/embywatch/embywatch/internal/emby"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check connectivity to the media server and chat platform",
		Long:  "Performs a one-shot check: lists Emby sessions and verifies the Telegram bot token, reporting what works and what does not.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}

func runStatus(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	store, err := openStore(configPath)
	if err != nil {
		return err
	}
	cfg := store.Snapshot()

	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	// Media server.
	if cfg.Emby.Host == "" {
		fmt.Fprintln(out, "Emby:     not configured")
	} else {
		client := emby.New(store)
		sessions, err := client.Sessions(ctx)
		if err != nil {
			fmt.Fprintf(out, "Emby:     UNREACHABLE (%v)\n", err)
		} else {
			playing := 0
			for _, s := range sessions {
				if s.NowPlayingItem != nil {
					playing++
				}
			}
			fmt.Fprintf(out, "Emby:     ok (%d sessions, %d playing)\n", len(sessions), playing)
		}
	}

	// Chat platform.
	if cfg.Telegram.Token == "" {
		fmt.Fprintln(out, "Telegram: not configured")
	} else {
		primary, _, err := buildAdapters(store, newLogger(false))
		if err != nil {
			fmt.Fprintf(out, "Telegram: %v\n", err)
			return nil
		}
		if err := primary.Connect(ctx); err != nil {
			fmt.Fprintf(out, "Telegram: UNREACHABLE (%v)\n", err)
		} else {
			fmt.Fprintln(out, "Telegram: ok")
			primary.Close()
		}
	}

	return nil
}
