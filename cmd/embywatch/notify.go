package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/embywatch/embywatch/internal/emby"
	"github.com/embywatch/embywatch/internal/notifier"
	"github.com/spf13/cobra"
)

func newNotifyCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Run the chat notifier daemon",
		Long:  "Runs the notifier loops alone: inbound command polling, the live-session monitor, and the scheduler for expiration sweeps and report pushes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNotify(cmd, configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	return cmd
}

func runNotify(cmd *cobra.Command, configPath string, debug bool) error {
	log := newLogger(debug)

	store, err := openStore(configPath)
	if err != nil {
		return err
	}
	gormDB, err := openDB(store)
	if err != nil {
		return err
	}

	primary, extras, err := buildAdapters(store, log)
	if err != nil {
		return err
	}

	var mediaServer notifier.MediaServer
	if store.Snapshot().Emby.Host != "" {
		mediaServer = emby.New(store)
	}

	daemon, err := notifier.NewDaemon(notifier.DaemonOpts{
		Store:   store,
		DB:      gormDB,
		Server:  mediaServer,
		Adapter: primary,
		Extras:  extras,
		Log:     log,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintln(cmd.OutOrStdout(), "notifier running; press Ctrl-C to stop")
	if err := daemon.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "notifier stopped")
	return nil
}
