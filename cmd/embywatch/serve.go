package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/embywatch/embywatch/internal/emby"
	"github.com/embywatch/embywatch/internal/notifier"
	"github.com/embywatch/embywatch/internal/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	var (
		configPath   string
		port         int
		withNotifier bool
		debug        bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Long:  "Serves the dashboard API, admin API, inbound webhook, image proxy, and the SSE now-playing stream. With --with-notifier the chat notifier daemon runs in the same process and shares the webhook relay.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port, withNotifier, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.Flags().IntVarP(&port, "port", "p", 8096, "HTTP listen port")
	cmd.Flags().BoolVar(&withNotifier, "with-notifier", false, "run the notifier daemon in-process")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int, withNotifier, debug bool) error {
	log := newLogger(debug)

	store, err := openStore(configPath)
	if err != nil {
		return err
	}
	gormDB, err := openDB(store)
	if err != nil {
		return err
	}
	embyClient := emby.New(store)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := server.StartOpts{
		Store: store,
		DB:    gormDB,
		Emby:  embyClient,
		Log:   log,
		Port:  port,
		Out:   cmd.OutOrStdout(),
	}

	g, ctx := errgroup.WithContext(ctx)

	if withNotifier {
		primary, extras, err := buildAdapters(store, log)
		if err != nil {
			return err
		}
		daemon, err := notifier.NewDaemon(notifier.DaemonOpts{
			Store:   store,
			DB:      gormDB,
			Server:  embyClient,
			Adapter: primary,
			Extras:  extras,
			Log:     log,
		})
		if err != nil {
			return err
		}
		// Webhook events feed the same relay the daemon notifies through.
		opts.Relay = daemon.Relay()
		g.Go(func() error {
			return daemon.Run(ctx)
		})
	} else {
		// Server-only mode still records webhook playback events; outbound
		// notifications are silently dropped.
		relay, err := notifier.NewRelay(notifier.RelayOpts{
			Store: store,
			DB:    gormDB,
			Items: embyClient,
			Send:  func(ctx context.Context, msg notifier.OutboundMessage) {},
			Log:   log,
		})
		if err != nil {
			return err
		}
		opts.Relay = relay
	}

	g.Go(func() error {
		return server.Start(ctx, opts)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "embywatch stopped")
	return nil
}
