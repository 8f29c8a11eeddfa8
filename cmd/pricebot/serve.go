package main

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/pricebot/internal/certs"
	"github.com/Veraticus/pricebot/internal/common"
	"github.com/Veraticus/pricebot/internal/dialog"
	"github.com/Veraticus/pricebot/internal/dispatch"
	"github.com/Veraticus/pricebot/internal/server"
	"github.com/Veraticus/pricebot/internal/telegram"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot",
		Long: `Poll Telegram for updates and answer them until interrupted.

The ops server exposes /healthz and /metrics on http.address unless it is empty.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg := appConfig
	logger := appLogger()

	if err := cfg.RequireToken(); err != nil {
		return err
	}

	store, err := initStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	sessions, closeSessions, err := initSessions(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSessions()

	bot, err := telegram.NewBot(telegram.Options{
		Token:       cfg.Telegram.Token,
		PollTimeout: cfg.Telegram.PollTimeout,
		Debug:       cfg.Telegram.Debug,
	}, logger)
	if err != nil {
		return err
	}

	router := newRouter(store, sessions, cfg)
	dispatcher := dispatch.New(router, bot, logger, dispatch.Options{
		MaxConcurrent: cfg.Dialog.MaxConcurrentTurns,
		TurnTimeout:   cfg.Dialog.TurnTimeout,
	})

	logger.Info("Starting pricebot", common.Fields{
		"database":        cfg.Database.Driver,
		"session_backend": cfg.Session.Backend,
		"http":            cfg.HTTP.Address,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bot.Run(gctx, draining{dispatcher})
	})
	if cfg.HTTP.Address != "" {
		var opts []server.Option
		if cfg.HTTP.TLS.Enabled {
			opts = append(opts, server.WithTLS(certs.NewFileManager(cfg.HTTP.TLS.CertDir, cfg.HTTP.TLS.Hosts...)))
		}
		srv := server.New(cfg.HTTP.Address, store, logger, opts...)
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	err = g.Wait()
	dispatcher.Wait()
	logger.Info("pricebot stopped", nil)
	return err
}

// draining lets turns already accepted finish after shutdown begins.
type draining struct {
	d *dispatch.Dispatcher
}

func (d draining) Dispatch(ctx context.Context, ev dialog.Event) {
	d.d.Dispatch(context.WithoutCancel(ctx), ev)
}
