package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"toposync/internal/collector"
	"toposync/internal/events"
	"toposync/internal/handler"
	"toposync/internal/orchestrator"
	"toposync/internal/watcher"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server, scheduler and seed watcher",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.Close()
			if addr != "" {
				a.cfg.HTTP.Addr = addr
			}
			return serve(cmd.Context(), a)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")
	return cmd
}

func serve(parent context.Context, a *app) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.log.Info().Msg("starting toposync")
	a.log.Info().Msg(a.cfg.Summary())

	g, ctx := errgroup.WithContext(ctx)

	hub := events.NewHub(a.log)
	g.Go(func() error { hub.Run(ctx); return nil })
	g.Go(func() error { hub.Forward(ctx, a.bus); return nil })

	if a.cfg.NATS.URL != "" {
		fwd, err := events.NewNATSForwarder(events.NATSConfig{URL: a.cfg.NATS.URL, Subject: a.cfg.NATS.Subject}, a.log)
		if err != nil {
			return err
		}
		defer fwd.Close()
		g.Go(func() error { fwd.Forward(ctx, a.bus); return nil })
	}

	opts := []handler.Option{
		handler.WithEvents(hub),
		handler.WithProber(collector.NewProber(a.cfg.Probe.Timeout.Duration(), a.log)),
	}

	if path := a.cfg.Seed.Path; path != "" {
		reloader := watcher.NewSeedReloader(a.loader, path, a.bus, a.log)
		if _, err := reloader.Reload(ctx); err != nil {
			return err
		}
		opts = append(opts, handler.WithSeedReloader(reloader))
		if a.cfg.Seed.Watch {
			g.Go(func() error {
				if err := reloader.Watch(ctx); !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
		}
	}

	sched, err := orchestrator.NewScheduler(a.orch, a.repo, schedulesFrom(a.cfg), a.log)
	if err != nil {
		return err
	}
	sched.Start(ctx)

	api := handler.New(a.repo, a.orch, a.providers, a.log, opts...)
	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g.Go(func() error {
		a.log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		a.log.Info().Msg("shutting down")
		sched.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout.Duration())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Warn().Err(err).Msg("server shutdown")
		}
		if err := a.orch.Shutdown(shutdownCtx); err != nil {
			a.log.Warn().Err(err).Msg("jobs did not stop in time")
		}
		return nil
	})

	err = g.Wait()
	a.log.Info().Msg("server stopped")
	return err
}
