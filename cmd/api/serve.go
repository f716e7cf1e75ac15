package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/melih/lighthouse-classroom/internal/adapters/http"
	"github.com/melih/lighthouse-classroom/internal/adapters/watcher"
	"github.com/melih/lighthouse-classroom/internal/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and render proxy",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := log.WithComponent("server")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.engine.Ping(ctx); err != nil {
			logger.Warn().Err(err).Msg("container engine not reachable yet")
		}

		app := httpadapter.NewApp(httpadapter.Deps{
			Resources:   a.resources,
			Coordinator: a.coordinator,
			Registry:    a.registry,
			Engine:      a.engine,
			ProxyHost:   cfg.Proxy.Host,
			BodyLimit:   cfg.Server.BodyLimit,
		})

		g, gctx := errgroup.WithContext(ctx)

		if cfg.Watch.Enabled {
			w := watcher.New(a.resources.MediaRoot(), a.resources, cfg.Watch.Debounce)
			g.Go(func() error {
				if err := w.Run(gctx); err != nil {
					logger.Error().Err(err).Msg("content watcher stopped")
					return err
				}
				return nil
			})
		}

		g.Go(func() error {
			logger.Info().Str("addr", cfg.Server.Addr).Msg("Server starting")
			return app.Listen(cfg.Server.Addr)
		})

		g.Go(func() error {
			<-gctx.Done()
			logger.Info().Msg("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Engine.Timeout)
			defer cancel()
			return app.ShutdownWithContext(shutdownCtx)
		})

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().String("addr", ":3000", "Address to listen on")
	serveCmd.Flags().Bool("watch", false, "Flag rebuilds when content files change on disk")
	serveCmd.Flags().String("proxy-host", "127.0.0.1", "Host published container ports are reached on")

	for key, flag := range map[string]string{
		"server.addr":   "addr",
		"watch.enabled": "watch",
		"proxy.host":    "proxy-host",
	} {
		if err := v.BindPFlag(key, serveCmd.Flags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
}
