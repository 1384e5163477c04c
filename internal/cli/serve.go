package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/kusari/internal/indexer"
	"github.com/hyperjump/kusari/internal/server"
	"github.com/hyperjump/kusari/internal/watcher"
)

// newWatcher builds a watcher over the configured directories that stores each
// settled file as a batch.
func newWatcher(c *Components) (*watcher.Watcher, error) {
	cfg := c.Config.Watch
	filter, err := indexer.NewFilter(cfg.Includes, cfg.Excludes)
	if err != nil {
		return nil, fmt.Errorf("watch patterns: %w", err)
	}
	handle := func(ctx context.Context, path string) error {
		res, err := c.Indexer.IndexBatchFile(ctx, path)
		if err != nil {
			return err
		}
		inserted, skipped := res.Counts()
		c.Logger.Info("watched file stored",
			zap.String("path", path),
			zap.Int("inserted", inserted),
			zap.Int("skipped", skipped))
		return nil
	}
	return watcher.NewWatcher(cfg.Directories, cfg.RecursiveOrDefault(), handle,
		watcher.WithLogger(c.Logger),
		watcher.WithDebounce(cfg.Debounce),
		watcher.WithFilter(filter)), nil
}

func (a *app) newServeCommand() *cobra.Command {
	var host string
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and watch the configured directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("host") {
				a.cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}
			ctx := cmd.Context()

			c, err := a.components(cmd, WithLexical())
			if err != nil {
				return err
			}
			defer c.Close()

			w, err := newWatcher(c)
			if err != nil {
				return err
			}
			if err := w.Start(ctx); err != nil {
				return fmt.Errorf("failed to start watcher: %w", err)
			}
			srv := server.NewServer(server.Deps{
				Store:      c.Store,
				Search:     c.Search,
				Chain:      c.Chain,
				Lexical:    c.Lexical,
				Watch:      w,
				Config:     a.cfg,
				ConfigPath: a.savedConfigPath(),
			}, a.logger)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Run(gctx) })
			g.Go(func() error { return w.Run(gctx) })
			err = g.Wait()
			a.logger.Info("stopped")
			return err
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (default from config)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (default from config)")
	return cmd
}

func (a *app) newWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [dir...]",
		Short: "Store files dropped into directories, one item per line",
		Long: `Watch directories and store every settled matching file as a batch file.
Directories given as arguments replace the configured ones.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				a.cfg.Watch.Directories = args
			}
			if len(a.cfg.Watch.Directories) == 0 {
				return fmt.Errorf("no directories to watch: pass them as arguments or set watch.directories")
			}

			c, err := a.components(cmd, WithLexical())
			if err != nil {
				return err
			}
			defer c.Close()

			w, err := newWatcher(c)
			if err != nil {
				return err
			}
			a.logger.Info("watching", zap.Strings("directories", a.cfg.Watch.Directories))
			return w.Run(cmd.Context())
		},
	}
}
