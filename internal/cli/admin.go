package cli

import (
	"fmt"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/kusari/internal/storage"
)

func (a *app) newRebuildCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Re-embed every stored item and rewrite the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				bar   *progressbar.ProgressBar
				barMu sync.Mutex
			)
			progress := func(done, total int) {
				if a.format == OutputJSON || total == 0 {
					return
				}
				barMu.Lock()
				defer barMu.Unlock()
				if bar == nil {
					bar = progressbar.NewOptions(total,
						progressbar.OptionSetWriter(cmd.ErrOrStderr()),
						progressbar.OptionEnableColorCodes(true),
						progressbar.OptionSetWidth(40),
						progressbar.OptionShowCount(),
						progressbar.OptionSetDescription("[cyan]Rebuilding[reset]"),
						progressbar.OptionSetTheme(progressbar.Theme{
							Saucer:        "[green]=[reset]",
							SaucerHead:    "[green]>[reset]",
							SaucerPadding: " ",
							BarStart:      "[",
							BarEnd:        "]",
						}),
						progressbar.OptionOnCompletion(func() {
							fmt.Fprintln(cmd.ErrOrStderr())
						}),
					)
				}
				_ = bar.Set(done)
			}

			c, err := a.components(cmd, WithRebuildProgress(progress))
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Store.Rebuild(cmd.Context()); err != nil {
				return err
			}
			stats, err := c.Store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if a.format == OutputJSON {
				return writeJSON(cmd.OutOrStdout(), stats)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rebuilt index: %d items, dimension %d.\n", stats.IndexSize, stats.Dimension)
			return nil
		},
	}
}

func (a *app) newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show store statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.components(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			stats, err := c.Store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			st := Status{
				StoreStats:        stats,
				EmbeddingProvider: a.cfg.Embedding.Provider,
				MetadataPath:      metadataPath(a.cfg.Storage.MetadataBackend, a.cfg.Storage.MetadataPath, a.cfg.Storage.SQLitePath),
				IndexPath:         a.cfg.Storage.IndexPath,
				IndexCompression:  a.cfg.Index.Compression,
			}
			usage, err := storage.MeasureUsage(st.MetadataPath, a.cfg.Storage.IndexPath, a.cfg.Storage.EmbeddingsDir)
			if err != nil {
				a.logger.Warn("failed to measure disk usage", zap.Error(err))
			} else {
				st.Disk = &usage
			}
			return WriteStatus(cmd.OutOrStdout(), st, a.format)
		},
	}
}

func metadataPath(backend, jsonPath, sqlitePath string) string {
	if backend == storage.BackendSQLite {
		return sqlitePath
	}
	return jsonPath
}
