package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/kusari/internal/config"
	"github.com/hyperjump/kusari/pkg/utils"
)

const defaultConfigPath = "kusari.yaml"

// app carries state shared by every subcommand.
type app struct {
	configPath string
	debug      bool
	output     string

	cfg    *config.Config
	format OutputFormat
	logger *zap.Logger
}

// NewRootCommand builds the kusari command tree.
func NewRootCommand(version string) *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "kusari",
		Short: "Store text items as embeddings and search them by similarity",
		Long: `kusari embeds text items into a local vector store, finds the items nearest
to a query, and walks residual chains through the store.

Example usage:
  kusari embed --file problem.txt          # Store one file as an item
  kusari embed --batch problems.txt        # Store every line as an item
  kusari search --text "integral of x^2"   # Find similar items
  kusari chain --text "integral of x^2"    # Walk a residual chain`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", defaultConfigPath, "config file path (defaults apply when missing)")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")
	root.PersistentFlags().StringVarP(&a.output, "output", "o", string(OutputText), "output format: text or json")

	root.AddCommand(
		a.newEmbedCommand(),
		a.newListCommand(),
		a.newRemoveCommand(),
		a.newSearchCommand(),
		a.newChainCommand(),
		a.newFindCommand(),
		a.newRebuildCommand(),
		a.newStatusCommand(),
		a.newServeCommand(),
		a.newWatchCommand(),
		newVersionCommand(version),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute(version string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCommand(version).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	format, err := ParseOutputFormat(a.output)
	if err != nil {
		return err
	}
	a.format = format

	cfg, err := config.LoadOrDefault(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.cfg = cfg

	logger, err := utils.NewLogger(a.debug || cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	a.logger = logger
	return nil
}

// savedConfigPath returns the config path when it names an existing file.
func (a *app) savedConfigPath() string {
	if _, err := os.Stat(a.configPath); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			a.logger.Debug("config path not usable", zap.String("path", a.configPath), zap.Error(err))
		}
		return ""
	}
	return a.configPath
}

func (a *app) components(cmd *cobra.Command, opts ...ComponentOption) (*Components, error) {
	return NewComponents(cmd.Context(), a.cfg, a.logger, opts...)
}

func newVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kusari %s\n", version)
		},
	}
}
