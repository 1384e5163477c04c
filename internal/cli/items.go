package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kusari/internal/indexer"
	"github.com/hyperjump/kusari/internal/models"
)

func (a *app) newEmbedCommand() *cobra.Command {
	var file, batch, directory string
	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Embed text into the store",
		Long: `Embed text into the store. Exactly one source is required:

  --file PATH       store the whole file as one item, labelled with its name
  --batch PATH      store every non-blank line as its own item
  --directory DIR   treat each matching file in DIR as a batch file`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			set := 0
			for _, v := range []string{file, batch, directory} {
				if v != "" {
					set++
				}
			}
			if set != 1 {
				return errors.New("exactly one of --file, --batch or --directory is required")
			}

			c, err := a.components(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			out := cmd.OutOrStdout()
			switch {
			case file != "":
				res, err := c.Indexer.IndexFile(cmd.Context(), file)
				if err != nil {
					return err
				}
				return WriteFileResult(out, res, a.format)
			case batch != "":
				res, err := c.Indexer.IndexBatchFile(cmd.Context(), batch)
				if err != nil {
					return err
				}
				return WriteBatchResults(out, []indexer.BatchResult{res}, a.format)
			default:
				results, err := c.Indexer.IndexDirectory(cmd.Context(), directory)
				if err != nil {
					return err
				}
				return WriteBatchResults(out, results, a.format)
			}
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "file to store as one item")
	cmd.Flags().StringVar(&batch, "batch", "", "file with one item per line")
	cmd.Flags().StringVar(&directory, "directory", "", "directory of batch files")
	cmd.MarkFlagsMutuallyExclusive("file", "batch", "directory")
	return cmd
}

func (a *app) newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored items in id order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.components(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			items, err := c.Store.List(cmd.Context())
			if err != nil {
				return err
			}
			return WriteItems(cmd.OutOrStdout(), items, a.format)
		},
	}
}

func (a *app) newRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove an item and rebuild the index from the remaining items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil || id < 0 {
				return fmt.Errorf("invalid item id %q", args[0])
			}

			c, err := a.components(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Store.Remove(cmd.Context(), id); err != nil {
				if errors.Is(err, models.ErrNotFound) {
					return fmt.Errorf("no item with id %d", id)
				}
				return err
			}
			if a.format == OutputJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]int{"removed": id})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed item %d and rebuilt the index.\n", id)
			return nil
		},
	}
}
