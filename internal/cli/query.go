package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kusari/internal/chain"
	"github.com/hyperjump/kusari/internal/extract"
	"github.com/hyperjump/kusari/internal/models"
)

// queryText returns --text, or the trimmed content of --file.
func queryText(text, file string) (string, error) {
	if text != "" && file != "" {
		return "", errors.New("use either --text or --file, not both")
	}
	if file != "" {
		content, err := extract.NewExtractor(extract.WithPlainFallback()).Extract(file)
		if err != nil {
			return "", err
		}
		text = content
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("a query is required: pass --text or --file")
	}
	return text, nil
}

func (a *app) newSearchCommand() *cobra.Command {
	var text, file string
	var topK int
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Find the stored items nearest to a query",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := queryText(text, file)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("top-k") {
				topK = a.cfg.Search.DefaultTopK
			}

			c, err := a.components(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			results, err := c.Search.Search(cmd.Context(), models.SearchQuery{Text: q, TopK: topK})
			if err != nil {
				return err
			}
			return WriteSearchResults(cmd.OutOrStdout(), results, topK, a.format)
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "query text")
	cmd.Flags().StringVar(&file, "file", "", "file holding the query text")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of results (default from config)")
	return cmd
}

func (a *app) newChainCommand() *cobra.Command {
	var text, file string
	var maxIter int
	var tol float64
	cmd := &cobra.Command{
		Use:   "chain",
		Short: "Walk a residual chain from a query through the store",
		Long: `Walk a residual chain: at each step the nearest item to the current residual
is recorded and its vector subtracted. The walk stops on convergence (residual
norm below --tol), divergence (norm grows), an empty search, or --max-iter.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := queryText(text, file)
			if err != nil {
				return err
			}
			opts := chain.Options{MaxIter: a.cfg.Chain.MaxIter, Tol: a.cfg.Chain.Tol}
			if cmd.Flags().Changed("max-iter") {
				opts.MaxIter = maxIter
			}
			if cmd.Flags().Changed("tol") {
				opts.Tol = tol
			}

			c, err := a.components(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			res, err := c.Chain.Run(cmd.Context(), q, opts)
			if err != nil {
				return err
			}
			return WriteChainResult(cmd.OutOrStdout(), res, a.format)
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "query text")
	cmd.Flags().StringVar(&file, "file", "", "file holding the query text")
	cmd.Flags().IntVar(&maxIter, "max-iter", 0, "maximum chain steps (default from config)")
	cmd.Flags().Float64Var(&tol, "tol", 0, "convergence tolerance on the residual norm (default from config)")
	return cmd
}

func (a *app) newFindCommand() *cobra.Command {
	var limit int
	var fuzzy bool
	cmd := &cobra.Command{
		Use:   "find <words...>",
		Short: "Find stored items by keyword",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.components(cmd, WithLexical())
			if err != nil {
				return err
			}
			defer c.Close()

			results, err := c.Lexical.Search(cmd.Context(), strings.Join(args, " "), limit, fuzzy)
			if err != nil {
				return err
			}
			return WriteFindResults(cmd.OutOrStdout(), results, a.format)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of matches")
	cmd.Flags().BoolVar(&fuzzy, "fuzzy", false, "tolerate small spelling differences")
	return cmd
}
