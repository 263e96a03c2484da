package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/fin-research-assistant/internal/core/domain"
)

const (
	searchDefaultLimit = 5
	searchMaxLimit     = 50
)

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a hybrid BM25 + embedding search",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			if limit <= 0 {
				limit = searchDefaultLimit
			}
			if limit > searchMaxLimit {
				limit = searchMaxLimit
			}

			indexer, err := opts.indexer(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer indexer.Close()

			results, err := indexer.Retriever.Search(cmd.Context(), query, limit)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			printResults(cmd, results)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "k", searchDefaultLimit, "maximum number of results")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}

func printResults(cmd *cobra.Command, results []domain.FusionResult) {
	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, "no results")
		return
	}
	for i, r := range results {
		fmt.Fprintf(out, "%d. %.4f %s [%s] bm25=%s emb=%s\n",
			i+1, r.FusedScore, r.Document.Metadata.Title,
			strings.Join(r.Document.Metadata.Tickers, ","),
			rank(r.LexicalRank), rank(r.EmbeddingRank))
	}
}

func rank(r *int) string {
	if r == nil {
		return "-"
	}
	return fmt.Sprint(*r)
}
