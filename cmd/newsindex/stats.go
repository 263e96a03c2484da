package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print index sizes, tickers and fusion settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			indexer, err := opts.indexer(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer indexer.Close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(indexer.Retriever.Stats())
		},
	}
}
