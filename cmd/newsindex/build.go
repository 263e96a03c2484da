package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBuildCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "build <articles.json>",
		Short: "Add articles from a JSON file to both indexes and save snapshots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			articles, err := readArticles(args[0])
			if err != nil {
				return err
			}
			indexer, err := opts.indexer(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer indexer.Close()

			report, err := indexer.Ingestor.Ingest(cmd.Context(), articles)
			if err != nil {
				return fmt.Errorf("build index: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "received=%d duplicates=%d indexed=%d total=%d\n",
				report.Received, report.Duplicates, report.Indexed, report.Total)
			return nil
		},
	}
}
