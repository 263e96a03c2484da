package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPublishCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "publish <articles.json>",
		Short: "Publish articles to the ingestion subject for the worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			articles, err := readArticles(args[0])
			if err != nil {
				return err
			}
			indexer, err := opts.indexer(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer indexer.Close()

			if err := indexer.Queue.PublishArticles(cmd.Context(), articles); err != nil {
				return fmt.Errorf("publish articles: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %d articles to %s\n", len(articles), opts.cfg.NATSSubject)
			return nil
		},
	}
}
