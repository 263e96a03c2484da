package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kirillkom/fin-research-assistant/internal/bootstrap"
	"github.com/kirillkom/fin-research-assistant/internal/config"
	"github.com/kirillkom/fin-research-assistant/internal/core/domain"
	"github.com/kirillkom/fin-research-assistant/internal/observability/logging"
)

type rootOptions struct {
	cfg      config.Config
	bm25     string
	vectors  string
	logLevel string
}

func newRootCmd(cfg config.Config) *cobra.Command {
	opts := &rootOptions{cfg: cfg}
	root := &cobra.Command{
		Use:           "newsindex",
		Short:         "Build, query and publish the news retrieval indexes",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			slog.SetDefault(logging.New(cmd.ErrOrStderr(), "newsindex", opts.logLevel, "text"))
		},
	}
	root.PersistentFlags().StringVar(&opts.bm25, "bm25", cfg.BM25SnapshotPath, "BM25 snapshot file")
	root.PersistentFlags().StringVar(&opts.vectors, "embeddings", cfg.EmbeddingSnapshotPath, "embedding snapshot base path (.vec/.json)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level")

	root.AddCommand(
		newBuildCmd(opts),
		newSearchCmd(opts),
		newStatsCmd(opts),
		newPublishCmd(opts),
	)
	return root
}

func (o *rootOptions) config() config.Config {
	cfg := o.cfg
	cfg.BM25SnapshotPath = o.bm25
	cfg.EmbeddingSnapshotPath = o.vectors
	return cfg
}

func (o *rootOptions) indexer(ctx context.Context, connectQueue bool) (*bootstrap.Indexer, error) {
	return bootstrap.NewIndexer(ctx, o.config(), bootstrap.IndexerOptions{
		Service:      "newsindex",
		ConnectQueue: connectQueue,
	})
}

// readArticles accepts either a JSON array of articles or an object with an
// "articles" field, which is the shape the queue publishes.
func readArticles(path string) ([]domain.RawArticle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read articles: %w", err)
	}
	var list []domain.RawArticle
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Articles []domain.RawArticle `json:"articles"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "decode articles", err)
	}
	return wrapped.Articles, nil
}
