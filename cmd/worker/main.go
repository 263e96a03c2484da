package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/fin-research-assistant/internal/bootstrap"
	"github.com/kirillkom/fin-research-assistant/internal/config"
	"github.com/kirillkom/fin-research-assistant/internal/core/domain"
	"github.com/kirillkom/fin-research-assistant/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	indexer, err := bootstrap.NewIndexer(ctx, cfg, bootstrap.IndexerOptions{Service: "worker", ConnectQueue: true})
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer indexer.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", indexer.Metrics.Handler())
	metricsServer := &http.Server{
		Addr:         ":" + cfg.WorkerMetricsPort,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("worker metrics listening on :%s", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("worker metrics server error: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	log.Printf("worker subscribed to %s", cfg.NATSSubject)
	err = indexer.Queue.SubscribeArticles(ctx, func(handlerCtx context.Context, articles []domain.RawArticle) error {
		ingestCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
		defer cancel()
		_, err := indexer.Ingestor.Ingest(ingestCtx, articles)
		return err
	})
	if err != nil {
		log.Printf("worker subscribe error: %v", err)
	}
}
