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

	httpadapter "github.com/kirillkom/fin-research-assistant/internal/adapters/http"
	"github.com/kirillkom/fin-research-assistant/internal/bootstrap"
	"github.com/kirillkom/fin-research-assistant/internal/config"
	"github.com/kirillkom/fin-research-assistant/internal/infrastructure/index/snapshot"
	"github.com/kirillkom/fin-research-assistant/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("api", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	if cfg.SnapshotWatch {
		watcher, err := snapshot.NewWatcher(
			bootstrap.SnapshotFiles(cfg),
			time.Duration(cfg.SnapshotDebounceMs)*time.Millisecond,
			app.Ingestor.Reload,
		)
		if err != nil {
			log.Fatalf("snapshot watcher error: %v", err)
		}
		go func() {
			if err := watcher.Run(ctx); err != nil {
				log.Printf("snapshot watcher stopped: %v", err)
			}
		}()
	}

	router := httpadapter.NewRouter(cfg, app.Orchestrator, app.NewsSearch, app.Retriever).
		WithMetrics(app.Metrics).
		Handler()
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("api listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("api shutdown error: %v", err)
	}
}
