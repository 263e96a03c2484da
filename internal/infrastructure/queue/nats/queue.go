package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/fin-research-assistant/internal/core/domain"
	"github.com/kirillkom/fin-research-assistant/internal/infrastructure/resilience"
)

const (
	DefaultSubject    = "news.articles"
	DefaultQueueGroup = "news-indexers"
	DefaultBatchSize  = 50
)

type Queue struct {
	conn       *nats.Conn
	subject    string
	queueGroup string
	batchSize  int
	executor   *resilience.Executor
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	QueueGroup           string
	// BatchSize caps the number of articles per published message.
	BatchSize          int
	ResilienceExecutor *resilience.Executor
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	if subject == "" {
		subject = DefaultSubject
	}

	conn, err := nats.Connect(
		url,
		nats.Name("fin-research-assistant"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return newQueue(conn, subject, options), nil
}

func newQueue(conn *nats.Conn, subject string, options Options) *Queue {
	group := options.QueueGroup
	if group == "" {
		group = DefaultQueueGroup
	}
	batch := options.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	return &Queue{
		conn:       conn,
		subject:    subject,
		queueGroup: group,
		batchSize:  batch,
		executor:   options.ResilienceExecutor,
	}
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// PublishArticles splits articles into batches of at most BatchSize and
// publishes each batch as one message.
func (q *Queue) PublishArticles(ctx context.Context, articles []domain.RawArticle) error {
	for _, chunk := range splitBatches(articles, q.batchSize) {
		payload, err := encodeBatch(chunk, time.Now().UTC())
		if err != nil {
			return err
		}
		if err := q.publish(ctx, payload); err != nil {
			return err
		}
	}
	return nil
}

func (q *Queue) publish(ctx context.Context, payload []byte) error {
	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, resilience.OperationNATSPublish, call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// SubscribeArticles delivers decoded batches to handler until ctx is done,
// then drains the subscription. Malformed messages are logged and dropped.
func (q *Queue) SubscribeArticles(ctx context.Context, handler func(context.Context, []domain.RawArticle) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, q.queueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		deliver(ctx, msg.Data, handler)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func deliver(ctx context.Context, data []byte, handler func(context.Context, []domain.RawArticle) error) {
	batch, err := decodeBatch(data)
	if err != nil {
		slog.Error("article_batch_malformed", "bytes", len(data), "error", err)
		return
	}

	handlerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := handler(handlerCtx, batch.Articles); err != nil {
		slog.Error("article_batch_failed", "articles", len(batch.Articles), "published_at", batch.PublishedAt, "error", err)
	}
}
