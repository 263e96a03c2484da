package nats

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/fin-research-assistant/internal/core/domain"
)

const batchVersion = 1

type articleBatch struct {
	Version     int                 `json:"version"`
	PublishedAt time.Time           `json:"published_at"`
	Articles    []domain.RawArticle `json:"articles"`
}

func encodeBatch(articles []domain.RawArticle, now time.Time) ([]byte, error) {
	payload, err := json.Marshal(articleBatch{Version: batchVersion, PublishedAt: now, Articles: articles})
	if err != nil {
		return nil, fmt.Errorf("encode article batch: %w", err)
	}
	return payload, nil
}

func decodeBatch(data []byte) (articleBatch, error) {
	var batch articleBatch
	if err := json.Unmarshal(data, &batch); err != nil {
		return articleBatch{}, domain.WrapError(domain.ErrInvalidInput, "decode article batch", err)
	}
	if batch.Version != batchVersion {
		return articleBatch{}, domain.WrapError(domain.ErrInvalidInput, "decode article batch",
			fmt.Errorf("unsupported version %d", batch.Version))
	}
	if len(batch.Articles) == 0 {
		return articleBatch{}, domain.WrapError(domain.ErrInvalidInput, "decode article batch", errors.New("empty batch"))
	}
	return batch, nil
}

func splitBatches(articles []domain.RawArticle, size int) [][]domain.RawArticle {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var out [][]domain.RawArticle
	for start := 0; start < len(articles); start += size {
		end := min(start+size, len(articles))
		out = append(out, articles[start:end])
	}
	return out
}
