package cache

import (
	"testing"
	"time"

	"github.com/kirillkom/fin-research-assistant/internal/core/domain"
)

func TestNewsCacheRoundTripReturnsCopies(t *testing.T) {
	c, err := NewNewsCache(Config{})
	if err != nil {
		t.Fatalf("NewNewsCache() error = %v", err)
	}
	defer c.Close()

	published := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	in := []domain.NewsArticle{{Title: "Apple beats", Tickers: []string{"AAPL"}, PublishedAt: &published}}
	if !c.Set("apple|5|", in) {
		t.Fatalf("expected entry to be admitted")
	}
	in[0].Tickers[0] = "MUTATED"

	got, ok := c.Get("apple|5|")
	if !ok || len(got) != 1 || got[0].Tickers[0] != "AAPL" {
		t.Fatalf("unexpected cached value %+v, %v", got, ok)
	}
	got[0].Title = "changed"
	again, _ := c.Get("apple|5|")
	if again[0].Title != "Apple beats" {
		t.Fatalf("cache entry was mutated through a returned slice")
	}
}

func TestNewsCacheClearAndClose(t *testing.T) {
	c, err := NewNewsCache(Config{TTL: time.Minute})
	if err != nil {
		t.Fatalf("NewNewsCache() error = %v", err)
	}
	c.Set("k", []domain.NewsArticle{{Title: "x"}})
	c.Clear()
	if _, ok := c.Get("k"); ok {
		t.Fatalf("expected miss after Clear")
	}
	c.Close()
	c.Close()
	if c.Set("k", nil) {
		t.Fatalf("expected Set to fail after Close")
	}
}
