package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/fin-research-assistant/internal/core/domain"
	"github.com/kirillkom/fin-research-assistant/internal/infrastructure/resilience"
)

func testExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		BreakerEnabled:      false,
	})
}

func TestEmbedSendsModelAndInputs(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2,0.3],[0.4,0.5,0.6]]}`))
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, time.Second, testExecutor()), "", 3)
	vectors, err := embedder.Embed(context.Background(), []string{"apple earnings", "tesla deliveries"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 2 || vectors[1][2] != 0.6 {
		t.Fatalf("unexpected vectors %v", vectors)
	}
	if payload["model"] != DefaultEmbedModel {
		t.Fatalf("expected default model, got %v", payload["model"])
	}
	inputs, _ := payload["input"].([]any)
	if len(inputs) != 2 {
		t.Fatalf("expected 2 inputs, got %v", payload["input"])
	}
}

func TestEmbedRejectsWrongDimension(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2]]}`))
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, time.Second, testExecutor()), "all-minilm", 384)
	_, err := embedder.EmbedQuery(context.Background(), "hello")
	if !domain.IsKind(err, domain.ErrInputMismatch) {
		t.Fatalf("expected input mismatch, got %v", err)
	}
}

func TestEmbedIncludesHTTPBodyInError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, time.Second, testExecutor()), "all-minilm", 0)
	_, err := embedder.Embed(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected bad gateway to be temporary, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected a retry, got %d calls", calls.Load())
	}
}

func TestEmbedEmptyInputSkipsRequest(t *testing.T) {
	embedder := NewEmbedder(New("http://127.0.0.1:1", time.Second, testExecutor()), "", 0)
	vectors, err := embedder.Embed(context.Background(), nil)
	if err != nil || vectors != nil {
		t.Fatalf("expected nil result, got %v, %v", vectors, err)
	}
}
