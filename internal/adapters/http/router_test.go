package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/fin-research-assistant/internal/config"
	"github.com/kirillkom/fin-research-assistant/internal/core/domain"
	"github.com/kirillkom/fin-research-assistant/internal/observability/metrics"
)

type queryProcessorFake struct {
	err         error
	lastQuery   string
	lastSession string
	cleared     []string
}

func (f *queryProcessorFake) ProcessQuery(_ context.Context, query, sessionID string) (*domain.QueryResult, error) {
	f.lastQuery, f.lastSession = query, sessionID
	if f.err != nil {
		return nil, f.err
	}
	if sessionID == "" {
		sessionID = "default"
	}
	return &domain.QueryResult{Response: "ok", Agent: "generalist", SessionID: sessionID, CostUSD: 0.01, DecisionReason: "low_confidence"}, nil
}

func (f *queryProcessorFake) SessionStats(_ context.Context, id string) (*domain.SessionStats, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.SessionStats{SessionID: id, QueryCount: 3, MessageCount: 6}, nil
}

func (f *queryProcessorFake) ClearSession(_ context.Context, id string) error {
	f.cleared = append(f.cleared, id)
	return f.err
}

func (f *queryProcessorFake) Diagnose(_ context.Context, query, _ string) (*domain.Diagnostic, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "diagnose", errors.New("query is required"))
	}
	return &domain.Diagnostic{Query: query, Decision: domain.Decision{Invoke: true, Type: domain.SpecialistMarketData, Reason: "technical_jargon"}, Tickers: []string{"AAPL"}}, nil
}

type newsFake struct {
	lastK       int
	lastTickers []string
}

func (f *newsFake) SearchNews(_ context.Context, q string, k int, tickers []string) []domain.NewsArticle {
	f.lastK, f.lastTickers = k, tickers
	return []domain.NewsArticle{{Title: "Apple beats", Tickers: []string{"AAPL"}, Publisher: "Reuters", RelevanceScore: 0.049}}
}

type retrievalFake struct{}

func (retrievalFake) Search(context.Context, string, int) ([]domain.FusionResult, error) { return nil, nil }

func (retrievalFake) Stats() domain.RetrievalStats {
	return domain.RetrievalStats{Lexical: domain.IndexStats{NumDocuments: 12}, Fusion: domain.FusionConfig{KRRF: 60}}
}

func newTestHandler(cfg config.Config, q *queryProcessorFake, n *newsFake) http.Handler {
	if q == nil {
		q = &queryProcessorFake{}
	}
	if n == nil {
		n = &newsFake{}
	}
	return NewRouter(cfg, q, n, retrievalFake{}).Handler()
}

func serve(h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	return res
}

func TestHealthzEndpoint(t *testing.T) {
	res := serve(newTestHandler(config.Config{}, nil, nil), http.MethodGet, "/healthz", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected generated request id header")
	}
}

func TestChatReturnsQueryResult(t *testing.T) {
	q := &queryProcessorFake{}
	payload, _ := json.Marshal(map[string]any{"query": "What's AAPL at?", "session_id": "s1"})
	res := serve(newTestHandler(config.Config{}, q, nil), http.MethodPost, "/v1/chat", payload)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["response"] != "ok" || body["session_id"] != "s1" || body["agent"] != "generalist" || body["decision_reason"] != "low_confidence" {
		t.Fatalf("unexpected body %v", body)
	}
	if q.lastQuery != "What's AAPL at?" || q.lastSession != "s1" {
		t.Fatalf("unexpected call %q/%q", q.lastQuery, q.lastSession)
	}
}

func TestChatValidatesRequest(t *testing.T) {
	h := newTestHandler(config.Config{}, nil, nil)
	if res := serve(h, http.MethodPost, "/v1/chat", []byte("{")); res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid json, got %d", res.Code)
	}
	if res := serve(h, http.MethodPost, "/v1/chat", []byte(`{"query":"  "}`)); res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank query, got %d", res.Code)
	}
	if res := serve(h, http.MethodGet, "/v1/chat", nil); res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestChatMapsDomainErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.WrapError(domain.ErrTimeoutExceeded, "wait specialist", errors.New("30s")), http.StatusGatewayTimeout},
		{domain.WrapError(domain.ErrSpecialistFailure, "run specialist", errors.New("boom")), http.StatusBadGateway},
		{domain.WrapError(domain.ErrTemporary, "anthropic", errors.New("529")), http.StatusServiceUnavailable},
		{domain.WrapError(domain.ErrInvalidInput, "process query", errors.New("empty")), http.StatusBadRequest},
		{errors.New("unexpected"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		h := newTestHandler(config.Config{}, &queryProcessorFake{err: tc.err}, nil)
		res := serve(h, http.MethodPost, "/v1/chat", []byte(`{"query":"hi"}`))
		if res.Code != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, res.Code)
		}
	}
}

func TestSearchNewsParsesParameters(t *testing.T) {
	n := &newsFake{}
	h := newTestHandler(config.Config{}, nil, n)

	res := serve(h, http.MethodGet, "/v1/news/search?q=apple+earnings&k=3&tickers=aapl,%20msft", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if n.lastK != 3 || len(n.lastTickers) != 2 || n.lastTickers[1] != "MSFT" {
		t.Fatalf("unexpected search args k=%d tickers=%v", n.lastK, n.lastTickers)
	}
	if !strings.Contains(res.Body.String(), `"relevance_score":0.049`) {
		t.Fatalf("expected article payload, got %s", res.Body.String())
	}

	if res := serve(h, http.MethodGet, "/v1/news/search?q=x&k=0", nil); res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid k, got %d", res.Code)
	}
	if res := serve(h, http.MethodGet, "/v1/news/search", nil); res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without q, got %d", res.Code)
	}
	serve(h, http.MethodGet, "/v1/news/search?q=x", nil)
	if n.lastK != defaultNewsK || n.lastTickers != nil {
		t.Fatalf("expected defaults, got k=%d tickers=%v", n.lastK, n.lastTickers)
	}
}

func TestSessionEndpoints(t *testing.T) {
	q := &queryProcessorFake{}
	h := newTestHandler(config.Config{}, q, nil)

	res := serve(h, http.MethodGet, "/v1/sessions/s1", nil)
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), `"query_count":3`) {
		t.Fatalf("unexpected stats response %d %s", res.Code, res.Body.String())
	}
	if res := serve(h, http.MethodDelete, "/v1/sessions/s1", nil); res.Code != http.StatusNoContent || len(q.cleared) != 1 {
		t.Fatalf("expected 204 delete, got %d", res.Code)
	}
	if res := serve(h, http.MethodGet, "/v1/sessions/", nil); res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without id, got %d", res.Code)
	}

	res = serve(h, http.MethodPost, "/v1/sessions", nil)
	var created map[string]string
	_ = json.Unmarshal(res.Body.Bytes(), &created)
	if res.Code != http.StatusCreated || len(created["session_id"]) != 36 {
		t.Fatalf("expected uuid session id, got %d %v", res.Code, created)
	}
}

func TestSessionStatsReturns404ForUnknownSession(t *testing.T) {
	q := &queryProcessorFake{err: domain.WrapError(domain.ErrSessionNotFound, "get session", errors.New("missing"))}
	res := serve(newTestHandler(config.Config{}, q, nil), http.MethodGet, "/v1/sessions/missing", nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestDiagnosticAndRetrievalStats(t *testing.T) {
	h := newTestHandler(config.Config{}, nil, nil)

	res := serve(h, http.MethodGet, "/v1/diagnostic?q=RSI+for+AAPL", nil)
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), `"reason":"technical_jargon"`) {
		t.Fatalf("unexpected diagnostic %d %s", res.Code, res.Body.String())
	}
	if res := serve(h, http.MethodGet, "/v1/diagnostic", nil); res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without q, got %d", res.Code)
	}

	res = serve(h, http.MethodGet, "/v1/retrieval/stats", nil)
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), `"num_documents":12`) || !strings.Contains(res.Body.String(), `"k_rrf":60`) {
		t.Fatalf("unexpected stats %d %s", res.Code, res.Body.String())
	}
}

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	h := newTestHandler(config.Config{APIRateLimitRPS: 1, APIRateLimitBurst: 1}, nil, nil)

	if res := serve(h, http.MethodGet, "/v1/retrieval/stats", nil); res.Code != http.StatusOK {
		t.Fatalf("first request expected 200, got %d", res.Code)
	}
	res := serve(h, http.MethodGet, "/v1/retrieval/stats", nil)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", res.Code)
	}
	if res.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header for 429 response")
	}
	if res := serve(h, http.MethodGet, "/healthz", nil); res.Code != http.StatusOK {
		t.Fatalf("healthz must bypass the rate limit, got %d", res.Code)
	}
}

func TestBackpressureMiddlewareReturns503WhenSaturated(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan int, 1)

	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
		w.WriteHeader(http.StatusNoContent)
	})
	handler := backpressureMiddleware(base, 1, 20*time.Millisecond)

	go func() {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/chat", nil))
		done <- res.Code
	}()

	<-started

	res2 := httptest.NewRecorder()
	handler.ServeHTTP(res2, httptest.NewRequest(http.MethodGet, "/v1/chat", nil))
	if res2.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for saturated backpressure gate, got %d", res2.Code)
	}
	var resp map[string]any
	if err := json.NewDecoder(bytes.NewReader(res2.Body.Bytes())).Decode(&resp); err != nil {
		t.Fatalf("decode overload response: %v", err)
	}
	if resp["error"] == "" {
		t.Fatalf("expected overload error message in response")
	}

	close(release)

	select {
	case code := <-done:
		if code != http.StatusNoContent {
			t.Fatalf("first request expected 204, got %d", code)
		}
	case <-time.After(1 * time.Second):
		t.Fatalf("timed out waiting for first request completion")
	}
}

func TestMetricsEndpointRecordsAPIRequests(t *testing.T) {
	h := NewRouter(config.Config{}, &queryProcessorFake{}, &newsFake{}, retrievalFake{}).
		WithMetrics(metrics.NewHTTPServerMetrics("api")).
		Handler()

	payload, _ := json.Marshal(map[string]any{"query": "hi"})
	if res := serve(h, http.MethodPost, "/v1/chat", payload); res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}

	res := serve(h, http.MethodGet, "/metrics", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", res.Code)
	}
	want := `fra_http_requests_total{method="POST",path="/v1/chat",service="api",status="200"} 1`
	if !strings.Contains(res.Body.String(), want) {
		t.Fatalf("expected %s in:\n%s", want, res.Body.String())
	}
}
