package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/fin-research-assistant/internal/core/domain"
	"github.com/kirillkom/fin-research-assistant/internal/core/ports"
)

type llmFake struct {
	mu       sync.Mutex
	requests []domain.CompletionRequest
	reply    func(req domain.CompletionRequest) (*domain.Completion, error)
}

func (f *llmFake) Complete(_ context.Context, req domain.CompletionRequest) (*domain.Completion, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.reply != nil {
		return f.reply(req)
	}
	return &domain.Completion{Text: "answer", Model: req.Model, CostUSD: 0.01}, nil
}

func (f *llmFake) calls() []domain.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.CompletionRequest(nil), f.requests...)
}

type handleFake struct {
	done chan struct{}
	res  *domain.SpecialistResult
}

func (h *handleFake) Done() <-chan struct{} { return h.done }

func (h *handleFake) Wait(ctx context.Context) (*domain.SpecialistResult, error) {
	select {
	case <-h.done:
		return h.res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type submitCall struct {
	specialistType domain.SpecialistType
	history        int
	task           string
	sessionID      string
}

type dispatcherFake struct {
	mu        sync.Mutex
	cached    *domain.SpecialistResult
	result    *domain.SpecialistResult
	submitErr error
	hang      bool
	submits   []submitCall
	peeks     int
	shutdowns int
}

func (d *dispatcherFake) Submit(t domain.SpecialistType, history []domain.Message, task, sessionID string) (ports.SpecialistHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submits = append(d.submits, submitCall{t, len(history), task, sessionID})
	if d.submitErr != nil {
		return nil, d.submitErr
	}
	h := &handleFake{done: make(chan struct{}), res: d.result}
	if !d.hang {
		close(h.done)
	}
	return h, nil
}

func (d *dispatcherFake) TryGetResult(domain.SpecialistType, string, string, time.Duration) (*domain.SpecialistResult, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.peeks++
	return d.cached, d.cached != nil
}

func (d *dispatcherFake) Shutdown(context.Context, bool) error {
	d.shutdowns++
	return nil
}

type sessionStoreFake struct {
	mu        sync.Mutex
	sessions  map[string]*domain.Session
	appendErr error
}

func newSessionStoreFake() *sessionStoreFake {
	return &sessionStoreFake{sessions: map[string]*domain.Session{}}
}

func (s *sessionStoreFake) GetOrCreate(_ context.Context, id string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		s.sessions[id] = domain.NewSession(id, time.Unix(0, 0))
	}
	return s.sessions[id].Clone(), nil
}

func (s *sessionStoreFake) Get(_ context.Context, id string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrSessionNotFound, "get session", errors.New(id))
	}
	return sess.Clone(), nil
}

func (s *sessionStoreFake) AppendTurn(_ context.Context, id string, messages []domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	sess := s.sessions[id]
	sess.History = append(sess.History, messages...)
	sess.QueryCount++
	return nil
}

func (s *sessionStoreFake) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

type orchestratorFixture struct {
	llm      *llmFake
	pool     *dispatcherFake
	sessions *sessionStoreFake
	orch     *Orchestrator
}

func newOrchestratorFixture(cfg OrchestratorConfig) *orchestratorFixture {
	f := &orchestratorFixture{
		llm:      &llmFake{},
		pool:     &dispatcherFake{result: &domain.SpecialistResult{Type: domain.SpecialistMarketData, Content: "RSI is 71.2", CostUSD: 0.05}},
		sessions: newSessionStoreFake(),
	}
	engine := NewDecisionEngine(DefaultLexicon())
	generalist := NewGeneralist(f.llm, engine, nil, nil, DefaultAgentModels().Generalist)
	f.orch = NewOrchestrator(engine, generalist, f.pool, f.sessions, cfg, nil)
	return f
}

func TestProcessQueryGeneralistOnly(t *testing.T) {
	f := newOrchestratorFixture(OrchestratorConfig{})

	res, err := f.orch.ProcessQuery(context.Background(), "What's AAPL's current price?", "s1")
	if err != nil {
		t.Fatalf("ProcessQuery() error = %v", err)
	}
	if res.Agent != "generalist" || res.Response != "answer" || res.CostUSD != 0.01 || res.PrefetchActive {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.SessionID != "s1" || res.DecisionReason != domain.ReasonLowConfidence {
		t.Fatalf("unexpected session/reason %+v", res)
	}
	if len(f.pool.submits) != 0 {
		t.Fatalf("expected no specialist submission")
	}

	stats, err := f.orch.SessionStats(context.Background(), "s1")
	if err != nil {
		t.Fatalf("SessionStats() error = %v", err)
	}
	if stats.QueryCount != 1 || stats.MessageCount != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	req := f.llm.calls()[0]
	if req.System != GeneralistSystemPrompt || !req.CacheSystem || req.Temperature != 0.4 {
		t.Fatalf("unexpected generalist request %+v", req)
	}
}

func TestProcessQueryPrefetchIsNotAwaited(t *testing.T) {
	f := newOrchestratorFixture(OrchestratorConfig{})
	f.llm.reply = func(domain.CompletionRequest) (*domain.Completion, error) {
		return &domain.Completion{Text: "TSLA rose 4% to $251.", CostUSD: 0.01}, nil
	}
	f.pool.hang = true

	res, err := f.orch.ProcessQuery(context.Background(), "What moved TSLA today?", "s1")
	if err != nil {
		t.Fatalf("ProcessQuery() error = %v", err)
	}
	if !res.PrefetchActive || res.DecisionReason != domain.ReasonWhatMovedPattern {
		t.Fatalf("expected active news prefetch, got %+v", res)
	}
	if len(f.pool.submits) != 1 || f.pool.submits[0].specialistType != domain.SpecialistNews {
		t.Fatalf("unexpected submissions %+v", f.pool.submits)
	}
	if !strings.HasPrefix(f.pool.submits[0].task, "News analysis: What moved TSLA today?") {
		t.Fatalf("unexpected prefetch task %q", f.pool.submits[0].task)
	}
}

func TestProcessQueryPrefetchSubmitFailureIsSwallowed(t *testing.T) {
	f := newOrchestratorFixture(OrchestratorConfig{})
	f.llm.reply = func(domain.CompletionRequest) (*domain.Completion, error) {
		return &domain.Completion{Text: "Up to $251.", CostUSD: 0.01}, nil
	}
	f.pool.submitErr = errors.New("queue full")

	res, err := f.orch.ProcessQuery(context.Background(), "What moved TSLA today?", "s1")
	if err != nil {
		t.Fatalf("ProcessQuery() error = %v", err)
	}
	if res.PrefetchActive {
		t.Fatalf("expected inactive prefetch after submit failure")
	}
}

func TestProcessQuerySpecialistSyncAndSynthesis(t *testing.T) {
	f := newOrchestratorFixture(OrchestratorConfig{})
	f.llm.reply = func(req domain.CompletionRequest) (*domain.Completion, error) {
		return &domain.Completion{Text: "AAPL looks overbought.", CostUSD: 0.02}, nil
	}

	res, err := f.orch.ProcessQuery(context.Background(), "Show me AAPL's RSI and MACD indicators", "s1")
	if err != nil {
		t.Fatalf("ProcessQuery() error = %v", err)
	}
	if res.Agent != "generalist+market_data" || res.DecisionReason != domain.ReasonTechnicalJargon {
		t.Fatalf("unexpected routing %+v", res)
	}
	if res.SpecialistCostUSD != 0.05 || res.SynthesisCostUSD != 0.02 || res.CostUSD != 0.05+0.02 {
		t.Fatalf("unexpected costs %+v", res)
	}
	if f.pool.peeks != 1 || len(f.pool.submits) != 1 {
		t.Fatalf("expected a peek then one submission, got %d peeks %d submits", f.pool.peeks, len(f.pool.submits))
	}

	calls := f.llm.calls()
	if len(calls) != 1 {
		t.Fatalf("expected only the synthesis call, got %d", len(calls))
	}
	prompt := calls[0].Messages[len(calls[0].Messages)-1].Content
	want := "The market_data specialist provided this analysis:\n\nRSI is 71.2\n\n" +
		"Synthesize this into a clear, user-friendly response to the query: \"Show me AAPL's RSI and MACD indicators\""
	if prompt != want {
		t.Fatalf("unexpected synthesis prompt:\n%s", prompt)
	}

	sess, _ := f.sessions.Get(context.Background(), "s1")
	if sess.History[0].Content != "Show me AAPL's RSI and MACD indicators" || sess.History[1].Content != "AAPL looks overbought." {
		t.Fatalf("expected raw query and synthesized answer in history, got %+v", sess.History)
	}
}

func TestProcessQueryUsesPrefetchedResult(t *testing.T) {
	f := newOrchestratorFixture(OrchestratorConfig{})
	f.pool.cached = &domain.SpecialistResult{Type: domain.SpecialistMarketData, Content: "cached", CostUSD: 0.03}

	res, err := f.orch.ProcessQuery(context.Background(), "What's the RSI for NVDA?", "s1")
	if err != nil {
		t.Fatalf("ProcessQuery() error = %v", err)
	}
	if len(f.pool.submits) != 0 {
		t.Fatalf("expected cached result to skip submission")
	}
	if res.SpecialistCostUSD != 0.03 {
		t.Fatalf("unexpected specialist cost %+v", res)
	}
}

func TestProcessQuerySpecialistFailureLeavesSessionUntouched(t *testing.T) {
	f := newOrchestratorFixture(OrchestratorConfig{})
	f.pool.result = &domain.SpecialistResult{Type: domain.SpecialistMarketData, Content: "Error: boom", Error: "boom"}

	_, err := f.orch.ProcessQuery(context.Background(), "Show me AAPL's RSI", "s1")
	if !domain.IsKind(err, domain.ErrSpecialistFailure) {
		t.Fatalf("expected ErrSpecialistFailure, got %v", err)
	}
	sess, _ := f.sessions.Get(context.Background(), "s1")
	if len(sess.History) != 0 || sess.QueryCount != 0 {
		t.Fatalf("session mutated on failure: %+v", sess)
	}
	if len(f.llm.calls()) != 0 {
		t.Fatalf("synthesis must not run after a failed specialist")
	}
}

func TestProcessQuerySpecialistTimeout(t *testing.T) {
	f := newOrchestratorFixture(OrchestratorConfig{SyncTimeout: 20 * time.Millisecond})
	f.pool.hang = true

	_, err := f.orch.ProcessQuery(context.Background(), "Show me AAPL's RSI", "s1")
	if !domain.IsKind(err, domain.ErrTimeoutExceeded) {
		t.Fatalf("expected ErrTimeoutExceeded, got %v", err)
	}
	sess, _ := f.sessions.Get(context.Background(), "s1")
	if len(sess.History) != 0 {
		t.Fatalf("session mutated on timeout: %+v", sess)
	}
}

func TestProcessQueryGeneralistErrorLeavesSessionUntouched(t *testing.T) {
	f := newOrchestratorFixture(OrchestratorConfig{})
	f.llm.reply = func(domain.CompletionRequest) (*domain.Completion, error) {
		return nil, domain.WrapError(domain.ErrTemporary, "complete", errors.New("overloaded"))
	}

	_, err := f.orch.ProcessQuery(context.Background(), "hello", "s1")
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error to propagate, got %v", err)
	}
	sess, _ := f.sessions.Get(context.Background(), "s1")
	if sess.QueryCount != 0 {
		t.Fatalf("session mutated on failure: %+v", sess)
	}
}

func TestProcessQueryRejectsEmptyQueryAndDefaultsSession(t *testing.T) {
	f := newOrchestratorFixture(OrchestratorConfig{})
	if _, err := f.orch.ProcessQuery(context.Background(), "   ", "s1"); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	res, err := f.orch.ProcessQuery(context.Background(), "hi", "")
	if err != nil || res.SessionID != DefaultSessionID {
		t.Fatalf("expected default session, got %+v, %v", res, err)
	}
}

func TestProcessQuerySerializesPerSession(t *testing.T) {
	f := newOrchestratorFixture(OrchestratorConfig{})
	var mu sync.Mutex
	seen := map[int]bool{}
	f.llm.reply = func(req domain.CompletionRequest) (*domain.Completion, error) {
		mu.Lock()
		seen[len(req.Messages)] = true
		mu.Unlock()
		time.Sleep(time.Millisecond)
		return &domain.Completion{Text: "ok"}, nil
	}

	const n = 5
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := f.orch.ProcessQuery(context.Background(), fmt.Sprintf("hello %d", i), "shared"); err != nil {
				t.Errorf("ProcessQuery() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if !seen[2*i+1] {
			t.Fatalf("expected a call with %d messages, saw %v", 2*i+1, seen)
		}
	}
	stats, _ := f.orch.SessionStats(context.Background(), "shared")
	if stats.QueryCount != n || stats.MessageCount != 2*n {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if f.orch.locks.len() != 0 {
		t.Fatalf("expected session locks to be released")
	}
}

func TestClearSessionAndStats(t *testing.T) {
	f := newOrchestratorFixture(OrchestratorConfig{})
	if _, err := f.orch.SessionStats(context.Background(), "nope"); !domain.IsKind(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	_, _ = f.orch.ProcessQuery(context.Background(), "hi", "s1")
	if err := f.orch.ClearSession(context.Background(), "s1"); err != nil {
		t.Fatalf("ClearSession() error = %v", err)
	}
	if _, err := f.orch.SessionStats(context.Background(), "s1"); !domain.IsKind(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected cleared session to be gone, got %v", err)
	}
}

func TestDiagnoseDoesNotMutateState(t *testing.T) {
	f := newOrchestratorFixture(OrchestratorConfig{})
	diag, err := f.orch.Diagnose(context.Background(), "Show me AAPL's RSI", "fresh")
	if err != nil {
		t.Fatalf("Diagnose() error = %v", err)
	}
	if !diag.Decision.Invoke || diag.Decision.Type != domain.SpecialistMarketData {
		t.Fatalf("unexpected decision %+v", diag.Decision)
	}
	if len(diag.Tickers) != 1 || diag.Tickers[0] != "AAPL" || !strings.Contains(diag.ExtractedTask, "Ticker(s): AAPL") {
		t.Fatalf("unexpected diagnostic %+v", diag)
	}
	if f.sessions.sessions["fresh"] != nil || len(f.llm.calls()) != 0 || len(f.pool.submits) != 0 {
		t.Fatalf("Diagnose must not create sessions or call agents")
	}
}

func TestCloseShutsDownPool(t *testing.T) {
	f := newOrchestratorFixture(OrchestratorConfig{})
	if err := f.orch.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if f.pool.shutdowns != 1 {
		t.Fatalf("expected pool shutdown")
	}
}
