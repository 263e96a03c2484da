package specialistpool

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/kirillkom/fin-research-assistant/internal/core/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type runnerFake struct {
	mu        sync.Mutex
	calls     int
	histories [][]domain.Message
	release   chan struct{}
	err       error
	panicMsg  string
}

func (f *runnerFake) Run(ctx context.Context, st domain.SpecialistType, history []domain.Message, task string) (*domain.SpecialistResult, error) {
	f.mu.Lock()
	f.calls++
	f.histories = append(f.histories, history)
	f.mu.Unlock()

	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &domain.SpecialistResult{Content: "analysis of " + task, CostUSD: 0.01}, nil
}

func (f *runnerFake) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestPool(t *testing.T, runner *runnerFake, cfg Config) *Pool {
	t.Helper()
	pool, err := New(runner, cfg, nil)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	t.Cleanup(func() {
		if err := pool.Shutdown(context.Background(), true); err != nil {
			t.Errorf("shutdown: %v", err)
		}
	})
	return pool
}

func waitResult(t *testing.T, h interface {
	Wait(context.Context) (*domain.SpecialistResult, error)
}) *domain.SpecialistResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := h.Wait(ctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	return res
}

func TestSubmitDeduplicatesIdenticalTasks(t *testing.T) {
	runner := &runnerFake{release: make(chan struct{})}
	pool := newTestPool(t, runner, DefaultConfig())

	h1, err := pool.Submit(domain.SpecialistMarketData, nil, "Analyze: AAPL", "s1")
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	h2, err := pool.Submit(domain.SpecialistMarketData, nil, "Analyze: AAPL", "s1")
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected identical submissions to share a handle")
	}

	close(runner.release)
	res := waitResult(t, h1)
	if res.Failed() || res.Type != domain.SpecialistMarketData {
		t.Fatalf("unexpected result %+v", res)
	}
	if runner.callCount() != 1 {
		t.Fatalf("expected exactly one computation, got %d", runner.callCount())
	}
}

func TestSubmitDistinguishesSessionsAndTypes(t *testing.T) {
	runner := &runnerFake{}
	pool := newTestPool(t, runner, DefaultConfig())

	a, _ := pool.Submit(domain.SpecialistNews, nil, "task", "s1")
	b, _ := pool.Submit(domain.SpecialistNews, nil, "task", "s2")
	c, _ := pool.Submit(domain.SpecialistMarketData, nil, "task", "s1")
	if a == b || a == c {
		t.Fatalf("expected distinct handles per session and type")
	}
	waitResult(t, a)
	waitResult(t, b)
	waitResult(t, c)
	if runner.callCount() != 3 {
		t.Fatalf("expected 3 computations, got %d", runner.callCount())
	}
}

func TestTryGetResultReturnsCompletedResult(t *testing.T) {
	runner := &runnerFake{}
	pool := newTestPool(t, runner, DefaultConfig())

	h, _ := pool.Submit(domain.SpecialistNews, nil, "News analysis: TSLA", "s1")
	waitResult(t, h)

	res, ok := pool.TryGetResult(domain.SpecialistNews, "News analysis: TSLA", "s1", 0)
	if !ok || res.Content != "analysis of News analysis: TSLA" {
		t.Fatalf("expected cached result, got %+v ok=%v", res, ok)
	}
	if _, ok := pool.TryGetResult(domain.SpecialistNews, "other task", "s1", 0); ok {
		t.Fatalf("expected miss for unknown task")
	}
}

func TestZeroTTLEntryExpiresOnNextLookup(t *testing.T) {
	cache, err := NewTaskCache(8, nil)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	key := Fingerprint("s1", domain.SpecialistNews, "task")
	first, created := cache.GetOrAdd(key, 0, func() *Handle { return newHandle(key, domain.SpecialistNews) })
	if !created {
		t.Fatalf("expected first insert to create")
	}

	if _, ok := cache.Get(key); ok {
		t.Fatalf("expected zero-ttl entry to be expired")
	}
	if cache.Len() != 0 {
		t.Fatalf("expected expired entry to be removed, cache has %d", cache.Len())
	}

	second, created := cache.GetOrAdd(key, 0, func() *Handle { return newHandle(key, domain.SpecialistNews) })
	if !created || second == first {
		t.Fatalf("expected a zero-ttl entry to be replaced on the next insert")
	}
}

func TestZeroConfigKeepsDeduplication(t *testing.T) {
	runner := &runnerFake{release: make(chan struct{})}
	pool := newTestPool(t, runner, Config{})

	h1, err := pool.Submit(domain.SpecialistMarketData, nil, "Analyze: AAPL", "s1")
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	h2, err := pool.Submit(domain.SpecialistMarketData, nil, "Analyze: AAPL", "s1")
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected a zero Config to fall back to the default ttl and share the handle")
	}
	close(runner.release)
	waitResult(t, h1)
	if runner.callCount() != 1 {
		t.Fatalf("expected exactly one computation, got %d", runner.callCount())
	}
}

func TestEntryExpiresAfterTTLWithInjectedClock(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	runner := &runnerFake{}
	cfg := DefaultConfig()
	cfg.Now = clock
	pool := newTestPool(t, runner, cfg)

	h, _ := pool.Submit(domain.SpecialistMarketData, nil, "task", "s1")
	waitResult(t, h)

	mu.Lock()
	now = now.Add(299 * time.Second)
	mu.Unlock()
	if _, ok := pool.TryGetResult(domain.SpecialistMarketData, "task", "s1", 0); !ok {
		t.Fatalf("expected hit before ttl")
	}

	mu.Lock()
	now = now.Add(time.Second)
	mu.Unlock()
	if _, ok := pool.TryGetResult(domain.SpecialistMarketData, "task", "s1", 0); ok {
		t.Fatalf("expected miss at exactly ttl")
	}

	h2, _ := pool.Submit(domain.SpecialistMarketData, nil, "task", "s1")
	waitResult(t, h2)
	if runner.callCount() != 2 {
		t.Fatalf("expected resubmission after expiry, got %d calls", runner.callCount())
	}
}

func TestFailedTaskIsEvictedAndRetryable(t *testing.T) {
	runner := &runnerFake{err: errors.New("upstream 500")}
	pool := newTestPool(t, runner, DefaultConfig())

	h, _ := pool.Submit(domain.SpecialistNews, nil, "task", "s1")
	res := waitResult(t, h)
	if !res.Failed() || !strings.HasPrefix(res.Content, "Error: ") {
		t.Fatalf("expected structured failure, got %+v", res)
	}
	if res.CostUSD != 0 {
		t.Fatalf("expected zero cost for failure, got %f", res.CostUSD)
	}

	if _, ok := pool.TryGetResult(domain.SpecialistNews, "task", "s1", 0); ok {
		t.Fatalf("expected failed result to be reported as a miss")
	}

	h2, err := pool.Submit(domain.SpecialistNews, nil, "task", "s1")
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if h2 == h {
		t.Fatalf("expected a fresh handle after failure")
	}
	waitResult(t, h2)
	if runner.callCount() != 2 {
		t.Fatalf("expected retry to run again, got %d calls", runner.callCount())
	}
}

func TestFailedHandleIsEvictedBeforeItCompletes(t *testing.T) {
	runner := &runnerFake{err: errors.New("upstream 500")}
	pool := newTestPool(t, runner, DefaultConfig())

	for i := 0; i < 50; i++ {
		h, err := pool.Submit(domain.SpecialistNews, nil, "task", "s1")
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		<-h.Done()
		if pool.CacheLen() != 0 {
			t.Fatalf("iteration %d: failed handle still cached after completion", i)
		}
		next, err := pool.Submit(domain.SpecialistNews, nil, "task", "s1")
		if err != nil {
			t.Fatalf("resubmit %d: %v", i, err)
		}
		if next == h {
			t.Fatalf("iteration %d: resubmission joined a failed handle", i)
		}
		waitResult(t, next)
	}
}

func TestWorkerRecoversFromPanic(t *testing.T) {
	runner := &runnerFake{panicMsg: "boom"}
	pool := newTestPool(t, runner, DefaultConfig())

	h, _ := pool.Submit(domain.SpecialistMarketData, nil, "task", "s1")
	res := waitResult(t, h)
	if !res.Failed() || !strings.Contains(res.Error, "boom") {
		t.Fatalf("expected panic converted to failure, got %+v", res)
	}

	runner.mu.Lock()
	runner.panicMsg = ""
	runner.mu.Unlock()
	h2, _ := pool.Submit(domain.SpecialistMarketData, nil, "next", "s1")
	if res := waitResult(t, h2); res.Failed() {
		t.Fatalf("expected pool to keep serving after a panic, got %+v", res)
	}
}

func TestSubmitPassesOnlyTrailingContext(t *testing.T) {
	runner := &runnerFake{}
	pool := newTestPool(t, runner, DefaultConfig())

	history := make([]domain.Message, 0, 10)
	for i := 0; i < 10; i++ {
		history = append(history, domain.Message{Role: domain.RoleUser, Content: string(rune('a' + i))})
	}
	h, _ := pool.Submit(domain.SpecialistNews, history, "task", "s1")
	waitResult(t, h)

	runner.mu.Lock()
	got := runner.histories[0]
	runner.mu.Unlock()
	if len(got) != 6 || got[0].Content != "e" || got[5].Content != "j" {
		t.Fatalf("expected last 6 messages, got %+v", got)
	}
}

func TestTryGetResultTimesOutOnRunningTask(t *testing.T) {
	runner := &runnerFake{release: make(chan struct{})}
	pool := newTestPool(t, runner, DefaultConfig())

	_, _ = pool.Submit(domain.SpecialistNews, nil, "task", "s1")
	start := time.Now()
	if _, ok := pool.TryGetResult(domain.SpecialistNews, "task", "s1", 20*time.Millisecond); ok {
		t.Fatalf("expected miss while task is running")
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatalf("expected lookup to wait for the timeout")
	}
	close(runner.release)
}

func TestSubmitAfterShutdownFails(t *testing.T) {
	pool, err := New(&runnerFake{}, DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	if err := pool.Shutdown(context.Background(), true); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if _, err := pool.Submit(domain.SpecialistNews, nil, "task", "s1"); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected pool closed, got %v", err)
	}
	if err := pool.Shutdown(context.Background(), true); err != nil {
		t.Fatalf("second shutdown should be a no-op, got %v", err)
	}
}

func TestShutdownWithoutWaitCancelsRunningTasks(t *testing.T) {
	runner := &runnerFake{release: make(chan struct{})}
	pool, err := New(runner, DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	h, _ := pool.Submit(domain.SpecialistNews, nil, "task", "s1")
	if err := pool.Shutdown(context.Background(), false); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	res := waitResult(t, h)
	if !res.Failed() {
		t.Fatalf("expected cancelled task to fail, got %+v", res)
	}
	pool.wg.Wait()
}

func TestFingerprintIsDeterministic(t *testing.T) {
	a := Fingerprint("s1", domain.SpecialistNews, "task")
	b := Fingerprint("s1", domain.SpecialistNews, "task")
	if a != b {
		t.Fatalf("fingerprint not deterministic: %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, "s1:news:") {
		t.Fatalf("unexpected fingerprint layout %q", a)
	}
	if a == Fingerprint("s1", domain.SpecialistNews, "task2") {
		t.Fatalf("expected different tasks to differ")
	}
}
