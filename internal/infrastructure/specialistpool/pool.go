package specialistpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/fin-research-assistant/internal/core/domain"
	"github.com/kirillkom/fin-research-assistant/internal/core/ports"
)

const (
	DefaultWorkers         = 4
	DefaultQueueSize       = 64
	DefaultTTL             = 300 * time.Second
	DefaultCacheCapacity   = 1024
	DefaultContextMessages = 6
)

var (
	ErrPoolClosed = errors.New("specialist pool closed")
	ErrQueueFull  = errors.New("specialist queue full")
)

type Config struct {
	Workers         int
	QueueSize       int
	TTL             time.Duration
	CacheCapacity   int
	ContextMessages int
	TaskTimeout     time.Duration
	Now             func() time.Time
}

func (c Config) normalize() Config {
	out := c
	if out.Workers <= 0 {
		out.Workers = DefaultWorkers
	}
	if out.QueueSize <= 0 {
		out.QueueSize = DefaultQueueSize
	}
	if out.TTL <= 0 {
		out.TTL = DefaultTTL
	}
	if out.CacheCapacity <= 0 {
		out.CacheCapacity = DefaultCacheCapacity
	}
	if out.ContextMessages <= 0 {
		out.ContextMessages = DefaultContextMessages
	}
	if out.Now == nil {
		out.Now = time.Now
	}
	return out
}

func DefaultConfig() Config {
	return Config{
		Workers:         DefaultWorkers,
		QueueSize:       DefaultQueueSize,
		TTL:             DefaultTTL,
		CacheCapacity:   DefaultCacheCapacity,
		ContextMessages: DefaultContextMessages,
	}
}

// Observer receives pool events; the metrics package implements it.
type Observer interface {
	ObserveSpecialistSubmit(specialistType string, deduplicated bool)
	ObserveSpecialistRun(specialistType, status string, duration time.Duration)
}

type job struct {
	handle  *Handle
	history []domain.Message
	task    string
}

// Pool runs specialist tasks on a fixed set of worker goroutines and keeps
// their handles in a TaskCache so identical submissions share one run.
type Pool struct {
	runner   ports.SpecialistRunner
	cfg      Config
	cache    *TaskCache
	observer Observer

	jobs   chan *job
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

func New(runner ports.SpecialistRunner, cfg Config, observer Observer) (*Pool, error) {
	if runner == nil {
		return nil, fmt.Errorf("specialist pool: runner is nil")
	}
	cfg = cfg.normalize()
	cache, err := NewTaskCache(cfg.CacheCapacity, cfg.Now)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		runner:   runner,
		cfg:      cfg,
		cache:    cache,
		observer: observer,
		jobs:     make(chan *job, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
	p.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go p.worker()
	}
	slog.Info("specialist_pool_started", "workers", cfg.Workers, "ttl_seconds", cfg.TTL.Seconds())
	return p, nil
}

// Submit returns the existing handle for an unexpired identical task, or
// enqueues a new run. Only the trailing context messages reach the worker.
func (p *Pool) Submit(
	specialistType domain.SpecialistType,
	history []domain.Message,
	task, sessionID string,
) (ports.SpecialistHandle, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrPoolClosed
	}

	key := Fingerprint(sessionID, specialistType, task)
	h, created := p.cache.GetOrAdd(key, p.cfg.TTL, func() *Handle {
		return newHandle(key, specialistType)
	})
	if p.observer != nil {
		p.observer.ObserveSpecialistSubmit(string(specialistType), !created)
	}
	if !created {
		slog.Debug("specialist_deduplicated", "type", specialistType, "key", key)
		return h, nil
	}

	j := &job{
		handle:  h,
		history: append([]domain.Message(nil), domain.LastMessages(history, p.cfg.ContextMessages)...),
		task:    task,
	}
	select {
	case p.jobs <- j:
	default:
		p.cache.RemoveHandle(key, h)
		return nil, domain.WrapError(domain.ErrTemporary, "submit specialist task", ErrQueueFull)
	}

	slog.Info("specialist_submitted", "type", specialistType, "key", key, "session_id", sessionID)
	return h, nil
}

// TryGetResult returns a finished successful result for the task, waiting at
// most timeout for a running one. Failed results are evicted and reported as misses.
func (p *Pool) TryGetResult(
	specialistType domain.SpecialistType,
	task, sessionID string,
	timeout time.Duration,
) (*domain.SpecialistResult, bool) {
	key := Fingerprint(sessionID, specialistType, task)
	h, ok := p.cache.Get(key)
	if !ok {
		return nil, false
	}

	res, done := h.Result()
	if !done {
		if timeout <= 0 {
			return nil, false
		}
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-h.Done():
			res = h.result
		case <-timer.C:
			return nil, false
		}
	}

	if res == nil || res.Failed() {
		p.cache.RemoveHandle(key, h)
		return nil, false
	}
	return res, true
}

// Shutdown stops accepting work. With wait it drains queued and running
// tasks until ctx ends; without wait running tasks see a cancelled context.
func (p *Pool) Shutdown(ctx context.Context, wait bool) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	if !wait {
		p.cancel()
		slog.Info("specialist_pool_stopped", "drained", false)
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.cancel()
		slog.Info("specialist_pool_stopped", "drained", true)
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return fmt.Errorf("specialist pool shutdown: %w", ctx.Err())
	}
}

func (p *Pool) CacheLen() int {
	return p.cache.Len()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for j := range p.jobs {
		p.execute(j)
	}
}

func (p *Pool) execute(j *job) {
	start := time.Now()
	res := p.run(j)
	// A failed handle leaves the cache before it completes, so a concurrent
	// Submit starts a fresh run instead of joining the failure.
	if res.Failed() {
		p.cache.RemoveHandle(j.handle.key, j.handle)
	}
	j.handle.complete(res)

	status := "success"
	if res.Failed() {
		status = "error"
		slog.Warn("specialist_failed", "type", j.handle.specialistType, "key", j.handle.key, "error", res.Error)
	} else {
		slog.Info("specialist_completed",
			"type", j.handle.specialistType,
			"key", j.handle.key,
			"cost_usd", res.CostUSD,
			"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
		)
	}
	if p.observer != nil {
		p.observer.ObserveSpecialistRun(string(j.handle.specialistType), status, time.Since(start))
	}
}

func (p *Pool) run(j *job) (result *domain.SpecialistResult) {
	defer func() {
		if r := recover(); r != nil {
			result = failedResult(j.handle.specialistType, fmt.Errorf("panic: %v", r))
		}
	}()

	ctx := p.ctx
	if p.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.TaskTimeout)
		defer cancel()
	}

	res, err := p.runner.Run(ctx, j.handle.specialistType, j.history, j.task)
	if err != nil {
		return failedResult(j.handle.specialistType, err)
	}
	if res == nil {
		return failedResult(j.handle.specialistType, errors.New("runner returned no result"))
	}
	out := *res
	out.Type = j.handle.specialistType
	return &out
}

func failedResult(specialistType domain.SpecialistType, err error) *domain.SpecialistResult {
	return &domain.SpecialistResult{
		Type:    specialistType,
		Content: "Error: " + err.Error(),
		Error:   err.Error(),
	}
}
