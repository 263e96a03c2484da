package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/fin-research-assistant/internal/core/domain"
	"github.com/kirillkom/fin-research-assistant/internal/core/ports"
)

const (
	DefaultSessionID    = "default"
	DefaultSyncTimeout  = 30 * time.Second
	DefaultPeekTimeout  = 100 * time.Millisecond
	generalistAgentName = "generalist"
)

type OrchestratorConfig struct {
	// SyncTimeout bounds the wait for a specialist run inside a request.
	SyncTimeout time.Duration
	// PeekTimeout bounds the cache check for a pre-fetched result.
	PeekTimeout time.Duration
}

func (c OrchestratorConfig) normalize() OrchestratorConfig {
	if c.SyncTimeout <= 0 {
		c.SyncTimeout = DefaultSyncTimeout
	}
	if c.PeekTimeout <= 0 {
		c.PeekTimeout = DefaultPeekTimeout
	}
	return c
}

// QueryObserver receives per-query outcomes; the metrics package implements it.
type QueryObserver interface {
	ObserveQuery(agent, reason string, costUSD float64, duration time.Duration)
	ObserveQueryFailure(stage string)
	ObservePrefetch(specialistType, reason string)
}

// Orchestrator routes a query to the generalist alone or through a
// specialist, and commits the turn to the session only once a final answer
// exists.
type Orchestrator struct {
	engine     *DecisionEngine
	generalist *Generalist
	pool       ports.SpecialistDispatcher
	sessions   ports.SessionStore
	cfg        OrchestratorConfig
	observer   QueryObserver
	locks      *sessionLocks
}

func NewOrchestrator(
	engine *DecisionEngine,
	generalist *Generalist,
	pool ports.SpecialistDispatcher,
	sessions ports.SessionStore,
	cfg OrchestratorConfig,
	observer QueryObserver,
) *Orchestrator {
	return &Orchestrator{
		engine:     engine,
		generalist: generalist,
		pool:       pool,
		sessions:   sessions,
		cfg:        cfg.normalize(),
		observer:   observer,
		locks:      newSessionLocks(),
	}
}

func (o *Orchestrator) ProcessQuery(ctx context.Context, query, sessionID string) (*domain.QueryResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "process query", errors.New("query is required"))
	}
	sessionID = normalizeSessionID(sessionID)

	unlock := o.locks.Lock(sessionID)
	defer unlock()

	started := time.Now()
	session, err := o.sessions.GetOrCreate(ctx, sessionID)
	if err != nil {
		o.fail("session")
		return nil, fmt.Errorf("load session: %w", err)
	}
	history := session.History

	decision := o.engine.ShouldInvoke(query, history, session.Profile())
	var result *domain.QueryResult
	if decision.Invoke {
		result, err = o.withSpecialist(ctx, query, sessionID, history, decision)
	} else {
		result, err = o.generalistOnly(ctx, query, sessionID, history)
	}
	if err != nil {
		return nil, err
	}

	turn := []domain.Message{
		{Role: domain.RoleUser, Content: query},
		{Role: domain.RoleAssistant, Content: result.Response},
	}
	if err := o.sessions.AppendTurn(ctx, sessionID, turn); err != nil {
		o.fail("session")
		return nil, fmt.Errorf("append session turn: %w", err)
	}

	result.SessionID = sessionID
	if o.observer != nil {
		o.observer.ObserveQuery(result.Agent, result.DecisionReason, result.CostUSD, time.Since(started))
	}
	slog.Info("query_processed",
		"session_id", sessionID,
		"agent", result.Agent,
		"reason", result.DecisionReason,
		"prefetch_active", result.PrefetchActive,
		"cost_usd", result.CostUSD,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return result, nil
}

func (o *Orchestrator) generalistOnly(ctx context.Context, query, sessionID string, history []domain.Message) (*domain.QueryResult, error) {
	answer, err := o.generalist.Answer(ctx, query, history)
	if err != nil {
		o.fail("generalist")
		return nil, err
	}

	prefetch := o.engine.ShouldPrefetch(query, answer.Text, history)
	active := false
	if prefetch.Invoke {
		active = o.prefetch(query, sessionID, history, prefetch)
	}

	return &domain.QueryResult{
		Response:       answer.Text,
		CostUSD:        answer.CostUSD,
		Agent:          generalistAgentName,
		PrefetchActive: active,
		DecisionReason: prefetch.Reason,
	}, nil
}

// prefetch is fire and forget: the handle is dropped and run failures are
// reported by the pool. It reports whether a task was queued or joined.
func (o *Orchestrator) prefetch(query, sessionID string, history []domain.Message, d domain.Decision) bool {
	task := o.engine.ExtractTask(query, history, d.Type)
	if _, err := o.pool.Submit(d.Type, history, task, sessionID); err != nil {
		slog.Warn("prefetch_submit_failed", "type", d.Type, "reason", d.Reason, "session_id", sessionID, "error", err)
		return false
	}
	if o.observer != nil {
		o.observer.ObservePrefetch(string(d.Type), d.Reason)
	}
	slog.Info("prefetch_submitted", "type", d.Type, "reason", d.Reason, "session_id", sessionID)
	return true
}

func (o *Orchestrator) withSpecialist(
	ctx context.Context,
	query, sessionID string,
	history []domain.Message,
	d domain.Decision,
) (*domain.QueryResult, error) {
	task := o.engine.ExtractTask(query, history, d.Type)

	analysis, fromCache := o.pool.TryGetResult(d.Type, task, sessionID, o.cfg.PeekTimeout)
	if fromCache {
		slog.Info("specialist_cache_hit", "type", d.Type, "session_id", sessionID)
	} else {
		var err error
		analysis, err = o.runSpecialist(ctx, sessionID, history, task, d.Type)
		if err != nil {
			return nil, err
		}
	}

	synthesis, err := o.generalist.Synthesize(ctx, query, history, d.Type, analysis.Content)
	if err != nil {
		o.fail("synthesis")
		return nil, err
	}

	return &domain.QueryResult{
		Response:          synthesis.Text,
		CostUSD:           analysis.CostUSD + synthesis.CostUSD,
		Agent:             generalistAgentName + "+" + string(d.Type),
		DecisionReason:    d.Reason,
		SpecialistCostUSD: analysis.CostUSD,
		SynthesisCostUSD:  synthesis.CostUSD,
	}, nil
}

func (o *Orchestrator) runSpecialist(
	ctx context.Context,
	sessionID string,
	history []domain.Message,
	task string,
	specialistType domain.SpecialistType,
) (*domain.SpecialistResult, error) {
	handle, err := o.pool.Submit(specialistType, history, task, sessionID)
	if err != nil {
		o.fail("submit")
		if domain.IsKind(err, domain.ErrTemporary) {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrSpecialistFailure, "submit specialist", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, o.cfg.SyncTimeout)
	defer cancel()
	res, err := handle.Wait(waitCtx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		o.fail("timeout")
		return nil, domain.WrapError(domain.ErrTimeoutExceeded, "wait specialist",
			fmt.Errorf("%s specialist did not finish within %s", specialistType, o.cfg.SyncTimeout))
	}
	if res == nil || res.Failed() {
		o.fail("specialist")
		msg := "no result"
		if res != nil {
			msg = res.Error
		}
		return nil, domain.WrapError(domain.ErrSpecialistFailure, "run specialist", fmt.Errorf("%s: %s", specialistType, msg))
	}
	return res, nil
}

func (o *Orchestrator) SessionStats(ctx context.Context, sessionID string) (*domain.SessionStats, error) {
	sessionID = normalizeSessionID(sessionID)
	session, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &domain.SessionStats{
		SessionID:    session.ID,
		QueryCount:   session.QueryCount,
		MessageCount: len(session.History),
		CreatedAt:    session.CreatedAt,
		UpdatedAt:    session.UpdatedAt,
	}, nil
}

func (o *Orchestrator) ClearSession(ctx context.Context, sessionID string) error {
	sessionID = normalizeSessionID(sessionID)
	unlock := o.locks.Lock(sessionID)
	defer unlock()
	if err := o.sessions.Delete(ctx, sessionID); err != nil {
		return err
	}
	slog.Info("session_cleared", "session_id", sessionID)
	return nil
}

// Diagnose reports how a query would be routed for a session without
// calling any agent or mutating state.
func (o *Orchestrator) Diagnose(ctx context.Context, query, sessionID string) (*domain.Diagnostic, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "diagnose query", errors.New("query is required"))
	}
	var history []domain.Message
	var profile domain.UserProfile
	session, err := o.sessions.Get(ctx, normalizeSessionID(sessionID))
	switch {
	case err == nil:
		history, profile = session.History, session.Profile()
	case !domain.IsKind(err, domain.ErrSessionNotFound):
		return nil, err
	}

	decision := o.engine.ShouldInvoke(query, history, profile)
	diag := &domain.Diagnostic{
		Query:    query,
		Decision: decision,
		Tickers:  o.engine.ExtractTickers(query, history),
		Lexicon:  o.engine.Lexicon().Sizes(),
	}
	if diag.Tickers == nil {
		diag.Tickers = []string{}
	}
	if decision.Invoke {
		diag.ExtractedTask = o.engine.ExtractTask(query, history, decision.Type)
	}
	return diag, nil
}

// Close drains the specialist pool.
func (o *Orchestrator) Close(ctx context.Context) error {
	return o.pool.Shutdown(ctx, true)
}

func (o *Orchestrator) fail(stage string) {
	if o.observer != nil {
		o.observer.ObserveQueryFailure(stage)
	}
}

func normalizeSessionID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return DefaultSessionID
	}
	return id
}
