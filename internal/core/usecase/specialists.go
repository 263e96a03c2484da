package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/fin-research-assistant/internal/core/domain"
	"github.com/kirillkom/fin-research-assistant/internal/core/ports"
)

// Specialists runs the market-data and news specialist agents. It gathers
// evidence up front and makes a single completion call per task.
type Specialists struct {
	llm      ports.TextCompletion
	evidence evidenceGatherer
	models   AgentModels
}

func NewSpecialists(llm ports.TextCompletion, market ports.MarketDataProvider, news ports.NewsSearchService, models AgentModels) *Specialists {
	return &Specialists{
		llm:      llm,
		evidence: evidenceGatherer{market: market, news: news},
		models:   models,
	}
}

func (s *Specialists) Run(ctx context.Context, specialistType domain.SpecialistType, history []domain.Message, task string) (*domain.SpecialistResult, error) {
	settings, system, ok := s.models.specialist(specialistType)
	if !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, "run specialist", fmt.Errorf("unknown type %q", specialistType))
	}

	started := time.Now()
	tickers := taskTickers(task)
	var b strings.Builder
	label := "MARKET DATA"
	switch specialistType {
	case domain.SpecialistMarketData:
		s.evidence.marketData(ctx, &b, tickers)
	case domain.SpecialistNews:
		label = "NEWS"
		s.evidence.articles(ctx, &b, taskQuery(task), specialistNewsK, tickers)
	}

	content := withEvidence(label, specialistMessage(history, task), b.String())
	completion, err := s.llm.Complete(ctx, settings.request(system, []domain.Message{{Role: domain.RoleUser, Content: content}}))
	if err != nil {
		return nil, fmt.Errorf("%s specialist: %w", specialistType, err)
	}

	slog.Info("specialist_answered",
		"type", specialistType,
		"tickers", tickers,
		"cost_usd", completion.CostUSD,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return &domain.SpecialistResult{
		Type:    specialistType,
		Content: completion.Text,
		CostUSD: completion.CostUSD,
		Usage:   completion.Usage,
	}, nil
}
