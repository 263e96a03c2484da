package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/fin-research-assistant/internal/core/domain"
	"github.com/kirillkom/fin-research-assistant/internal/core/ports"
)

// Generalist is the primary agent. It sees the full session history and
// answers directly, grounded in evidence gathered for the current turn.
type Generalist struct {
	llm      ports.TextCompletion
	engine   *DecisionEngine
	evidence evidenceGatherer
	settings AgentSettings
}

func NewGeneralist(
	llm ports.TextCompletion,
	engine *DecisionEngine,
	market ports.MarketDataProvider,
	news ports.NewsSearchService,
	settings AgentSettings,
) *Generalist {
	return &Generalist{
		llm:      llm,
		engine:   engine,
		evidence: evidenceGatherer{market: market, news: news},
		settings: settings,
	}
}

func (g *Generalist) Answer(ctx context.Context, query string, history []domain.Message) (*domain.Completion, error) {
	var b strings.Builder
	tickers := g.engine.ExtractTickers(query, nil)
	g.evidence.prices(ctx, &b, tickers)
	if isNewsQuery(query, g.engine.Lexicon()) {
		g.evidence.articles(ctx, &b, query, generalistNewsK, nil)
	}

	messages := appendUser(history, withEvidence("EVIDENCE", query, b.String()))
	completion, err := g.llm.Complete(ctx, g.settings.request(GeneralistSystemPrompt, messages))
	if err != nil {
		return nil, fmt.Errorf("generalist answer: %w", err)
	}
	slog.Info("generalist_answered", "tickers", tickers, "cost_usd", completion.CostUSD)
	return completion, nil
}

// Synthesize rewrites a specialist analysis into the user-facing answer.
func (g *Generalist) Synthesize(
	ctx context.Context,
	query string,
	history []domain.Message,
	specialistType domain.SpecialistType,
	analysis string,
) (*domain.Completion, error) {
	prompt := fmt.Sprintf(synthesisTemplate, specialistType, analysis, query)
	completion, err := g.llm.Complete(ctx, g.settings.request(SynthesisSystemPrompt, appendUser(history, prompt)))
	if err != nil {
		return nil, fmt.Errorf("synthesize %s analysis: %w", specialistType, err)
	}
	return completion, nil
}

func appendUser(history []domain.Message, content string) []domain.Message {
	out := make([]domain.Message, 0, len(history)+1)
	out = append(out, history...)
	return append(out, domain.Message{Role: domain.RoleUser, Content: content})
}
