package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/fin-research-assistant/internal/core/domain"
)

const (
	specialistContextTurns    = 3
	specialistContextMaxRunes = 300
	noPriorConversation       = "No prior conversation"
)

// AgentSettings are the sampling parameters of one agent role.
type AgentSettings struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	CacheSystem bool    `json:"cache_system"`
}

type AgentModels struct {
	Generalist AgentSettings
	MarketData AgentSettings
	News       AgentSettings
}

func DefaultAgentModels() AgentModels {
	return AgentModels{
		Generalist: AgentSettings{Model: "claude-sonnet-4-20250514", Temperature: 0.4, MaxTokens: 1024, CacheSystem: true},
		MarketData: AgentSettings{Model: "claude-opus-4-20250514", Temperature: 0.1, MaxTokens: 1536},
		News:       AgentSettings{Model: "claude-sonnet-4-20250514", Temperature: 0.6, MaxTokens: 1536},
	}
}

func (m AgentModels) specialist(t domain.SpecialistType) (AgentSettings, string, bool) {
	switch t {
	case domain.SpecialistMarketData:
		return m.MarketData, MarketDataSpecialistPrompt, true
	case domain.SpecialistNews:
		return m.News, NewsSpecialistPrompt, true
	default:
		return AgentSettings{}, "", false
	}
}

func (s AgentSettings) request(system string, messages []domain.Message) domain.CompletionRequest {
	return domain.CompletionRequest{
		Model:       s.Model,
		System:      system,
		Messages:    messages,
		Temperature: s.Temperature,
		MaxTokens:   s.MaxTokens,
		CacheSystem: s.CacheSystem,
	}
}

// specialistMessage renders the single user turn a specialist sees: a
// truncated summary of recent turns plus the task.
func specialistMessage(history []domain.Message, task string) string {
	recent := noPriorConversation
	if len(history) > 0 {
		lines := make([]string, 0, specialistContextTurns*2)
		for _, m := range domain.LastMessages(history, specialistContextTurns*2) {
			content := m.Content
			if short := truncateRunes(content, specialistContextMaxRunes); short != content {
				content = short + "..."
			}
			lines = append(lines, roleTitle(m.Role)+": "+content)
		}
		recent = strings.Join(lines, "\n")
	}
	return fmt.Sprintf(specialistMessageTemplate, recent, task)
}

// taskTickers reads the ticker line written by ExtractTask.
func taskTickers(task string) []string {
	for _, line := range strings.Split(task, "\n") {
		rest, ok := strings.CutPrefix(line, "Ticker(s): ")
		if !ok {
			continue
		}
		if rest == "Determine from query" {
			return nil
		}
		var out []string
		for _, t := range strings.Split(rest, ",") {
			if t = strings.TrimSpace(t); t != "" {
				out = append(out, t)
			}
		}
		return out
	}
	return nil
}

// taskQuery recovers the user query from the first task line.
func taskQuery(task string) string {
	first, _, _ := strings.Cut(task, "\n")
	for _, prefix := range []string{"Analyze: ", "News analysis: "} {
		if rest, ok := strings.CutPrefix(first, prefix); ok {
			return rest
		}
	}
	return first
}
