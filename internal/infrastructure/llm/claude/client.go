package claude

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/kirillkom/fin-research-assistant/internal/core/domain"
	"github.com/kirillkom/fin-research-assistant/internal/infrastructure/resilience"
)

type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
}

type messagesAPI interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Client implements ports.TextCompletion on top of the Messages API.
type Client struct {
	messages     messagesAPI
	defaultModel string
	prices       PriceTable
	executor     *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// retries are owned by the executor
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	client := anthropic.NewClient(opts...)
	return newWithMessages(&client.Messages, cfg.DefaultModel, executor)
}

func newWithMessages(messages messagesAPI, defaultModel string, executor *resilience.Executor) *Client {
	if strings.TrimSpace(defaultModel) == "" {
		defaultModel = ModelSonnet
	}
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Client{
		messages:     messages,
		defaultModel: defaultModel,
		prices:       DefaultPrices(),
		executor:     executor,
	}
}

func (c *Client) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.Completion, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.defaultModel
	}
	params, err := buildParams(model, req)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	msg, err := resilience.Call(ctx, c.executor, resilience.OperationAnthropicMessages, func(ctx context.Context) (*anthropic.Message, error) {
		return c.messages.New(ctx, params)
	}, classifyAnthropicError)
	if err != nil {
		return nil, resilience.WrapTemporary("anthropic complete", fmt.Errorf("anthropic messages: %w", err), classifyAnthropicError)
	}

	usage := domain.TokenUsage{
		InputTokens:              int(msg.Usage.InputTokens),
		OutputTokens:             int(msg.Usage.OutputTokens),
		CacheCreationInputTokens: int(msg.Usage.CacheCreationInputTokens),
		CacheReadInputTokens:     int(msg.Usage.CacheReadInputTokens),
	}
	cost := c.prices.Cost(model, usage)
	slog.Info("llm_completion",
		"model", model,
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
		"cache_read_tokens", usage.CacheReadInputTokens,
		"cache_write_tokens", usage.CacheCreationInputTokens,
		"cost_usd", cost,
		"duration_ms", time.Since(started).Milliseconds(),
	)

	return &domain.Completion{
		Text:    collectText(msg),
		Model:   model,
		Usage:   usage,
		CostUSD: cost,
	}, nil
}

func buildParams(model string, req domain.CompletionRequest) (anthropic.MessageNewParams, error) {
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		switch m.Role {
		case domain.RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case domain.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			return anthropic.MessageNewParams{}, domain.WrapError(domain.ErrInvalidInput, "anthropic complete", fmt.Errorf("unsupported role %q", m.Role))
		}
	}
	if len(messages) == 0 {
		return anthropic.MessageNewParams{}, domain.WrapError(domain.ErrInvalidInput, "anthropic complete", errors.New("no messages"))
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(maxTokens),
		Messages:    messages,
		Temperature: anthropic.Float(req.Temperature),
	}
	if req.System != "" {
		block := anthropic.TextBlockParam{Text: req.System}
		if req.CacheSystem {
			block.CacheControl = anthropic.NewCacheControlEphemeralParam()
		}
		params.System = []anthropic.TextBlockParam{block}
	}
	return params, nil
}

func collectText(msg *anthropic.Message) string {
	var b strings.Builder
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(text.Text)
		}
	}
	return strings.TrimSpace(b.String())
}

func classifyAnthropicError(err error) resilience.ErrorClassification {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if resilience.RetryableStatus(apiErr.StatusCode) {
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
		return resilience.ErrorClassification{}
	}
	return resilience.ClassifyUpstream(err)
}
