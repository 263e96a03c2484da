package resilience

import "time"

const (
	OperationAnthropicMessages = "anthropic.messages"
	OperationOllamaEmbed       = "ollama.embed"
	OperationNATSPublish       = "nats.publish"
)

type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64

	// Operations overrides the retry schedule per operation name. Zero fields
	// inherit the top-level values.
	Operations map[string]RetryOverride

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

type RetryOverride struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type retrySchedule struct {
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	multiplier     float64
}

func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 100 * time.Millisecond,
		RetryMaxBackoff:     400 * time.Millisecond,
		RetryMultiplier:     2.0,

		Operations: map[string]RetryOverride{
			// 429 and 529 from the Messages API clear on the order of seconds.
			OperationAnthropicMessages: {InitialBackoff: time.Second, MaxBackoff: 8 * time.Second},
			OperationNATSPublish:       {MaxAttempts: 5, InitialBackoff: 50 * time.Millisecond, MaxBackoff: time.Second},
		},

		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()

	if out.RetryMaxAttempts <= 0 {
		out.RetryMaxAttempts = def.RetryMaxAttempts
	}
	if out.RetryInitialBackoff <= 0 {
		out.RetryInitialBackoff = def.RetryInitialBackoff
	}
	if out.RetryMaxBackoff < out.RetryInitialBackoff {
		out.RetryMaxBackoff = out.RetryInitialBackoff
	}
	if out.RetryMultiplier < 1.0 {
		out.RetryMultiplier = def.RetryMultiplier
	}

	if out.BreakerMinRequests == 0 {
		out.BreakerMinRequests = def.BreakerMinRequests
	}
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if out.BreakerOpenTimeout <= 0 {
		out.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
	if out.BreakerHalfOpenMaxCalls == 0 {
		out.BreakerHalfOpenMaxCalls = def.BreakerHalfOpenMaxCalls
	}

	return out
}

func (c Config) retryFor(operation string) retrySchedule {
	s := retrySchedule{
		maxAttempts:    c.RetryMaxAttempts,
		initialBackoff: c.RetryInitialBackoff,
		maxBackoff:     c.RetryMaxBackoff,
		multiplier:     c.RetryMultiplier,
	}
	o, ok := c.Operations[operation]
	if !ok {
		return s
	}
	if o.MaxAttempts > 0 {
		s.maxAttempts = o.MaxAttempts
	}
	if o.InitialBackoff > 0 {
		s.initialBackoff = o.InitialBackoff
	}
	if o.MaxBackoff > 0 {
		s.maxBackoff = o.MaxBackoff
	}
	if s.maxBackoff < s.initialBackoff {
		s.maxBackoff = s.initialBackoff
	}
	return s
}
