package resilience

import "time"

// Config is the retry and circuit-breaker policy for one class of outbound dependency.
type Config struct {
	// Name labels retry and breaker logs, e.g. "llm" or "nats".
	Name string

	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64
	// MaxRetryAfter caps how long a server-requested Retry-After delay is honored.
	MaxRetryAfter time.Duration

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

func DefaultConfig() Config {
	return Config{
		Name:                "default",
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 100 * time.Millisecond,
		RetryMaxBackoff:     400 * time.Millisecond,
		RetryMultiplier:     2.0,
		MaxRetryAfter:       2 * time.Second,

		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

// BrokerConfig is for NATS publishes: quick retries while the client reconnects.
func BrokerConfig() Config {
	cfg := DefaultConfig()
	cfg.Name = "nats"
	cfg.RetryMaxAttempts = 5
	cfg.RetryInitialBackoff = 50 * time.Millisecond
	cfg.RetryMaxBackoff = time.Second
	return cfg
}

// ConnectorConfig is for ERP and webhook calls, which often throttle with 429 + Retry-After.
func ConnectorConfig() Config {
	cfg := DefaultConfig()
	cfg.Name = "connector"
	cfg.RetryInitialBackoff = 500 * time.Millisecond
	cfg.RetryMaxBackoff = 5 * time.Second
	cfg.MaxRetryAfter = 30 * time.Second
	cfg.BreakerMinRequests = 5
	return cfg
}

// LLMConfig suits long chat completions: one retry, slower backoff, a breaker that trips after fewer calls.
func LLMConfig() Config {
	cfg := DefaultConfig()
	cfg.Name = "llm"
	cfg.RetryMaxAttempts = 2
	cfg.RetryInitialBackoff = time.Second
	cfg.RetryMaxBackoff = 5 * time.Second
	cfg.MaxRetryAfter = 10 * time.Second
	cfg.BreakerMinRequests = 4
	cfg.BreakerOpenTimeout = time.Minute
	return cfg
}

func (c Config) normalize() Config {
	def := DefaultConfig()
	if c.Name == "" {
		c.Name = def.Name
	}
	c.RetryMaxAttempts = positive(c.RetryMaxAttempts, def.RetryMaxAttempts)
	c.RetryInitialBackoff = positive(c.RetryInitialBackoff, def.RetryInitialBackoff)
	c.RetryMaxBackoff = max(positive(c.RetryMaxBackoff, def.RetryMaxBackoff), c.RetryInitialBackoff)
	if c.RetryMultiplier < 1.0 {
		c.RetryMultiplier = def.RetryMultiplier
	}
	if c.MaxRetryAfter < 0 {
		c.MaxRetryAfter = 0
	}

	c.BreakerMinRequests = positive(c.BreakerMinRequests, def.BreakerMinRequests)
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		c.BreakerFailureRatio = def.BreakerFailureRatio
	}
	c.BreakerOpenTimeout = positive(c.BreakerOpenTimeout, def.BreakerOpenTimeout)
	c.BreakerHalfOpenMaxCalls = positive(c.BreakerHalfOpenMaxCalls, def.BreakerHalfOpenMaxCalls)
	return c
}

func positive[T int | uint32 | time.Duration](v, fallback T) T {
	if v <= 0 {
		return fallback
	}
	return v
}
