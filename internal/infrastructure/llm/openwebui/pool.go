package openwebui

import (
	"log/slog"
	"sync"

	"github.com/kirillkom/doc2sys/internal/core/domain"
	"github.com/kirillkom/doc2sys/internal/infrastructure/resilience"
)

// ClientSource picks the backend for a request's owner.
type ClientSource interface {
	ClientFor(overrides domain.LLMSettings) *Client
}

// Pool hands out one Client per effective backend config. Users without an llm block share the
// deployment client; each distinct endpoint gets its own client and its own circuit breakers.
type Pool struct {
	base        Config
	newExecutor func() *resilience.Executor
	logger      *slog.Logger

	mu      sync.Mutex
	clients map[Config]*Client
}

// NewPool builds a pool over the deployment config. newExecutor may be nil, in which case
// calls run once without retry.
func NewPool(base Config, newExecutor func() *resilience.Executor, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		base:        base.normalize(),
		newExecutor: newExecutor,
		logger:      logger,
		clients:     make(map[Config]*Client),
	}
}

func (p *Pool) ClientFor(o domain.LLMSettings) *Client {
	cfg := p.base
	merged := domain.LLMSettings{BaseURL: cfg.BaseURL, Model: cfg.Model, APIKey: cfg.APIKey}.Merge(o)
	cfg.BaseURL, cfg.Model, cfg.APIKey = merged.BaseURL, merged.Model, merged.APIKey
	cfg = cfg.normalize()

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[cfg]; ok {
		return c
	}
	var executor *resilience.Executor
	if p.newExecutor != nil {
		executor = p.newExecutor()
	}
	c := New(cfg, executor, p.logger)
	p.clients[cfg] = c
	if cfg.BaseURL != p.base.BaseURL || cfg.Model != p.base.Model {
		p.logger.Info("llm.client_created", "base_url", cfg.BaseURL, "model", cfg.Model)
	}
	return c
}

// Configured reports whether the deployment backend itself is usable.
func (p *Pool) Configured() bool {
	return p.base.BaseURL != "" && p.base.Model != ""
}
