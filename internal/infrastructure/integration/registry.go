package integration

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/kirillkom/doc2sys/internal/core/domain"
	"github.com/kirillkom/doc2sys/internal/core/ports"
	"github.com/kirillkom/doc2sys/internal/infrastructure/resilience"
)

// Connector forwards processed documents to one external system.
type Connector interface {
	Authenticate(ctx context.Context) error
	TestConnection(ctx context.Context) error
	SyncDocument(ctx context.Context, doc *domain.Document) (domain.SyncResult, error)
	MappingFields() []domain.MappingField
}

// Deps are the shared clients handed to every connector factory.
type Deps struct {
	HTTPClient   *http.Client
	Executor     *resilience.Executor
	Publisher    ports.EventPublisher
	EventSubject string
	Logger       *slog.Logger
}

// Factory builds a connector for one set of settings. Factories must not do I/O.
type Factory func(settings domain.IntegrationSettings, deps Deps) (Connector, error)

type Registry struct {
	deps Deps

	mu        sync.RWMutex
	factories map[string]Factory
}

// withDefaults fills the clients a connector cannot run without. Factories call it so a
// connector built outside a Registry is usable too.
func (d Deps) withDefaults() Deps {
	if d.HTTPClient == nil {
		d.HTTPClient = &http.Client{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return d
}

func NewRegistry(deps Deps) *Registry {
	return &Registry{deps: deps.withDefaults(), factories: make(map[string]Factory)}
}

// NewDefaultRegistry registers the built-in connectors.
func NewDefaultRegistry(deps Deps) *Registry {
	r := NewRegistry(deps)
	r.Register(ERPNextConnector, NewERPNext)
	r.Register(WebhookConnector, NewWebhook)
	r.Register(EventConnector, NewEvent)
	return r
}

func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(strings.TrimSpace(name))] = factory
}

func (r *Registry) Create(settings domain.IntegrationSettings) (Connector, error) {
	name := strings.ToLower(strings.TrimSpace(settings.Connector))
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.WrapError(domain.ErrConnectorNotFound, "create connector", fmt.Errorf("connector %q is not registered", settings.Connector))
	}
	return factory(settings, r.deps)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Connectors describes every registered connector with its mapping fields.
func (r *Registry) Connectors() []domain.ConnectorInfo {
	names := r.Names()
	out := make([]domain.ConnectorInfo, 0, len(names))
	for _, name := range names {
		conn, err := r.Create(domain.IntegrationSettings{Connector: name})
		if err != nil {
			r.deps.Logger.Warn("integration.describe_failed", "connector", name, "error", err)
			continue
		}
		out = append(out, domain.ConnectorInfo{Name: name, MappingFields: conn.MappingFields()})
	}
	return out
}
