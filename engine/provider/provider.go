// Package provider produces the model a graph rebuild persists: either
// freshly built by the builder registered for an agent type, or the last
// snapshot saved for it.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/WessleyAI/routes-aggregator/engine/domain"
	"github.com/WessleyAI/routes-aggregator/engine/snapshot"
)

var (
	// ErrUnknownAgent is returned when no builder is registered for an
	// agent type.
	ErrUnknownAgent = errors.New("unknown agent type")
	// ErrDuplicateBuilder is returned by Register for an agent type that
	// already has a builder.
	ErrDuplicateBuilder = errors.New("builder already registered")
)

// Builder assembles a complete model for one agent type from its source.
type Builder interface {
	AgentType() string
	Build(ctx context.Context) (*domain.Model, error)
}

// Provider builds, snapshots and reloads models.
type Provider struct {
	store snapshot.Store
	log   *slog.Logger
	now   func() time.Time

	mu       sync.RWMutex
	builders map[string]Builder
}

// New creates a Provider over store with the given builders.
func New(store snapshot.Store, log *slog.Logger, builders ...Builder) (*Provider, error) {
	if log == nil {
		log = slog.Default()
	}
	p := &Provider{
		store:    store,
		log:      log,
		now:      time.Now,
		builders: make(map[string]Builder),
	}
	for _, b := range builders {
		if err := p.Register(b); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Register adds b under its agent type.
func (p *Provider) Register(b Builder) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.builders[b.AgentType()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateBuilder, b.AgentType())
	}
	p.builders[b.AgentType()] = b
	return nil
}

// AgentTypes lists the registered agent types in order.
func (p *Provider) AgentTypes() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.builders))
	for agent := range p.builders {
		out = append(out, agent)
	}
	sort.Strings(out)
	return out
}

// Build runs the builder for agentType, validates its model and saves it
// as the current snapshot plus a dated archive. A failed archive save is
// logged and does not fail the build.
func (p *Provider) Build(ctx context.Context, agentType string) (*domain.Model, error) {
	p.mu.RLock()
	b, ok := p.builders[agentType]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, agentType)
	}

	start := p.now()
	m, err := b.Build(ctx)
	if err != nil {
		return nil, fmt.Errorf("build %s model: %w", agentType, err)
	}
	if m.AgentType != agentType {
		return nil, fmt.Errorf("build %s model: builder produced agent type %q", agentType, m.AgentType)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("build %s model: %w", agentType, err)
	}

	if err := p.store.Save(ctx, m, snapshot.CurrentLabel); err != nil {
		return nil, fmt.Errorf("save %s model: %w", agentType, err)
	}
	archive := snapshot.ArchiveLabel(start)
	if err := p.store.Save(ctx, m, archive); err != nil {
		p.log.Warn("archive snapshot failed", "agent_type", agentType, "label", archive, "err", err)
	}

	p.log.Info("model built",
		"agent_type", agentType,
		"stations", len(m.Stations),
		"routes", len(m.Routes),
		"duration", p.now().Sub(start),
	)
	return m, nil
}

// Load returns the current snapshot of agentType.
func (p *Provider) Load(ctx context.Context, agentType string) (*domain.Model, error) {
	m, err := p.store.Load(ctx, agentType, snapshot.CurrentLabel)
	if err != nil {
		return nil, fmt.Errorf("load %s model: %w", agentType, err)
	}
	return m, nil
}

// Model builds a fresh model when rebuild is set and loads the current
// snapshot otherwise.
func (p *Provider) Model(ctx context.Context, agentType string, rebuild bool) (*domain.Model, error) {
	if rebuild {
		return p.Build(ctx, agentType)
	}
	return p.Load(ctx, agentType)
}

// StaticBuilder returns a fixed model. Useful for seeding and tests.
type StaticBuilder struct {
	Model *domain.Model
}

func (s StaticBuilder) AgentType() string { return s.Model.AgentType }

func (s StaticBuilder) Build(context.Context) (*domain.Model, error) { return s.Model, nil }
