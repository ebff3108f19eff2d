package service

import (
	"context"
	"fmt"
	"time"

	"github.com/WessleyAI/routes-aggregator/engine/domain"
	"github.com/WessleyAI/routes-aggregator/pkg/fn"
	"github.com/WessleyAI/routes-aggregator/pkg/metrics"
)

// UpdateResult summarizes a completed model update.
type UpdateResult struct {
	AgentType string        `json:"agent_type"`
	Rebuilt   bool          `json:"rebuilt"`
	Stations  int           `json:"stations"`
	Routes    int           `json:"routes"`
	Duration  time.Duration `json:"duration"`
}

type updateRequest struct {
	agentType string
	rebuild   bool
}

// RequestModelUpdate replaces the graph of agentType. With rebuild the
// provider builds a fresh model (and snapshots it); otherwise it loads the
// current snapshot. Updates of one agent type run one at a time; a waiting
// update gives up when ctx ends.
func (s *Service) RequestModelUpdate(ctx context.Context, agentType string, rebuild bool) (UpdateResult, error) {
	return shielded(s, "request_model_update", func() (UpdateResult, error) {
		start := time.Now()
		release, err := s.lockAgent(ctx, agentType)
		if err != nil {
			return UpdateResult{}, fmt.Errorf("wait for %s update: %w", agentType, err)
		}
		defer release()

		pipeline := fn.Then(
			fn.TracedStage("model.obtain", s.obtainModel),
			fn.Then(
				fn.TracedStage("model.persist", s.persistModel),
				fn.TapStage(func(_ context.Context, m *domain.Model) {
					s.log.Info("model updated", "agent_type", m.AgentType, "rebuild", rebuild,
						"stations", len(m.Stations), "routes", len(m.Routes), "duration", time.Since(start))
				}),
			),
		)
		m, err := pipeline(ctx, updateRequest{agentType: agentType, rebuild: rebuild}).Unwrap()
		status := "ok"
		if err != nil {
			status = "failed"
		}
		s.metrics.Counter(metrics.WithLabels("routes_model_updates_total", "agent_type", agentType, "status", status),
			"Model updates by outcome").Inc()
		if err != nil {
			return UpdateResult{}, err
		}
		s.rebuildDuration.Since(start)
		return UpdateResult{
			AgentType: agentType,
			Rebuilt:   rebuild,
			Stations:  len(m.Stations),
			Routes:    len(m.Routes),
			Duration:  time.Since(start),
		}, nil
	})
}

func (s *Service) obtainModel(ctx context.Context, req updateRequest) fn.Result[*domain.Model] {
	m, err := s.provider.Model(ctx, req.agentType, req.rebuild)
	if err != nil {
		return fn.Err[*domain.Model](err)
	}
	if m == nil {
		return fn.Errf[*domain.Model]("provider returned no model for %s", req.agentType)
	}
	return fn.Ok(m)
}

func (s *Service) persistModel(ctx context.Context, m *domain.Model) fn.Result[*domain.Model] {
	if err := s.store.BuildModel(ctx, m); err != nil {
		return fn.Err[*domain.Model](err)
	}
	return fn.Ok(m)
}

// lockAgent takes the update lock of agentType, waiting at most until ctx
// ends.
func (s *Service) lockAgent(ctx context.Context, agentType string) (func(), error) {
	s.mu.Lock()
	lock, ok := s.locks[agentType]
	if !ok {
		lock = make(chan struct{}, 1)
		s.locks[agentType] = lock
	}
	s.mu.Unlock()

	select {
	case lock <- struct{}{}:
		return func() { <-lock }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
