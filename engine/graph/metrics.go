package graph

import (
	"context"
	"fmt"

	"github.com/WessleyAI/routes-aggregator/pkg/repo"
)

// Stats holds node and relationship counts for one agent type.
type Stats struct {
	AgentType     string           `json:"agent_type"`
	Nodes         map[string]int64 `json:"nodes"`
	Relationships map[string]int64 `json:"relationships"`
}

const (
	cypherNodeCounts = `MATCH (n {agent_type: $agent_type}) WHERE n:Station OR n:Route
		RETURN labels(n)[0] AS type, count(*) AS count`
	cypherRelationshipCounts = `MATCH ()-[r:ROUTE_CONNECTION|TRANSITION {agent_type: $agent_type}]->()
		RETURN type(r) AS type, count(*) AS count`
)

// Stats returns node counts by label and relationship counts by type for
// agentType.
func (g *GraphStore) Stats(ctx context.Context, agentType string) (Stats, error) {
	params := map[string]any{"agent_type": agentType}
	out, err := g.read(ctx, func(tx repo.Runner) (any, error) {
		nodes, err := countBy(ctx, tx, cypherNodeCounts, params)
		if err != nil {
			return nil, err
		}
		rels, err := countBy(ctx, tx, cypherRelationshipCounts, params)
		if err != nil {
			return nil, err
		}
		return Stats{AgentType: agentType, Nodes: nodes, Relationships: rels}, nil
	})
	if err != nil {
		g.log.Error("graph store failure", "op", "stats", "err", err)
		return Stats{}, fmt.Errorf("stats %s: %w", agentType, err)
	}
	return out.(Stats), nil
}

func countBy(ctx context.Context, tx repo.Runner, cypher string, params map[string]any) (map[string]int64, error) {
	result, err := tx.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64)
	for result.Next(ctx) {
		rec := result.Record()
		typ, _ := rec.Get("type")
		cnt, _ := rec.Get("count")
		if t, ok := typ.(string); ok {
			if c, ok := cnt.(int64); ok {
				counts[t] = c
			}
		}
	}
	return counts, nil
}
