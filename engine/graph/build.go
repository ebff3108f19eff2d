package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/WessleyAI/routes-aggregator/engine/domain"
	"github.com/WessleyAI/routes-aggregator/pkg/fn"
	"github.com/WessleyAI/routes-aggregator/pkg/repo"
)

const (
	cypherDeleteRelationships = `MATCH ()-[r:ROUTE_CONNECTION|TRANSITION {agent_type: $agent_type}]->() DELETE r`
	cypherDeleteNodes         = `MATCH (n {agent_type: $agent_type}) WHERE n:Station OR n:Route DELETE n`

	cypherCreateStations = `UNWIND $rows AS row CREATE (n:Station) SET n = row`
	cypherCreateRoutes   = `UNWIND $rows AS row CREATE (n:Route) SET n = row`

	cypherCreateConnections = `UNWIND $rows AS row
		MATCH (s:Station {domain_id: row.station}), (r:Route {domain_id: row.route})
		CREATE (s)-[:ROUTE_CONNECTION {station_number: row.station_number, agent_type: row.agent_type}]->(r)`

	cypherCreateTransitions = `UNWIND $rows AS row
		MATCH (a:Station {domain_id: row.from}), (b:Station {domain_id: row.to})
		CREATE (a)-[:TRANSITION {
			route_id: row.route_id,
			departure_time: row.departure_time,
			arrival_time: row.arrival_time,
			transition_number: row.transition_number,
			agent_type: row.agent_type
		}]->(b)`
)

// modelRows is a model flattened into UNWIND parameter rows.
type modelRows struct {
	stations    []map[string]any
	routes      []map[string]any
	connections []map[string]any
	transitions []map[string]any
}

// flatten renders m in a stable order: stations and routes by id, edges in
// route point order.
func flatten(m *domain.Model) modelRows {
	var rows modelRows

	stationIDs := make([]string, 0, len(m.Stations))
	for id := range m.Stations {
		stationIDs = append(stationIDs, id)
	}
	sort.Strings(stationIDs)
	for _, id := range stationIDs {
		rows.stations = append(rows.stations, stationToMap(m.Stations[id]))
	}

	routeIDs := make([]string, 0, len(m.Routes))
	for id := range m.Routes {
		routeIDs = append(routeIDs, id)
	}
	sort.Strings(routeIDs)
	for _, id := range routeIDs {
		r := m.Routes[id]
		rows.routes = append(rows.routes, routeToMap(r))
		for i, p := range r.Points {
			rows.connections = append(rows.connections, map[string]any{
				"station":        domain.StationDomainID(r.AgentType, p.StationID),
				"route":          r.DomainID(),
				"station_number": int64(i),
				"agent_type":     r.AgentType,
			})
			if i == 0 {
				continue
			}
			prev := r.Points[i-1]
			rows.transitions = append(rows.transitions, map[string]any{
				"from":              domain.StationDomainID(r.AgentType, prev.StationID),
				"to":                domain.StationDomainID(r.AgentType, p.StationID),
				"route_id":          r.RouteID,
				"departure_time":    prev.DepartureTime,
				"arrival_time":      p.ArrivalTime,
				"transition_number": int64(i - 1),
				"agent_type":        r.AgentType,
			})
		}
	}
	return rows
}

// BuildModel replaces the graph of m.AgentType with m in one write
// transaction. Either the whole model is visible afterwards or, on error,
// the previous graph is left untouched.
func (g *GraphStore) BuildModel(ctx context.Context, m *domain.Model) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("build model: %w", err)
	}
	rows := flatten(m)
	agent := map[string]any{"agent_type": m.AgentType}

	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx repo.Runner) (any, error) {
		if _, err := tx.Run(ctx, cypherDeleteRelationships, agent); err != nil {
			return nil, fmt.Errorf("delete relationships: %w", err)
		}
		if _, err := tx.Run(ctx, cypherDeleteNodes, agent); err != nil {
			return nil, fmt.Errorf("delete nodes: %w", err)
		}
		steps := []struct {
			name   string
			cypher string
			rows   []map[string]any
		}{
			{"stations", cypherCreateStations, rows.stations},
			{"routes", cypherCreateRoutes, rows.routes},
			{"route connections", cypherCreateConnections, rows.connections},
			{"transitions", cypherCreateTransitions, rows.transitions},
		}
		for _, step := range steps {
			for _, batch := range fn.Chunk(step.rows, g.batchSize) {
				if _, err := tx.Run(ctx, step.cypher, map[string]any{"rows": toAny(batch)}); err != nil {
					return nil, fmt.Errorf("create %s: %w", step.name, err)
				}
			}
		}
		return nil, nil
	})
	if err != nil {
		g.log.Error("build model failed", "agent_type", m.AgentType, "err", err)
		return fmt.Errorf("build model %s: %w", m.AgentType, err)
	}
	g.log.Info("model built",
		"agent_type", m.AgentType,
		"stations", len(rows.stations),
		"routes", len(rows.routes),
		"transitions", len(rows.transitions),
	)
	return nil
}
