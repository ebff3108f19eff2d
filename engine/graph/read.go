package graph

import (
	"context"
	"fmt"

	"github.com/WessleyAI/routes-aggregator/engine/domain"
	"github.com/WessleyAI/routes-aggregator/pkg/fn"
	"github.com/WessleyAI/routes-aggregator/pkg/repo"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

const (
	cypherRouteByDomainID = `MATCH (n:Route {domain_id: $domain_id}) RETURN n LIMIT 1`

	cypherTransitionsByRoute = `MATCH (a:Station)-[t:TRANSITION {route_id: $route_id, agent_type: $agent_type}]->(b:Station)
		RETURN a.station_id AS departure_station_id,
		       b.station_id AS arrival_station_id,
		       t.departure_time AS departure_time,
		       t.arrival_time AS arrival_time
		ORDER BY t.transition_number`

	cypherConnectionsByRoute = `MATCH (s:Station)-[c:ROUTE_CONNECTION]->(n:Route {domain_id: $domain_id})
		RETURN s.station_id AS station_id
		ORDER BY c.station_number`
)

// GetStation returns the station with the given domain id.
func (g *GraphStore) GetStation(ctx context.Context, domainID string) fn.Result[*domain.Station] {
	return logged(g.log, "get station", g.stations.Get(ctx, domainID))
}

// GetRoute returns the route with the given domain id, points included.
func (g *GraphStore) GetRoute(ctx context.Context, domainID string) fn.Result[*domain.Route] {
	out, err := g.read(ctx, func(tx repo.Runner) (any, error) {
		return loadRoute(ctx, tx, domainID)
	})
	if err != nil {
		return logged(g.log, "get route", fn.Err[*domain.Route](fmt.Errorf("get route %s: %w", domainID, err)))
	}
	route, _ := out.(*domain.Route)
	if route == nil {
		return fn.None[*domain.Route]()
	}
	return fn.Ok(route)
}

// loadRoute reads and hydrates one route. It returns nil when there is no
// such route.
func loadRoute(ctx context.Context, tx repo.Runner, domainID string) (*domain.Route, error) {
	res, err := tx.Run(ctx, cypherRouteByDomainID, map[string]any{"domain_id": domainID})
	if err != nil {
		return nil, err
	}
	if !res.Next(ctx) {
		return nil, nil
	}
	node, _, err := neo4j.GetRecordValue[dbtype.Node](res.Record(), "n")
	if err != nil {
		return nil, err
	}
	route := routeFromProps(node.Props)
	if err := hydrateRoute(ctx, tx, route); err != nil {
		return nil, err
	}
	return route, nil
}

// hydrateRoute rebuilds route points from the route's transitions. Point i
// departs at transition i and arrives from transition i-1, so the first
// arrival and the last departure come back empty. A route without
// transitions falls back to its station connections.
func hydrateRoute(ctx context.Context, tx repo.Runner, route *domain.Route) error {
	res, err := tx.Run(ctx, cypherTransitionsByRoute, map[string]any{
		"route_id":   route.RouteID,
		"agent_type": route.AgentType,
	})
	if err != nil {
		return fmt.Errorf("transitions of %s: %w", route.DomainID(), err)
	}

	arrival, last := "", ""
	for res.Next(ctx) {
		rec := res.Record()
		dep := recordString(rec, "departure_station_id")
		route.AddRoutePoint(domain.NewRoutePoint(route.AgentType, route.RouteID, dep,
			arrival, recordString(rec, "departure_time")))
		arrival = recordString(rec, "arrival_time")
		last = recordString(rec, "arrival_station_id")
	}
	if route.Len() > 0 {
		route.AddRoutePoint(domain.NewRoutePoint(route.AgentType, route.RouteID, last, arrival, ""))
		return nil
	}

	res, err = tx.Run(ctx, cypherConnectionsByRoute, map[string]any{"domain_id": route.DomainID()})
	if err != nil {
		return fmt.Errorf("connections of %s: %w", route.DomainID(), err)
	}
	for res.Next(ctx) {
		station := recordString(res.Record(), "station_id")
		route.AddRoutePoint(domain.NewRoutePoint(route.AgentType, route.RouteID, station, "", ""))
	}
	return nil
}

// collectRoutes reads the Route nodes bound as "n" and hydrates each one
// after the row stream is drained.
func collectRoutes(ctx context.Context, tx repo.Runner, cypher string, params map[string]any) ([]*domain.Route, error) {
	res, err := tx.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	var routes []*domain.Route
	for res.Next(ctx) {
		node, _, err := neo4j.GetRecordValue[dbtype.Node](res.Record(), "n")
		if err != nil {
			return nil, err
		}
		routes = append(routes, routeFromProps(node.Props))
	}
	for _, r := range routes {
		if err := hydrateRoute(ctx, tx, r); err != nil {
			return nil, err
		}
	}
	return routes, nil
}

// routeCache hydrates each route at most once per query.
type routeCache map[string]*domain.Route

func (c routeCache) get(ctx context.Context, tx repo.Runner, domainID string) (*domain.Route, error) {
	if r, ok := c[domainID]; ok {
		return r, nil
	}
	r, err := loadRoute(ctx, tx, domainID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("route %s vanished during query", domainID)
	}
	c[domainID] = r
	return r, nil
}

func recordString(rec *neo4j.Record, key string) string {
	v, _ := rec.Get(key)
	s, _ := v.(string)
	return s
}

func recordInt(rec *neo4j.Record, key string) (int, error) {
	v, ok := rec.Get(key)
	if !ok {
		return 0, fmt.Errorf("missing column %s", key)
	}
	n, ok := intValue(v)
	if !ok {
		return 0, fmt.Errorf("column %s: unexpected type %T", key, v)
	}
	return n, nil
}
