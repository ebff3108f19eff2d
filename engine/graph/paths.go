package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/WessleyAI/routes-aggregator/engine/domain"
	"github.com/WessleyAI/routes-aggregator/engine/pathquery"
	"github.com/WessleyAI/routes-aggregator/pkg/fn"
	"github.com/WessleyAI/routes-aggregator/pkg/repo"
)

// DirectRoute is a route that serves a departure stop before an arrival
// stop, with the indices of both points.
type DirectRoute struct {
	Route          *domain.Route
	DepartureIndex int
	ArrivalIndex   int
}

// hopRow is one hop of a transfer query row.
type hopRow struct {
	route    string
	dep, arr int
}

// renderTransferQuery renders plan as a single MATCH over alternating
// Station and Route nodes. Waypoint ids travel as $group<i> parameters;
// the caller adds $limit.
func renderTransferQuery(plan pathquery.Plan) (string, map[string]any) {
	var (
		patterns []string
		where    []string
		columns  []string
		params   = map[string]any{}
	)
	for _, h := range plan.Hops {
		edge := sanitizeIdent(string(h.Edge))
		patterns = append(patterns, fmt.Sprintf(
			"(s%d:Station)-[d%d:%s]->(r%d:Route)<-[a%d:%s]-(s%d:Station)",
			h.From, h.Index, edge, h.Route, h.Index, edge, h.To))
		if h.Ordered {
			where = append(where, fmt.Sprintf("d%d.station_number < a%d.station_number", h.Index, h.Index))
		}
		columns = append(columns,
			fmt.Sprintf("r%d.domain_id AS route_%d", h.Route, h.Index),
			fmt.Sprintf("d%d.station_number AS departure_%d", h.Index, h.Index),
			fmt.Sprintf("a%d.station_number AS arrival_%d", h.Index, h.Index),
		)
	}
	for slot := 0; slot < plan.Stations(); slot++ {
		group := plan.SlotGroup(slot)
		if group == pathquery.Free {
			continue
		}
		name := fmt.Sprintf("group%d", group)
		params[name] = plan.Groups[group]
		where = append(where, fmt.Sprintf("s%d.domain_id IN $%s", slot, name))
	}
	columns = append(columns, "r0.route_number AS route_number")

	var b strings.Builder
	b.WriteString("MATCH ")
	b.WriteString(strings.Join(patterns, ",\n      "))
	b.WriteString("\nWHERE ")
	b.WriteString(strings.Join(where, "\n  AND "))
	b.WriteString("\nRETURN DISTINCT ")
	b.WriteString(strings.Join(columns, ", "))
	b.WriteString("\nORDER BY route_number, route_0\nLIMIT $limit")
	return b.String(), params
}

// runPlan executes plan and decodes each row into one hopRow per hop.
func runPlan(ctx context.Context, tx repo.Runner, plan pathquery.Plan, limit int) ([][]hopRow, error) {
	cypher, params := renderTransferQuery(plan)
	params["limit"] = searchLimit(limit)
	res, err := tx.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	var rows [][]hopRow
	for res.Next(ctx) {
		rec := res.Record()
		row := make([]hopRow, len(plan.Hops))
		for i := range plan.Hops {
			row[i].route = recordString(rec, fmt.Sprintf("route_%d", i))
			if row[i].dep, err = recordInt(rec, fmt.Sprintf("departure_%d", i)); err != nil {
				return nil, err
			}
			if row[i].arr, err = recordInt(rec, fmt.Sprintf("arrival_%d", i)); err != nil {
				return nil, err
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// FindDirectRoutes returns routes that call at a departure station and
// later at an arrival station, ordered by route number.
func (g *GraphStore) FindDirectRoutes(ctx context.Context, departureIDs, arrivalIDs []string, limit int) fn.Result[[]DirectRoute] {
	plan, err := pathquery.New(0, [][]string{departureIDs, arrivalIDs})
	if err != nil {
		return fn.Err[[]DirectRoute](err)
	}
	out, err := g.read(ctx, func(tx repo.Runner) (any, error) {
		rows, err := runPlan(ctx, tx, plan, limit)
		if err != nil {
			return nil, err
		}
		cache := routeCache{}
		direct := make([]DirectRoute, 0, len(rows))
		for _, row := range rows {
			route, err := cache.get(ctx, tx, row[0].route)
			if err != nil {
				return nil, err
			}
			direct = append(direct, DirectRoute{Route: route, DepartureIndex: row[0].dep, ArrivalIndex: row[0].arr})
		}
		return direct, nil
	})
	if err != nil {
		return logged(g.log, "find direct routes", fn.Err[[]DirectRoute](fmt.Errorf("find direct routes: %w", err)))
	}
	direct, _ := out.([]DirectRoute)
	if len(direct) == 0 {
		return fn.None[[]DirectRoute]()
	}
	return fn.Ok(direct)
}

// FindPaths returns up to limit paths that ride exactly transfers+1 routes
// through the waypoint groups. See pathquery.New for how groups bind.
func (g *GraphStore) FindPaths(ctx context.Context, transfers int, groups [][]string, limit int) fn.Result[[]*domain.Path] {
	plan, err := pathquery.New(transfers, groups)
	if err != nil {
		return fn.Err[[]*domain.Path](err)
	}
	out, err := g.read(ctx, func(tx repo.Runner) (any, error) {
		rows, err := runPlan(ctx, tx, plan, limit)
		if err != nil {
			return nil, err
		}
		cache := routeCache{}
		paths := make([]*domain.Path, 0, len(rows))
		for _, row := range rows {
			path := &domain.Path{}
			for _, hop := range row {
				route, err := cache.get(ctx, tx, hop.route)
				if err != nil {
					return nil, err
				}
				item, err := domain.NewPathItem(route, hop.dep, hop.arr)
				if err != nil {
					return nil, err
				}
				if err := path.AddPathItem(item); err != nil {
					return nil, err
				}
			}
			paths = append(paths, path)
		}
		return paths, nil
	})
	if err != nil {
		return logged(g.log, "find paths", fn.Err[[]*domain.Path](fmt.Errorf("find paths with %d transfers: %w", transfers, err)))
	}
	paths, _ := out.([]*domain.Path)
	if len(paths) == 0 {
		return fn.None[[]*domain.Path]()
	}
	return fn.Ok(paths)
}

// shortestPathCypher bounds the traversal with a literal; variable length
// bounds cannot be parameters.
func shortestPathCypher(maxTransitions int) string {
	return fmt.Sprintf(`MATCH (a:Station) WHERE a.domain_id IN $departure_ids
MATCH (b:Station) WHERE b.domain_id IN $arrival_ids AND a <> b
MATCH p = allShortestPaths((a)-[:TRANSITION*..%d]->(b))
RETURN [t IN relationships(p) | {agent_type: t.agent_type, route_id: t.route_id, transition_number: t.transition_number}] AS hops
ORDER BY length(p)
LIMIT $limit`, maxTransitions)
}

// FindShortestPaths returns the paths with the fewest transitions between
// the two station sets, never longer than maxTransitions hops. Each
// transition becomes a one-stop PathItem and consecutive transitions on the
// same route merge.
func (g *GraphStore) FindShortestPaths(ctx context.Context, departureIDs, arrivalIDs []string, maxTransitions, limit int) fn.Result[[]*domain.Path] {
	if maxTransitions < 1 || len(departureIDs) == 0 || len(arrivalIDs) == 0 {
		return fn.None[[]*domain.Path]()
	}
	params := map[string]any{
		"departure_ids": departureIDs,
		"arrival_ids":   arrivalIDs,
		"limit":         searchLimit(limit),
	}
	out, err := g.read(ctx, func(tx repo.Runner) (any, error) {
		res, err := tx.Run(ctx, shortestPathCypher(maxTransitions), params)
		if err != nil {
			return nil, err
		}
		var rows [][]any
		for res.Next(ctx) {
			v, _ := res.Record().Get("hops")
			hops, ok := v.([]any)
			if !ok {
				return nil, fmt.Errorf("hops: unexpected type %T", v)
			}
			rows = append(rows, hops)
		}

		cache := routeCache{}
		paths := make([]*domain.Path, 0, len(rows))
		for _, hops := range rows {
			if len(hops) > maxTransitions {
				continue
			}
			path := &domain.Path{}
			for _, raw := range hops {
				t, ok := raw.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("transition: unexpected type %T", raw)
				}
				n, ok := intValue(t["transition_number"])
				if !ok {
					return nil, fmt.Errorf("transition_number: unexpected type %T", t["transition_number"])
				}
				routeID := domain.RouteDomainID(strProp(t, "agent_type"), strProp(t, "route_id"))
				route, err := cache.get(ctx, tx, routeID)
				if err != nil {
					return nil, err
				}
				item, err := domain.NewPathItem(route, n, n+1)
				if err != nil {
					return nil, err
				}
				if err := path.AddPathItem(item); err != nil {
					return nil, err
				}
			}
			paths = append(paths, path)
		}
		return paths, nil
	})
	if err != nil {
		return logged(g.log, "find shortest paths", fn.Err[[]*domain.Path](fmt.Errorf("find shortest paths: %w", err)))
	}
	paths, _ := out.([]*domain.Path)
	if len(paths) == 0 {
		return fn.None[[]*domain.Path]()
	}
	return fn.Ok(paths)
}
