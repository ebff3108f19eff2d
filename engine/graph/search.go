package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/WessleyAI/routes-aggregator/engine/domain"
	"github.com/WessleyAI/routes-aggregator/pkg/fn"
	"github.com/WessleyAI/routes-aggregator/pkg/repo"
)

// SearchMode selects how a search term is matched against a property.
type SearchMode string

const (
	// StartsWith is a case-insensitive prefix match.
	StartsWith SearchMode = "STARTS_WITH"
	// Strict is a case-insensitive equality match.
	Strict SearchMode = "STRICT"
	// Regex matches a Cypher regular expression, case-sensitively unless
	// the pattern says otherwise.
	Regex SearchMode = "REGEX"
)

// ParseSearchMode parses s case-insensitively.
func ParseSearchMode(s string) (SearchMode, bool) {
	switch m := SearchMode(strings.ToUpper(strings.TrimSpace(s))); m {
	case StartsWith, Strict, Regex:
		return m, true
	}
	return "", false
}

// predicate renders the WHERE condition for n.<property> against $value.
func (m SearchMode) predicate(property string) string {
	switch m {
	case StartsWith:
		return fmt.Sprintf("toLower(n.%s) STARTS WITH toLower($value)", property)
	case Strict:
		return fmt.Sprintf("toLower(n.%s) = toLower($value)", property)
	default:
		return fmt.Sprintf("n.%s =~ $value", property)
	}
}

func searchLimit(limit int) int64 {
	if limit <= 0 {
		return defaultSearchLimit
	}
	return int64(limit)
}

// FindStations matches stations by name in one language. An unknown mode
// or language yields None.
func (g *GraphStore) FindStations(ctx context.Context, name, language, mode string, limit int) fn.Result[[]*domain.Station] {
	m, ok := ParseSearchMode(mode)
	if !ok {
		return fn.None[[]*domain.Station]()
	}
	lang := sanitizeIdent(language)
	if lang == "" {
		return fn.None[[]*domain.Station]()
	}
	property := domain.PropertyKey{Field: domain.FieldStationName, Language: lang}.String()
	return logged(g.log, "find stations", g.stations.List(ctx, repo.ListOpts{
		Limit:  int(searchLimit(limit)),
		Where:  m.predicate(property),
		Params: map[string]any{"value": name},
	}))
}

// FindRoutesByRouteNumber matches routes by route number. An unknown mode
// yields None.
func (g *GraphStore) FindRoutesByRouteNumber(ctx context.Context, number, mode string, limit int) fn.Result[[]*domain.Route] {
	m, ok := ParseSearchMode(mode)
	if !ok {
		return fn.None[[]*domain.Route]()
	}
	cypher := fmt.Sprintf(`MATCH (n:Route) WHERE %s
		RETURN n ORDER BY n.route_number, n.domain_id LIMIT $limit`, m.predicate("route_number"))
	return g.readRoutes(ctx, "find routes by number", cypher, map[string]any{
		"value": number,
		"limit": searchLimit(limit),
	})
}

// FindRoutesByStationIDs returns the routes that stop at any of the given
// station domain ids.
func (g *GraphStore) FindRoutesByStationIDs(ctx context.Context, stationIDs []string, limit int) fn.Result[[]*domain.Route] {
	if len(stationIDs) == 0 {
		return fn.None[[]*domain.Route]()
	}
	const cypher = `MATCH (s:Station)-[:ROUTE_CONNECTION]->(n:Route)
		WHERE s.domain_id IN $station_ids
		WITH DISTINCT n
		RETURN n ORDER BY n.route_number, n.domain_id LIMIT $limit`
	return g.readRoutes(ctx, "find routes by stations", cypher, map[string]any{
		"station_ids": stationIDs,
		"limit":       searchLimit(limit),
	})
}

func (g *GraphStore) readRoutes(ctx context.Context, op, cypher string, params map[string]any) fn.Result[[]*domain.Route] {
	out, err := g.read(ctx, func(tx repo.Runner) (any, error) {
		return collectRoutes(ctx, tx, cypher, params)
	})
	if err != nil {
		return logged(g.log, op, fn.Err[[]*domain.Route](fmt.Errorf("%s: %w", op, err)))
	}
	routes, _ := out.([]*domain.Route)
	if len(routes) == 0 {
		return fn.None[[]*domain.Route]()
	}
	return fn.Ok(routes)
}
