package graph

import (
	"github.com/WessleyAI/routes-aggregator/engine/domain"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

func stationToMap(s *domain.Station) map[string]any {
	m := map[string]any{
		"domain_id":  s.DomainID(),
		"agent_type": s.AgentType,
		"station_id": s.StationID,
	}
	for k, v := range s.Properties.All() {
		m[k.String()] = v
	}
	return m
}

func stationFromProps(props map[string]any) *domain.Station {
	s := domain.NewStation(strProp(props, "agent_type"), strProp(props, "station_id"))
	setProperties(&s.Properties, props)
	return s
}

func stationFromRecord(rec *neo4j.Record) (*domain.Station, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
	if err != nil {
		return nil, err
	}
	return stationFromProps(node.Props), nil
}

func routeToMap(r *domain.Route) map[string]any {
	m := map[string]any{
		"domain_id":        r.DomainID(),
		"agent_type":       r.AgentType,
		"route_id":         r.RouteID,
		"route_number":     r.RouteNumber,
		"active_from_date": r.ActiveFromDate,
		"active_to_date":   r.ActiveToDate,
	}
	for k, v := range r.Properties.All() {
		m[k.String()] = v
	}
	return m
}

// routeFromProps restores a route without its points.
func routeFromProps(props map[string]any) *domain.Route {
	r := domain.NewRoute(strProp(props, "agent_type"), strProp(props, "route_id"))
	r.RouteNumber = strProp(props, "route_number")
	r.ActiveFromDate = strProp(props, "active_from_date")
	r.ActiveToDate = strProp(props, "active_to_date")
	setProperties(&r.Properties, props)
	return r
}

// setProperties copies every multilingual graph property into p. Other keys
// are typed fields and are ignored.
func setProperties(p *domain.Properties, props map[string]any) {
	for k, v := range props {
		key, ok := domain.ParsePropertyKey(k)
		if !ok {
			continue
		}
		if s, ok := v.(string); ok {
			p.Set(key.Field, key.Language, s)
		}
	}
}
