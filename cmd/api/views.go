package main

import (
	"github.com/WessleyAI/routes-aggregator/engine/domain"
)

// stationView is the JSON shape of a station.
type stationView struct {
	DomainID   string            `json:"domain_id"`
	AgentType  string            `json:"agent_type"`
	StationID  string            `json:"station_id"`
	Properties map[string]string `json:"properties,omitempty"`
}

type pointView struct {
	StationID     string `json:"station_id"`
	ArrivalTime   string `json:"arrival_time,omitempty"`
	DepartureTime string `json:"departure_time,omitempty"`
	StopTime      string `json:"stop_time,omitempty"`
}

// routeView is the JSON shape of a route with its points.
type routeView struct {
	DomainID       string            `json:"domain_id"`
	AgentType      string            `json:"agent_type"`
	RouteID        string            `json:"route_id"`
	RouteNumber    string            `json:"route_number"`
	ActiveFromDate string            `json:"active_from_date,omitempty"`
	ActiveToDate   string            `json:"active_to_date,omitempty"`
	DepartureTime  string            `json:"departure_time,omitempty"`
	ArrivalTime    string            `json:"arrival_time,omitempty"`
	TravelTime     string            `json:"travel_time,omitempty"`
	Properties     map[string]string `json:"properties,omitempty"`
	Points         []pointView       `json:"points"`
}

// routeRef names the route a path item rides.
type routeRef struct {
	DomainID    string `json:"domain_id"`
	AgentType   string `json:"agent_type"`
	RouteID     string `json:"route_id"`
	RouteNumber string `json:"route_number"`
}

type pathItemView struct {
	Route              routeRef `json:"route"`
	DepartureIndex     int      `json:"departure_index"`
	ArrivalIndex       int      `json:"arrival_index"`
	DepartureStationID string   `json:"departure_station_id"`
	ArrivalStationID   string   `json:"arrival_station_id"`
	DepartureTime      string   `json:"departure_time"`
	ArrivalTime        string   `json:"arrival_time"`
	TravelTime         string   `json:"travel_time"`
}

// pathView is the JSON shape of a path.
type pathView struct {
	DepartureStationID string         `json:"departure_station_id"`
	ArrivalStationID   string         `json:"arrival_station_id"`
	DepartureTime      string         `json:"departure_time"`
	ArrivalTime        string         `json:"arrival_time"`
	TravelTime         string         `json:"travel_time"`
	Items              []pathItemView `json:"items"`
}

func propertyMap(p *domain.Properties) map[string]string {
	all := p.All()
	if len(all) == 0 {
		return nil
	}
	out := make(map[string]string, len(all))
	for k, v := range all {
		out[k.String()] = v
	}
	return out
}

// must drops the error of accessors that only fail on empty routes or paths.
func must(s string, err error) string {
	if err != nil {
		return ""
	}
	return s
}

func newStationView(s *domain.Station) stationView {
	return stationView{
		DomainID:   s.DomainID(),
		AgentType:  s.AgentType,
		StationID:  s.StationID,
		Properties: propertyMap(&s.Properties),
	}
}

func newRouteView(r *domain.Route) routeView {
	v := routeView{
		DomainID:       r.DomainID(),
		AgentType:      r.AgentType,
		RouteID:        r.RouteID,
		RouteNumber:    r.RouteNumber,
		ActiveFromDate: r.ActiveFromDate,
		ActiveToDate:   r.ActiveToDate,
		DepartureTime:  must(r.DepartureTime()),
		ArrivalTime:    must(r.ArrivalTime()),
		TravelTime:     must(r.TravelTime()),
		Properties:     propertyMap(&r.Properties),
		Points:         make([]pointView, 0, len(r.Points)),
	}
	for _, p := range r.Points {
		v.Points = append(v.Points, pointView{
			StationID:     p.StationID,
			ArrivalTime:   p.ArrivalTime,
			DepartureTime: p.DepartureTime,
			StopTime:      p.StopTime(),
		})
	}
	return v
}

func newPathView(p *domain.Path) pathView {
	v := pathView{
		DepartureStationID: must(p.DepartureStationID()),
		ArrivalStationID:   must(p.ArrivalStationID()),
		DepartureTime:      must(p.DepartureTime()),
		ArrivalTime:        must(p.ArrivalTime()),
		TravelTime:         p.TravelTime(),
		Items:              make([]pathItemView, 0, p.Len()),
	}
	for _, it := range p.Items {
		dep, _ := it.DeparturePoint()
		arr, _ := it.ArrivalPoint()
		v.Items = append(v.Items, pathItemView{
			Route: routeRef{
				DomainID:    it.Route.DomainID(),
				AgentType:   it.Route.AgentType,
				RouteID:     it.Route.RouteID,
				RouteNumber: it.Route.RouteNumber,
			},
			DepartureIndex:     it.DepartureIndex,
			ArrivalIndex:       it.ArrivalIndex,
			DepartureStationID: dep.StationID,
			ArrivalStationID:   arr.StationID,
			DepartureTime:      dep.DepartureTime,
			ArrivalTime:        arr.ArrivalTime,
			TravelTime:         it.TravelTime(),
		})
	}
	return v
}
