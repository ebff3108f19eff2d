// Package domain defines the transit schedule model: stations, routes with
// their timed stops, and the paths composed from route segments.
package domain

import "github.com/WessleyAI/routes-aggregator/engine/timetable"

// Station is a stop served by one data source.
type Station struct {
	AgentType string
	StationID string
	Properties
}

// NewStation creates a Station.
func NewStation(agentType, stationID string) *Station {
	return &Station{AgentType: agentType, StationID: stationID}
}

// StationDomainID is the graph identity of a station.
func StationDomainID(agentType, stationID string) string {
	return agentType + stationID
}

// DomainID returns the graph identity of s.
func (s *Station) DomainID() string { return StationDomainID(s.AgentType, s.StationID) }

func (s *Station) SetStationName(name, language string) { s.Set(FieldStationName, language, name) }
func (s *Station) StationName(language string) string   { return s.Get(FieldStationName, language) }
func (s *Station) SetStateName(name, language string)   { s.Set(FieldStateName, language, name) }
func (s *Station) StateName(language string) string     { return s.Get(FieldStateName, language) }
func (s *Station) SetCountryName(name, language string) { s.Set(FieldCountryName, language, name) }
func (s *Station) CountryName(language string) string   { return s.Get(FieldCountryName, language) }

// RoutePoint is one scheduled stop on a route.
type RoutePoint struct {
	AgentType     string
	RouteID       string
	StationID     string
	ArrivalTime   string
	DepartureTime string
}

// NewRoutePoint creates a RoutePoint with the given times.
func NewRoutePoint(agentType, routeID, stationID, arrival, departure string) RoutePoint {
	return RoutePoint{
		AgentType:     agentType,
		RouteID:       routeID,
		StationID:     stationID,
		ArrivalTime:   arrival,
		DepartureTime: departure,
	}
}

// RoutePointDomainID is the identity of a stop within a route.
func RoutePointDomainID(agentType, routeID, stationID string) string {
	return agentType + routeID + "." + stationID
}

// DomainID returns the identity of p.
func (p RoutePoint) DomainID() string {
	return RoutePointDomainID(p.AgentType, p.RouteID, p.StationID)
}

// StopTime is the dwell time as "HH:MM", or "" for terminal points.
func (p RoutePoint) StopTime() string {
	if p.ArrivalTime == "" || p.DepartureTime == "" {
		return ""
	}
	return timetable.TimeDifference(p.ArrivalTime, p.DepartureTime)
}

// RawStopTime is the dwell time in minutes, 0 for terminal points.
func (p RoutePoint) RawStopTime() int {
	if p.ArrivalTime == "" || p.DepartureTime == "" {
		return 0
	}
	return timetable.RawTimeDifference(p.ArrivalTime, p.DepartureTime)
}

// Route is a scheduled trip over an ordered list of stations.
type Route struct {
	AgentType      string
	RouteID        string
	RouteNumber    string
	ActiveFromDate string
	ActiveToDate   string
	Points         []RoutePoint
	Properties
}

// NewRoute creates an empty Route.
func NewRoute(agentType, routeID string) *Route {
	return &Route{AgentType: agentType, RouteID: routeID}
}

// RouteDomainID is the graph identity of a route.
func RouteDomainID(agentType, routeID string) string {
	return agentType + routeID
}

// DomainID returns the graph identity of r.
func (r *Route) DomainID() string { return RouteDomainID(r.AgentType, r.RouteID) }

func (r *Route) SetPeriodicity(value, language string) { r.Set(FieldPeriodicity, language, value) }
func (r *Route) Periodicity(language string) string    { return r.Get(FieldPeriodicity, language) }

// AddRoutePoint appends p to the route.
func (r *Route) AddRoutePoint(p RoutePoint) {
	r.Points = append(r.Points, p)
}

// Len returns the number of points.
func (r *Route) Len() int { return len(r.Points) }

// resolve maps a possibly negative index onto Points.
func (r *Route) resolve(i int) (int, error) {
	n := len(r.Points)
	idx := i
	if idx < 0 {
		idx += n
	}
	if idx < 0 || idx >= n {
		return 0, &AbsentRoutePointError{RouteID: r.RouteID, Index: i}
	}
	return idx, nil
}

// RoutePoint returns the point at i; negative i counts from the end.
func (r *Route) RoutePoint(i int) (RoutePoint, error) {
	idx, err := r.resolve(i)
	if err != nil {
		return RoutePoint{}, err
	}
	return r.Points[idx], nil
}

// DeparturePoint returns the first point.
func (r *Route) DeparturePoint() (RoutePoint, error) { return r.RoutePoint(0) }

// ArrivalPoint returns the last point.
func (r *Route) ArrivalPoint() (RoutePoint, error) { return r.RoutePoint(-1) }

// DepartureTime is the departure time of the first point.
func (r *Route) DepartureTime() (string, error) {
	p, err := r.DeparturePoint()
	return p.DepartureTime, err
}

// ArrivalTime is the arrival time of the last point.
func (r *Route) ArrivalTime() (string, error) {
	p, err := r.ArrivalPoint()
	return p.ArrivalTime, err
}

// TravelTime is the end-to-end travel time as "HH:MM".
func (r *Route) TravelTime() (string, error) {
	minutes, err := r.CalculateTravelTime(0, len(r.Points)-1)
	if err != nil {
		return "", err
	}
	return timetable.MinutesToTime(minutes), nil
}

// CalculateTravelTime returns the minutes spent travelling from the point at
// dep to the point at arr: every hop from a departure to the next arrival,
// plus the dwell at each intermediate stop. Dwell at arr is not counted.
func (r *Route) CalculateTravelTime(dep, arr int) (int, error) {
	from, err := r.resolve(dep)
	if err != nil {
		return 0, err
	}
	to, err := r.resolve(arr)
	if err != nil {
		return 0, err
	}
	minutes := 0
	for i := from + 1; i <= to; i++ {
		prev, next := r.Points[i-1], r.Points[i]
		minutes += timetable.RawTimeDifference(prev.DepartureTime, next.ArrivalTime)
		if i < to {
			minutes += next.RawStopTime()
		}
	}
	return minutes, nil
}

// StationIDs returns the station ids in point order.
func (r *Route) StationIDs() []string {
	ids := make([]string, len(r.Points))
	for i, p := range r.Points {
		ids[i] = p.StationID
	}
	return ids
}

// Model is a complete snapshot of one data source.
type Model struct {
	AgentType string
	Stations  map[string]*Station
	Routes    map[string]*Route
}

// NewModel creates an empty Model for agentType.
func NewModel(agentType string) *Model {
	return &Model{
		AgentType: agentType,
		Stations:  make(map[string]*Station),
		Routes:    make(map[string]*Route),
	}
}

// FindStation returns the station with the given local id, or nil.
func (m *Model) FindStation(stationID string) *Station { return m.Stations[stationID] }

// AddStation stores s by its local id.
func (m *Model) AddStation(s *Station) {
	if m.Stations == nil {
		m.Stations = make(map[string]*Station)
	}
	m.Stations[s.StationID] = s
}

// FindRoute returns the route with the given local id, or nil.
func (m *Model) FindRoute(routeID string) *Route { return m.Routes[routeID] }

// AddRoute stores r by its local id.
func (m *Model) AddRoute(r *Route) {
	if m.Routes == nil {
		m.Routes = make(map[string]*Route)
	}
	m.Routes[r.RouteID] = r
}
