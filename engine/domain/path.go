package domain

import "github.com/WessleyAI/routes-aggregator/engine/timetable"

// PathItem is a contiguous slice [DepartureIndex, ArrivalIndex] of one
// route's points. The route is shared, not owned.
type PathItem struct {
	Route          *Route
	DepartureIndex int
	ArrivalIndex   int

	rawTravelTime int
}

// NewPathItem creates a PathItem and computes its travel time.
func NewPathItem(route *Route, dep, arr int) (*PathItem, error) {
	item := &PathItem{Route: route, DepartureIndex: dep, ArrivalIndex: arr}
	if err := item.recalculate(); err != nil {
		return nil, err
	}
	return item, nil
}

func (it *PathItem) recalculate() error {
	minutes, err := it.Route.CalculateTravelTime(it.DepartureIndex, it.ArrivalIndex)
	if err != nil {
		return err
	}
	it.rawTravelTime = minutes
	return nil
}

func (it *PathItem) DeparturePoint() (RoutePoint, error) { return it.Route.RoutePoint(it.DepartureIndex) }
func (it *PathItem) ArrivalPoint() (RoutePoint, error)   { return it.Route.RoutePoint(it.ArrivalIndex) }

// DepartureTime is the departure time at the first point of the slice.
func (it *PathItem) DepartureTime() (string, error) {
	p, err := it.DeparturePoint()
	return p.DepartureTime, err
}

// ArrivalTime is the arrival time at the last point of the slice.
func (it *PathItem) ArrivalTime() (string, error) {
	p, err := it.ArrivalPoint()
	return p.ArrivalTime, err
}

// RawTravelTime is the travel time of the slice in minutes.
func (it *PathItem) RawTravelTime() int { return it.rawTravelTime }

// TravelTime is RawTravelTime as "HH:MM".
func (it *PathItem) TravelTime() string { return timetable.MinutesToTime(it.rawTravelTime) }

// Path is an ordered journey across one or more routes.
type Path struct {
	Items []*PathItem

	rawTravelTime int
}

// AddPathItem appends item, or extends the last item when both ride the same
// route. The aggregate travel time is recomputed afterwards.
func (p *Path) AddPathItem(item *PathItem) error {
	if n := len(p.Items); n > 0 && p.Items[n-1].Route.DomainID() == item.Route.DomainID() {
		last := p.Items[n-1]
		prevArrival := last.ArrivalIndex
		last.ArrivalIndex = item.ArrivalIndex
		if err := last.recalculate(); err != nil {
			last.ArrivalIndex = prevArrival
			return err
		}
	} else {
		p.Items = append(p.Items, item)
	}
	minutes, err := p.calculateTravelTime()
	if err != nil {
		return err
	}
	p.rawTravelTime = minutes
	return nil
}

func (p *Path) calculateTravelTime() (int, error) {
	minutes := 0
	var prev *PathItem
	for _, item := range p.Items {
		if prev != nil {
			arrival, err := prev.ArrivalTime()
			if err != nil {
				return 0, err
			}
			departure, err := item.DepartureTime()
			if err != nil {
				return 0, err
			}
			minutes += timetable.RawTimeDifference(arrival, departure)
		}
		minutes += item.RawTravelTime()
		prev = item
	}
	return minutes, nil
}

// PathItem returns the item at i; negative i counts from the end.
func (p *Path) PathItem(i int) (*PathItem, error) {
	n := len(p.Items)
	idx := i
	if idx < 0 {
		idx += n
	}
	if idx < 0 || idx >= n {
		return nil, &AbsentPathItemError{Index: i}
	}
	return p.Items[idx], nil
}

// Len returns the number of items.
func (p *Path) Len() int { return len(p.Items) }

// RawTravelTime is the total journey time in minutes, transfers included.
func (p *Path) RawTravelTime() int { return p.rawTravelTime }

// TravelTime is RawTravelTime as "HH:MM".
func (p *Path) TravelTime() string { return timetable.MinutesToTime(p.rawTravelTime) }

// DepartureStationID is the station the journey starts from.
func (p *Path) DepartureStationID() (string, error) {
	item, err := p.PathItem(0)
	if err != nil {
		return "", err
	}
	pt, err := item.DeparturePoint()
	return pt.StationID, err
}

// ArrivalStationID is the station the journey ends at.
func (p *Path) ArrivalStationID() (string, error) {
	item, err := p.PathItem(-1)
	if err != nil {
		return "", err
	}
	pt, err := item.ArrivalPoint()
	return pt.StationID, err
}

// DepartureTime is the departure time of the first item.
func (p *Path) DepartureTime() (string, error) {
	item, err := p.PathItem(0)
	if err != nil {
		return "", err
	}
	return item.DepartureTime()
}

// ArrivalTime is the arrival time of the last item.
func (p *Path) ArrivalTime() (string, error) {
	item, err := p.PathItem(-1)
	if err != nil {
		return "", err
	}
	return item.ArrivalTime()
}
