// Package pathquery describes bounded-transfer path patterns as plain data.
//
// A plan with k transfers is k+1 hops. Hop i leaves station slot i on route
// slot i and arrives at station slot i+1, so consecutive hops share their
// transfer station. Rendering a plan into a concrete query language is left
// to the store.
package pathquery

import (
	"errors"
	"fmt"
)

// MaxTransfers bounds k. Pattern cost grows with every extra hop and the
// store enforces no timeout of its own.
const MaxTransfers = 4

var (
	// ErrInvalidWaypoints is returned when the waypoint groups cannot be bound
	// to the station slots of a plan.
	ErrInvalidWaypoints = errors.New("pathquery: invalid waypoints")
	// ErrInvalidTransfers is returned for a negative or too large k.
	ErrInvalidTransfers = errors.New("pathquery: invalid transfer count")
)

// EdgeType names the relationship a hop traverses between a station and a
// route.
type EdgeType string

// RouteConnection links a station to every route that stops there.
const RouteConnection EdgeType = "ROUTE_CONNECTION"

// Free marks a station slot with no waypoint group bound to it.
const Free = -1

// Hop is one ride on a single route.
type Hop struct {
	// Index is the hop position, 0..k.
	Index int
	// From and To are station slots; To of hop i is From of hop i+1.
	From, To int
	// Route is the route slot ridden on this hop.
	Route int
	Edge  EdgeType
	// Ordered requires the departure stop to precede the arrival stop on
	// the route (station_number strictly increasing).
	Ordered bool
	// FromGroup and ToGroup index the waypoint group bound to the station
	// slot, or Free.
	FromGroup, ToGroup int
}

// Plan is the hop list of a k-transfer pattern.
type Plan struct {
	Transfers int
	Hops      []Hop
	// Groups are the waypoint groups, indexed by Hop.FromGroup/ToGroup.
	Groups [][]string
}

// Stations returns the number of station slots, k+2.
func (p Plan) Stations() int { return len(p.Hops) + 1 }

// SlotGroup returns the group bound to station slot i, or Free.
func (p Plan) SlotGroup(slot int) int {
	switch {
	case slot == 0 && len(p.Hops) > 0:
		return p.Hops[0].FromGroup
	case slot > 0 && slot <= len(p.Hops):
		return p.Hops[slot-1].ToGroup
	}
	return Free
}

// New builds the plan for k transfers across groups.
//
// The first group binds the departure slot and the last group the arrival
// slot. With exactly k+2 groups every intermediate slot i binds group i.
// With two groups the transfer stations are unconstrained. Any other shape
// is ErrInvalidWaypoints, as is an empty group.
func New(k int, groups [][]string) (Plan, error) {
	if k < 0 || k > MaxTransfers {
		return Plan{}, fmt.Errorf("%w: %d", ErrInvalidTransfers, k)
	}
	if len(groups) < 2 {
		return Plan{}, fmt.Errorf("%w: need at least 2 groups, got %d", ErrInvalidWaypoints, len(groups))
	}
	if len(groups) != 2 && len(groups) != k+2 {
		return Plan{}, fmt.Errorf("%w: %d groups for %d transfers", ErrInvalidWaypoints, len(groups), k)
	}
	for i, g := range groups {
		if len(g) == 0 {
			return Plan{}, fmt.Errorf("%w: group %d is empty", ErrInvalidWaypoints, i)
		}
	}

	last := len(groups) - 1
	slotGroup := func(slot int) int {
		switch {
		case slot == 0:
			return 0
		case slot == k+1:
			return last
		case len(groups) == k+2:
			return slot
		}
		return Free
	}

	hops := make([]Hop, k+1)
	for i := range hops {
		hops[i] = Hop{
			Index:     i,
			From:      i,
			To:        i + 1,
			Route:     i,
			Edge:      RouteConnection,
			Ordered:   true,
			FromGroup: slotGroup(i),
			ToGroup:   slotGroup(i + 1),
		}
	}
	return Plan{Transfers: k, Hops: hops, Groups: groups}, nil
}
