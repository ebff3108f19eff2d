// Package service is the entry point of the routes engine. It chooses
// between the query strategies, dispatches model updates and turns every
// unexpected failure into ErrApplication.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/WessleyAI/routes-aggregator/engine/domain"
	"github.com/WessleyAI/routes-aggregator/engine/graph"
	"github.com/WessleyAI/routes-aggregator/engine/pathquery"
	"github.com/WessleyAI/routes-aggregator/pkg/fn"
	"github.com/WessleyAI/routes-aggregator/pkg/metrics"
)

// ErrApplication is the only error a Service call returns. The cause is
// logged.
var ErrApplication = errors.New("application internal error")

// DefaultMaxTransitions bounds TRANSITIONS queries that set no bound.
const DefaultMaxTransitions = 10

// searchWorkers bounds the concurrent store lookups of one multi-name
// search.
const searchWorkers = 4

// Search modes for FindPaths.
const (
	ModeSimple      = "SIMPLE"
	ModeTransfers   = "TRANSFERS"
	ModeTransitions = "TRANSITIONS"
)

// GraphStore is the persistence the service reads and rebuilds.
type GraphStore interface {
	GetStation(ctx context.Context, domainID string) fn.Result[*domain.Station]
	GetRoute(ctx context.Context, domainID string) fn.Result[*domain.Route]
	FindStations(ctx context.Context, name, language, mode string, limit int) fn.Result[[]*domain.Station]
	FindRoutesByRouteNumber(ctx context.Context, number, mode string, limit int) fn.Result[[]*domain.Route]
	FindRoutesByStationIDs(ctx context.Context, stationIDs []string, limit int) fn.Result[[]*domain.Route]
	FindPaths(ctx context.Context, transfers int, groups [][]string, limit int) fn.Result[[]*domain.Path]
	FindShortestPaths(ctx context.Context, departureIDs, arrivalIDs []string, maxTransitions, limit int) fn.Result[[]*domain.Path]
	BuildModel(ctx context.Context, m *domain.Model) error
	Stats(ctx context.Context, agentType string) (graph.Stats, error)
}

// ModelProvider yields the model an update persists.
type ModelProvider interface {
	Model(ctx context.Context, agentType string, rebuild bool) (*domain.Model, error)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Store    GraphStore
	Provider ModelProvider
	Metrics  *metrics.Registry
	Logger   *slog.Logger
}

// Service answers station, route and path queries and runs model updates.
type Service struct {
	store    GraphStore
	provider ModelProvider
	metrics  *metrics.Registry
	log      *slog.Logger

	appErrors       *metrics.Counter
	rebuildDuration *metrics.Histogram

	mu    sync.Mutex
	locks map[string]chan struct{}
}

// New creates a Service. Metrics and Logger are optional.
func New(d Deps) *Service {
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Service{
		store:           d.Store,
		provider:        d.Provider,
		metrics:         d.Metrics,
		log:             d.Logger,
		appErrors:       d.Metrics.Counter("routes_application_errors_total", "Calls that failed with an application error"),
		rebuildDuration: d.Metrics.Histogram("routes_model_update_duration_seconds", "Model update duration", []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800}),
		locks:           make(map[string]chan struct{}),
	}
}

// StationName is one name to search stations by.
type StationName struct {
	Name     string `json:"name"`
	Language string `json:"language"`
}

// PathQuery selects and parameterizes a path search.
type PathQuery struct {
	// Waypoints are groups of acceptable station domain ids; the first is
	// the departure, the last the arrival.
	Waypoints [][]string
	// Mode is SIMPLE, TRANSFERS or TRANSITIONS. Empty means SIMPLE.
	Mode string
	// Transfers is the route change count for TRANSFERS. Zero derives it
	// from the number of waypoint groups.
	Transfers int
	// MaxTransitions bounds TRANSITIONS; zero means DefaultMaxTransitions.
	MaxTransitions int
	Limit          int
}

// shielded runs f, converting panics and errors into ErrApplication.
func shielded[T any](s *Service, op string, f func() (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("service panic", "op", op, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			s.appErrors.Inc()
			var zero T
			out, err = zero, ErrApplication
		}
	}()
	defer s.metrics.Histogram(metrics.WithLabels("routes_call_duration_seconds", "op", op), "Service call duration", nil).Since(time.Now())

	out, err = f()
	if err != nil {
		s.log.Error("service call failed", "op", op, "err", err)
		s.appErrors.Inc()
		var zero T
		return zero, ErrApplication
	}
	return out, nil
}

// settle resolves a store result. Store failures were logged by the store
// and degrade to the zero value; a broken domain invariant is returned.
func settle[T any](s *Service, op string, r fn.Result[T]) (T, error) {
	var zero T
	if r.IsErr() {
		s.metrics.Counter(metrics.WithLabels("routes_store_failures_total", "op", op), "Store failures degraded to empty results").Inc()
		if errors.Is(r.Err(), domain.ErrDomainInvariant) {
			return zero, r.Err()
		}
		return zero, nil
	}
	return r.UnwrapOr(zero), nil
}

func (s *Service) count(op, mode string) {
	s.metrics.Counter(metrics.WithLabels("routes_queries_total", "op", op, "mode", mode), "Queries served").Inc()
}

// GetStation returns the station with domainID, or nil.
func (s *Service) GetStation(ctx context.Context, domainID string) (*domain.Station, error) {
	return shielded(s, "get_station", func() (*domain.Station, error) {
		s.count("get_station", "")
		return settle(s, "get_station", s.store.GetStation(ctx, domainID))
	})
}

// FindStations searches each name and merges the matches, first match
// first, without duplicates and capped at limit when positive.
func (s *Service) FindStations(ctx context.Context, names []StationName, mode string, limit int) ([]*domain.Station, error) {
	return shielded(s, "find_stations", func() ([]*domain.Station, error) {
		s.count("find_stations", mode)
		results := fn.ParMapResult(ctx, names, searchWorkers, func(ctx context.Context, n StationName) fn.Result[[]*domain.Station] {
			return s.store.FindStations(ctx, n.Name, n.Language, mode, limit)
		})
		var all []*domain.Station
		for _, r := range results {
			found, err := settle(s, "find_stations", r)
			if err != nil {
				return nil, err
			}
			all = append(all, found...)
		}
		all = fn.UniqueBy(all, (*domain.Station).DomainID)
		return capped(all, limit), nil
	})
}

// GetRoute returns the route with domainID with its points, or nil.
func (s *Service) GetRoute(ctx context.Context, domainID string) (*domain.Route, error) {
	return shielded(s, "get_route", func() (*domain.Route, error) {
		s.count("get_route", "")
		return settle(s, "get_route", s.store.GetRoute(ctx, domainID))
	})
}

// FindRoutes searches by route number when any is given and by served
// station otherwise.
func (s *Service) FindRoutes(ctx context.Context, routeNumbers, stationIDs []string, mode string, limit int) ([]*domain.Route, error) {
	return shielded(s, "find_routes", func() ([]*domain.Route, error) {
		s.count("find_routes", mode)
		numbers := fn.Filter(routeNumbers, func(n string) bool { return strings.TrimSpace(n) != "" })
		if len(numbers) == 0 {
			return settle(s, "find_routes", s.store.FindRoutesByStationIDs(ctx, stationIDs, limit))
		}
		results := fn.ParMapResult(ctx, numbers, searchWorkers, func(ctx context.Context, n string) fn.Result[[]*domain.Route] {
			return s.store.FindRoutesByRouteNumber(ctx, n, mode, limit)
		})
		var all []*domain.Route
		for _, r := range results {
			found, err := settle(s, "find_routes", r)
			if err != nil {
				return nil, err
			}
			all = append(all, found...)
		}
		all = fn.UniqueBy(all, (*domain.Route).DomainID)
		return capped(all, limit), nil
	})
}

// FindPaths runs the strategy q.Mode selects. An unknown mode, fewer than
// two waypoint groups or an unsupported transfer count yield no paths.
func (s *Service) FindPaths(ctx context.Context, q PathQuery) ([]*domain.Path, error) {
	return shielded(s, "find_paths", func() ([]*domain.Path, error) {
		mode := strings.ToUpper(strings.TrimSpace(q.Mode))
		if mode == "" {
			mode = ModeSimple
		}
		groups := fn.Filter(q.Waypoints, func(g []string) bool { return len(g) > 0 })
		if len(groups) < 2 {
			return nil, nil
		}
		first, last := groups[0], groups[len(groups)-1]

		switch mode {
		case ModeSimple:
			s.count("find_paths", mode)
			return settle(s, "find_paths", s.store.FindPaths(ctx, 0, [][]string{first, last}, q.Limit))
		case ModeTransfers:
			s.count("find_paths", mode)
			k := q.Transfers
			if k == 0 {
				k = len(groups) - 2
			}
			if k < 0 || k > pathquery.MaxTransfers {
				return nil, nil
			}
			bound := groups
			if len(groups) != k+2 {
				bound = [][]string{first, last}
			}
			return settle(s, "find_paths", s.store.FindPaths(ctx, k, bound, q.Limit))
		case ModeTransitions:
			s.count("find_paths", mode)
			hops := q.MaxTransitions
			if hops <= 0 {
				hops = DefaultMaxTransitions
			}
			return settle(s, "find_paths", s.store.FindShortestPaths(ctx, first, last, hops, q.Limit))
		}
		return nil, nil
	})
}

// ModelStats reports the graph size of agentType.
func (s *Service) ModelStats(ctx context.Context, agentType string) (graph.Stats, error) {
	return shielded(s, "model_stats", func() (graph.Stats, error) {
		return s.store.Stats(ctx, agentType)
	})
}

func capped[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
