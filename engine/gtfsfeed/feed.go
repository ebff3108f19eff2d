// Package gtfsfeed builds transit models from GTFS static feeds. Each
// scheduled trip becomes a route; each stop becomes a station.
package gtfsfeed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/WessleyAI/routes-aggregator/engine/domain"
	"github.com/WessleyAI/routes-aggregator/engine/provider"
	"github.com/WessleyAI/routes-aggregator/engine/timetable"
	"github.com/WessleyAI/routes-aggregator/pkg/config"
	"github.com/WessleyAI/routes-aggregator/pkg/fn"
	"github.com/jamespfennell/gtfs"
	"golang.org/x/time/rate"
)

// DefaultRequestDelay paces consecutive feed downloads.
const DefaultRequestDelay = 100 * time.Millisecond

// errPermanent marks fetch failures another attempt cannot fix: a missing
// local file or a 4xx response other than 429.
var errPermanent = errors.New("permanent")

func retryable(err error) bool { return !errors.Is(err, errPermanent) }

// Config describes one agent type backed by GTFS feeds.
type Config struct {
	AgentType string
	Sources   []string
	// Language tags the station names and periodicity taken from the feed.
	Language     string
	RequestDelay time.Duration
	// Attempts bounds the downloads of one source; 0 means fn.DefaultRetry.
	Attempts int
}

// Builder implements provider.Builder over GTFS static feeds. Sources are
// http(s) URLs or local zip paths; later sources override entities with the
// same id.
type Builder struct {
	cfg         Config
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	retry       fn.RetryOpts
	log         *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Builder) { b.httpClient = c }
}

// WithRetry replaces the download retry policy.
func WithRetry(opts fn.RetryOpts) Option {
	return func(b *Builder) { b.retry = opts }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) { b.log = l }
}

// New creates a Builder for cfg.
func New(cfg Config, opts ...Option) *Builder {
	if cfg.RequestDelay <= 0 {
		cfg.RequestDelay = DefaultRequestDelay
	}
	b := &Builder{
		cfg:         cfg,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		rateLimiter: rate.NewLimiter(rate.Every(cfg.RequestDelay), 1),
		retry:       fn.DefaultRetry,
		log:         slog.Default(),
	}
	if cfg.Attempts > 0 {
		b.retry.MaxAttempts = cfg.Attempts
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// FromConfig creates one Builder per configured agent.
func FromConfig(agents []config.AgentConfig, opts ...Option) []provider.Builder {
	out := make([]provider.Builder, 0, len(agents))
	for _, a := range agents {
		out = append(out, New(Config{
			AgentType:    a.AgentType,
			Sources:      a.Sources,
			Language:     a.Language,
			RequestDelay: a.RequestDelay,
			Attempts:     a.Attempts,
		}, opts...))
	}
	return out
}

// AgentType returns the agent type the built models carry.
func (b *Builder) AgentType() string { return b.cfg.AgentType }

// Build downloads and parses every source and merges them into one model.
func (b *Builder) Build(ctx context.Context) (*domain.Model, error) {
	m := domain.NewModel(b.cfg.AgentType)
	for _, src := range b.cfg.Sources {
		static, err := b.load(ctx, src).Unwrap()
		if err != nil {
			return nil, fmt.Errorf("gtfs source %s: %w", src, err)
		}
		added := mergeStatic(m, static, b.cfg.Language)
		b.log.Info("gtfs feed merged", "agent_type", b.cfg.AgentType, "source", src,
			"stops", len(static.Stops), "routes", added)
	}
	return m, nil
}

func (b *Builder) load(ctx context.Context, src string) fn.Result[*gtfs.Static] {
	opts := b.retry
	if opts.Retryable == nil {
		opts.Retryable = retryable
	}
	if opts.OnRetry == nil {
		opts.OnRetry = func(attempt int, err error) {
			b.log.Warn("gtfs download failed, retrying", "agent_type", b.cfg.AgentType,
				"source", src, "attempt", attempt, "err", err)
		}
	}
	data, err := fn.Retry(ctx, opts, func(ctx context.Context) fn.Result[[]byte] {
		return fn.FromPair(b.fetch(ctx, src))
	}).Unwrap()
	if err != nil {
		return fn.Err[*gtfs.Static](err)
	}
	static, err := gtfs.ParseStatic(data, gtfs.ParseStaticOptions{})
	if err != nil {
		return fn.Err[*gtfs.Static](fmt.Errorf("error parsing GTFS data: %w", err))
	}
	return fn.Ok(static)
}

func (b *Builder) fetch(ctx context.Context, src string) ([]byte, error) {
	if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
		data, err := os.ReadFile(src)
		if err != nil {
			return nil, fmt.Errorf("error reading local GTFS file: %w: %w", errPermanent, err)
		}
		return data, nil
	}

	if err := b.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error downloading GTFS data: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("error downloading GTFS data: status %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			err = fmt.Errorf("%w: %w", errPermanent, err)
		}
		return nil, err
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading GTFS data: %w", err)
	}
	return data, nil
}

// mergeStatic adds the stops and trips of static to m and returns the
// number of routes added. Trips without stop times are skipped.
func mergeStatic(m *domain.Model, static *gtfs.Static, language string) int {
	agent := m.AgentType
	for _, s := range static.Stops {
		st := domain.NewStation(agent, s.Id)
		if s.Name != "" {
			st.SetStationName(s.Name, language)
		}
		m.AddStation(st)
	}

	added := 0
	for _, trip := range static.Trips {
		if len(trip.StopTimes) == 0 {
			continue
		}
		r := domain.NewRoute(agent, trip.ID)
		r.RouteNumber = routeNumber(trip)
		if trip.Service != nil {
			if !trip.Service.StartDate.IsZero() {
				r.ActiveFromDate = trip.Service.StartDate.Format("2006-01-02")
			}
			if !trip.Service.EndDate.IsZero() {
				r.ActiveToDate = trip.Service.EndDate.Format("2006-01-02")
			}
			if p := periodicity(trip.Service); p != "" {
				r.SetPeriodicity(p, language)
			}
		}

		stops := make([]gtfs.ScheduledStopTime, len(trip.StopTimes))
		copy(stops, trip.StopTimes)
		sort.SliceStable(stops, func(i, j int) bool { return stops[i].StopSequence < stops[j].StopSequence })

		last := len(stops) - 1
		for i, st := range stops {
			if st.Stop == nil {
				continue
			}
			var arrival, departure string
			if i > 0 {
				arrival = timetable.FormatClock(st.ArrivalTime)
			}
			if i < last {
				departure = timetable.FormatClock(st.DepartureTime)
			}
			r.AddRoutePoint(domain.NewRoutePoint(agent, trip.ID, st.Stop.Id, arrival, departure))
		}
		m.AddRoute(r)
		added++
	}
	return added
}

// routeNumber prefers the public short name of the trip's route.
func routeNumber(trip gtfs.ScheduledTrip) string {
	if trip.ShortName != "" {
		return trip.ShortName
	}
	if trip.Route != nil {
		if trip.Route.ShortName != "" {
			return trip.Route.ShortName
		}
		if trip.Route.Id != "" {
			return trip.Route.Id
		}
	}
	return trip.ID
}

// periodicity summarizes the weekly pattern of a service, "daily" when it
// runs every day.
func periodicity(s *gtfs.Service) string {
	days := []struct {
		on   bool
		name string
	}{
		{s.Monday, "Mon"}, {s.Tuesday, "Tue"}, {s.Wednesday, "Wed"}, {s.Thursday, "Thu"},
		{s.Friday, "Fri"}, {s.Saturday, "Sat"}, {s.Sunday, "Sun"},
	}
	var names []string
	for _, d := range days {
		if d.on {
			names = append(names, d.name)
		}
	}
	switch len(names) {
	case 0:
		return ""
	case len(days):
		return "daily"
	}
	return strings.Join(names, ",")
}
