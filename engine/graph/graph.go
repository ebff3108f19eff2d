// Package graph persists transit models into Neo4j and answers station,
// route and path queries against the projected graph.
//
// The schema has two node labels and two relationship types:
//
//	(:Station)-[:ROUTE_CONNECTION {station_number, agent_type}]->(:Route)
//	(:Station)-[:TRANSITION {route_id, departure_time, arrival_time, transition_number, agent_type}]->(:Station)
//
// Reads return fn.Result: None when nothing matched, Err when the store
// failed. Store failures are logged here.
package graph

import (
	"context"
	"log/slog"

	"github.com/WessleyAI/routes-aggregator/engine/domain"
	"github.com/WessleyAI/routes-aggregator/pkg/fn"
	"github.com/WessleyAI/routes-aggregator/pkg/repo"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Node labels and relationship types.
const (
	LabelStation       = "Station"
	LabelRoute         = "Route"
	RelRouteConnection = "ROUTE_CONNECTION"
	RelTransition      = "TRANSITION"
)

const (
	defaultBatchSize   = 500
	defaultSearchLimit = 20
)

// DefaultLanguages are the station name languages indexed when none are
// configured.
var DefaultLanguages = []string{"ua", "ru", "en"}

// GraphStore provides the transit graph operations.
type GraphStore struct {
	opener    repo.Opener
	stations  *repo.Neo4jRepo[*domain.Station, string]
	languages []string
	batchSize int
	log       *slog.Logger
}

// Option configures a GraphStore.
type Option func(*GraphStore)

// WithLanguages sets the station name languages that get an index.
func WithLanguages(langs ...string) Option {
	return func(g *GraphStore) {
		if len(langs) > 0 {
			g.languages = langs
		}
	}
}

// WithBatchSize sets the number of rows per UNWIND statement in BuildModel.
func WithBatchSize(n int) Option {
	return func(g *GraphStore) {
		if n > 0 {
			g.batchSize = n
		}
	}
}

// WithLogger sets the logger used for store failures.
func WithLogger(l *slog.Logger) Option {
	return func(g *GraphStore) {
		if l != nil {
			g.log = l
		}
	}
}

// New creates a GraphStore on a live driver.
func New(driver neo4j.DriverWithContext, database string, opts ...Option) *GraphStore {
	return NewWithOpener(repo.NewDriverOpener(driver, database), opts...)
}

// NewWithOpener creates a GraphStore on an arbitrary session opener.
func NewWithOpener(opener repo.Opener, opts ...Option) *GraphStore {
	g := &GraphStore{
		opener:    opener,
		languages: DefaultLanguages,
		batchSize: defaultBatchSize,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	g.stations = repo.NewNeo4jRepo[*domain.Station, string](
		opener,
		LabelStation,
		stationFromRecord,
		repo.WithIDKey[*domain.Station, string]("domain_id"),
	)
	return g
}

// Languages returns the configured station name languages.
func (g *GraphStore) Languages() []string { return g.languages }

// read runs work in a read transaction on a fresh session.
func (g *GraphStore) read(ctx context.Context, work repo.Work) (any, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)
	return sess.ExecuteRead(ctx, work)
}

// logged logs a store failure carried by r and returns r unchanged.
func logged[T any](log *slog.Logger, op string, r fn.Result[T]) fn.Result[T] {
	if r.IsErr() {
		log.Error("graph store failure", "op", op, "err", r.Err())
	}
	return r
}

// sanitizeIdent keeps the characters allowed in an unquoted Cypher
// identifier. It returns "" when nothing survives.
func sanitizeIdent(s string) string {
	safe := make([]byte, 0, len(s))
	for i := range s {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			safe = append(safe, c)
		}
	}
	return string(safe)
}

func strProp(props map[string]any, key string) string {
	if v, ok := props[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// intValue converts a numeric store value. Neo4j returns integers as int64.
func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int64:
		return int(n), true
	case int:
		return n, true
	case float64:
		return int(n), true
	}
	return 0, false
}

// toAny converts UNWIND rows to the driver's parameter shape.
func toAny(rows []map[string]any) []any {
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out
}
