// Package repo defines the Cypher session seam used by the graph store and a
// generic read-only node repository on top of it.
package repo

import (
	"context"

	"github.com/WessleyAI/routes-aggregator/pkg/fn"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Result is the minimal interface needed from a query result.
type Result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
}

// Runner executes a single Cypher statement.
type Runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (Result, error)
}

// Work is a unit of work executed inside a managed transaction. Results must
// be consumed before it returns.
type Work func(tx Runner) (any, error)

// Session is a store session with managed transactions.
type Session interface {
	Runner
	ExecuteRead(ctx context.Context, work Work) (any, error)
	ExecuteWrite(ctx context.Context, work Work) (any, error)
	Close(ctx context.Context) error
}

// Opener opens sessions.
type Opener interface {
	OpenSession(ctx context.Context) Session
}

// Repository is a generic read interface over one node label.
type Repository[T any, ID comparable] interface {
	Get(ctx context.Context, id ID) fn.Result[T]
	List(ctx context.Context, opts ListOpts) fn.Result[[]T]
}

// ListOpts controls pagination and filtering for List operations.
type ListOpts struct {
	Offset int
	Limit  int
	// Where is a Cypher predicate over the node bound as n. Values go in
	// Params, never in the predicate text.
	Where  string
	Params map[string]any
}
