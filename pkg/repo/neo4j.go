package repo

import (
	"context"
	"fmt"

	"github.com/WessleyAI/routes-aggregator/pkg/fn"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 100

// DriverOpener opens sessions on a live Neo4j driver.
type DriverOpener struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewDriverOpener wraps driver. An empty database selects the server default.
func NewDriverOpener(driver neo4j.DriverWithContext, database string) *DriverOpener {
	return &DriverOpener{driver: driver, database: database}
}

// OpenSession implements Opener.
func (o *DriverOpener) OpenSession(ctx context.Context) Session {
	return &driverSession{sess: o.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: o.database})}
}

// driverSession adapts neo4j.SessionWithContext to Session.
type driverSession struct {
	sess neo4j.SessionWithContext
}

func (s *driverSession) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	return s.sess.Run(ctx, cypher, params)
}

func (s *driverSession) ExecuteRead(ctx context.Context, work Work) (any, error) {
	return s.sess.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return work(txRunner{tx: tx})
	})
}

func (s *driverSession) ExecuteWrite(ctx context.Context, work Work) (any, error) {
	return s.sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return work(txRunner{tx: tx})
	})
}

func (s *driverSession) Close(ctx context.Context) error {
	return s.sess.Close(ctx)
}

// txRunner adapts neo4j.ManagedTransaction to Runner.
type txRunner struct {
	tx neo4j.ManagedTransaction
}

func (r txRunner) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	return r.tx.Run(ctx, cypher, params)
}

// Neo4jRepo reads nodes of one label inside read transactions.
type Neo4jRepo[T any, ID comparable] struct {
	opener     Opener
	label      string
	idKey      string
	orderKey   string
	fromRecord func(*neo4j.Record) (T, error)
}

// Neo4jOption configures a Neo4jRepo.
type Neo4jOption[T any, ID comparable] func(*Neo4jRepo[T, ID])

// WithIDKey sets the property name used as the ID (default "id").
func WithIDKey[T any, ID comparable](key string) Neo4jOption[T, ID] {
	return func(r *Neo4jRepo[T, ID]) { r.idKey = key }
}

// WithOrderKey sets the property List orders by (default: the ID key).
func WithOrderKey[T any, ID comparable](key string) Neo4jOption[T, ID] {
	return func(r *Neo4jRepo[T, ID]) { r.orderKey = key }
}

// NewNeo4jRepo creates a repository for label. fromRecord receives rows with
// the node bound as "n".
func NewNeo4jRepo[T any, ID comparable](
	opener Opener,
	label string,
	fromRecord func(*neo4j.Record) (T, error),
	opts ...Neo4jOption[T, ID],
) *Neo4jRepo[T, ID] {
	r := &Neo4jRepo[T, ID]{
		opener:     opener,
		label:      label,
		idKey:      "id",
		fromRecord: fromRecord,
	}
	for _, o := range opts {
		o(r)
	}
	if r.orderKey == "" {
		r.orderKey = r.idKey
	}
	return r
}

// Compile-time interface check.
var _ Repository[any, string] = (*Neo4jRepo[any, string])(nil)

// Get returns the node with the given id, None when there is no such node.
func (r *Neo4jRepo[T, ID]) Get(ctx context.Context, id ID) fn.Result[T] {
	sess := r.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf("MATCH (n:%s {%s: $id}) RETURN n LIMIT 1", r.label, r.idKey)
	out, err := sess.ExecuteRead(ctx, func(tx Runner) (any, error) {
		res, err := tx.Run(ctx, cypher, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			return nil, nil
		}
		item, err := r.fromRecord(res.Record())
		if err != nil {
			return nil, err
		}
		return &item, nil
	})
	if err != nil {
		return fn.Err[T](fmt.Errorf("get %s %v: %w", r.label, id, err))
	}
	item, _ := out.(*T)
	if item == nil {
		return fn.None[T]()
	}
	return fn.Ok(*item)
}

// List returns the nodes matching opts ordered by the order key. An empty
// page is None.
func (r *Neo4jRepo[T, ID]) List(ctx context.Context, opts ListOpts) fn.Result[[]T] {
	sess := r.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	where := ""
	if opts.Where != "" {
		where = " WHERE " + opts.Where
	}
	cypher := fmt.Sprintf("MATCH (n:%s)%s RETURN n ORDER BY n.%s SKIP $offset LIMIT $limit",
		r.label, where, r.orderKey)
	params := map[string]any{"offset": int64(opts.Offset), "limit": int64(limit)}
	for k, v := range opts.Params {
		params[k] = v
	}

	out, err := sess.ExecuteRead(ctx, func(tx Runner) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		var items []T
		for res.Next(ctx) {
			item, err := r.fromRecord(res.Record())
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return items, nil
	})
	if err != nil {
		return fn.Err[[]T](fmt.Errorf("list %s: %w", r.label, err))
	}
	items, _ := out.([]T)
	if len(items) == 0 {
		return fn.None[[]T]()
	}
	return fn.Ok(items)
}
