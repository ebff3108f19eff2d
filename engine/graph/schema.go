package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/WessleyAI/routes-aggregator/engine/domain"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type indexSpec struct {
	label    string
	property string
}

func (s indexSpec) name() string {
	return strings.ToLower(s.label) + "_" + s.property
}

func (s indexSpec) cypher() string {
	return fmt.Sprintf("CREATE INDEX %s IF NOT EXISTS FOR (n:%s) ON (n.%s)", s.name(), s.label, s.property)
}

func (g *GraphStore) indexSpecs() []indexSpec {
	specs := []indexSpec{
		{LabelRoute, "domain_id"},
		{LabelRoute, "route_number"},
		{LabelRoute, "agent_type"},
		{LabelStation, "domain_id"},
		{LabelStation, "agent_type"},
	}
	for _, lang := range g.languages {
		lang = sanitizeIdent(lang)
		if lang == "" {
			continue
		}
		key := domain.PropertyKey{Field: domain.FieldStationName, Language: lang}
		specs = append(specs, indexSpec{LabelStation, key.String()})
	}
	return specs
}

// CreateIndices creates the lookup indices. It is safe to call repeatedly.
// Schema statements run in auto-commit mode, one per index, so one failure
// does not stop the rest; failures are logged and returned joined.
func (g *GraphStore) CreateIndices(ctx context.Context) error {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	var errs []error
	for _, spec := range g.indexSpecs() {
		if _, err := sess.Run(ctx, spec.cypher(), nil); err != nil {
			if isAlreadyExists(err) {
				continue
			}
			g.log.Error("create index", "index", spec.name(), "err", err)
			errs = append(errs, fmt.Errorf("create index %s: %w", spec.name(), err))
		}
	}
	return errors.Join(errs...)
}

// isAlreadyExists reports an equivalent index or constraint that already
// exists. IF NOT EXISTS covers most servers; older ones still raise it.
func isAlreadyExists(err error) bool {
	var nerr *neo4j.Neo4jError
	if errors.As(err, &nerr) && strings.Contains(nerr.Code, "AlreadyExists") {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "already exists")
}
