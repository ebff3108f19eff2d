package graph

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/WessleyAI/routes-aggregator/pkg/repo"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// fakeResult iterates over a fixed set of records.
type fakeResult struct {
	records []*neo4j.Record
	idx     int
}

func (r *fakeResult) Next(_ context.Context) bool {
	if r.idx < len(r.records) {
		r.idx++
		return true
	}
	return false
}

func (r *fakeResult) Record() *neo4j.Record { return r.records[r.idx-1] }

type fakeNode struct {
	label string
	props map[string]any
}

type fakeRel struct {
	typ      string
	from, to string // node domain ids
	props    map[string]any
}

// fakeGraph is an in-memory store that understands the statements issued
// by GraphStore. Write transactions are atomic: state is restored when the
// work function fails.
type fakeGraph struct {
	nodes []fakeNode
	rels  []fakeRel

	// failOn makes any statement containing the substring fail.
	failOn  string
	failErr error

	statements []string
	sessions   int
	closed     int
}

func newFakeGraph() *fakeGraph { return &fakeGraph{} }

func (f *fakeGraph) OpenSession(_ context.Context) repo.Session {
	f.sessions++
	return &fakeSession{g: f}
}

type fakeSession struct{ g *fakeGraph }

func (s *fakeSession) Run(ctx context.Context, cypher string, params map[string]any) (repo.Result, error) {
	return s.g.run(ctx, cypher, params)
}

func (s *fakeSession) ExecuteRead(_ context.Context, work repo.Work) (any, error) {
	return work(s)
}

func (s *fakeSession) ExecuteWrite(_ context.Context, work repo.Work) (any, error) {
	nodes := append([]fakeNode(nil), s.g.nodes...)
	rels := append([]fakeRel(nil), s.g.rels...)
	out, err := work(s)
	if err != nil {
		s.g.nodes, s.g.rels = nodes, rels
	}
	return out, err
}

func (s *fakeSession) Close(_ context.Context) error {
	s.g.closed++
	return nil
}

func (f *fakeGraph) count(fragment string) int {
	n := 0
	for _, st := range f.statements {
		if strings.Contains(st, fragment) {
			n++
		}
	}
	return n
}

var (
	rePredicate  = regexp.MustCompile(`WHERE (toLower\(n\.(\w+)\) STARTS WITH toLower\(\$value\)|toLower\(n\.(\w+)\) = toLower\(\$value\)|n\.(\w+) =~ \$value)`)
	reHopColumn  = regexp.MustCompile(`route_(\d+)`)
	reSlotGroup  = regexp.MustCompile(`s(\d+)\.domain_id IN \$(group\d+)`)
	reHopBound   = regexp.MustCompile(`TRANSITION\*\.\.(\d+)`)
	errFakeQuery = errors.New("fake graph: unsupported statement")
)

func (f *fakeGraph) run(_ context.Context, cypher string, params map[string]any) (repo.Result, error) {
	f.statements = append(f.statements, cypher)
	if f.failOn != "" && strings.Contains(cypher, f.failOn) {
		if f.failErr != nil {
			return nil, f.failErr
		}
		return nil, errors.New("fake graph: injected failure")
	}

	var recs []*neo4j.Record
	switch {
	case strings.HasPrefix(cypher, "CREATE INDEX"):
	case cypher == cypherDeleteRelationships:
		f.rels = filterRels(f.rels, func(r fakeRel) bool { return r.props["agent_type"] != params["agent_type"] })
	case cypher == cypherDeleteNodes:
		kept := f.nodes[:0:0]
		for _, n := range f.nodes {
			if n.props["agent_type"] != params["agent_type"] {
				kept = append(kept, n)
			}
		}
		f.nodes = kept
	case cypher == cypherCreateStations, cypher == cypherCreateRoutes:
		label := LabelStation
		if cypher == cypherCreateRoutes {
			label = LabelRoute
		}
		for _, row := range rows(params) {
			f.nodes = append(f.nodes, fakeNode{label: label, props: row})
		}
	case cypher == cypherCreateConnections:
		for _, row := range rows(params) {
			f.rels = append(f.rels, fakeRel{
				typ: RelRouteConnection, from: row["station"].(string), to: row["route"].(string),
				props: map[string]any{"station_number": row["station_number"], "agent_type": row["agent_type"]},
			})
		}
	case cypher == cypherCreateTransitions:
		for _, row := range rows(params) {
			f.rels = append(f.rels, fakeRel{
				typ: RelTransition, from: row["from"].(string), to: row["to"].(string),
				props: map[string]any{
					"route_id":          row["route_id"],
					"departure_time":    row["departure_time"],
					"arrival_time":      row["arrival_time"],
					"transition_number": row["transition_number"],
					"agent_type":        row["agent_type"],
				},
			})
		}
	case strings.HasPrefix(cypher, "MATCH (n:Station {domain_id: $id})"):
		if n, ok := f.node(LabelStation, params["id"]); ok {
			recs = append(recs, nodeRecord(n.props))
		}
	case cypher == cypherRouteByDomainID:
		if n, ok := f.node(LabelRoute, params["domain_id"]); ok {
			recs = append(recs, nodeRecord(n.props))
		}
	case cypher == cypherTransitionsByRoute:
		recs = f.transitionsByRoute(params)
	case cypher == cypherConnectionsByRoute:
		recs = f.connectionsByRoute(params["domain_id"].(string))
	case strings.HasPrefix(cypher, "MATCH (n:Station)"), strings.HasPrefix(cypher, "MATCH (n:Route) WHERE"):
		recs = f.search(cypher, params)
	case strings.Contains(cypher, "WHERE s.domain_id IN $station_ids"):
		recs = f.routesByStations(params)
	case strings.Contains(cypher, "allShortestPaths"):
		recs = f.shortestPaths(cypher, params)
	case strings.Contains(cypher, "RETURN DISTINCT") && strings.Contains(cypher, "route_0"):
		recs = f.transferRows(cypher, params)
	case cypher == cypherNodeCounts:
		recs = f.nodeCounts(params["agent_type"])
	case cypher == cypherRelationshipCounts:
		recs = f.relCounts(params["agent_type"])
	default:
		return nil, errFakeQuery
	}
	return &fakeResult{records: recs}, nil
}

func rows(params map[string]any) []map[string]any {
	var out []map[string]any
	for _, r := range params["rows"].([]any) {
		out = append(out, r.(map[string]any))
	}
	return out
}

func filterRels(rels []fakeRel, keep func(fakeRel) bool) []fakeRel {
	out := rels[:0:0]
	for _, r := range rels {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func nodeRecord(props map[string]any) *neo4j.Record {
	return &neo4j.Record{Keys: []string{"n"}, Values: []any{dbtype.Node{Props: props}}}
}

func record(kv ...any) *neo4j.Record {
	rec := &neo4j.Record{}
	for i := 0; i < len(kv); i += 2 {
		rec.Keys = append(rec.Keys, kv[i].(string))
		rec.Values = append(rec.Values, kv[i+1])
	}
	return rec
}

func (f *fakeGraph) node(label string, domainID any) (fakeNode, bool) {
	for _, n := range f.nodes {
		if n.label == label && n.props["domain_id"] == domainID {
			return n, true
		}
	}
	return fakeNode{}, false
}

func (f *fakeGraph) stationID(domainID string) string {
	n, _ := f.node(LabelStation, domainID)
	s, _ := n.props["station_id"].(string)
	return s
}

func num(v any) int64 {
	n, _ := v.(int64)
	return n
}

func (f *fakeGraph) transitionsByRoute(params map[string]any) []*neo4j.Record {
	var ts []fakeRel
	for _, r := range f.rels {
		if r.typ == RelTransition && r.props["route_id"] == params["route_id"] && r.props["agent_type"] == params["agent_type"] {
			ts = append(ts, r)
		}
	}
	sort.Slice(ts, func(i, j int) bool { return num(ts[i].props["transition_number"]) < num(ts[j].props["transition_number"]) })
	var recs []*neo4j.Record
	for _, t := range ts {
		recs = append(recs, record(
			"departure_station_id", f.stationID(t.from),
			"arrival_station_id", f.stationID(t.to),
			"departure_time", t.props["departure_time"],
			"arrival_time", t.props["arrival_time"],
		))
	}
	return recs
}

// connection is one stop of a route in station_number order.
type connection struct {
	station string
	number  int64
}

func (f *fakeGraph) connections(routeDomainID string) []connection {
	var cs []connection
	for _, r := range f.rels {
		if r.typ == RelRouteConnection && r.to == routeDomainID {
			cs = append(cs, connection{station: r.from, number: num(r.props["station_number"])})
		}
	}
	sort.Slice(cs, func(i, j int) bool { return cs[i].number < cs[j].number })
	return cs
}

func (f *fakeGraph) connectionsByRoute(routeDomainID string) []*neo4j.Record {
	var recs []*neo4j.Record
	for _, c := range f.connections(routeDomainID) {
		recs = append(recs, record("station_id", f.stationID(c.station)))
	}
	return recs
}

func (f *fakeGraph) routes() []fakeNode {
	var out []fakeNode
	for _, n := range f.nodes {
		if n.label == LabelRoute {
			out = append(out, n)
		}
	}
	sortByRouteNumber(out)
	return out
}

func sortByRouteNumber(ns []fakeNode) {
	sort.SliceStable(ns, func(i, j int) bool {
		a, b := ns[i].props, ns[j].props
		if a["route_number"] != b["route_number"] {
			return a["route_number"].(string) < b["route_number"].(string)
		}
		return a["domain_id"].(string) < b["domain_id"].(string)
	})
}

func limitOf(params map[string]any) int {
	if l, ok := params["limit"].(int64); ok {
		return int(l)
	}
	return 1 << 30
}

func (f *fakeGraph) search(cypher string, params map[string]any) []*neo4j.Record {
	m := rePredicate.FindStringSubmatch(cypher)
	if m == nil {
		return nil
	}
	label := LabelRoute
	if strings.HasPrefix(cypher, "MATCH (n:Station)") {
		label = LabelStation
	}
	value := params["value"].(string)
	var match func(string) bool
	var property string
	switch {
	case m[2] != "":
		property = m[2]
		match = func(s string) bool { return strings.HasPrefix(strings.ToLower(s), strings.ToLower(value)) }
	case m[3] != "":
		property = m[3]
		match = func(s string) bool { return strings.EqualFold(s, value) }
	default:
		property = m[4]
		re := regexp.MustCompile("^(?:" + value + ")$")
		match = re.MatchString
	}

	var hits []fakeNode
	for _, n := range f.nodes {
		if s, ok := n.props[property].(string); ok && n.label == label && match(s) {
			hits = append(hits, n)
		}
	}
	if label == LabelRoute {
		sortByRouteNumber(hits)
	} else {
		sort.Slice(hits, func(i, j int) bool { return hits[i].props["domain_id"].(string) < hits[j].props["domain_id"].(string) })
	}
	var recs []*neo4j.Record
	for i, n := range hits {
		if i == limitOf(params) {
			break
		}
		recs = append(recs, nodeRecord(n.props))
	}
	return recs
}

func (f *fakeGraph) routesByStations(params map[string]any) []*neo4j.Record {
	want := map[string]bool{}
	for _, id := range params["station_ids"].([]string) {
		want[id] = true
	}
	var recs []*neo4j.Record
	for _, r := range f.routes() {
		for _, c := range f.connections(r.props["domain_id"].(string)) {
			if want[c.station] {
				recs = append(recs, nodeRecord(r.props))
				break
			}
		}
		if len(recs) == limitOf(params) {
			break
		}
	}
	return recs
}

// transferRows enumerates every chain of hops the rendered pattern matches.
func (f *fakeGraph) transferRows(cypher string, params map[string]any) []*neo4j.Record {
	hops := 0
	for _, m := range reHopColumn.FindAllStringSubmatch(cypher, -1) {
		n, _ := strconv.Atoi(m[1])
		hops = max(hops, n+1)
	}
	slotGroup := map[int]map[string]bool{}
	for _, m := range reSlotGroup.FindAllStringSubmatch(cypher, -1) {
		slot, _ := strconv.Atoi(m[1])
		set := map[string]bool{}
		for _, id := range params[m[2]].([]string) {
			set[id] = true
		}
		slotGroup[slot] = set
	}
	allowed := func(slot int, station string) bool {
		g, ok := slotGroup[slot]
		return !ok || g[station]
	}

	type hop struct {
		route    fakeNode
		dep, arr int64
	}
	var results [][]hop
	var walk func(i int, at string, chain []hop)
	walk = func(i int, at string, chain []hop) {
		if i == hops {
			results = append(results, append([]hop(nil), chain...))
			return
		}
		for _, r := range f.routes() {
			if i > 0 && chain[i-1].route.props["domain_id"] == r.props["domain_id"] {
				continue
			}
			cs := f.connections(r.props["domain_id"].(string))
			for _, d := range cs {
				if (i > 0 && d.station != at) || (i == 0 && !allowed(0, d.station)) {
					continue
				}
				for _, a := range cs {
					if d.number < a.number && allowed(i+1, a.station) {
						walk(i+1, a.station, append(chain, hop{r, d.number, a.number}))
					}
				}
			}
		}
	}
	walk(0, "", nil)

	var recs []*neo4j.Record
	for _, chain := range results {
		if len(recs) == limitOf(params) {
			break
		}
		var kv []any
		for i, h := range chain {
			kv = append(kv,
				"route_"+strconv.Itoa(i), h.route.props["domain_id"],
				"departure_"+strconv.Itoa(i), h.dep,
				"arrival_"+strconv.Itoa(i), h.arr,
			)
		}
		kv = append(kv, "route_number", chain[0].route.props["route_number"])
		recs = append(recs, record(kv...))
	}
	return recs
}

// shortestPaths finds, per (departure, arrival) pair, every minimal chain of
// transitions within the bound.
func (f *fakeGraph) shortestPaths(cypher string, params map[string]any) []*neo4j.Record {
	m := reHopBound.FindStringSubmatch(cypher)
	bound, _ := strconv.Atoi(m[1])

	var found [][]fakeRel
	for _, a := range params["departure_ids"].([]string) {
		for _, b := range params["arrival_ids"].([]string) {
			if a == b {
				continue
			}
			var best [][]fakeRel
			var walk func(at string, chain []fakeRel, used map[int]bool)
			walk = func(at string, chain []fakeRel, used map[int]bool) {
				if at == b && len(chain) > 0 {
					switch {
					case len(best) == 0 || len(chain) < len(best[0]):
						best = [][]fakeRel{append([]fakeRel(nil), chain...)}
					case len(chain) == len(best[0]):
						best = append(best, append([]fakeRel(nil), chain...))
					}
					return
				}
				if len(chain) == bound {
					return
				}
				for i, r := range f.rels {
					if r.typ != RelTransition || r.from != at || used[i] {
						continue
					}
					used[i] = true
					walk(r.to, append(chain, r), used)
					delete(used, i)
				}
			}
			walk(a, nil, map[int]bool{})
			found = append(found, best...)
		}
	}
	sort.SliceStable(found, func(i, j int) bool { return len(found[i]) < len(found[j]) })

	var recs []*neo4j.Record
	for _, chain := range found {
		if len(recs) == limitOf(params) {
			break
		}
		hops := make([]any, len(chain))
		for i, r := range chain {
			hops[i] = map[string]any{
				"agent_type":        r.props["agent_type"],
				"route_id":          r.props["route_id"],
				"transition_number": r.props["transition_number"],
			}
		}
		recs = append(recs, record("hops", hops))
	}
	return recs
}

func (f *fakeGraph) nodeCounts(agentType any) []*neo4j.Record {
	counts := map[string]int64{}
	for _, n := range f.nodes {
		if n.props["agent_type"] == agentType {
			counts[n.label]++
		}
	}
	return countRecords(counts)
}

func (f *fakeGraph) relCounts(agentType any) []*neo4j.Record {
	counts := map[string]int64{}
	for _, r := range f.rels {
		if r.props["agent_type"] == agentType {
			counts[r.typ]++
		}
	}
	return countRecords(counts)
}

func countRecords(counts map[string]int64) []*neo4j.Record {
	var recs []*neo4j.Record
	for k, v := range counts {
		recs = append(recs, record("type", k, "count", v))
	}
	return recs
}
