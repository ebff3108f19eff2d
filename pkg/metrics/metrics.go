// Package metrics is a small Prometheus-compatible registry. Metrics are
// grouped into families by base name; each label set of a family is one
// series. The registry renders the text exposition format on /metrics.
package metrics

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBuckets are the default histogram buckets (in seconds).
var DefaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// Counter is a monotonically increasing counter.
type Counter struct{ val atomic.Int64 }

func (c *Counter) Inc()         { c.val.Add(1) }
func (c *Counter) Add(n int64)  { c.val.Add(n) }
func (c *Counter) Value() int64 { return c.val.Load() }

// Gauge can go up and down.
type Gauge struct{ val atomic.Int64 }

func (g *Gauge) Set(n int64)  { g.val.Store(n) }
func (g *Gauge) Inc()         { g.val.Add(1) }
func (g *Gauge) Dec()         { g.val.Add(-1) }
func (g *Gauge) Value() int64 { return g.val.Load() }

// Histogram counts observations into fixed upper-bound buckets.
type Histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64 // per bucket, not cumulative
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *Histogram {
	b := append([]float64(nil), buckets...)
	sort.Float64s(b)
	return &Histogram{buckets: b, counts: make([]uint64, len(b))}
}

// Observe records v.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.count++
	if i := sort.SearchFloat64s(h.buckets, v); i < len(h.buckets) {
		h.counts[i]++
	}
}

// Since observes the seconds elapsed since t.
func (h *Histogram) Since(t time.Time) {
	h.Observe(time.Since(t).Seconds())
}

// Count returns the number of observations.
func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func (h *Histogram) snapshot() (buckets []float64, counts []uint64, sum float64, count uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.buckets, append([]uint64(nil), h.counts...), h.sum, h.count
}

type kind string

const (
	kindCounter   kind = "counter"
	kindGauge     kind = "gauge"
	kindHistogram kind = "histogram"
)

// family is every series sharing a base name. Series are keyed by their
// rendered label set, e.g. `op="find_paths",mode="SIMPLE"`.
type family struct {
	name   string
	help   string
	kind   kind
	series map[string]any
}

// Registry holds metric families in registration order.
type Registry struct {
	mu       sync.RWMutex
	families map[string]*family
	order    []string
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{families: make(map[string]*family)}
}

// series returns the metric registered under name (which may carry labels,
// see WithLabels), creating it with mk. Registering one base name as two
// kinds panics.
func (r *Registry) series(name, help string, k kind, mk func() any) any {
	base, labels := splitName(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.families[base]
	if !ok {
		f = &family{name: base, kind: k, series: make(map[string]any)}
		r.families[base] = f
		r.order = append(r.order, base)
	}
	if f.kind != k {
		panic(fmt.Sprintf("metrics: %s registered as %s and %s", base, f.kind, k))
	}
	if f.help == "" {
		f.help = help
	}
	m, ok := f.series[labels]
	if !ok {
		m = mk()
		f.series[labels] = m
	}
	return m
}

// Counter returns (or creates) the counter called name.
func (r *Registry) Counter(name, help string) *Counter {
	return r.series(name, help, kindCounter, func() any { return &Counter{} }).(*Counter)
}

// Gauge returns (or creates) the gauge called name.
func (r *Registry) Gauge(name, help string) *Gauge {
	return r.series(name, help, kindGauge, func() any { return &Gauge{} }).(*Gauge)
}

// Histogram returns (or creates) the histogram called name. Nil buckets
// mean DefaultBuckets; buckets of an existing histogram are kept.
func (r *Registry) Histogram(name, help string, buckets []float64) *Histogram {
	if buckets == nil {
		buckets = DefaultBuckets
	}
	return r.series(name, help, kindHistogram, func() any { return newHistogram(buckets) }).(*Histogram)
}

// CounterTotal sums every series of the counter family baseName.
func (r *Registry) CounterTotal(baseName string) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.families[baseName]
	if !ok || f.kind != kindCounter {
		return 0
	}
	var total int64
	for _, m := range f.series {
		total += m.(*Counter).Value()
	}
	return total
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

// WithLabels appends label pairs to name:
// WithLabels("foo", "k", "v") returns `foo{k="v"}`. Values are escaped, so
// request data (agent types, modes) is safe to use. An odd number of kvs
// returns name unchanged.
func WithLabels(name string, kvs ...string) string {
	if len(kvs) == 0 || len(kvs)%2 != 0 {
		return name
	}
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i := 0; i < len(kvs); i += 2 {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(kvs[i])
		b.WriteString(`="`)
		labelEscaper.WriteString(&b, kvs[i+1])
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}

// splitName splits `foo{k="v"}` into "foo" and `k="v"`.
func splitName(name string) (base, labels string) {
	i := strings.IndexByte(name, '{')
	if i == -1 || !strings.HasSuffix(name, "}") {
		return name, ""
	}
	return name[:i], name[i+1 : len(name)-1]
}

// joinLabels renders a label set, with extra prepended when both are set.
func joinLabels(extra, labels string) string {
	switch {
	case extra == "" && labels == "":
		return ""
	case extra == "":
		return "{" + labels + "}"
	case labels == "":
		return "{" + extra + "}"
	}
	return "{" + extra + "," + labels + "}"
}

// WriteTo writes every family in the Prometheus text format.
func (r *Registry) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	r.mu.RLock()
	for _, name := range r.order {
		f := r.families[name]
		if f.help != "" {
			fmt.Fprintf(&buf, "# HELP %s %s\n", f.name, f.help)
		}
		fmt.Fprintf(&buf, "# TYPE %s %s\n", f.name, f.kind)

		keys := make([]string, 0, len(f.series))
		for k := range f.series {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, labels := range keys {
			switch m := f.series[labels].(type) {
			case *Counter:
				fmt.Fprintf(&buf, "%s%s %d\n", f.name, joinLabels("", labels), m.Value())
			case *Gauge:
				fmt.Fprintf(&buf, "%s%s %d\n", f.name, joinLabels("", labels), m.Value())
			case *Histogram:
				buckets, counts, sum, count := m.snapshot()
				var cumulative uint64
				for i, le := range buckets {
					cumulative += counts[i]
					fmt.Fprintf(&buf, "%s_bucket%s %d\n", f.name, joinLabels(fmt.Sprintf(`le="%g"`, le), labels), cumulative)
				}
				fmt.Fprintf(&buf, "%s_bucket%s %d\n", f.name, joinLabels(`le="+Inf"`, labels), count)
				fmt.Fprintf(&buf, "%s_sum%s %g\n", f.name, joinLabels("", labels), sum)
				fmt.Fprintf(&buf, "%s_count%s %d\n", f.name, joinLabels("", labels), count)
			}
		}
	}
	r.mu.RUnlock()
	return buf.WriteTo(w)
}

// Render returns the text exposition of every family.
func (r *Registry) Render() string {
	var b strings.Builder
	r.WriteTo(&b)
	return b.String()
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		r.WriteTo(w)
	})
}
