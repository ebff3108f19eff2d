// Package mid holds the HTTP middleware shared by the routes servers. Every
// constructor returns a Middleware, so the set plugs into chi's Use.
package mid

import (
	"net/http"
	"strconv"
	"time"

	"github.com/WessleyAI/routes-aggregator/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/gzhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Middleware wraps an http.Handler.
type Middleware = func(http.Handler) http.Handler

// recorder remembers the status and size of a response.
type recorder struct {
	http.ResponseWriter
	status int
	bytes  int
	wrote  bool
}

func record(w http.ResponseWriter) *recorder {
	return &recorder{ResponseWriter: w, status: http.StatusOK}
}

func (w *recorder) WriteHeader(code int) {
	if !w.wrote {
		w.status = code
		w.wrote = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *recorder) Write(b []byte) (int, error) {
	w.wrote = true
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *recorder) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// routePattern is the chi pattern that matched r, e.g. /api/stations/{id},
// or "unmatched". Only meaningful once the router has served r.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// OTel starts a server span per request.
func OTel(serviceName string) Middleware {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}))
	}
}

// Compress gzips responses of at least minSize bytes for clients that
// accept it. A level outside gzip's range falls back to the library
// defaults.
func Compress(minSize, level int) Middleware {
	wrapper, err := gzhttp.NewWrapper(gzhttp.MinSize(minSize), gzhttp.CompressionLevel(level))
	return func(next http.Handler) http.Handler {
		if err != nil {
			return gzhttp.GzipHandler(next)
		}
		return wrapper(next)
	}
}

// Metrics counts requests by method, route pattern and status and observes
// their duration. Labelling by pattern rather than path keeps station and
// route ids out of the series.
func Metrics(reg *metrics.Registry) Middleware {
	duration := reg.Histogram("http_request_duration_seconds", "HTTP request duration", nil)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := record(w)
			next.ServeHTTP(rec, r)
			duration.Since(start)
			reg.Counter(metrics.WithLabels("http_requests_total",
				"method", r.Method, "route", routePattern(r), "status", strconv.Itoa(rec.status)),
				"HTTP requests served").Inc()
		})
	}
}
