// Package telemetry records HTTP and dataset metrics and serves them in the
// Prometheus text exposition format.
package telemetry

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

// ---------------------------------------------------------------------------
// Histogram
// ---------------------------------------------------------------------------

// histogram is a thread-safe histogram with fixed bucket boundaries. Bucket
// counts are stored non-cumulative; cumulative counts are computed at export.
type histogram struct {
	boundaries   []float64
	bucketCounts []int64
	count        int64
	sum          uint64 // math.Float64bits, updated with CAS
	mu           sync.Mutex
}

func newHistogram(boundaries []float64) *histogram {
	return &histogram{
		boundaries:   boundaries,
		bucketCounts: make([]int64, len(boundaries)),
	}
}

// Observe records a single value.
func (h *histogram) Observe(v float64) {
	atomic.AddInt64(&h.count, 1)
	atomicAddFloat64(&h.sum, v)

	h.mu.Lock()
	defer h.mu.Unlock()
	for i, b := range h.boundaries {
		if v <= b {
			h.bucketCounts[i]++
			return
		}
	}
}

// Count returns the total number of observations.
func (h *histogram) Count() int64 {
	return atomic.LoadInt64(&h.count)
}

// Sum returns the total sum of all observations.
func (h *histogram) Sum() float64 {
	return math.Float64frombits(atomic.LoadUint64(&h.sum))
}

func (h *histogram) cumulativeBuckets() []int64 {
	h.mu.Lock()
	raw := make([]int64, len(h.bucketCounts))
	copy(raw, h.bucketCounts)
	h.mu.Unlock()

	var running int64
	for i, c := range raw {
		running += c
		raw[i] = running
	}
	return raw
}

func atomicAddFloat64(addr *uint64, delta float64) {
	for {
		old := atomic.LoadUint64(addr)
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if atomic.CompareAndSwapUint64(addr, old, next) {
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Provider
// ---------------------------------------------------------------------------

// durationBuckets are request duration bucket boundaries in seconds. The
// upper end is wide because hierarchy queries over large concept sets can
// run for several seconds.
var durationBuckets = []float64{
	0.005, 0.010, 0.025, 0.050, 0.100, 0.250, 0.500, 1.0, 2.5, 5.0, 10.0, 30.0,
}

// DatasetGauges are the per-snapshot values exported as gauges.
type DatasetGauges struct {
	Concepts          int
	ConceptSets       int
	Members           int
	AncestorEdges     int
	RelationshipEdges int
	LoadedAt          time.Time
}

// Provider holds all metric state. The zero value is not usable; use
// NewProvider.
type Provider struct {
	enabled bool

	histMu    sync.RWMutex
	durations map[string]*histogram // keyed by LabelsKey

	active int64

	reloadMu sync.Mutex
	reloads  map[string]int64 // keyed by outcome

	dataset atomic.Pointer[DatasetGauges]
}

// NewProvider creates a provider. When enabled is false the middleware is a
// no-op, but dataset gauges are still recorded.
func NewProvider(enabled bool) *Provider {
	return &Provider{
		enabled:   enabled,
		durations: make(map[string]*histogram),
		reloads:   make(map[string]int64),
	}
}

// LabelsKey builds the key for a labeled duration histogram.
func LabelsKey(method, route, statusCode string) string {
	return method + "|" + route + "|" + statusCode
}

func (p *Provider) durationHistogram(key string) *histogram {
	p.histMu.RLock()
	h, ok := p.durations[key]
	p.histMu.RUnlock()
	if ok {
		return h
	}
	p.histMu.Lock()
	defer p.histMu.Unlock()
	if h, ok = p.durations[key]; !ok {
		h = newHistogram(durationBuckets)
		p.durations[key] = h
	}
	return h
}

// RequestCount returns the number of requests observed for the labels.
func (p *Provider) RequestCount(method, route, statusCode string) int64 {
	p.histMu.RLock()
	h, ok := p.durations[LabelsKey(method, route, statusCode)]
	p.histMu.RUnlock()
	if !ok {
		return 0
	}
	return h.Count()
}

// ActiveRequests returns the number of in-flight requests.
func (p *Provider) ActiveRequests() int64 {
	return atomic.LoadInt64(&p.active)
}

// RecordReload counts a snapshot reload attempt. On success the dataset
// gauges are replaced with g.
func (p *Provider) RecordReload(g *DatasetGauges, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	p.reloadMu.Lock()
	p.reloads[outcome]++
	p.reloadMu.Unlock()
	if err == nil && g != nil {
		p.dataset.Store(g)
	}
}

// Reloads returns the number of reloads with the given outcome.
func (p *Provider) Reloads(outcome string) int64 {
	p.reloadMu.Lock()
	defer p.reloadMu.Unlock()
	return p.reloads[outcome]
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

// MetricsMiddleware records request duration by method, route pattern and
// status code, and tracks in-flight requests.
func (p *Provider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if !p.enabled {
			return next
		}
		return func(c echo.Context) error {
			atomic.AddInt64(&p.active, 1)
			start := time.Now()

			err := next(c)

			atomic.AddInt64(&p.active, -1)
			status := c.Response().Status
			if err != nil {
				// The error handler has not written the response yet.
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			key := LabelsKey(c.Request().Method, route, strconv.Itoa(status))
			p.durationHistogram(key).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// ---------------------------------------------------------------------------
// Exposition
// ---------------------------------------------------------------------------

// PrometheusHandler serves all metrics in Prometheus text format.
func (p *Provider) PrometheusHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		var b strings.Builder
		p.writeDurations(&b)

		writeGauge(&b, "http_server_active_requests", "Number of in-flight HTTP requests.", float64(p.ActiveRequests()))

		b.WriteString("# HELP termhub_dataset_reloads_total Dataset snapshot reloads by outcome.\n")
		b.WriteString("# TYPE termhub_dataset_reloads_total counter\n")
		for _, outcome := range []string{"success", "failure"} {
			fmt.Fprintf(&b, "termhub_dataset_reloads_total{outcome=%q} %d\n", outcome, p.Reloads(outcome))
		}
		b.WriteByte('\n')

		if g := p.dataset.Load(); g != nil {
			writeGauge(&b, "termhub_dataset_concepts", "Concepts in the active snapshot.", float64(g.Concepts))
			writeGauge(&b, "termhub_dataset_concept_sets", "Concept sets in the active snapshot.", float64(g.ConceptSets))
			writeGauge(&b, "termhub_dataset_members", "Concept set membership rows in the active snapshot.", float64(g.Members))
			writeGauge(&b, "termhub_dataset_ancestor_edges", "concept_ancestor rows in the active snapshot.", float64(g.AncestorEdges))
			writeGauge(&b, "termhub_dataset_relationship_edges", "Subsumes rows in the active snapshot.", float64(g.RelationshipEdges))
			writeGauge(&b, "termhub_dataset_loaded_timestamp_seconds", "Unix time the active snapshot was loaded.", float64(g.LoadedAt.Unix()))
		}

		c.Response().Header().Set(echo.HeaderContentType, "text/plain; version=0.0.4; charset=utf-8")
		return c.String(http.StatusOK, b.String())
	}
}

func (p *Provider) writeDurations(b *strings.Builder) {
	const name = "http_server_request_duration_seconds"
	fmt.Fprintf(b, "# HELP %s Duration of HTTP requests in seconds.\n", name)
	fmt.Fprintf(b, "# TYPE %s histogram\n", name)

	p.histMu.RLock()
	keys := make([]string, 0, len(p.durations))
	for k := range p.durations {
		keys = append(keys, k)
	}
	snap := make(map[string]*histogram, len(keys))
	for _, k := range keys {
		snap[k] = p.durations[k]
	}
	p.histMu.RUnlock()
	sort.Strings(keys)

	for _, key := range keys {
		parts := strings.SplitN(key, "|", 3)
		if len(parts) != 3 {
			continue
		}
		labels := fmt.Sprintf("method=%q,route=%q,status_code=%q", parts[0], parts[1], parts[2])
		writeHistogram(b, name, labels, snap[key])
	}
	b.WriteByte('\n')
}

func writeHistogram(b *strings.Builder, name, labels string, h *histogram) {
	cum := h.cumulativeBuckets()
	total := h.Count()
	for i, boundary := range h.boundaries {
		fmt.Fprintf(b, "%s_bucket{%s,le=\"%g\"} %d\n", name, labels, boundary, cum[i])
	}
	fmt.Fprintf(b, "%s_bucket{%s,le=\"+Inf\"} %d\n", name, labels, total)
	fmt.Fprintf(b, "%s_sum{%s} %g\n", name, labels, h.Sum())
	fmt.Fprintf(b, "%s_count{%s} %d\n", name, labels, total)
}

func writeGauge(b *strings.Builder, name, help string, v float64) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s gauge\n", name)
	fmt.Fprintf(b, "%s %g\n", name, v)
	b.WriteByte('\n')
}
