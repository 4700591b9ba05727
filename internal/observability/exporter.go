package observability

import (
	"fmt"
	"math"
	"net/http"
	"strings"
)

// PrometheusExporter serves metrics in Prometheus text exposition format.
// Kestrel metrics are unlabeled singletons; the only synthesized label is
// the histogram bucket bound.
type PrometheusExporter struct {
	registry *Registry
}

// NewPrometheusExporter creates an exporter backed by the given registry.
func NewPrometheusExporter(registry *Registry) *PrometheusExporter {
	return &PrometheusExporter{registry: registry}
}

// ServeHTTP implements http.Handler for the /metrics endpoint.
func (e *PrometheusExporter) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(e.Format()))
}

// Format renders every registered metric:
//
//	# HELP <name> <help>
//	# TYPE <name> <type>
//	<name> <value>
func (e *PrometheusExporter) Format() string {
	var b strings.Builder

	e.registry.mu.RLock()
	defer e.registry.mu.RUnlock()

	for _, name := range sortedKeys(e.registry.counters) {
		c := e.registry.counters[name]
		b.WriteString(fmt.Sprintf("# HELP %s %s\n", c.name, c.help))
		b.WriteString(fmt.Sprintf("# TYPE %s counter\n", c.name))
		b.WriteString(fmt.Sprintf("%s %d\n\n", c.name, c.Value()))
	}

	for _, name := range sortedKeys(e.registry.gauges) {
		g := e.registry.gauges[name]
		b.WriteString(fmt.Sprintf("# HELP %s %s\n", g.name, g.help))
		b.WriteString(fmt.Sprintf("# TYPE %s gauge\n", g.name))
		b.WriteString(fmt.Sprintf("%s %s\n\n", g.name, formatFloat(g.Value())))
	}

	for _, name := range sortedKeys(e.registry.histograms) {
		h := e.registry.histograms[name]
		buckets, counts, sum, count := h.BucketCounts()

		b.WriteString(fmt.Sprintf("# HELP %s %s\n", h.name, h.help))
		b.WriteString(fmt.Sprintf("# TYPE %s histogram\n", h.name))

		for i, bound := range buckets {
			b.WriteString(fmt.Sprintf("%s_bucket{le=%q} %d\n", h.name, formatFloat(bound), counts[i]))
		}
		b.WriteString(fmt.Sprintf("%s_bucket{le=\"+Inf\"} %d\n", h.name, count))
		b.WriteString(fmt.Sprintf("%s_sum %s\n", h.name, formatFloat(sum)))
		b.WriteString(fmt.Sprintf("%s_count %d\n\n", h.name, count))
	}

	return b.String()
}

// formatFloat renders a float for Prometheus output.
func formatFloat(v float64) string {
	if math.IsInf(v, 1) {
		return "+Inf"
	}
	if math.IsInf(v, -1) {
		return "-Inf"
	}
	if math.IsNaN(v) {
		return "NaN"
	}
	return fmt.Sprintf("%g", v)
}
