package observability

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// MetricType identifies the kind of metric.
type MetricType string

const (
	MetricCounter   MetricType = "counter"
	MetricGauge     MetricType = "gauge"
	MetricHistogram MetricType = "histogram"
)

// MetricEntry is one metric value snapshot.
type MetricEntry struct {
	Name      string     `json:"name"`
	Type      MetricType `json:"type"`
	Help      string     `json:"help"`
	Value     float64    `json:"value"`
	Timestamp time.Time  `json:"ts"`
}

// -----------------------------------------------------------------------
// Counter
// -----------------------------------------------------------------------

// Counter is a monotonically increasing event count. Lock-free.
type Counter struct {
	name  string
	help  string
	value atomic.Int64
}

// Inc increments the counter by 1.
func (c *Counter) Inc() {
	c.value.Add(1)
}

// Add increments the counter by delta. Negative deltas are ignored.
func (c *Counter) Add(delta int64) {
	if delta < 0 {
		return
	}
	c.value.Add(delta)
}

// Value returns the current count.
func (c *Counter) Value() int64 {
	return c.value.Load()
}

// Entry returns a MetricEntry snapshot.
func (c *Counter) Entry() MetricEntry {
	return MetricEntry{
		Name:      c.name,
		Type:      MetricCounter,
		Help:      c.help,
		Value:     float64(c.Value()),
		Timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------
// Gauge
// -----------------------------------------------------------------------

// Gauge is a value that can go up and down.
type Gauge struct {
	name  string
	help  string
	mu    sync.Mutex
	value float64
}

// Set sets the gauge.
func (g *Gauge) Set(v float64) {
	g.mu.Lock()
	g.value = v
	g.mu.Unlock()
}

// Inc increments the gauge by 1.
func (g *Gauge) Inc() {
	g.mu.Lock()
	g.value++
	g.mu.Unlock()
}

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() {
	g.mu.Lock()
	g.value--
	g.mu.Unlock()
}

// Add adds delta to the gauge (may be negative).
func (g *Gauge) Add(delta float64) {
	g.mu.Lock()
	g.value += delta
	g.mu.Unlock()
}

// Value returns the current gauge value.
func (g *Gauge) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

// Entry returns a MetricEntry snapshot.
func (g *Gauge) Entry() MetricEntry {
	return MetricEntry{
		Name:      g.name,
		Type:      MetricGauge,
		Help:      g.help,
		Value:     g.Value(),
		Timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------
// Histogram
// -----------------------------------------------------------------------

// Histogram tracks a value distribution in cumulative buckets. A value
// <= buckets[i] increments counts[i].
type Histogram struct {
	name    string
	help    string
	mu      sync.Mutex
	buckets []float64 // sorted upper bounds
	counts  []int64
	sum     float64
	count   int64
}

// Observe records one value.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.count++
	for i, b := range h.buckets {
		if v <= b {
			h.counts[i]++
		}
	}
}

// Count returns the total number of observations.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Sum returns the sum of all observed values.
func (h *Histogram) Sum() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sum
}

// Entry returns a MetricEntry snapshot (value = observation count).
func (h *Histogram) Entry() MetricEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return MetricEntry{
		Name:      h.name,
		Type:      MetricHistogram,
		Help:      h.help,
		Value:     float64(h.count),
		Timestamp: time.Now(),
	}
}

// BucketCounts returns a snapshot of (upper-bound, cumulative-count) pairs
// plus sum and total count. Used by the Prometheus exporter.
func (h *Histogram) BucketCounts() (buckets []float64, counts []int64, sum float64, count int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b := make([]float64, len(h.buckets))
	c := make([]int64, len(h.counts))
	copy(b, h.buckets)
	copy(c, h.counts)
	return b, c, h.sum, h.count
}

// -----------------------------------------------------------------------
// Registry
// -----------------------------------------------------------------------

// Registry holds all metrics. Safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
}

// NewRegistry creates an empty metric registry.
func NewRegistry() *Registry {
	return &Registry{
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
	}
}

// NewCounter registers and returns a counter. Re-registering a name
// returns the existing counter.
func (r *Registry) NewCounter(name, help string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.counters[name]; ok {
		return existing
	}
	c := &Counter{name: name, help: help}
	r.counters[name] = c
	return c
}

// NewGauge registers and returns a gauge. Re-registering a name returns
// the existing gauge.
func (r *Registry) NewGauge(name, help string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.gauges[name]; ok {
		return existing
	}
	g := &Gauge{name: name, help: help}
	r.gauges[name] = g
	return g
}

// NewHistogram registers and returns a histogram over the given bucket
// upper bounds. Re-registering a name returns the existing histogram.
func (r *Registry) NewHistogram(name, help string, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.histograms[name]; ok {
		return existing
	}
	sorted := make([]float64, len(buckets))
	copy(sorted, buckets)
	sort.Float64s(sorted)

	h := &Histogram{
		name:    name,
		help:    help,
		buckets: sorted,
		counts:  make([]int64, len(sorted)),
	}
	r.histograms[name] = h
	return h
}

// GetCounter returns a registered counter or nil.
func (r *Registry) GetCounter(name string) *Counter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counters[name]
}

// GetGauge returns a registered gauge or nil.
func (r *Registry) GetGauge(name string) *Gauge {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gauges[name]
}

// GetHistogram returns a registered histogram or nil.
func (r *Registry) GetHistogram(name string) *Histogram {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.histograms[name]
}

// AllMetrics returns a snapshot of every registered metric, counters then
// gauges then histograms, each group name-sorted.
func (r *Registry) AllMetrics() []MetricEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]MetricEntry, 0, len(r.counters)+len(r.gauges)+len(r.histograms))

	for _, name := range sortedKeys(r.counters) {
		entries = append(entries, r.counters[name].Entry())
	}
	for _, name := range sortedKeys(r.gauges) {
		entries = append(entries, r.gauges[name].Entry())
	}
	for _, name := range sortedKeys(r.histograms) {
		entries = append(entries, r.histograms[name].Entry())
	}

	return entries
}

// -----------------------------------------------------------------------
// Kestrel metric set
// -----------------------------------------------------------------------

// Metric names, shared between the registry and the code that increments
// them.
const (
	MetricPostsIngested   = "kestrel_posts_ingested_total"
	MetricSignalsDetected = "kestrel_signals_detected_total"
	MetricAudits          = "kestrel_audits_total"
	MetricAuditsUnsafe    = "kestrel_audits_unsafe_total"
	MetricTradesOpened    = "kestrel_trades_opened_total"
	MetricTradesClosed    = "kestrel_trades_closed_total"
	MetricTradesRefused   = "kestrel_trades_refused_total"
	MetricNotifications   = "kestrel_notifications_total"

	MetricBalanceUSD    = "kestrel_balance_usd"
	MetricOpenPositions = "kestrel_open_positions"
	MetricDailyPnLUSD   = "kestrel_daily_pnl_usd"
	MetricWindowSignals = "kestrel_signal_window_size"

	MetricAuditLatencyMs  = "kestrel_audit_latency_ms"
	MetricHypeScore       = "kestrel_hype_score"
	MetricPipelineCycleMs = "kestrel_pipeline_cycle_ms"
)

// DefaultLatencyBuckets for latency histograms, in milliseconds.
var DefaultLatencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// HypeScoreBuckets covers the practical score range; the floor for a
// score-only signal sits at 70.
var HypeScoreBuckets = []float64{10, 25, 50, 70, 90, 110, 130, 150}

// KestrelMetrics builds the registry with the full engine metric set.
func KestrelMetrics() *Registry {
	r := NewRegistry()

	r.NewCounter(MetricPostsIngested, "Raw posts ingested from feed sources")
	r.NewCounter(MetricSignalsDetected, "Hype signals emitted by the detector")
	r.NewCounter(MetricAudits, "Contract audits performed")
	r.NewCounter(MetricAuditsUnsafe, "Audits that judged the token unsafe")
	r.NewCounter(MetricTradesOpened, "Positions opened")
	r.NewCounter(MetricTradesClosed, "Positions closed")
	r.NewCounter(MetricTradesRefused, "Buys refused by the risk gates")
	r.NewCounter(MetricNotifications, "Notifications dispatched")

	r.NewGauge(MetricBalanceUSD, "Current paper balance in USD")
	r.NewGauge(MetricOpenPositions, "Open position count")
	r.NewGauge(MetricDailyPnLUSD, "Realized P&L today in USD")
	r.NewGauge(MetricWindowSignals, "Signals currently in the rolling window")

	r.NewHistogram(MetricAuditLatencyMs, "Contract audit latency in milliseconds", DefaultLatencyBuckets)
	r.NewHistogram(MetricHypeScore, "Hype score distribution of emitted signals", HypeScoreBuckets)
	r.NewHistogram(MetricPipelineCycleMs, "Signal loop cycle time in milliseconds", DefaultLatencyBuckets)

	return r
}

// -----------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
