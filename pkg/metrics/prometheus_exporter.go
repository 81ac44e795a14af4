package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusExporter bridges the node's internal Registry to
// prometheus/client_golang so metrics are scraped through the standard
// exposition handler instead of a hand-rolled formatter.

// PrometheusConfig configures the Prometheus exporter.
type PrometheusConfig struct {
	// Namespace is an optional prefix prepended to all metric names
	// (e.g. "gaiakv" produces "gaiakv_looim_reads_total").
	Namespace string
	// EnableRuntime controls whether the Go runtime and process collectors
	// (goroutines, memory, GC, fds, rss) are registered alongside the
	// internal registry's metrics.
	EnableRuntime bool
	// Path is the HTTP path to serve metrics on (default "/metrics").
	Path string
}

// DefaultPrometheusConfig returns a config with sensible defaults.
func DefaultPrometheusConfig() PrometheusConfig {
	return PrometheusConfig{
		Namespace:     "gaiakv",
		EnableRuntime: true,
		Path:          "/metrics",
	}
}

// PrometheusExporter owns a client_golang prometheus.Registry fed by a
// collectorAdapter that snapshots the node's internal Registry on every
// scrape, plus any custom collectors registered by subsystems.
type PrometheusExporter struct {
	config  PrometheusConfig
	promReg *prometheus.Registry
	adapter *collectorAdapter
}

// NewPrometheusExporter creates a new exporter that reads from the given registry.
func NewPrometheusExporter(registry *Registry, config PrometheusConfig) *PrometheusExporter {
	if config.Path == "" {
		config.Path = "/metrics"
	}
	promReg := prometheus.NewRegistry()
	adapter := &collectorAdapter{registry: registry, namespace: config.Namespace}
	promReg.MustRegister(adapter)

	if config.EnableRuntime {
		promReg.MustRegister(collectors.NewGoCollector())
		promReg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{
			Namespace: config.Namespace,
		}))
	}

	return &PrometheusExporter{config: config, promReg: promReg, adapter: adapter}
}

// RegisterCollector adds a prometheus.Collector under the exporter's
// registry, for subsystems (wal, looim, splitter) that want to expose
// native Prometheus metric types (e.g. a Summary for RPC latency) instead
// of going through the internal Registry.
func (pe *PrometheusExporter) RegisterCollector(c prometheus.Collector) error {
	return pe.promReg.Register(c)
}

// Handler returns an http.Handler that serves the /metrics endpoint using
// the standard Prometheus exposition format via promhttp.
func (pe *PrometheusExporter) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(pe.config.Path, promhttp.HandlerFor(pe.promReg, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	}))
	return mux
}

// collectorAdapter implements prometheus.Collector by snapshotting the
// internal Registry's counters, gauges, and histograms on every Collect
// call — the internal Registry stays the single source of truth that
// subsystems already instrument against (pkg/metrics/registry.go), while
// client_golang owns exposition, label escaping, and content negotiation.
type collectorAdapter struct {
	registry  *Registry
	namespace string
}

func (a *collectorAdapter) Describe(ch chan<- *prometheus.Desc) {
	// Metric names are data-dependent (per-coid, per-module counters), so
	// this collector is unchecked; Describe intentionally sends nothing.
}

func (a *collectorAdapter) Collect(ch chan<- prometheus.Metric) {
	a.registry.mu.RLock()
	defer a.registry.mu.RUnlock()

	for name, c := range a.registry.counters {
		desc := prometheus.NewDesc(a.promName(name), name+" (counter)", nil, nil)
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(c.Value()))
	}
	for name, g := range a.registry.gauges {
		desc := prometheus.NewDesc(a.promName(name), name+" (gauge)", nil, nil)
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(g.Value()))
	}
	for name, h := range a.registry.histograms {
		desc := prometheus.NewDesc(a.promName(name), name+" (summary)", nil, nil)
		ch <- prometheus.MustNewConstSummary(desc, uint64(h.Count()), h.Sum(), nil)
	}
}

func (a *collectorAdapter) promName(name string) string {
	sanitized := sanitizeMetricName(name)
	if a.namespace != "" {
		return a.namespace + "_" + sanitized
	}
	return sanitized
}

func sanitizeMetricName(name string) string {
	b := []byte(name)
	for i, c := range b {
		if c == '.' || c == '-' {
			b[i] = '_'
		}
	}
	return string(b)
}
