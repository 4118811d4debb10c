// Package prometheus exposes application metrics through the Prometheus
// client library. Dotted metric names become underscore separated and are
// prefixed with the service name; counters gain the conventional _total suffix.
package prometheus

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"reportfetcher/shared/application/ports"
)

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_]+`)

// Buckets for *_bytes histograms: 1KB, 10KB, 100KB, 1MB, 10MB, 100MB, 1GB
var byteBuckets = []float64{1024, 10240, 102400, 1048576, 10485760, 104857600, 1073741824}

// Buckets for *_ms histograms
var millisecondBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 120000, 300000}

// registry owns the lazily created collectors shared by every scoped Metrics
type registry struct {
	mu         sync.Mutex
	registerer prometheus.Registerer
	prefix     string
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec
	labels     map[string][]string
}

// Metrics implements ports.Metrics. Each metric name is registered on first
// use with the label set seen at that moment; later observations fill missing
// labels with "" and drop unknown ones so the series stays consistent.
type Metrics struct {
	reg  *registry
	tags map[string]string
}

// New creates Prometheus metrics registered with registerer. Passing nil uses
// the default registerer.
func New(serviceName string, registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		reg: &registry{
			registerer: registerer,
			prefix:     sanitizeName(serviceName),
			counters:   make(map[string]*prometheus.CounterVec),
			histograms: make(map[string]*prometheus.HistogramVec),
			gauges:     make(map[string]*prometheus.GaugeVec),
			labels:     make(map[string][]string),
		},
		tags: make(map[string]string),
	}
}

// IncrementCounter increments a counter metric
func (m *Metrics) IncrementCounter(name string, tags map[string]string) {
	all := m.mergeTags(tags)
	vec, labels := m.reg.counter(m.fullName(name)+"_total", all)
	vec.WithLabelValues(labelValues(labels, all)...).Inc()
}

// RecordHistogram records a value in a histogram
func (m *Metrics) RecordHistogram(name string, value float64, tags map[string]string) {
	all := m.mergeTags(tags)
	vec, labels := m.reg.histogram(m.fullName(name), all)
	vec.WithLabelValues(labelValues(labels, all)...).Observe(value)
}

// RecordGauge records a point-in-time measurement
func (m *Metrics) RecordGauge(name string, value float64, tags map[string]string) {
	all := m.mergeTags(tags)
	vec, labels := m.reg.gauge(m.fullName(name), all)
	vec.WithLabelValues(labelValues(labels, all)...).Set(value)
}

// WithTags returns a new Metrics sharing the same collectors
func (m *Metrics) WithTags(tags map[string]string) ports.Metrics {
	return &Metrics{
		reg:  m.reg,
		tags: m.mergeTags(tags),
	}
}

// CounterVec returns the collector behind a counter, nil if never used
func (m *Metrics) CounterVec(name string) *prometheus.CounterVec {
	m.reg.mu.Lock()
	defer m.reg.mu.Unlock()
	return m.reg.counters[m.fullName(name)+"_total"]
}

// HistogramVec returns the collector behind a histogram, nil if never used
func (m *Metrics) HistogramVec(name string) *prometheus.HistogramVec {
	m.reg.mu.Lock()
	defer m.reg.mu.Unlock()
	return m.reg.histograms[m.fullName(name)]
}

// GaugeVec returns the collector behind a gauge, nil if never used
func (m *Metrics) GaugeVec(name string) *prometheus.GaugeVec {
	m.reg.mu.Lock()
	defer m.reg.mu.Unlock()
	return m.reg.gauges[m.fullName(name)]
}

func (m *Metrics) fullName(name string) string {
	if m.reg.prefix == "" {
		return sanitizeName(name)
	}
	return m.reg.prefix + "_" + sanitizeName(name)
}

func (m *Metrics) mergeTags(tags map[string]string) map[string]string {
	merged := make(map[string]string, len(m.tags)+len(tags))
	for k, v := range m.tags {
		merged[k] = v
	}
	for k, v := range tags {
		merged[sanitizeName(k)] = v
	}
	return merged
}

func (r *registry) counter(name string, tags map[string]string) (*prometheus.CounterVec, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if vec, ok := r.counters[name]; ok {
		return vec, r.labels[name]
	}

	labels := labelNames(tags)
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: name,
		Help: "Counter " + name,
	}, labels)
	vec = registerOrExisting(r.registerer, vec).(*prometheus.CounterVec)

	r.counters[name] = vec
	r.labels[name] = labels
	return vec, labels
}

func (r *registry) histogram(name string, tags map[string]string) (*prometheus.HistogramVec, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if vec, ok := r.histograms[name]; ok {
		return vec, r.labels[name]
	}

	buckets := prometheus.DefBuckets
	switch {
	case strings.HasSuffix(name, "_bytes"):
		buckets = byteBuckets
	case strings.HasSuffix(name, "_ms"):
		buckets = millisecondBuckets
	}

	labels := labelNames(tags)
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    name,
		Help:    "Histogram " + name,
		Buckets: buckets,
	}, labels)
	vec = registerOrExisting(r.registerer, vec).(*prometheus.HistogramVec)

	r.histograms[name] = vec
	r.labels[name] = labels
	return vec, labels
}

func (r *registry) gauge(name string, tags map[string]string) (*prometheus.GaugeVec, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if vec, ok := r.gauges[name]; ok {
		return vec, r.labels[name]
	}

	labels := labelNames(tags)
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: name,
		Help: "Gauge " + name,
	}, labels)
	vec = registerOrExisting(r.registerer, vec).(*prometheus.GaugeVec)

	r.gauges[name] = vec
	r.labels[name] = labels
	return vec, labels
}

// registerOrExisting registers c, returning the already registered collector
// when an identical one exists
func registerOrExisting(registerer prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := registerer.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}

func labelNames(tags map[string]string) []string {
	names := make([]string, 0, len(tags))
	for k := range tags {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func labelValues(names []string, tags map[string]string) []string {
	values := make([]string, len(names))
	for i, name := range names {
		values[i] = tags[name]
	}
	return values
}

func sanitizeName(name string) string {
	return strings.Trim(invalidNameChars.ReplaceAllString(strings.ToLower(name), "_"), "_")
}
