package stdout

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"reportfetcher/shared/application/ports"
)

// MetricsOptions configures stdout metrics
type MetricsOptions struct {
	JSON   bool
	Output io.Writer // defaults to os.Stdout
	Quiet  bool      // keep values in memory without printing
}

// store is shared by every Metrics derived through WithTags
type store struct {
	mu         sync.RWMutex
	counters   map[string]int64
	histograms map[string][]float64
	gauges     map[string]float64
}

// Metrics implements ports.Metrics by printing each observation and
// keeping values in memory for inspection
type Metrics struct {
	tags   map[string]string
	logger *log.Logger
	json   bool
	quiet  bool
	store  *store
}

// NewMetrics creates a new stdout metrics instance
func NewMetrics(opts MetricsOptions) *Metrics {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	return &Metrics{
		tags:   make(map[string]string),
		logger: log.New(out, "", 0),
		json:   opts.JSON,
		quiet:  opts.Quiet,
		store: &store{
			counters:   make(map[string]int64),
			histograms: make(map[string][]float64),
			gauges:     make(map[string]float64),
		},
	}
}

// IncrementCounter increments a counter metric
func (m *Metrics) IncrementCounter(name string, tags map[string]string) {
	m.store.mu.Lock()
	key := m.buildKey(name, tags)
	m.store.counters[key]++
	value := m.store.counters[key]
	m.store.mu.Unlock()

	m.logMetric("COUNTER", name, float64(value), tags, nil)
}

// RecordHistogram records a histogram value
func (m *Metrics) RecordHistogram(name string, value float64, tags map[string]string) {
	m.store.mu.Lock()
	key := m.buildKey(name, tags)
	m.store.histograms[key] = append(m.store.histograms[key], value)
	stats := calculateStats(m.store.histograms[key])
	m.store.mu.Unlock()

	m.logMetric("HISTOGRAM", name, value, tags, &stats)
}

// RecordGauge records a gauge value
func (m *Metrics) RecordGauge(name string, value float64, tags map[string]string) {
	m.store.mu.Lock()
	m.store.gauges[m.buildKey(name, tags)] = value
	m.store.mu.Unlock()

	m.logMetric("GAUGE", name, value, tags, nil)
}

// WithTags returns a new Metrics instance with additional tags
func (m *Metrics) WithTags(tags map[string]string) ports.Metrics {
	return &Metrics{
		tags:   m.combineTags(tags),
		logger: m.logger,
		json:   m.json,
		quiet:  m.quiet,
		store:  m.store, // Share the same storage
	}
}

// GetCounter returns the current value of a counter (useful for testing).
// Tags must include any tags bound through WithTags.
func (m *Metrics) GetCounter(name string, tags map[string]string) int64 {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()

	return m.store.counters[m.buildKey(name, tags)]
}

// CounterTotal sums a counter across every tag combination
func (m *Metrics) CounterTotal(name string) int64 {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()

	var total int64
	for key, v := range m.store.counters {
		if key == name || strings.HasPrefix(key, name+"{") {
			total += v
		}
	}
	return total
}

// GetHistogram returns all values recorded for a histogram (useful for testing)
func (m *Metrics) GetHistogram(name string, tags map[string]string) []float64 {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()

	values := m.store.histograms[m.buildKey(name, tags)]

	// Return a copy to avoid race conditions
	result := make([]float64, len(values))
	copy(result, values)
	return result
}

// GetGauge returns the current value of a gauge (useful for testing)
func (m *Metrics) GetGauge(name string, tags map[string]string) float64 {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()

	return m.store.gauges[m.buildKey(name, tags)]
}

// Reset clears all metrics (useful for testing)
func (m *Metrics) Reset() {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	m.store.counters = make(map[string]int64)
	m.store.histograms = make(map[string][]float64)
	m.store.gauges = make(map[string]float64)
}

// buildKey creates a unique key for a metric with tags
func (m *Metrics) buildKey(name string, tags map[string]string) string {
	tagStr := formatTags(m.combineTags(tags), ":", ",")
	if tagStr != "" {
		return fmt.Sprintf("%s{%s}", name, tagStr)
	}
	return name
}

// logMetric prints a single observation
func (m *Metrics) logMetric(metricType string, name string, value float64, tags map[string]string, stats *histogramStats) {
	if m.quiet {
		return
	}

	allTags := m.combineTags(tags)
	timestamp := time.Now().UTC().Format(time.RFC3339)

	if m.json {
		entry := map[string]interface{}{
			"timestamp": timestamp,
			"type":      "metric",
			"metric":    metricType,
			"name":      name,
			"value":     value,
			"tags":      allTags,
		}
		if stats != nil {
			entry["stats"] = map[string]interface{}{
				"count": stats.count,
				"min":   stats.min,
				"max":   stats.max,
				"avg":   stats.avg,
			}
		}
		jsonBytes, err := json.Marshal(entry)
		if err != nil {
			m.logger.Printf("Failed to marshal metric: %v", err)
			return
		}
		m.logger.Println(string(jsonBytes))
		return
	}

	tagStr := formatTags(allTags, "=", " ")
	if tagStr != "" {
		tagStr = " " + tagStr
	}

	if stats != nil {
		m.logger.Printf("%s [METRIC] %s %s=%.2f count=%d min=%.2f max=%.2f avg=%.2f%s",
			timestamp, metricType, name, value, stats.count, stats.min, stats.max, stats.avg, tagStr)
		return
	}

	m.logger.Printf("%s [METRIC] %s %s=%.2f%s", timestamp, metricType, name, value, tagStr)
}

// combineTags merges default tags with provided tags
func (m *Metrics) combineTags(tags map[string]string) map[string]string {
	allTags := make(map[string]string, len(m.tags)+len(tags))
	for k, v := range m.tags {
		allTags[k] = v
	}
	for k, v := range tags {
		allTags[k] = v
	}
	return allTags
}

// formatTags renders tags sorted by key for consistent output
func formatTags(tags map[string]string, kvSep, pairSep string) string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+kvSep+tags[k])
	}
	return strings.Join(pairs, pairSep)
}

// histogramStats holds basic statistics for histogram values
type histogramStats struct {
	count int
	min   float64
	max   float64
	avg   float64
}

// calculateStats computes basic statistics for histogram values
func calculateStats(values []float64) histogramStats {
	if len(values) == 0 {
		return histogramStats{}
	}

	stats := histogramStats{
		count: len(values),
		min:   values[0],
		max:   values[0],
	}

	sum := 0.0
	for _, v := range values {
		sum += v
		if v < stats.min {
			stats.min = v
		}
		if v > stats.max {
			stats.max = v
		}
	}

	stats.avg = sum / float64(len(values))
	return stats
}
