// Package monitoring samples process health and exposes request metrics
// independent of the prediction path.
package monitoring

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// MetricType classifies a recorded metric.
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

// Metric is one recorded sample.
type Metric struct {
	Name      string            `json:"name"`
	Type      MetricType        `json:"type"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Help      string            `json:"help,omitempty"`
}

// Collector keeps a bounded history per metric name and samples process
// resource usage on a timer.
type Collector struct {
	metrics     map[string][]*Metric
	metricsLock sync.RWMutex

	startTime time.Time
	stop      chan struct{}
	stopOnce  sync.Once
}

const historyLimit = 1000

// NewCollector starts the resource sampling loop.
func NewCollector(sampleInterval time.Duration) *Collector {
	if sampleInterval <= 0 {
		sampleInterval = 10 * time.Second
	}
	collector := &Collector{
		metrics:   make(map[string][]*Metric),
		startTime: time.Now(),
		stop:      make(chan struct{}),
	}
	go collector.sampleLoop(sampleInterval)
	return collector
}

// Record appends a sample, trimming old history.
func (c *Collector) Record(metric *Metric) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()

	metric.Timestamp = time.Now()
	c.metrics[metric.Name] = append(c.metrics[metric.Name], metric)
	if len(c.metrics[metric.Name]) > historyLimit {
		c.metrics[metric.Name] = c.metrics[metric.Name][100:]
	}
}

// IncrCounter adds to a counter series.
func (c *Collector) IncrCounter(name string, value float64, labels map[string]string) {
	c.Record(&Metric{Name: name, Type: MetricTypeCounter, Value: value, Labels: labels})
}

// SetGauge records the current value of a gauge.
func (c *Collector) SetGauge(name string, value float64, labels map[string]string) {
	c.Record(&Metric{Name: name, Type: MetricTypeGauge, Value: value, Labels: labels})
}

// RecordHistogram records a raw observation.
func (c *Collector) RecordHistogram(name string, value float64, labels map[string]string) {
	c.Record(&Metric{Name: name, Type: MetricTypeHistogram, Value: value, Labels: labels})
}

// Latest returns the most recent sample for a name.
func (c *Collector) Latest(name string) (*Metric, bool) {
	c.metricsLock.RLock()
	defer c.metricsLock.RUnlock()
	series, ok := c.metrics[name]
	if !ok || len(series) == 0 {
		return nil, false
	}
	metric := *series[len(series)-1]
	return &metric, true
}

// Summary aggregates a series: count, min, max, average, latest.
func (c *Collector) Summary(name string) (map[string]interface{}, error) {
	c.metricsLock.RLock()
	defer c.metricsLock.RUnlock()

	series, ok := c.metrics[name]
	if !ok {
		return nil, fmt.Errorf("metric %s not found", name)
	}
	if len(series) == 0 {
		return map[string]interface{}{"count": 0}, nil
	}

	min, max, sum := series[0].Value, series[0].Value, 0.0
	for _, m := range series {
		sum += m.Value
		if m.Value < min {
			min = m.Value
		}
		if m.Value > max {
			max = m.Value
		}
	}
	return map[string]interface{}{
		"name":    name,
		"count":   len(series),
		"latest":  series[len(series)-1].Value,
		"min":     min,
		"max":     max,
		"average": sum / float64(len(series)),
	}, nil
}

// Uptime returns time since collector start.
func (c *Collector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// Stop ends the sampling loop.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Collector) sampleLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sampleResources()
		}
	}
}

func (c *Collector) sampleResources() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	c.SetGauge("memory_heap_alloc_bytes", float64(m.HeapAlloc), nil)
	c.SetGauge("memory_heap_sys_bytes", float64(m.HeapSys), nil)
	c.IncrCounter("memory_gc_total", float64(m.NumGC), nil)
	c.SetGauge("system_goroutines", float64(runtime.NumGoroutine()), nil)
	c.SetGauge("process_uptime_seconds", time.Since(c.startTime).Seconds(), nil)
}

// ExportPrometheus renders the latest value of every series in Prometheus
// text exposition format.
func (c *Collector) ExportPrometheus() string {
	c.metricsLock.RLock()
	defer c.metricsLock.RUnlock()

	names := make([]string, 0, len(c.metrics))
	for name := range c.metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		series := c.metrics[name]
		if len(series) == 0 {
			continue
		}
		latest := series[len(series)-1]
		if latest.Help != "" {
			fmt.Fprintf(&b, "# HELP %s %s\n", name, latest.Help)
		}
		fmt.Fprintf(&b, "# TYPE %s %s\n", name, latest.Type)
		if len(latest.Labels) == 0 {
			fmt.Fprintf(&b, "%s %g\n", name, latest.Value)
			continue
		}
		keys := make([]string, 0, len(latest.Labels))
		for k := range latest.Labels {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, fmt.Sprintf("%s=%q", k, latest.Labels[k]))
		}
		fmt.Fprintf(&b, "%s{%s} %g\n", name, strings.Join(pairs, ","), latest.Value)
	}
	return b.String()
}
