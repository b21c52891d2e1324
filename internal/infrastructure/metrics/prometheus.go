package metrics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/alexisbeaulieu97/opgraph/internal/ports"
)

// DurationBuckets are the histogram buckets used for node durations.
var DurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// PrometheusCollector implements ports.MetricsCollector on a private
// Prometheus registry. Metric vectors are created on first use with the label
// names of that first call; later calls must use the same label names.
type PrometheusCollector struct {
	registry   *prometheus.Registry
	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	logger     ports.Logger
}

// NewPrometheusCollector returns a collector with the scheduler's metrics
// registered up front.
func NewPrometheusCollector(logger ports.Logger) *PrometheusCollector {
	c := &PrometheusCollector{
		registry:   prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		logger:     logger,
	}
	c.counterVec(ports.MetricNodeExecutions, []string{"opcode", "status"})
	c.counterVec(ports.MetricRuns, []string{"status"})
	c.histogramVec(ports.MetricNodeDuration, []string{"opcode"})
	c.gaugeVec(ports.MetricInFlight, nil)
	return c
}

// Registry exposes the underlying registry, e.g. for an HTTP handler.
func (c *PrometheusCollector) Registry() *prometheus.Registry {
	return c.registry
}

// IncCounter implements ports.MetricsCollector.
func (c *PrometheusCollector) IncCounter(ctx context.Context, name string, labels map[string]string) {
	vec := c.counterVec(name, labelNames(labels))
	counter, err := vec.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		c.warn(ctx, name, err)
		return
	}
	counter.Inc()
}

// SetGauge implements ports.MetricsCollector.
func (c *PrometheusCollector) SetGauge(ctx context.Context, name string, value float64, labels map[string]string) {
	vec := c.gaugeVec(name, labelNames(labels))
	gauge, err := vec.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		c.warn(ctx, name, err)
		return
	}
	gauge.Set(value)
}

// ObserveHistogram implements ports.MetricsCollector.
func (c *PrometheusCollector) ObserveHistogram(ctx context.Context, name string, value float64, labels map[string]string) {
	vec := c.histogramVec(name, labelNames(labels))
	observer, err := vec.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		c.warn(ctx, name, err)
		return
	}
	observer.Observe(value)
}

// Summary renders every gathered sample as "name{k=v,...} value", sorted.
// Histograms report their sample count and sum.
func (c *PrometheusCollector) Summary() ([]string, error) {
	families, err := c.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}
	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			pairs := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				pairs = append(pairs, lp.GetName()+"="+lp.GetValue())
			}
			name := mf.GetName()
			if len(pairs) > 0 {
				name += "{" + strings.Join(pairs, ",") + "}"
			}
			switch {
			case m.GetCounter() != nil:
				lines = append(lines, fmt.Sprintf("%s %g", name, m.GetCounter().GetValue()))
			case m.GetGauge() != nil:
				lines = append(lines, fmt.Sprintf("%s %g", name, m.GetGauge().GetValue()))
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				lines = append(lines, fmt.Sprintf("%s count=%d sum=%.3fs", name, h.GetSampleCount(), h.GetSampleSum()))
			}
		}
	}
	sort.Strings(lines)
	return lines, nil
}

func (c *PrometheusCollector) counterVec(name string, labels []string) *prometheus.CounterVec {
	c.mu.Lock()
	defer c.mu.Unlock()
	if vec, ok := c.counters[name]; ok {
		return vec
	}
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help(name)}, labels)
	c.counters[name] = vec
	c.registry.MustRegister(vec)
	return vec
}

func (c *PrometheusCollector) gaugeVec(name string, labels []string) *prometheus.GaugeVec {
	c.mu.Lock()
	defer c.mu.Unlock()
	if vec, ok := c.gauges[name]; ok {
		return vec
	}
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help(name)}, labels)
	c.gauges[name] = vec
	c.registry.MustRegister(vec)
	return vec
}

func (c *PrometheusCollector) histogramVec(name string, labels []string) *prometheus.HistogramVec {
	c.mu.Lock()
	defer c.mu.Unlock()
	if vec, ok := c.histograms[name]; ok {
		return vec
	}
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: help(name), Buckets: DurationBuckets}, labels)
	c.histograms[name] = vec
	c.registry.MustRegister(vec)
	return vec
}

func (c *PrometheusCollector) warn(ctx context.Context, name string, err error) {
	if c.logger != nil {
		c.logger.Warn(ctx, "metric rejected", "metric", name, "error", err)
	}
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func help(name string) string {
	switch name {
	case ports.MetricNodeExecutions:
		return "Finished node executions by opcode and status."
	case ports.MetricNodeDuration:
		return "Node execution time in seconds."
	case ports.MetricInFlight:
		return "Dispatched tasks that have not completed."
	case ports.MetricRuns:
		return "Finished runs by status."
	default:
		return strings.ReplaceAll(name, "_", " ")
	}
}

var _ ports.MetricsCollector = (*PrometheusCollector)(nil)
