// Package observability exports the cache, batch and circuit breaker
// signals of larder as Prometheus metrics.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/acksell/larder/cache"
	"github.com/acksell/larder/dynamodb/ddbsdk"
)

// Collector holds the Prometheus metrics of one larder process. It
// implements both ddbsdk.Metrics and cache.Metrics.
type Collector struct {
	registry *prometheus.Registry

	// Cache metrics
	CacheHits      *prometheus.CounterVec
	CacheMisses    *prometheus.CounterVec
	CacheEvictions *prometheus.CounterVec

	// Store metrics
	BatchItemsTotal *prometheus.CounterVec
	BatchRetries    *prometheus.CounterVec
	BreakerChanges  *prometheus.CounterVec
	BreakerState    *prometheus.GaugeVec
}

var (
	_ ddbsdk.Metrics = (*Collector)(nil)
	_ cache.Metrics  = (*Collector)(nil)
)

// NewCollector creates the metrics under namespace on a registry of their
// own.
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of cache hits",
			},
			[]string{"namespace"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of cache misses",
			},
			[]string{"namespace"},
		),
		CacheEvictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_evictions_total",
				Help:      "Total number of cache entries removed, by reason",
			},
			[]string{"namespace", "reason"},
		),
		BatchItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batch_items_total",
				Help:      "Total number of batch items by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		BatchRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batch_retries_total",
				Help:      "Total number of batch chunk retries",
			},
			[]string{"operation"},
		),
		BreakerChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "breaker_state_changes_total",
				Help:      "Total number of circuit breaker state changes",
			},
			[]string{"name", "from", "to"},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "breaker_open",
				Help:      "1 while the circuit breaker is open, 0.5 while half-open, else 0",
			},
			[]string{"name"},
		),
	}
	c.registry.MustRegister(
		c.CacheHits,
		c.CacheMisses,
		c.CacheEvictions,
		c.BatchItemsTotal,
		c.BatchRetries,
		c.BreakerChanges,
		c.BreakerState,
	)
	return c
}

// Registry returns the registry holding every metric of the collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) CacheHit(ns string) {
	c.CacheHits.WithLabelValues(ns).Inc()
}

func (c *Collector) CacheMiss(ns string) {
	c.CacheMisses.WithLabelValues(ns).Inc()
}

func (c *Collector) CacheEvict(ns, reason string, n int) {
	c.CacheEvictions.WithLabelValues(ns, reason).Add(float64(n))
}

func (c *Collector) BatchItems(op, outcome string, n int) {
	if n <= 0 {
		return
	}
	c.BatchItemsTotal.WithLabelValues(op, outcome).Add(float64(n))
}

func (c *Collector) BatchRetry(op string) {
	c.BatchRetries.WithLabelValues(op).Inc()
}

func (c *Collector) BreakerStateChange(name, from, to string) {
	c.BreakerChanges.WithLabelValues(name, from, to).Inc()
	var v float64
	switch to {
	case "open":
		v = 1
	case "half-open":
		v = 0.5
	}
	c.BreakerState.WithLabelValues(name).Set(v)
}

// WriteSummary writes every non-zero sample as "name{labels} value", one
// per line, sorted.
func (c *Collector) WriteSummary(w io.Writer) error {
	families, err := c.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var v float64
			switch {
			case m.GetCounter() != nil:
				v = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				v = m.GetGauge().GetValue()
			}
			if v == 0 {
				continue
			}
			labels := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", l.GetName(), l.GetValue()))
			}
			lines = append(lines, fmt.Sprintf("%s{%s} %g", mf.GetName(), strings.Join(labels, ","), v))
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}
