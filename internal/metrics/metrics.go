// Package metrics holds the Prometheus collectors of the sync pipeline.
//
// Each Collector owns a private registry, so tests and multiple sessions in
// one process never collide on registration.
package metrics

import (
	"net/http"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Namespace prefixes every metric name.
const Namespace = "duelsync"

// Collector holds all metrics of one session.
type Collector struct {
	registry *prometheus.Registry

	// Fetcher
	PagesFetched  *prometheus.CounterVec // by purpose
	FetchFailures *prometheus.CounterVec // by purpose
	Truncations   *prometheus.CounterVec // by purpose

	// Merge pipeline
	EntitiesMerged    *prometheus.CounterVec // by kind (set, update)
	MalformedDropped  *prometheus.CounterVec // by model
	StaleBatches      prometheus.Counter
	StoreEntities     prometheus.Gauge
	LiveSubscriptions prometheus.Gauge

	// Dedup
	DedupSkipped *prometheus.CounterVec // by purpose
}

// New creates a collector with its own registry.
func New() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		PagesFetched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "pages_fetched_total",
				Help:      "Total number of indexer pages fetched",
			},
			[]string{"purpose"},
		),
		FetchFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "fetch_failures_total",
				Help:      "Total number of aborted fetches",
			},
			[]string{"purpose"},
		),
		Truncations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "fetch_truncated_total",
				Help:      "Total number of fetches that reached their limit",
			},
			[]string{"purpose"},
		),
		EntitiesMerged: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "entities_merged_total",
				Help:      "Total number of entities merged into the store",
			},
			[]string{"kind"},
		),
		MalformedDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "malformed_models_dropped_total",
				Help:      "Total number of malformed models dropped before merge",
			},
			[]string{"model"},
		),
		StaleBatches: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "stale_batches_discarded_total",
				Help:      "Total number of batches discarded because their query was superseded",
			},
		),
		StoreEntities: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "store_entities",
				Help:      "Number of entities in the cache",
			},
		),
		LiveSubscriptions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "live_subscriptions",
				Help:      "Number of open indexer subscriptions",
			},
		),
		DedupSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "dedup_skipped_ids_total",
				Help:      "Total number of requested ids skipped because they were already fetched",
			},
			[]string{"purpose"},
		),
	}

	registry.MustRegister(
		c.PagesFetched,
		c.FetchFailures,
		c.Truncations,
		c.EntitiesMerged,
		c.MalformedDropped,
		c.StaleBatches,
		c.StoreEntities,
		c.LiveSubscriptions,
		c.DedupSkipped,
	)

	return c
}

// Registry exposes the private registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Sample is one metric value with its labels flattened into the name,
// e.g. "duelsync_pages_fetched_total{purpose=duels}".
type Sample struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Snapshot gathers every counter and gauge, sorted by name.
func (c *Collector) Snapshot() ([]Sample, error) {
	families, err := c.registry.Gather()
	if err != nil {
		return nil, err
	}

	var out []Sample
	for _, fam := range families {
		for _, m := range fam.GetMetric() {
			out = append(out, Sample{
				Name:  sampleName(fam.GetName(), m.GetLabel()),
				Value: sampleValue(fam.GetType(), m),
			})
		}
	}
	slices.SortFunc(out, func(a, b Sample) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return out, nil
}

// Value returns the sample named name, or 0 when it was never observed.
func (c *Collector) Value(name string) float64 {
	samples, err := c.Snapshot()
	if err != nil {
		return 0
	}
	for _, s := range samples {
		if s.Name == name {
			return s.Value
		}
	}
	return 0
}

func sampleName(name string, labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return name
	}
	out := name + "{"
	for i, l := range labels {
		if i > 0 {
			out += ","
		}
		out += l.GetName() + "=" + l.GetValue()
	}
	return out + "}"
}

func sampleValue(t dto.MetricType, m *dto.Metric) float64 {
	switch t {
	case dto.MetricType_COUNTER:
		return m.GetCounter().GetValue()
	case dto.MetricType_GAUGE:
		return m.GetGauge().GetValue()
	}
	return 0
}
