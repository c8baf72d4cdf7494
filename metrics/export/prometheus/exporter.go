package prometheus

import (
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	tabAuth "github.com/quillpress/tabAuth"
	"github.com/quillpress/tabAuth/metrics/export/internaldefs"
)

// MetricsSource is what the collector reads. *tabAuth.Manager satisfies it.
type MetricsSource interface {
	MetricsSnapshot() tabAuth.MetricsSnapshot
	AuditDropped() uint64
}

// Collector implements prom.Collector over a [MetricsSource].
type Collector struct {
	source       MetricsSource
	counters     []*prom.Desc
	histograms   []*prom.Desc
	auditDropped *prom.Desc
	bounds       []float64
}

var _ prom.Collector = (*Collector)(nil)

// NewCollector creates a [Collector]. constLabels are attached to every
// series, for example {"tab": tabID}.
func NewCollector(source MetricsSource, constLabels prom.Labels) *Collector {
	c := &Collector{
		source:     source,
		counters:   make([]*prom.Desc, len(internaldefs.CounterDefs)),
		histograms: make([]*prom.Desc, len(internaldefs.HistogramDefs)),
		bounds:     internaldefs.UpperBoundsSeconds(),
	}
	for i, def := range internaldefs.CounterDefs {
		c.counters[i] = prom.NewDesc(def.Name, def.Help, nil, constLabels)
	}
	for i, def := range internaldefs.HistogramDefs {
		c.histograms[i] = prom.NewDesc(def.Name, def.Help, nil, constLabels)
	}
	c.auditDropped = prom.NewDesc(internaldefs.AuditDroppedName, "Audit events dropped due to dispatcher backpressure.", nil, constLabels)
	return c
}

// Describe implements prom.Collector.
func (c *Collector) Describe(ch chan<- *prom.Desc) {
	for _, d := range c.counters {
		ch <- d
	}
	for _, d := range c.histograms {
		ch <- d
	}
	ch <- c.auditDropped
}

// Collect implements prom.Collector.
func (c *Collector) Collect(ch chan<- prom.Metric) {
	if c.source == nil {
		return
	}
	snapshot := c.source.MetricsSnapshot()

	for i, def := range internaldefs.CounterDefs {
		ch <- prom.MustNewConstMetric(c.counters[i], prom.CounterValue, float64(snapshot.Counters[def.ID]))
	}

	for i, def := range internaldefs.HistogramDefs {
		raw, ok := snapshot.Histograms[def.ID]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		buckets := make(map[float64]uint64, len(c.bounds))
		for j, le := range c.bounds {
			buckets[le] = cumulative[j]
		}
		count := cumulative[len(cumulative)-1]
		sum := snapshot.HistogramSums[def.ID].Seconds()
		ch <- prom.MustNewConstHistogram(c.histograms[i], count, sum, buckets)
	}

	ch <- prom.MustNewConstMetric(c.auditDropped, prom.CounterValue, float64(c.source.AuditDropped()))
}

// Handler returns a /metrics handler backed by a private registry holding
// only this collector.
func (c *Collector) Handler() (http.Handler, error) {
	reg := prom.NewRegistry()
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}
