// Package promcollector exports arenamap table statistics as Prometheus
// metrics.
//
//	c := promcollector.New("myapp", "sessions", table)
//	prometheus.MustRegister(c)
//
// Every scrape takes a fresh Stats snapshot. Tables are not safe for
// concurrent use, so the caller must make sure scrapes do not race with
// mutations (for example by holding the lock that guards the table inside
// StatsSource.Stats).
package promcollector

import (
	"github.com/homier/arenamap"
	"github.com/prometheus/client_golang/prometheus"
)

// StatsSource is satisfied by *arenamap.Table, *arenamap.Map and *arenamap.Set.
type StatsSource interface {
	Stats() arenamap.Stats
}

type Collector struct {
	src StatsSource

	size       *prometheus.Desc
	capacity   *prometheus.Desc
	mapped     *prometheus.Desc
	tombstones *prometheus.Desc
	loadFactor *prometheus.Desc
	grows      *prometheus.Desc
	shrinks    *prometheus.Desc
	rebuilds   *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// New returns a collector for src. name ends up in a constant "table" label.
func New(namespace, name string, src StatsSource) *Collector {
	labels := prometheus.Labels{"table": name}
	desc := func(metric, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "arenamap", metric), help, nil, labels)
	}

	return &Collector{
		src:        src,
		size:       desc("entries", "Number of live entries."),
		capacity:   desc("capacity_slots", "Number of slots in the slot array."),
		mapped:     desc("mapped_cells", "Arena cells consumed since the last rebuild."),
		tombstones: desc("tombstones", "Removed entries still holding an arena cell."),
		loadFactor: desc("load_factor", "Mapped cells divided by capacity."),
		grows:      desc("grows_total", "Rebuilds that increased the capacity."),
		shrinks:    desc("shrinks_total", "Rebuilds that decreased the capacity."),
		rebuilds:   desc("rebuilds_total", "All rebuilds, including same size ones."),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.size
	ch <- c.capacity
	ch <- c.mapped
	ch <- c.tombstones
	ch <- c.loadFactor
	ch <- c.grows
	ch <- c.shrinks
	ch <- c.rebuilds
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()

	ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(s.Size))
	ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(s.Capacity))
	ch <- prometheus.MustNewConstMetric(c.mapped, prometheus.GaugeValue, float64(s.Mapped))
	ch <- prometheus.MustNewConstMetric(c.tombstones, prometheus.GaugeValue, float64(s.Tombstones))
	ch <- prometheus.MustNewConstMetric(c.loadFactor, prometheus.GaugeValue, float64(s.LoadFactor))
	ch <- prometheus.MustNewConstMetric(c.grows, prometheus.CounterValue, float64(s.Grows))
	ch <- prometheus.MustNewConstMetric(c.shrinks, prometheus.CounterValue, float64(s.Shrinks))
	ch <- prometheus.MustNewConstMetric(c.rebuilds, prometheus.CounterValue, float64(s.Rebuilds))
}
