package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"factorygrid.ai/internal/sim/factory"
)

const (
	namespace = "factorygrid"
	subsystem = "engine"
)

// Collector exports tick, production and transport counters for one engine.
type Collector struct {
	registry *prometheus.Registry

	tickDuration  prometheus.Histogram
	ticksTotal    prometheus.Counter
	ticksDropped  prometheus.CounterFunc
	cyclesTotal   *prometheus.CounterVec
	packagesTotal *prometheus.CounterVec
	cells         prometheus.Gauge
	inFlight      prometheus.Gauge
	editsTotal    *prometheus.CounterVec
	observers     prometheus.Gauge
}

// Sources are polled at scrape time. Nil fields report zero.
type Sources struct {
	DroppedTicks func() uint64
	IndexDrops   func() (ticks, audits uint64)
}

// New registers the collector on a fresh registry.
func New(src Sources) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tick_duration_seconds",
			Help:      "Wall time spent inside one executed tick",
			Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
		ticksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "ticks_total",
			Help:      "Total number of executed ticks",
		}),
		cyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "production_cycles_total",
			Help:      "Production cycles completed by component kind",
		}, []string{"kind"}),
		packagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packages_total",
			Help:      "Package transitions by outcome (exported, handed_off, delivered, discarded, fell_off)",
		}, []string{"outcome"}),
		cells: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cells",
			Help:      "Occupied grid cells",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packages_in_flight",
			Help:      "Packages held by conveyors",
		}),
		editsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "observer",
			Name:      "edits_total",
			Help:      "Grid edits requested by observers, by action and result code",
		}, []string{"action", "code"}),
		observers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "observer",
			Name:      "sessions",
			Help:      "Connected observer sessions",
		}),
	}
	if src.DroppedTicks == nil {
		src.DroppedTicks = func() uint64 { return 0 }
	}
	if src.IndexDrops == nil {
		src.IndexDrops = func() (uint64, uint64) { return 0, 0 }
	}
	c.ticksDropped = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "ticks_dropped_total",
		Help:      "Ticks dropped because a previous tick was still running",
	}, func() float64 { return float64(src.DroppedTicks()) })
	indexDrops := func(kind string, pick func(t, a uint64) uint64) prometheus.CounterFunc {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "index",
			Name:        "dropped_total",
			Help:        "Index writes dropped because the writer queue was full",
			ConstLabels: prometheus.Labels{"kind": kind},
		}, func() float64 {
			t, a := src.IndexDrops()
			return float64(pick(t, a))
		})
	}

	c.registry.MustRegister(
		c.tickDuration,
		c.ticksTotal,
		c.ticksDropped,
		c.cyclesTotal,
		c.packagesTotal,
		c.cells,
		c.inFlight,
		c.editsTotal,
		c.observers,
		indexDrops("tick", func(t, _ uint64) uint64 { return t }),
		indexDrops("audit", func(_, a uint64) uint64 { return a }),
		collectors.NewGoCollector(),
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveTick records one executed tick.
func (c *Collector) ObserveTick(sum factory.TickSummary) {
	c.ticksTotal.Inc()
	c.tickDuration.Observe(sum.Duration.Seconds())
	for kind, n := range sum.Cycles {
		c.cyclesTotal.WithLabelValues(kind).Add(float64(n))
	}
	c.addOutcome("exported", sum.Exported)
	c.addOutcome("handed_off", sum.HandedOff)
	c.addOutcome("delivered", sum.Delivered)
	c.addOutcome("discarded", sum.Discarded)
	c.addOutcome("fell_off", sum.FellOff)
	c.cells.Set(float64(sum.Cells))
	c.inFlight.Set(float64(sum.InFlight))
}

func (c *Collector) addOutcome(outcome string, n int) {
	if n > 0 {
		c.packagesTotal.WithLabelValues(outcome).Add(float64(n))
	}
}

// ObserveEdit counts one observer edit. code is empty on success.
func (c *Collector) ObserveEdit(action, code string) {
	if code == "" {
		code = "OK"
	}
	c.editsTotal.WithLabelValues(action, code).Inc()
}

func (c *Collector) SetObservers(n int) { c.observers.Set(float64(n)) }
