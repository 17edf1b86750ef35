package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusProvider adapts Provider to github.com/prometheus/client_golang,
// registering one prometheus.Collector per instrument name against a caller
// supplied *prometheus.Registry. Counter maps onto prometheus.Counter;
// UpDownCounter maps onto prometheus.Gauge (Gauge is the only client_golang
// primitive that accepts negative Add, which UpDownCounter requires);
// Histogram maps onto prometheus.Histogram with the default client_golang
// bucket set (prometheus.DefBuckets). Custom buckets are not supported —
// callers needing them should register their own prometheus.Histogram and
// wrap it directly instead of going through this adapter.
type PrometheusProvider struct {
	reg *prometheus.Registry

	mu         sync.RWMutex
	counters   map[string]prometheus.Counter
	updowns    map[string]prometheus.Gauge
	histograms map[string]prometheus.Histogram
}

// NewPrometheusProvider builds a Provider backed by reg. Pass
// prometheus.NewRegistry() for an isolated registry, or
// prometheus.DefaultRegisterer's registry to expose instruments on the
// process-wide /metrics endpoint.
func NewPrometheusProvider(reg *prometheus.Registry) *PrometheusProvider {
	return &PrometheusProvider{
		reg:        reg,
		counters:   make(map[string]prometheus.Counter),
		updowns:    make(map[string]prometheus.Gauge),
		histograms: make(map[string]prometheus.Histogram),
	}
}

func (p *PrometheusProvider) Counter(name string, opts ...InstrumentOption) Counter {
	p.mu.RLock()
	c, ok := p.counters[name]
	p.mu.RUnlock()
	if ok {
		return prometheusCounter{c}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok = p.counters[name]; ok {
		return prometheusCounter{c}
	}
	cfg := applyOptions(opts)
	c = prometheus.NewCounter(prometheus.CounterOpts{
		Name:        name,
		Help:        cfg.Description,
		ConstLabels: prometheus.Labels(cfg.Attributes),
	})
	p.reg.MustRegister(c)
	p.counters[name] = c
	return prometheusCounter{c}
}

func (p *PrometheusProvider) UpDownCounter(name string, opts ...InstrumentOption) UpDownCounter {
	p.mu.RLock()
	g, ok := p.updowns[name]
	p.mu.RUnlock()
	if ok {
		return prometheusGauge{g}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if g, ok = p.updowns[name]; ok {
		return prometheusGauge{g}
	}
	cfg := applyOptions(opts)
	g = prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        name,
		Help:        cfg.Description,
		ConstLabels: prometheus.Labels(cfg.Attributes),
	})
	p.reg.MustRegister(g)
	p.updowns[name] = g
	return prometheusGauge{g}
}

func (p *PrometheusProvider) Histogram(name string, opts ...InstrumentOption) Histogram {
	p.mu.RLock()
	h, ok := p.histograms[name]
	p.mu.RUnlock()
	if ok {
		return prometheusHistogram{h}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok = p.histograms[name]; ok {
		return prometheusHistogram{h}
	}
	cfg := applyOptions(opts)
	h = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        name,
		Help:        cfg.Description,
		ConstLabels: prometheus.Labels(cfg.Attributes),
		Buckets:     prometheus.DefBuckets,
	})
	p.reg.MustRegister(h)
	p.histograms[name] = h
	return prometheusHistogram{h}
}

type prometheusCounter struct{ c prometheus.Counter }

func (p prometheusCounter) Add(n int64) { p.c.Add(float64(n)) }

type prometheusGauge struct{ g prometheus.Gauge }

func (p prometheusGauge) Add(n int64) { p.g.Add(float64(n)) }

type prometheusHistogram struct{ h prometheus.Histogram }

func (p prometheusHistogram) Record(v float64) { p.h.Observe(v) }
