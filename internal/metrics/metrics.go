package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rzbill/strom/internal/stream"
)

// Registry aggregates the engine's Prometheus collectors for one process.
type Registry struct {
	reg *prometheus.Registry

	published   *prometheus.CounterVec
	headUpdates *prometheus.CounterVec
	activeSubs  *prometheus.GaugeVec
	httpSubs    *prometheus.GaugeVec
}

// NewRegistry builds the collectors and registers them, together with the
// standard Go and process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strom_entries_published_total",
			Help: "Total entries appended per stream.",
		}, []string{"stream"}),
		headUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strom_head_updates_total",
			Help: "Total head-only advances per stream.",
		}, []string{"stream"}),
		activeSubs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "strom_active_subscriptions",
			Help: "Live subscription runners per stream.",
		}, []string{"stream"}),
		httpSubs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "strom_http_subscriptions",
			Help: "Registered HTTP subscriptions per stream.",
		}, []string{"stream"}),
	}
	r.reg.MustRegister(r.published, r.headUpdates, r.activeSubs, r.httpSubs)
	r.reg.MustRegister(collectors.NewGoCollector())
	r.reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// ForStream returns the per-stream metrics hook consumed by the engine.
func (r *Registry) ForStream(name string) stream.Metrics {
	return streamMetrics{
		published:   r.published.WithLabelValues(name),
		headUpdates: r.headUpdates.WithLabelValues(name),
		activeSubs:  r.activeSubs.WithLabelValues(name),
		httpSubs:    r.httpSubs.WithLabelValues(name),
	}
}

type streamMetrics struct {
	published   prometheus.Counter
	headUpdates prometheus.Counter
	activeSubs  prometheus.Gauge
	httpSubs    prometheus.Gauge
}

func (m streamMetrics) EntryPublished()         { m.published.Inc() }
func (m streamMetrics) HeadUpdated()            { m.headUpdates.Inc() }
func (m streamMetrics) SubscriberStarted()      { m.activeSubs.Inc() }
func (m streamMetrics) SubscriberDone()         { m.activeSubs.Dec() }
func (m streamMetrics) HTTPSubscriptionOpened() { m.httpSubs.Inc() }
func (m streamMetrics) HTTPSubscriptionClosed() { m.httpSubs.Dec() }
