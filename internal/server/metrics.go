package server

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/feedsync/internal/feed"
	"github.com/roach88/feedsync/internal/platform"
	"github.com/roach88/feedsync/internal/wire"
)

const metricsNamespace = "feedsync"

// Collector is a prometheus.Collector for change fan-out and realtime
// connections. It doubles as the broker's observer.
type Collector struct {
	changesPublished   *prometheus.CounterVec
	changesDelivered   *prometheus.CounterVec
	subscribersDropped *prometheus.CounterVec
	realtimeStreams    prometheus.Gauge
}

// NewMetricsCollector returns a new Collector.
func NewMetricsCollector() *Collector {
	return &Collector{
		changesPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "changes_published_total",
				Help:      "The number of committed row changes published.",
			}, []string{"table", "kind"},
		),
		changesDelivered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "changes_delivered_total",
				Help:      "The number of change deliveries to subscribers.",
			}, []string{"table"},
		),
		subscribersDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "subscribers_dropped_total",
				Help:      "The number of subscribers dropped for falling behind.",
			}, []string{"table"},
		),
		realtimeStreams: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "realtime_streams",
				Help:      "The number of open realtime websocket streams.",
			},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.changesPublished.Describe(ch)
	c.changesDelivered.Describe(ch)
	c.subscribersDropped.Describe(ch)
	c.realtimeStreams.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.changesPublished.Collect(ch)
	c.changesDelivered.Collect(ch)
	c.subscribersDropped.Collect(ch)
	c.realtimeStreams.Collect(ch)
}

// ChangePublished is part of the platform.Observer interface.
func (c *Collector) ChangePublished(change wire.Change, delivered int) {
	c.changesPublished.WithLabelValues(change.Table, string(change.Kind)).Inc()
	c.changesDelivered.WithLabelValues(change.Table).Add(float64(delivered))
}

// SubscriberDropped is part of the platform.Observer interface.
func (c *Collector) SubscriberDropped(topic feed.Topic) {
	c.subscribersDropped.WithLabelValues(topic.Table).Inc()
}

var _ platform.Observer = (*Collector)(nil)
