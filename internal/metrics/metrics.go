/*
Package metrics exposes Prometheus instrumentation for the realtime core.
*/
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Push results recorded by Recorder.Push.
const (
	PushDelivered = "delivered"
	PushFailed    = "failed"
)

// Recorder is the instrumentation surface used by the registry, gateway and pipeline.
type Recorder interface {
	ConnectionOpened()
	ConnectionClosed(reason string)
	HandshakeRejected(reason string)
	PresenceChanged(identities, connections int)
	PresenceBroadcast()
	Push(result string)
	MessagePersisted()
}

// Collector is the Prometheus Recorder.
type Collector struct {
	connectionsOpen    prometheus.Gauge
	connectionsClosed  *prometheus.CounterVec
	handshakesRejected *prometheus.CounterVec
	presentIdentities  prometheus.Gauge
	presentConnections prometheus.Gauge
	presenceBroadcasts prometheus.Counter
	pushes             *prometheus.CounterVec
	messagesPersisted  prometheus.Counter
}

// NewCollector builds a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		connectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dmchat_ws_connections_open",
			Help: "Websocket connections currently open.",
		}),
		connectionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dmchat_ws_connections_closed_total",
			Help: "Websocket connections closed, by reason.",
		}, []string{"reason"}),
		handshakesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dmchat_ws_handshakes_rejected_total",
			Help: "Websocket handshakes rejected before upgrade, by reason.",
		}, []string{"reason"}),
		presentIdentities: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dmchat_presence_identities",
			Help: "Identities with at least one open connection.",
		}),
		presentConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dmchat_presence_connections",
			Help: "Connection handles held by the presence registry.",
		}),
		presenceBroadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dmchat_presence_broadcasts_total",
			Help: "Online roster broadcasts triggered by registry mutations.",
		}),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dmchat_message_pushes_total",
			Help: "newMessage pushes attempted, by result.",
		}, []string{"result"}),
		messagesPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dmchat_messages_persisted_total",
			Help: "Messages written to the message store.",
		}),
	}

	reg.MustRegister(
		c.connectionsOpen,
		c.connectionsClosed,
		c.handshakesRejected,
		c.presentIdentities,
		c.presentConnections,
		c.presenceBroadcasts,
		c.pushes,
		c.messagesPersisted,
	)

	return c
}

func (c *Collector) ConnectionOpened() {
	c.connectionsOpen.Inc()
}

func (c *Collector) ConnectionClosed(reason string) {
	c.connectionsOpen.Dec()
	c.connectionsClosed.WithLabelValues(reason).Inc()
}

func (c *Collector) HandshakeRejected(reason string) {
	c.handshakesRejected.WithLabelValues(reason).Inc()
}

func (c *Collector) PresenceChanged(identities, connections int) {
	c.presentIdentities.Set(float64(identities))
	c.presentConnections.Set(float64(connections))
}

func (c *Collector) PresenceBroadcast() {
	c.presenceBroadcasts.Inc()
}

func (c *Collector) Push(result string) {
	c.pushes.WithLabelValues(result).Inc()
}

func (c *Collector) MessagePersisted() {
	c.messagesPersisted.Inc()
}

// Handler serves the gatherer in the Prometheus exposition format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Noop discards every observation.
type Noop struct{}

func (Noop) ConnectionOpened()        {}
func (Noop) ConnectionClosed(string)  {}
func (Noop) HandshakeRejected(string) {}
func (Noop) PresenceChanged(int, int) {}
func (Noop) PresenceBroadcast()       {}
func (Noop) Push(string)              {}
func (Noop) MessagePersisted()        {}
