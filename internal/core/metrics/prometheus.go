package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/dep2p/go-substrate/pkg/types"
)

// Collector 基于 Prometheus 的 Reporter
type Collector struct {
	connsOpened       *prometheus.CounterVec
	connsClosed       *prometheus.CounterVec
	connsEstablished  prometheus.Gauge
	handshakeFailures *prometheus.CounterVec
	decryptFailures   prometheus.Counter
	streamsOpened     *prometheus.CounterVec
	negotiationFails  *prometheus.CounterVec
}

var _ Reporter = (*Collector)(nil)

// NewCollector 创建采集器并注册到 reg
func NewCollector(reg prometheus.Registerer, namespace string) (*Collector, error) {
	c := &Collector{
		connsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "swarm",
			Name:      "connections_opened_total",
			Help:      "Connections opened, by direction and transport.",
		}, []string{"dir", "transport"}),
		connsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "swarm",
			Name:      "connections_closed_total",
			Help:      "Connections closed, by direction and transport.",
		}, []string{"dir", "transport"}),
		connsEstablished: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "swarm",
			Name:      "connections_established",
			Help:      "Currently established connections.",
		}),
		handshakeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "security",
			Name:      "handshake_failures_total",
			Help:      "Failed security handshakes, by kind.",
		}, []string{"kind"}),
		decryptFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "security",
			Name:      "decrypt_failures_total",
			Help:      "Connections torn down after a decryption failure.",
		}),
		streamsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "swarm",
			Name:      "streams_opened_total",
			Help:      "Negotiated streams, by direction and protocol.",
		}, []string{"dir", "protocol"}),
		negotiationFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "protocol",
			Name:      "negotiation_failures_total",
			Help:      "Failed protocol negotiations, by kind.",
		}, []string{"kind"}),
	}

	var err error
	for _, col := range []prometheus.Collector{
		c.connsOpened, c.connsClosed, c.connsEstablished,
		c.handshakeFailures, c.decryptFailures,
		c.streamsOpened, c.negotiationFails,
	} {
		err = multierr.Append(err, reg.Register(col))
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Collector) ConnOpened(dir types.Direction, transport types.TransportKind) {
	c.connsOpened.WithLabelValues(dir.String(), transport.String()).Inc()
	c.connsEstablished.Inc()
}

func (c *Collector) ConnClosed(dir types.Direction, transport types.TransportKind) {
	c.connsClosed.WithLabelValues(dir.String(), transport.String()).Inc()
	c.connsEstablished.Dec()
}

func (c *Collector) HandshakeFailed(kind string) {
	c.handshakeFailures.WithLabelValues(kind).Inc()
}

func (c *Collector) DecryptFailed() {
	c.decryptFailures.Inc()
}

func (c *Collector) StreamOpened(dir types.Direction, proto types.ProtocolID) {
	c.streamsOpened.WithLabelValues(dir.String(), string(proto)).Inc()
}

func (c *Collector) NegotiationFailed(kind string) {
	c.negotiationFails.WithLabelValues(kind).Inc()
}
