package dhcpv4

import "github.com/prometheus/client_golang/prometheus"

// Metrics instruments a Server with Prometheus counters and a gauge. It is
// optional: a Server without one installed (the default) pays no cost.
// Grounded on the domain stack brought in from the rest of the example
// pack (ngcxy-dranet/go.mod), since the teacher itself carries no metrics
// library; spec.md's Non-goals don't exclude observability.
type Metrics struct {
	leasesActive prometheus.Gauge

	discoverTotal prometheus.Counter
	requestTotal  prometheus.Counter
	ackTotal      prometheus.Counter
	nakTotal      prometheus.Counter
	declineTotal  prometheus.Counter
	releaseTotal  prometheus.Counter
}

// NewMetrics constructs a Metrics collector. Register it with a
// prometheus.Registerer via Describe/Collect (Metrics implements
// prometheus.Collector).
func NewMetrics() *Metrics {
	return &Metrics{
		leasesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dhcpv4", Name: "leases_active",
			Help: "Number of leases currently held in the server's lease table.",
		}),
		discoverTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dhcpv4", Name: "discover_total", Help: "DISCOVER messages accepted.",
		}),
		requestTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dhcpv4", Name: "request_total", Help: "REQUEST messages accepted.",
		}),
		ackTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dhcpv4", Name: "ack_total", Help: "ACK replies sent.",
		}),
		nakTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dhcpv4", Name: "nak_total", Help: "NAK replies sent.",
		}),
		declineTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dhcpv4", Name: "decline_total", Help: "DECLINE messages accepted.",
		}),
		releaseTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dhcpv4", Name: "release_total", Help: "RELEASE messages accepted.",
		}),
	}
}

func (m *Metrics) observe(mt MessageType) {
	switch mt {
	case MsgDiscover:
		m.discoverTotal.Inc()
	case MsgRequest:
		m.requestTotal.Inc()
	case MsgDecline:
		m.declineTotal.Inc()
	case MsgRelease:
		m.releaseTotal.Inc()
	}
}

func (m *Metrics) observeOutcome(replyMT MessageType) {
	switch replyMT {
	case MsgAck:
		m.ackTotal.Inc()
	case MsgNak:
		m.nakTotal.Inc()
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.leasesActive, m.discoverTotal, m.requestTotal,
		m.ackTotal, m.nakTotal, m.declineTotal, m.releaseTotal,
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}
