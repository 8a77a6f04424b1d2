package chpool

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the set of gauges a Pool reports, one per group/host
// combination it has seen. Registering these is the caller's
// responsibility (via prometheus.Register on each or a wrapping
// Collector), matching how the rest of the stack injects rather than
// globally registers dependencies.
type Metrics struct {
	MemberCount    *prometheus.GaugeVec // labels: group, host
	ConnectedCount *prometheus.GaugeVec // labels: group, host
}

// NewMetrics builds an unregistered Metrics set under namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		MemberCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chpool",
			Name:      "members",
			Help:      "Configured channel slots per group/host.",
		}, []string{"group", "host"}),
		ConnectedCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chpool",
			Name:      "connected",
			Help:      "Currently connected channel slots per group/host.",
		}, []string{"group", "host"}),
	}
}

// Collectors returns the individual collectors for prometheus.Register.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.MemberCount, m.ConnectedCount}
}

func (m *Metrics) observe(groupName, host string, total, connected int) {
	if m == nil {
		return
	}
	m.MemberCount.WithLabelValues(groupName, host).Set(float64(total))
	m.ConnectedCount.WithLabelValues(groupName, host).Set(float64(connected))
}
