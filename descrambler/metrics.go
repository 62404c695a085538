package descrambler

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/observe-l/tvcsa/csa"
)

// Metrics are the Prometheus collectors updated by contexts. A nil *Metrics
// records nothing.
type Metrics struct {
	packets    *prometheus.CounterVec
	flushes    *prometheus.CounterVec
	flushFill  prometheus.Histogram
	malformed  prometheus.Counter
	keyUpdates *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tvcsa",
			Subsystem: "descrambler",
			Name:      "packets_total",
			Help:      "Packets handed downstream after descrambling.",
		}, []string{"kind"}),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tvcsa",
			Subsystem: "descrambler",
			Name:      "flushes_total",
			Help:      "Cluster flushes through the CSA engine.",
		}, []string{"kind"}),
		flushFill: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tvcsa",
			Subsystem: "descrambler",
			Name:      "flush_packets",
			Help:      "Packets in the cluster when a flush starts.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tvcsa",
			Subsystem: "descrambler",
			Name:      "malformed_adaptation_total",
			Help:      "Scrambled packets whose adaptation field runs past the packet end.",
		}),
		keyUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tvcsa",
			Subsystem: "descrambler",
			Name:      "key_updates_total",
			Help:      "Control words installed.",
		}, []string{"kind", "parity"}),
	}
	if reg != nil {
		reg.MustRegister(m.packets, m.flushes, m.flushFill, m.malformed, m.keyUpdates)
	}
	return m
}

func (m *Metrics) delivered(k Kind, n int) {
	if m == nil || n == 0 {
		return
	}
	m.packets.WithLabelValues(k.String()).Add(float64(n))
}

func (m *Metrics) flushed(k Kind, fill int) {
	if m == nil {
		return
	}
	m.flushes.WithLabelValues(k.String()).Inc()
	m.flushFill.Observe(float64(fill))
}

func (m *Metrics) malformedAdaptation(n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.malformed.Add(float64(n))
}

func (m *Metrics) keyUpdated(k Kind, p csa.Parity) {
	if m == nil {
		return
	}
	m.keyUpdates.WithLabelValues(k.String(), p.String()).Inc()
}
