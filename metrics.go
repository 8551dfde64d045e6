package ftp

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors a Session reports to when
// configured via WithMetrics. Construct one with NewMetrics, which also
// registers it with the registry passed in.
type Metrics struct {
	RepliesProcessed prometheus.Counter
	WaitLatency      prometheus.Histogram
	PoolSize         prometheus.Gauge
	BytesTransferred *prometheus.CounterVec
}

// NewMetrics builds a Metrics set and registers it with reg. Pass
// prometheus.NewRegistry() for an isolated registry, or
// prometheus.DefaultRegisterer to expose it on the default /metrics
// handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RepliesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ftp_client",
			Name:      "replies_processed_total",
			Help:      "Number of control-channel reply lines classified by the reader.",
		}),
		WaitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ftp_client",
			Name:      "wait_latency_seconds",
			Help:      "Time spent blocked in sendAndWait per command.",
			Buckets:   prometheus.DefBuckets,
		}),
		PoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ftp_client",
			Name:      "pool_siblings",
			Help:      "Number of sibling connections currently held by a Pool.",
		}),
		BytesTransferred: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ftp_client",
			Name:      "bytes_transferred_total",
			Help:      "Bytes transferred over data connections, by direction.",
		}, []string{"direction"}),
	}
	reg.MustRegister(m.RepliesProcessed, m.WaitLatency, m.PoolSize, m.BytesTransferred)
	return m
}
