package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "livestock"

// Metrics holds the auction collectors on a private registry, so several
// instances (one per test) never collide.
type Metrics struct {
	registry *prometheus.Registry

	BidsAccepted      prometheus.Counter
	BidsRejected      *prometheus.CounterVec
	Retries           *prometheus.CounterVec
	BidCommitDuration prometheus.Histogram
	ListingsClosed    *prometheus.CounterVec
	ListingsSettled   prometheus.Counter
	Applications      *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		BidsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bid",
			Name:      "accepted_total",
			Help:      "Total number of accepted bids",
		}),
		BidsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bid",
			Name:      "rejected_total",
			Help:      "Total number of rejected bid attempts",
		}, []string{"reason"}),
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "retries_total",
			Help:      "Store transactions retried after contention",
		}, []string{"op"}),
		BidCommitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "bid",
			Name:      "commit_duration_seconds",
			Help:      "Latency of the atomic bid commit including retries",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		ListingsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listing",
			Name:      "closed_total",
			Help:      "Listings moved from Active to Closed",
		}, []string{"reason"}),
		ListingsSettled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listing",
			Name:      "settled_total",
			Help:      "Listings moved from Closed to Settled",
		}),
		Applications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "eligibility",
			Name:      "applications_total",
			Help:      "Bidding-seller applications by outcome",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.BidsAccepted,
		m.BidsRejected,
		m.Retries,
		m.BidCommitDuration,
		m.ListingsClosed,
		m.ListingsSettled,
		m.Applications,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
