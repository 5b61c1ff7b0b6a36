package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	sessionsOpen   prometheus.Gauge
	sessionsTotal  *prometheus.CounterVec
	loadFailures   prometheus.Counter
	documentPages  prometheus.Histogram
	clicks         prometheus.Counter
	renderDuration prometheus.Histogram
	expired        prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		sessionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pdfcapture",
			Name:      "sessions_open",
			Help:      "Capture sessions currently open.",
		}),
		sessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdfcapture",
			Name:      "sessions_created_total",
			Help:      "Capture sessions created, by document source.",
		}, []string{"source"}),
		loadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pdfcapture",
			Name:      "document_load_failures_total",
			Help:      "Documents that failed to load.",
		}),
		documentPages: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pdfcapture",
			Name:      "document_pages",
			Help:      "Page count of loaded documents.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 6),
		}),
		clicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pdfcapture",
			Name:      "selections_total",
			Help:      "Positions captured by clicks.",
		}),
		renderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pdfcapture",
			Name:      "page_render_seconds",
			Help:      "Time to render and encode a page image.",
			Buckets:   prometheus.DefBuckets,
		}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pdfcapture",
			Name:      "sessions_expired_total",
			Help:      "Sessions closed after being idle.",
		}),
	}
	reg.MustRegister(
		m.sessionsOpen,
		m.sessionsTotal,
		m.loadFailures,
		m.documentPages,
		m.clicks,
		m.renderDuration,
		m.expired,
	)
	return m
}
