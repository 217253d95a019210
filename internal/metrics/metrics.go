// Package metrics exposes Prometheus metrics of pipeline runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "trendradar"

// Metrics holds the pipeline collectors.
type Metrics struct {
	RunsTotal         *prometheus.CounterVec
	RunDuration       prometheus.Histogram
	TitlesFetched     prometheus.Gauge
	PlatformsFailed   prometheus.Gauge
	NewTitles         prometheus.Gauge
	GroupMatches      *prometheus.GaugeVec
	ReportsTotal      *prometheus.CounterVec
	DeliveriesTotal   *prometheus.CounterVec
	DeliveryDuration  *prometheus.HistogramVec
	ExportedMessages  prometheus.Counter
	LastSuccessfulRun prometheus.Gauge
}

// New creates and registers the collectors on reg; nil uses a private registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by mode and outcome.",
		}, []string{"mode", "status"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of pipeline runs.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		TitlesFetched: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "titles_fetched",
			Help:      "Titles in the latest snapshot.",
		}),
		PlatformsFailed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "platforms_failed",
			Help:      "Platforms that failed in the latest fetch.",
		}),
		NewTitles: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "new_titles",
			Help:      "New titles detected in the latest cycle.",
		}),
		GroupMatches: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "group_matches",
			Help:      "Matched titles per interest group in the latest report.",
		}, []string{"group"}),
		ReportsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Generated reports by kind and delivery decision.",
		}, []string{"kind", "decision"}),
		DeliveriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Channel deliveries by outcome.",
		}, []string{"channel", "status"}),
		DeliveryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_duration_seconds",
			Help:      "Duration of channel deliveries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"channel"}),
		ExportedMessages: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exported_messages_total",
			Help:      "Title messages written to Kafka.",
		}),
		LastSuccessfulRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_successful_run_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
	}
}

// ObserveDelivery records one channel outcome.
func (m *Metrics) ObserveDelivery(channel string, ok bool, elapsed time.Duration) {
	status := "success"
	if !ok {
		status = "failure"
	}
	m.DeliveriesTotal.WithLabelValues(channel, status).Inc()
	m.DeliveryDuration.WithLabelValues(channel).Observe(elapsed.Seconds())
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(mode string, err error, elapsed time.Duration, finished time.Time) {
	status := "success"
	if err != nil {
		status = "failure"
	} else {
		m.LastSuccessfulRun.Set(float64(finished.Unix()))
	}
	m.RunsTotal.WithLabelValues(mode, status).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
}

// ObserveReport records the delivery decision of a report.
func (m *Metrics) ObserveReport(kind, decision string) {
	m.ReportsTotal.WithLabelValues(kind, decision).Inc()
}
