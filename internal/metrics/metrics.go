// Package metrics exposes Prometheus instruments for tracker runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Messages processed, by tracker outcome (recorded, filtered, ...)
	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hiretrack_messages_processed_total",
			Help: "Total number of messages processed, by outcome",
		},
		[]string{"outcome"},
	)

	// Filter rejections by rule name
	MessagesFiltered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hiretrack_messages_filtered_total",
			Help: "Total number of messages rejected by the noise filter, by rule",
		},
		[]string{"rule"},
	)

	RecordsAdded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hiretrack_records_added_total",
			Help: "Total number of application records added to the store",
		},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hiretrack_run_duration_seconds",
			Help:    "Tracker run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4m
		},
		[]string{"mode", "status"},
	)

	NERLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hiretrack_ner_latency_ms",
			Help:    "Entity recognition latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1ms to ~4s
		},
		[]string{"recognizer", "status"},
	)

	LastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hiretrack_last_run_timestamp_seconds",
			Help: "Unix time of the last completed run",
		},
	)
)

func RecordMessage(outcome string) {
	MessagesProcessed.WithLabelValues(outcome).Inc()
}

func RecordFiltered(rule string) {
	MessagesFiltered.WithLabelValues(rule).Inc()
}

func RecordAdded(n int) {
	RecordsAdded.Add(float64(n))
}

// RecordRun records a finished run's duration and completion time
func RecordRun(mode, status string, duration time.Duration, finished time.Time) {
	RunDuration.WithLabelValues(mode, status).Observe(duration.Seconds())
	LastRunTimestamp.Set(float64(finished.Unix()))
}

func RecordNERLatency(recognizer, status string, duration time.Duration) {
	NERLatency.WithLabelValues(recognizer, status).Observe(float64(duration.Milliseconds()))
}
