// Package metrics exposes Prometheus instruments for conversions and jobs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FilesProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dronetrace_files_processed_total",
		Help: "Log files processed, by outcome and error code",
	}, []string{"status", "code"})

	RowsParsedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dronetrace_rows_parsed_total",
		Help: "Per-frame rows produced across all conversions",
	})

	FlightsSummarizedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dronetrace_flights_summarized_total",
		Help: "Flight summaries produced across all conversions",
	})

	ConversionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dronetrace_conversion_duration_seconds",
		Help:    "Duration of a directory conversion",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	}, []string{"outcome"})

	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dronetrace_jobs_processed_total",
		Help: "Background jobs processed, by final status",
	}, []string{"status"})

	ExportBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dronetrace_export_bytes_total",
		Help: "Bytes written to CSV exports, by export kind",
	}, []string{"kind"})

	MirrorUploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dronetrace_mirror_uploads_total",
		Help: "Export uploads to the object store mirror, by outcome",
	}, []string{"status"})
)

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
