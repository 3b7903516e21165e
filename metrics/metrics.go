// Package metrics provides Prometheus metrics for archivefs operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archivefs_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "archivefs_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Archive manager metrics
	ArchiveOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archivefs_archive_ops_total",
			Help: "Total number of archive manager operations",
		},
		[]string{"archive_type", "operation", "status"}, // status: "success", "failure"
	)

	ArchiveOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "archivefs_archive_op_duration_seconds",
			Help:    "Archive manager operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"archive_type", "operation"},
	)

	// Open handles gauge
	OpenArchives = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "archivefs_open_archives",
			Help: "Number of currently open archive handles",
		},
	)

	// Renames between different backends that fell back to copy-then-delete
	CrossArchiveCopiesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archivefs_cross_archive_copies_total",
			Help: "Total number of cross-archive renames performed by copying",
		},
		[]string{"kind", "status"}, // kind: "file", "directory"
	)

	// Archive record store metrics
	RecordStoreQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archivefs_record_store_queries_total",
			Help: "Total number of archive record store queries",
		},
		[]string{"operation", "status"},
	)

	// Lock manager metrics
	LockOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archivefs_lock_operations_total",
			Help: "Total number of lock operations",
		},
		[]string{"operation", "status"}, // operation: "acquire", "release"; status: "success", "failure", "contended"
	)

	LockOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "archivefs_lock_operation_duration_seconds",
			Help:    "Lock operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Active locks gauge
	ActiveLocks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "archivefs_active_locks",
			Help: "Number of currently held locks",
		},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archivefs_errors_total",
			Help: "Total number of errors by component",
		},
		[]string{"component", "error_type"},
	)
)

// Status returns the status label for an operation result
func Status(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
