package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Ingestion metrics
	ObjectsStored = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "garage_objects_stored_total",
			Help: "Total number of completed object uploads by storage kind",
		},
		[]string{"kind"},
	)

	BytesIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "garage_bytes_ingested_total",
			Help: "Total plaintext bytes accepted by completed uploads",
		},
	)

	UploadsAborted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "garage_uploads_aborted_total",
			Help: "Total number of uploads that were interrupted and tombstoned",
		},
	)

	PutDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "garage_put_duration_seconds",
			Help:    "End-to-end duration of object PUT operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Block layer metrics
	BlocksWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "garage_blocks_written_total",
			Help: "Total number of blocks written to the block store",
		},
	)

	BlockBytesWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "garage_block_bytes_written_total",
			Help: "Total bytes written to the block store (as stored)",
		},
	)

	RefcountOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "garage_block_refcount_ops_total",
			Help: "Total block refcount operations by kind",
		},
		[]string{"op"},
	)

	// Delete metrics
	DeleteMarkersWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "garage_delete_markers_written_total",
			Help: "Total number of delete markers written",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "garage_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "garage_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// GC metrics
	GCCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "garage_gc_cycles_total",
			Help: "Total number of GC sweep cycles",
		},
	)

	GCDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "garage_gc_duration_seconds",
			Help:    "GC sweep cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	GCItemsReaped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "garage_gc_items_reaped_total",
			Help: "Total rows reaped by the GC by table",
		},
		[]string{"table"},
	)
)

func init() {
	prometheus.MustRegister(ObjectsStored)
	prometheus.MustRegister(BytesIngested)
	prometheus.MustRegister(UploadsAborted)
	prometheus.MustRegister(PutDuration)

	prometheus.MustRegister(BlocksWritten)
	prometheus.MustRegister(BlockBytesWritten)
	prometheus.MustRegister(RefcountOps)

	prometheus.MustRegister(DeleteMarkersWritten)

	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)

	prometheus.MustRegister(GCCyclesTotal)
	prometheus.MustRegister(GCDuration)
	prometheus.MustRegister(GCItemsReaped)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
