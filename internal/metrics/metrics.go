package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ParsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ckpt_parse_total",
		Help: "Checkpoint parse attempts by format, size mode and result",
	}, []string{"format", "mode", "result"})

	ParseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ckpt_parse_duration_seconds",
		Help:    "Wall time of a single checkpoint parse",
		Buckets: prometheus.DefBuckets,
	}, []string{"format"})

	HeaderBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ckpt_header_bytes",
		Help:    "Distribution of safetensors header lengths",
		Buckets: prometheus.ExponentialBuckets(256, 4, 8),
	})

	SkippedEntries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ckpt_skipped_entries_total",
		Help: "Tensor descriptors dropped because they were malformed",
	})
)

// Result labels for ParsesTotal.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// RecordParse records the outcome of one parse.
func RecordParse(format, mode string, err error, elapsed time.Duration) {
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	if mode == "" {
		mode = "none"
	}
	ParsesTotal.WithLabelValues(format, mode, result).Inc()
	ParseDuration.WithLabelValues(format).Observe(elapsed.Seconds())
}

// RecordHeader records a successfully read header and the entries dropped from it.
func RecordHeader(headerLen uint64, skipped int) {
	HeaderBytes.Observe(float64(headerLen))
	if skipped > 0 {
		SkippedEntries.Add(float64(skipped))
	}
}
