// Package metrics exposes Prometheus instruments for entry writes, imports,
// autosave flushes and HTTP traffic.
package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/starford/wellbeing/internal/apperr"
)

var (
	global *Metrics
	once   sync.Once
)

// Metrics holds the registered collectors.
type Metrics struct {
	EntryWrites     *prometheus.CounterVec
	ImportedEntries prometheus.Counter
	AutosaveFlushes *prometheus.CounterVec
	Entries         prometheus.Gauge
	HTTPDuration    *prometheus.HistogramVec
}

// New returns the process-wide metrics, registering them with the default
// registry on first use.
//
// Metrics:
//   - wellbeing_entry_writes_total{op,result}
//   - wellbeing_imported_entries_total
//   - wellbeing_autosave_flushes_total{result}
//   - wellbeing_entries
//   - wellbeing_http_request_duration_seconds{method,route,status}
func New() *Metrics {
	once.Do(func() {
		global = &Metrics{
			EntryWrites: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "wellbeing_entry_writes_total",
					Help: "Entry writes by operation and outcome",
				},
				[]string{"op", "result"}, // op: save, delete, import, clear
			),
			ImportedEntries: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "wellbeing_imported_entries_total",
					Help: "Entries written by successful imports",
				},
			),
			AutosaveFlushes: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "wellbeing_autosave_flushes_total",
					Help: "Draft saves issued by the autosave timer or an explicit flush",
				},
				[]string{"result"},
			),
			Entries: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "wellbeing_entries",
					Help: "Number of stored entries at the last refresh",
				},
			),
			HTTPDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "wellbeing_http_request_duration_seconds",
					Help:    "HTTP request latency",
					Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
				},
				[]string{"method", "route", "status"},
			),
		}
	})
	return global
}

// Outcome maps an error onto a low-cardinality result label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperr.ErrValidation), errors.Is(err, apperr.ErrImportFormat):
		return "invalid"
	case errors.Is(err, apperr.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperr.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}

// ObserveWrite counts one entry write.
func (m *Metrics) ObserveWrite(op string, err error) {
	m.EntryWrites.WithLabelValues(op, Outcome(err)).Inc()
}

// ObserveImport adds n imported entries.
func (m *Metrics) ObserveImport(n int) {
	m.ImportedEntries.Add(float64(n))
}

// SetEntryCount records the current number of entries.
func (m *Metrics) SetEntryCount(n int) {
	m.Entries.Set(float64(n))
}

// ObserveFlush counts one autosave flush.
func (m *Metrics) ObserveFlush(err error) {
	m.AutosaveFlushes.WithLabelValues(Outcome(err)).Inc()
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, took time.Duration) {
	m.HTTPDuration.WithLabelValues(method, route, statusClass(status)).Observe(took.Seconds())
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
