// Package observability exposes Prometheus metrics for the write path.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors of one process. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	skipped         *prometheus.CounterVec
	drainBatches    *prometheus.CounterVec
	drainRows       *prometheus.CounterVec
	journalEntries  *prometheus.CounterVec
	wasteRecords    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtsync",
			Subsystem: "sphinxql",
			Name:      "commands_total",
		}, []string{"op", "index", "result"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rtsync",
			Subsystem: "sphinxql",
			Name:      "command_duration_seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"op"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtsync",
			Subsystem: "transmitter",
			Name:      "skipped_projections_total",
		}, []string{"index"}),
		drainBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtsync",
			Subsystem: "drain",
			Name:      "batches_total",
		}, []string{"index"}),
		drainRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtsync",
			Subsystem: "drain",
			Name:      "rows_total",
		}, []string{"index"}),
		journalEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtsync",
			Subsystem: "journal",
			Name:      "entries_total",
		}, []string{"op"}),
		wasteRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtsync",
			Subsystem: "waste",
			Name:      "records_total",
		}, []string{"index"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.commands,
			m.commandDuration,
			m.skipped,
			m.drainBatches,
			m.drainRows,
			m.journalEntries,
			m.wasteRecords,
		)
	}
	return m
}

// ObserveCommand records one protocol command.
func (m *Metrics) ObserveCommand(op, index string, err error, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.commands.WithLabelValues(op, index, result).Inc()
	m.commandDuration.WithLabelValues(op).Observe(d.Seconds())
}

// SkippedProjection counts a write skipped because the source row is gone.
func (m *Metrics) SkippedProjection(index string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(index).Inc()
}

// DrainBatch counts a migrated batch and its rows.
func (m *Metrics) DrainBatch(index string, rows int) {
	if m == nil {
		return
	}
	m.drainBatches.WithLabelValues(index).Inc()
	m.drainRows.WithLabelValues(index).Add(float64(rows))
}

// JournalEntry counts an appended journal entry.
func (m *Metrics) JournalEntry(op string) {
	if m == nil {
		return
	}
	m.journalEntries.WithLabelValues(op).Inc()
}

// WasteRecord counts a document id collected for post-rebuild cleanup.
func (m *Metrics) WasteRecord(index string) {
	if m == nil {
		return
	}
	m.wasteRecords.WithLabelValues(index).Inc()
}
