// Package metrics provides Prometheus metrics for StoryForge
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for StoryForge
type Metrics struct {
	// Migration run metrics
	MigrationsTotal   *prometheus.CounterVec
	MigrationDuration prometheus.Histogram
	ProgressPercent   prometheus.Gauge

	// Batch metrics
	BatchesProcessed  prometheus.Counter
	BatchesFailed     prometheus.Counter
	BatchRetriesTotal prometheus.Counter
	BatchDuration     prometheus.Histogram
	BatchSizeCurrent  prometheus.Gauge

	// Row metrics
	RowsCreated prometheus.Counter
	RowsDeleted prometheus.Counter

	// Validation metrics
	ValidationsTotal   *prometheus.CounterVec
	ValidationErrors   *prometheus.CounterVec
	ValidationWarnings *prometheus.CounterVec

	// Rollback metrics
	RollbacksTotal *prometheus.CounterVec

	// Corpus gauges
	BooksTotal    prometheus.Gauge
	ChaptersTotal prometheus.Gauge
	ScenesTotal   prometheus.Gauge

	// Engine metrics
	EngineUptimeSeconds prometheus.Gauge
	EngineStartTime     time.Time
}

// NewMetrics creates and registers all metrics on the default registry
func NewMetrics() *Metrics {
	return NewMetricsFor(prometheus.DefaultRegisterer)
}

// NewMetricsFor creates all metrics on the given registerer. Tests pass
// a fresh registry to avoid duplicate-registration panics.
func NewMetricsFor(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		EngineStartTime: time.Now(),
	}

	// Migration run metrics
	m.MigrationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyforge_migrations_total",
			Help: "Total number of migration runs",
		},
		[]string{"status"},
	)

	m.MigrationDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storyforge_migration_duration_seconds",
			Help:    "Duration of complete migration runs in seconds",
			Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 300, 600, 1800},
		},
	)

	m.ProgressPercent = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "storyforge_migration_progress_percent",
			Help: "Progress of the current migration run as a percentage",
		},
	)

	// Batch metrics
	m.BatchesProcessed = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "storyforge_batches_processed_total",
			Help: "Total number of batches processed",
		},
	)

	m.BatchesFailed = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "storyforge_batches_failed_total",
			Help: "Total number of batches that failed after retries",
		},
	)

	m.BatchRetriesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "storyforge_batch_retries_total",
			Help: "Total number of batch retry attempts",
		},
	)

	m.BatchDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storyforge_batch_duration_seconds",
			Help:    "Duration of individual batches in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	m.BatchSizeCurrent = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "storyforge_batch_size_current",
			Help: "Batch size in use by the current migration run",
		},
	)

	// Row metrics
	m.RowsCreated = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "storyforge_rows_created_total",
			Help: "Total number of hierarchy rows created",
		},
	)

	m.RowsDeleted = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "storyforge_rows_deleted_total",
			Help: "Total number of hierarchy rows deleted by rollback",
		},
	)

	// Validation metrics
	m.ValidationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyforge_validations_total",
			Help: "Total number of validation passes",
		},
		[]string{"phase", "status"},
	)

	m.ValidationErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyforge_validation_errors_total",
			Help: "Total number of validation errors found",
		},
		[]string{"phase"},
	)

	m.ValidationWarnings = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyforge_validation_warnings_total",
			Help: "Total number of validation warnings found",
		},
		[]string{"phase"},
	)

	// Rollback metrics
	m.RollbacksTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyforge_rollbacks_total",
			Help: "Total number of rollback operations",
		},
		[]string{"status"},
	)

	// Corpus gauges
	m.BooksTotal = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "storyforge_books_total",
			Help: "Total number of books in the corpus",
		},
	)

	m.ChaptersTotal = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "storyforge_chapters_total",
			Help: "Total number of hierarchy chapters",
		},
	)

	m.ScenesTotal = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "storyforge_scenes_total",
			Help: "Total number of scenes",
		},
	)

	// Engine metrics
	m.EngineUptimeSeconds = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "storyforge_engine_uptime_seconds",
			Help: "Engine uptime in seconds",
		},
	)

	// Start uptime updater
	go m.updateUptime()

	return m
}

// updateUptime periodically updates the engine uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.EngineUptimeSeconds.Set(time.Since(m.EngineStartTime).Seconds())
	}
}

// RecordValidation records one validation pass with its outcome
func (m *Metrics) RecordValidation(phase string, valid bool, errors, warnings int) {
	status := "valid"
	if !valid {
		status = "invalid"
	}
	m.ValidationsTotal.WithLabelValues(phase, status).Inc()
	m.ValidationErrors.WithLabelValues(phase).Add(float64(errors))
	m.ValidationWarnings.WithLabelValues(phase).Add(float64(warnings))
}

// RecordRollback records a rollback operation and its deleted row count
func (m *Metrics) RecordRollback(success bool, rowsDeleted int64) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.RollbacksTotal.WithLabelValues(status).Inc()
	m.RowsDeleted.Add(float64(rowsDeleted))
}

// UpdateCorpusStats updates the corpus size gauges
func (m *Metrics) UpdateCorpusStats(books, chapters, scenes int) {
	m.BooksTotal.Set(float64(books))
	m.ChaptersTotal.Set(float64(chapters))
	m.ScenesTotal.Set(float64(scenes))
}
