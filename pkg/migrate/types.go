// ABOUTME: Options, results, and errors for the hierarchy migration engine
// ABOUTME: These shapes are the sole contract callers rely on

package migrate

import (
	"errors"
	"fmt"
	"time"

	"github.com/nainya/storyforge/pkg/progress"
	"github.com/nainya/storyforge/pkg/validate"
)

// Sentinel errors
var (
	// ErrNoSnapshot is returned by Rollback when no migration snapshot
	// exists in this process (or has been loaded from disk)
	ErrNoSnapshot = errors.New("no migration snapshot available")

	// ErrValidationFailed marks a migration blocked by the strict
	// pre-validation gate
	ErrValidationFailed = errors.New("pre-migration validation failed")
)

// Default option values
const (
	DefaultBatchSize       = 10
	DefaultMaxRetries      = 3
	DefaultCleanupInterval = 100
	DefaultSummaryLength   = 200
)

// AdaptiveOptions controls adaptive batch sizing. The estimate is
// advisory and never affects correctness.
type AdaptiveOptions struct {
	Enabled          bool          `yaml:"enabled"`
	InitialBatchSize int           `yaml:"initialBatchSize"`
	MinBatchSize     int           `yaml:"minBatchSize"`
	MaxBatchSize     int           `yaml:"maxBatchSize"`
	TargetDuration   time.Duration `yaml:"targetDuration"`
}

// Options configures one migration run. The zero value is usable
// after WithDefaults.
type Options struct {
	BatchSize          int  `yaml:"batchSize"`
	DryRun             bool `yaml:"dryRun"`
	ValidateBefore     bool `yaml:"validateBeforeMigration"`
	ValidateAfter      bool `yaml:"validateAfterMigration"`
	RollbackOnError    bool `yaml:"rollbackOnError"`
	ConcurrentBatches  int  `yaml:"concurrentBatches"`
	MaxConnections     int  `yaml:"maxConnections"`
	UseTransactions    bool `yaml:"useTransactions"`
	RetryFailedBatches bool `yaml:"retryFailedBatches"`
	MaxRetries         int  `yaml:"maxRetries"`

	// CleanupInterval is a batch-count hint for periodic resource
	// release during very large runs; 0 disables it
	CleanupInterval int `yaml:"cleanupInterval"`

	Adaptive AdaptiveOptions `yaml:"adaptiveBatchSize"`

	// ProgressFunc, when set, receives a tracker snapshot after each
	// completed batch. Not required for correctness.
	ProgressFunc func(progress.Snapshot) `yaml:"-" json:"-"`
}

// DefaultOptions returns the documented defaults: batch size 10,
// validation on both ends, rollback on error, sequential batches
func DefaultOptions() Options {
	return Options{
		BatchSize:       DefaultBatchSize,
		ValidateBefore:  true,
		ValidateAfter:   true,
		RollbackOnError: true,
		UseTransactions: true,
		MaxRetries:      DefaultMaxRetries,
		CleanupInterval: DefaultCleanupInterval,
	}
}

// WithDefaults fills unset numeric fields with their defaults
func (o Options) WithDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.Adaptive.Enabled {
		if o.Adaptive.InitialBatchSize <= 0 {
			o.Adaptive.InitialBatchSize = o.BatchSize
		}
		if o.Adaptive.MinBatchSize <= 0 {
			o.Adaptive.MinBatchSize = 1
		}
		if o.Adaptive.MaxBatchSize < o.Adaptive.MinBatchSize {
			o.Adaptive.MaxBatchSize = o.Adaptive.InitialBatchSize * 10
		}
		if o.Adaptive.TargetDuration <= 0 {
			o.Adaptive.TargetDuration = time.Second
		}
	}
	return o
}

// BatchError records a batch that failed after retries were exhausted
type BatchError struct {
	BatchIndex int
	Err        error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d: %v", e.BatchIndex, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// MigrationResult reports the outcome of one migration run
type MigrationResult struct {
	Success bool

	MigratedBooks    int
	SkippedBooks     int // Books that already had a story (idempotent re-run)
	MigratedChapters int
	CreatedStories   int
	CreatedParts     int
	CreatedScenes    int

	BatchesProcessed int
	BatchesRetried   int

	Duration       time.Duration
	PreValidation  *validate.ValidationResult
	PostValidation *validate.ValidationResult

	BatchErrors []*BatchError
	Errors      []string
	RolledBack  bool
}

// RollbackResult reports the outcome of a rollback. Rollback is a
// best-effort bulk delete, not a compensating transaction log.
type RollbackResult struct {
	Success      bool
	DataRestored bool

	DeletedSearchEntries int64
	DeletedPaths         int64
	DeletedScenes        int64
	DeletedChapters      int64
	DeletedParts         int64
	DeletedStories       int64

	Duration time.Duration
	Errors   []string
}
