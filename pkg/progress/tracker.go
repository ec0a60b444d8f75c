// ABOUTME: Stage-aware progress tracker for long-running operations
// ABOUTME: Records stage history, elapsed time, and linear ETA extrapolation

package progress

import (
	"time"
)

// Tracker states
const (
	StateIdle     = "idle"
	StateRunning  = "running"
	StateComplete = "complete"
)

// StageRecord is a closed-out entry in the stage history
type StageRecord struct {
	Stage          string
	TotalItems     int
	CompletedItems int
	Percentage     float64
	ClosedAt       time.Time
}

// Snapshot is a point-in-time view of the tracker, safe to hand to callbacks
type Snapshot struct {
	State              string
	Stage              string
	TotalItems         int
	CompletedItems     int
	Percentage         float64
	Elapsed            time.Duration
	EstimatedRemaining time.Duration
}

// Tracker tracks progress through named stages. It is a single-writer
// object: concurrent updates must be serialized by the caller.
type Tracker struct {
	state          string
	stage          string
	totalItems     int
	completedItems int
	percentage     float64
	startTime      time.Time
	history        []StageRecord

	now func() time.Time // Injectable clock for tests
}

// NewTracker creates an idle tracker
func NewTracker() *Tracker {
	return &Tracker{
		state: StateIdle,
		now:   time.Now,
	}
}

// Start transitions the tracker from idle to running
func (t *Tracker) Start() {
	t.state = StateRunning
	t.startTime = t.now()
	t.stage = ""
	t.totalItems = 0
	t.completedItems = 0
	t.percentage = 0
	t.history = nil
}

// Update records progress. A new stage value closes out the previous
// stage's record into the append-only history.
func (t *Tracker) Update(stage string, totalItems, completedItems int, percentage float64) {
	if t.state != StateRunning {
		return
	}

	if t.stage != "" && stage != t.stage {
		t.closeStage()
	}

	t.stage = stage
	t.totalItems = totalItems
	t.completedItems = completedItems
	t.percentage = percentage
}

// Complete transitions to complete and closes the final stage
func (t *Tracker) Complete() {
	if t.state != StateRunning {
		return
	}

	if t.stage != "" {
		t.closeStage()
	}

	t.state = StateComplete
	t.percentage = 100
}

// Reset returns the tracker to idle, discarding all state
func (t *Tracker) Reset() {
	t.state = StateIdle
	t.stage = ""
	t.totalItems = 0
	t.completedItems = 0
	t.percentage = 0
	t.startTime = time.Time{}
	t.history = nil
}

// State returns the current state
func (t *Tracker) State() string {
	return t.state
}

// Stage returns the current stage name
func (t *Tracker) Stage() string {
	return t.stage
}

// History returns the closed-out stage records in order
func (t *Tracker) History() []StageRecord {
	out := make([]StageRecord, len(t.history))
	copy(out, t.history)
	return out
}

// Elapsed returns time since Start, zero when idle
func (t *Tracker) Elapsed() time.Duration {
	if t.startTime.IsZero() {
		return 0
	}
	return t.now().Sub(t.startTime)
}

// EstimatedRemaining extrapolates remaining time linearly from the
// current percentage: elapsed/pct * (100-pct). Zero until pct > 0.
func (t *Tracker) EstimatedRemaining() time.Duration {
	if t.percentage <= 0 {
		return 0
	}

	elapsed := t.Elapsed()
	remaining := float64(elapsed) / t.percentage * (100 - t.percentage)
	if remaining < 0 {
		return 0
	}

	return time.Duration(remaining)
}

// Snapshot returns a point-in-time copy of the tracker state
func (t *Tracker) Snapshot() Snapshot {
	return Snapshot{
		State:              t.state,
		Stage:              t.stage,
		TotalItems:         t.totalItems,
		CompletedItems:     t.completedItems,
		Percentage:         t.percentage,
		Elapsed:            t.Elapsed(),
		EstimatedRemaining: t.EstimatedRemaining(),
	}
}

func (t *Tracker) closeStage() {
	t.history = append(t.history, StageRecord{
		Stage:          t.stage,
		TotalItems:     t.totalItems,
		CompletedItems: t.completedItems,
		Percentage:     t.percentage,
		ClosedAt:       t.now(),
	})
}
