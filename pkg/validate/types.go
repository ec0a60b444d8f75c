// ABOUTME: Validation result model with typed finding counters
// ABOUTME: Errors block strict migrations, warnings are advisory

package validate

import "time"

// ValidationResult is the outcome of one validation pass
type ValidationResult struct {
	Phase    string // pre or post
	IsValid  bool   // True when Errors is empty
	Errors   []string
	Warnings []string
	Counters Counters
	Duration time.Duration
	RanAt    time.Time
}

// Counters are typed finding counts accumulated during a pass
type Counters struct {
	MissingReferences   int
	DuplicateEntries    int
	WordCountMismatches int
}

// Phases
const (
	PhasePre  = "pre"
	PhasePost = "post"
)

func (r *ValidationResult) addError(msg string) {
	r.Errors = append(r.Errors, msg)
}

func (r *ValidationResult) addWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

func (r *ValidationResult) finish(start time.Time) *ValidationResult {
	r.Duration = time.Since(start)
	r.RanAt = start
	r.IsValid = len(r.Errors) == 0
	return r
}
