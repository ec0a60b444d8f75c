// ABOUTME: Pluggable adaptive chunk sizing strategies
// ABOUTME: Advisory only, never affects correctness of a run

package batch

import "time"

// Bounds clamps suggested chunk sizes to a [Min, Max] range
type Bounds struct {
	Min int
	Max int
}

// Clamp restricts size to the bounds. A zero Min defaults to 1.
func (b Bounds) Clamp(size int) int {
	min := b.Min
	if min <= 0 {
		min = 1
	}

	if size < min {
		return min
	}
	if b.Max > 0 && size > b.Max {
		return b.Max
	}
	return size
}

// Sizer suggests the next chunk size from observed per-chunk durations
type Sizer interface {
	SuggestSize(observed []time.Duration, currentSize int, bounds Bounds) int
}

// FixedSizer always suggests the same size (adaptive sizing disabled)
type FixedSizer struct {
	Size int
}

func (s FixedSizer) SuggestSize(observed []time.Duration, currentSize int, bounds Bounds) int {
	return bounds.Clamp(s.Size)
}

// DurationTargetSizer scales the chunk size so per-chunk processing
// time stays near Target, assuming time grows linearly with chunk size
type DurationTargetSizer struct {
	Target time.Duration
}

func (s DurationTargetSizer) SuggestSize(observed []time.Duration, currentSize int, bounds Bounds) int {
	if currentSize <= 0 {
		currentSize = DefaultChunkSize
	}

	if len(observed) == 0 || s.Target <= 0 {
		return bounds.Clamp(currentSize)
	}

	var total time.Duration
	for _, d := range observed {
		total += d
	}
	avg := total / time.Duration(len(observed))

	if avg <= 0 {
		return bounds.Clamp(currentSize)
	}

	scaled := int(float64(currentSize) * float64(s.Target) / float64(avg))
	if scaled < 1 {
		scaled = 1
	}

	return bounds.Clamp(scaled)
}
