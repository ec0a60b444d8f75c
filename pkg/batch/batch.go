// ABOUTME: Chunked batch processor with bounded concurrency
// ABOUTME: Drives a per-chunk function and collects timing statistics

package batch

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultChunkSize is used when no chunk size is configured
const DefaultChunkSize = 10

// Func processes one chunk of items. The chunk index is zero-based.
type Func[T any] func(ctx context.Context, chunk []T, index int) error

// ChunkError reports a failed chunk
type ChunkError struct {
	Index int
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d: %v", e.Index, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

// Progress describes how far a run has advanced
type Progress struct {
	TotalChunks        int
	CompletedChunks    int
	CurrentChunk       int
	ItemsProcessed     int
	Percentage         float64
	AvgChunkDuration   time.Duration
	EstimatedRemaining time.Duration
}

// Processor splits an ordered item collection into chunks and drives a
// per-chunk function over them, sequentially or with up to Concurrency
// chunks in flight.
type Processor[T any] struct {
	ChunkSize   int
	Concurrency int

	// ContinueOnError keeps processing subsequent chunks after a
	// failure instead of stopping at the first one. Failed chunks are
	// reported either way; items are never silently dropped.
	ContinueOnError bool

	// OnChunkDone, when set, is invoked after each chunk completes.
	// Calls are serialized even under concurrency.
	OnChunkDone func(Progress)
}

// Split partitions items into ceil(len/size) chunks, preserving order
func Split[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = DefaultChunkSize
	}

	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}

	return chunks
}

// Run processes all items and returns the final progress plus any
// chunk failures. Empty input reports 100% with zero chunks.
func (p *Processor[T]) Run(ctx context.Context, items []T, fn Func[T]) (Progress, []*ChunkError) {
	chunks := Split(items, p.ChunkSize)

	if len(chunks) == 0 {
		prog := Progress{Percentage: 100}
		if p.OnChunkDone != nil {
			p.OnChunkDone(prog)
		}
		return prog, nil
	}

	if p.Concurrency > 1 {
		return p.runConcurrent(ctx, chunks, fn)
	}
	return p.runSequential(ctx, chunks, fn)
}

func (p *Processor[T]) runSequential(ctx context.Context, chunks [][]T, fn Func[T]) (Progress, []*ChunkError) {
	state := newRunState(len(chunks))
	var failures []*ChunkError

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			failures = append(failures, &ChunkError{Index: i, Err: err})
			break
		}

		start := time.Now()
		err := fn(ctx, chunk, i)
		state.record(i, len(chunk), time.Since(start))

		if err != nil {
			failures = append(failures, &ChunkError{Index: i, Err: err})
			if !p.ContinueOnError {
				break
			}
		}

		if p.OnChunkDone != nil {
			p.OnChunkDone(state.progress())
		}
	}

	return state.progress(), failures
}

func (p *Processor[T]) runConcurrent(ctx context.Context, chunks [][]T, fn Func[T]) (Progress, []*ChunkError) {
	state := newRunState(len(chunks))

	var (
		mu       sync.Mutex
		failures []*ChunkError
		wg       sync.WaitGroup
	)

	sem := make(chan struct{}, p.Concurrency)
	stopped := make(chan struct{})
	var stopOnce sync.Once

	for i, chunk := range chunks {
		// Stop launching new chunks once a failure or cancellation is
		// seen; in-flight chunks are allowed to finish.
		if ctx.Err() != nil || isClosed(stopped) {
			break
		}

		select {
		case <-stopped:
		case <-ctx.Done():
		case sem <- struct{}{}:
			wg.Add(1)
			go func(idx int, c []T) {
				defer wg.Done()
				defer func() { <-sem }()

				start := time.Now()
				err := fn(ctx, c, idx)
				elapsed := time.Since(start)

				mu.Lock()
				state.record(idx, len(c), elapsed)
				if err != nil {
					failures = append(failures, &ChunkError{Index: idx, Err: err})
					if !p.ContinueOnError {
						stopOnce.Do(func() { close(stopped) })
					}
				}
				prog := state.progress()
				if p.OnChunkDone != nil {
					p.OnChunkDone(prog)
				}
				mu.Unlock()
			}(i, chunk)
			continue
		}
		break
	}

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()

	if err := ctx.Err(); err != nil && len(failures) == 0 {
		failures = append(failures, &ChunkError{Index: state.completed, Err: err})
	}

	return state.progress(), failures
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// runState accumulates timing and count statistics for one run
type runState struct {
	totalChunks   int
	completed     int
	current       int
	items         int
	totalDuration time.Duration
}

func newRunState(totalChunks int) *runState {
	return &runState{totalChunks: totalChunks}
}

func (s *runState) record(index, itemCount int, elapsed time.Duration) {
	s.completed++
	s.current = index
	s.items += itemCount
	s.totalDuration += elapsed
}

func (s *runState) progress() Progress {
	prog := Progress{
		TotalChunks:     s.totalChunks,
		CompletedChunks: s.completed,
		CurrentChunk:    s.current,
		ItemsProcessed:  s.items,
	}

	if s.totalChunks == 0 {
		prog.Percentage = 100
		return prog
	}

	prog.Percentage = float64(s.completed) / float64(s.totalChunks) * 100

	if s.completed > 0 {
		prog.AvgChunkDuration = s.totalDuration / time.Duration(s.completed)
		remaining := s.totalChunks - s.completed
		prog.EstimatedRemaining = time.Duration(remaining) * prog.AvgChunkDuration
	}

	return prog
}
