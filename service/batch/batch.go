// Package batch runs independent units of work in fixed-size concurrent chunks
// with a mandatory pause between chunks.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Result is the outcome of one unit of work. OK is false when the unit
// returned an error (or panicked); Value is then the zero value.
type Result[R any] struct {
	Value R
	OK    bool
}

// Options configures a batched run.
type Options struct {
	// Size is the number of units started concurrently per chunk. Values
	// below 1 are treated as 1.
	Size int

	// Delay is the pause after every chunk, including the last one.
	Delay time.Duration

	// OnBatch is called after each chunk settles with the chunk index, the
	// number of units in it and how long the units took (excluding Delay).
	OnBatch func(index, size int, elapsed time.Duration)

	Logger *slog.Logger
}

// Func is a unit of work. index is the item's position in the original input.
type Func[T, R any] func(ctx context.Context, item T, index int) (R, error)

// Run splits items into contiguous chunks of opts.Size, processes the chunks
// strictly one after another and runs every unit inside a chunk concurrently.
// The returned slice has len(items) entries; entry i reports whether fn
// succeeded for items[i]. Failures are logged and swallowed, never retried.
//
// If ctx is cancelled between chunks, the remaining chunks are not started
// and their results stay !OK.
func Run[T, R any](ctx context.Context, items []T, opts Options, fn Func[T, R]) []Result[R] {
	size := opts.Size
	if size < 1 {
		size = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	results := make([]Result[R], len(items))

	for start, chunk := 0, 0; start < len(items); start, chunk = start+size, chunk+1 {
		if err := ctx.Err(); err != nil {
			logger.WarnContext(ctx, "batch run stopped before completion",
				"next_index", start,
				"remaining", len(items)-start,
				"error", err,
			)
			break
		}

		end := min(start+size, len(items))
		began := time.Now()

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				value, err := call(ctx, fn, items[i], i)
				if err != nil {
					logger.DebugContext(ctx, "unit of work failed",
						"index", i,
						"error", err,
					)
					return
				}
				// Each goroutine owns a distinct index.
				results[i] = Result[R]{Value: value, OK: true}
			}(i)
		}
		wg.Wait()

		if opts.OnBatch != nil {
			opts.OnBatch(chunk, end-start, time.Since(began))
		}

		if err := sleep(ctx, opts.Delay); err != nil {
			logger.WarnContext(ctx, "inter-batch delay interrupted", "error", err)
		}
	}

	return results
}

// call runs fn and converts a panic into an error so one bad unit cannot take
// the whole run down.
func call[T, R any](ctx context.Context, fn Func[T, R], item T, index int) (value R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unit of work panicked: %v", r)
		}
	}()
	return fn(ctx, item, index)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
