package optimization

import (
	"context"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
)

// WorkerPool runs independent indexed tasks on a fixed number of goroutines.
// Results are stored by task index, so output order never depends on
// scheduling or worker count.
type WorkerPool struct {
	numWorkers int
}

// NewWorkerPool creates a pool; numWorkers <= 0 uses the logical CPU count.
func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = DefaultWorkers()
	}
	return &WorkerPool{numWorkers: numWorkers}
}

// Workers returns the configured worker count
func (wp *WorkerPool) Workers() int { return wp.numWorkers }

// DefaultWorkers returns the logical CPU count reported by the host.
func DefaultWorkers() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// jobItem is a contiguous range of task indexes
type jobItem struct {
	start, end int
}

// runIndexed evaluates fn(i) for i in [0, n) and returns the results in index order.
func runIndexed[T any](ctx context.Context, wp *WorkerPool, n int, fn func(i int) T) ([]T, error) {
	out := make([]T, n)
	if n == 0 {
		return out, nil
	}

	workers := wp.numWorkers
	if n < workers {
		workers = n
	}

	// Chunk so each worker pulls a few hundred tasks per receive
	chunk := n / (workers * 8)
	if chunk < 1 {
		chunk = 1
	}

	jobs := make(chan jobItem)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				for i := job.start; i < job.end; i++ {
					out[i] = fn(i)
				}
			}
		}()
	}

	var err error
send:
	for start := 0; start < n; start += chunk {
		if err = ctx.Err(); err != nil {
			break
		}
		end := start + chunk
		if end > n {
			end = n
		}
		select {
		case jobs <- jobItem{start: start, end: end}:
		case <-ctx.Done():
			err = ctx.Err()
			break send
		}
	}
	close(jobs)
	wg.Wait()

	if err != nil {
		return nil, err
	}
	return out, nil
}
