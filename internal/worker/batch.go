package worker

import (
	"context"
	"fmt"
)

// IndexFunc processes the item at one position of a batch
type IndexFunc func(ctx context.Context, index int) error

// IndexJob represents the processing of a single index
type IndexJob struct {
	Index int
	Fn    IndexFunc
}

// Execute executes the job, converting a panic into an error result
func (j *IndexJob) Execute(ctx context.Context) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = &IndexResult{
				Index: j.Index,
				Error: fmt.Errorf("index %d: panic: %v", j.Index, r),
			}
		}
	}()

	return &IndexResult{
		Index: j.Index,
		Error: j.Fn(ctx, j.Index),
	}
}

// IndexResult represents the result of an index job
type IndexResult struct {
	Index int
	Error error
}

// GetError returns the error from the index result
func (r *IndexResult) GetError() error {
	return r.Error
}

// BatchProcessor fans a batch of indexes out over a worker pool.
// Indexes travel through the pool queue, so no two workers ever hold the same index.
type BatchProcessor struct {
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(concurrency int) *BatchProcessor {
	return &BatchProcessor{
		concurrency: concurrency,
	}
}

// ProcessIndexes runs fn for every index in [0, n) and returns one result per executed index.
// Indexes not yet queued when ctx is cancelled are not executed.
func (b *BatchProcessor) ProcessIndexes(ctx context.Context, n int, fn IndexFunc) []*IndexResult {
	if n <= 0 {
		return []*IndexResult{}
	}

	workers := b.concurrency
	if workers > n {
		workers = n
	}

	pool := NewPool(ctx, workers)
	pool.Start()

	for i := 0; i < n; i++ {
		if !pool.Submit(&IndexJob{Index: i, Fn: fn}) {
			break
		}
	}

	results := pool.Wait()

	indexResults := make([]*IndexResult, len(results))
	for i, result := range results {
		indexResults[i] = result.(*IndexResult)
	}

	return indexResults
}
