package resilience

import (
	"context"
	"errors"

	"golang.org/x/sync/semaphore"
)

var ErrBulkheadFull = errors.New("bulkhead is full")

// Bulkhead 限制重查询的并发数，满时立即失败而不是排队
type Bulkhead struct {
	sem *semaphore.Weighted
}

func NewBulkhead(maxConcurrent int64) *Bulkhead {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Bulkhead{sem: semaphore.NewWeighted(maxConcurrent)}
}

func (b *Bulkhead) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.sem.TryAcquire(1) {
		return ErrBulkheadFull
	}
	defer b.sem.Release(1)
	return fn(ctx)
}
