package sequence

import (
	"context"
	"sync"
	"time"
)

// MemoryAllocator backs development and tests. Same day-keyed numbering as
// the redis allocator, scoped to one process.
type MemoryAllocator struct {
	mu   sync.Mutex
	seqs map[string]int64
}

func NewMemoryAllocator() *MemoryAllocator {
	return &MemoryAllocator{seqs: make(map[string]int64)}
}

func (a *MemoryAllocator) Next(ctx context.Context, branchID, prefix string, day time.Time) (int64, error) {
	key := dayKey(branchID, prefix, day)
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.seqs[key]; !ok {
		a.seqs[key] = seedValue
	}
	a.seqs[key]++
	return a.seqs[key], nil
}
