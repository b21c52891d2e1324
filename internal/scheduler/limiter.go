package scheduler

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Limiter bounds how many tasks run at once.
type Limiter struct {
	sem      *semaphore.Weighted
	capacity int64
}

// NewLimiter returns a limiter with n slots. n below 1 is raised to 1.
func NewLimiter(n int) *Limiter {
	if n < 1 {
		n = 1
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(n)), capacity: int64(n)}
}

// Capacity returns the number of slots.
func (l *Limiter) Capacity() int {
	return int(l.capacity)
}

// Acquire blocks until a slot is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) (*Permit, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return &Permit{limiter: l}, nil
}

// TryAcquire takes a slot without blocking. It reports false when none is free.
func (l *Limiter) TryAcquire() (*Permit, bool) {
	if !l.sem.TryAcquire(1) {
		return nil, false
	}
	return &Permit{limiter: l}, true
}

// Permit owns one limiter slot until released.
type Permit struct {
	limiter *Limiter
	once    sync.Once
}

// Release returns the slot. Only the first call has an effect; it reports
// whether this call released the slot.
func (p *Permit) Release() bool {
	if p == nil {
		return false
	}
	released := false
	p.once.Do(func() {
		p.limiter.sem.Release(1)
		released = true
	})
	return released
}
