package resolver

import (
	"context"
	"sync"
	"time"

	eventbus "github.com/hanpama/entityql/internal/eventbus"
	events "github.com/hanpama/entityql/internal/events"
	"golang.org/x/sync/semaphore"
)

// Permits bounds how many requests run at once across the process. One
// Permits value is shared by every resolver.
type Permits struct {
	sem *semaphore.Weighted
}

// NewPermits returns a limiter admitting n concurrent requests.
func NewPermits(n int64) *Permits {
	if n < 1 {
		n = 1
	}
	return &Permits{sem: semaphore.NewWeighted(n)}
}

// Acquire blocks until a permit is free or ctx is done.
func (p *Permits) Acquire(ctx context.Context) (*Permit, error) {
	if permit, ok := p.tryAcquire(); ok {
		eventbus.Publish(ctx, events.PermitAcquired{})
		return permit, nil
	}
	start := time.Now()
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	eventbus.Publish(ctx, events.PermitAcquired{Wait: time.Since(start), Queued: true})
	return &Permit{sem: p.sem}, nil
}

func (p *Permits) tryAcquire() (*Permit, bool) {
	if !p.sem.TryAcquire(1) {
		return nil, false
	}
	return &Permit{sem: p.sem}, true
}

// Permit is an admission token. Release may be called more than once.
type Permit struct {
	sem  *semaphore.Weighted
	once sync.Once
}

func (p *Permit) Release() {
	if p == nil {
		return
	}
	p.once.Do(func() { p.sem.Release(1) })
}
