// Package changefeed delivers entity change notifications to live
// subscriptions. A subscription watches (subgraph, entity type) pairs and
// receives one unit whenever a change to any of them may have happened.
// Pending units coalesce: a slow reader sees one unit for many changes.
package changefeed

import (
	"context"
	"sync"

	store "github.com/hanpama/entityql/internal/store"
)

// Feed publishes and subscribes to entity changes.
type Feed interface {
	Subscribe(ctx context.Context, filters []store.SubscriptionFilter) (<-chan struct{}, error)
	Publish(ctx context.Context, changes []store.EntityChange) error
}

// signal is a coalescing wake-up channel that is safe to notify after it
// has been closed.
type signal struct {
	mu     sync.Mutex
	ch     chan struct{}
	closed bool
}

func newSignal() *signal { return &signal{ch: make(chan struct{}, 1)} }

func (s *signal) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

func (s *signal) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func filterSet(filters []store.SubscriptionFilter) map[store.SubscriptionFilter]struct{} {
	set := make(map[store.SubscriptionFilter]struct{}, len(filters))
	for _, f := range filters {
		set[f] = struct{}{}
	}
	return set
}

func filterOf(c store.EntityChange) store.SubscriptionFilter {
	return store.SubscriptionFilter{SubgraphID: c.SubgraphID, EntityType: c.EntityType}
}
