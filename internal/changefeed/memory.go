package changefeed

import (
	"context"
	"sync"

	store "github.com/hanpama/entityql/internal/store"
	"github.com/rs/zerolog"
)

// Memory is an in-process Feed.
type Memory struct {
	mu     sync.Mutex
	subs   map[uint64]*memorySub
	nextID uint64
}

type memorySub struct {
	filters map[store.SubscriptionFilter]struct{}
	signal  *signal
}

func NewMemory() *Memory { return &Memory{subs: make(map[uint64]*memorySub)} }

// Subscribe watches filters until ctx is done; the channel is closed then.
func (m *Memory) Subscribe(ctx context.Context, filters []store.SubscriptionFilter) (<-chan struct{}, error) {
	sub := &memorySub{filters: filterSet(filters), signal: newSignal()}
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = sub
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
		sub.signal.close()
	}()
	return sub.signal.ch, nil
}

// Publish notifies every subscription watching one of the changed pairs. It
// never blocks on subscribers.
func (m *Memory) Publish(_ context.Context, changes []store.EntityChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sub := range m.subs {
		for _, c := range changes {
			if _, ok := sub.filters[filterOf(c)]; ok {
				sub.signal.notify()
				break
			}
		}
	}
	return nil
}

// Subscribers returns the number of open subscriptions.
func (m *Memory) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// ChangeNotifier is a store that reports its writes.
type ChangeNotifier interface {
	OnChange(fn func(store.EntityChange)) (unsubscribe func())
}

// Forward publishes every change src reports to feed until the returned
// function is called. Publish failures are logged; subscribers watching the
// change miss that update.
func Forward(ctx context.Context, src ChangeNotifier, feed Feed, log zerolog.Logger) (stop func()) {
	return src.OnChange(func(c store.EntityChange) {
		if err := feed.Publish(ctx, []store.EntityChange{c}); err != nil {
			log.Error().Err(err).
				Str("subgraph", string(c.SubgraphID)).
				Str("entity_type", c.EntityType).
				Str("entity_id", c.EntityID).
				Msg("failed to publish entity change")
		}
	})
}
