package execution

import (
	"context"
	"testing"
	"time"

	eventbus "github.com/hanpama/entityql/internal/eventbus"
	events "github.com/hanpama/entityql/internal/events"
	query "github.com/hanpama/entityql/internal/query"
	resolver "github.com/hanpama/entityql/internal/resolver"
	store "github.com/hanpama/entityql/internal/store"
	"github.com/stretchr/testify/require"
)

type chanSource struct {
	ch      chan struct{}
	filters []store.SubscriptionFilter
}

func (s *chanSource) Subscribe(_ context.Context, filters []store.SubscriptionFilter) (<-chan struct{}, error) {
	s.filters = filters
	return s.ch, nil
}

func receive(t *testing.T, ch <-chan *resolver.Result) *resolver.Result {
	t.Helper()
	select {
	case res, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return res
	case <-time.After(time.Second):
		t.Fatal("no result")
		return nil
	}
}

func TestSubscribe(t *testing.T) {
	bus := eventbus.New()
	eventbus.Use(bus)
	defer eventbus.Use(nil)
	closed := make(chan events.SubscriptionClosed, 1)
	eventbus.On(bus, func(_ context.Context, e events.SubscriptionClosed) { closed <- e })

	s := newSocial(t)
	src := &chanSource{ch: make(chan struct{})}
	e := s.executor(resolver.WithChangeSource(src))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	results, err := e.Subscribe(ctx, Request{Query: `subscription { users(orderBy: name) { name } }`})
	require.NoError(t, err)
	requireData(t, `{"users":[{"name":"Alice"},{"name":"Bob"}]}`, receive(t, results))
	require.Equal(t, []store.SubscriptionFilter{{SubgraphID: "QmSocial", EntityType: "User"}}, src.filters)

	s.store.Set("QmSocial", 2, store.Entity{Type: "User", Attributes: map[string]store.Value{
		"id":   store.String("u3"),
		"name": store.String("Carol"),
	}})
	src.ch <- struct{}{}
	requireData(t, `{"users":[{"name":"Alice"},{"name":"Bob"},{"name":"Carol"}]}`, receive(t, results))

	cancel()
	for range results {
	}
	select {
	case e := <-closed:
		require.Equal(t, "users", e.Field)
		require.Equal(t, 2, e.Updates)
		require.NotEmpty(t, e.ID)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}
}

func TestSubscribe_EndsWithTheStream(t *testing.T) {
	src := &chanSource{ch: make(chan struct{})}
	e := newSocial(t).executor(resolver.WithChangeSource(src))
	results, err := e.Subscribe(context.Background(), Request{Query: `subscription { users { id } }`})
	require.NoError(t, err)
	receive(t, results)
	close(src.ch)
	for range results {
	}
}

func TestSubscribe_RequestErrors(t *testing.T) {
	e := newSocial(t).executor(resolver.WithChangeSource(&chanSource{ch: make(chan struct{})}))

	results, err := e.Subscribe(context.Background(), Request{Query: `{ users { id } }`})
	require.NoError(t, err)
	res := receive(t, results)
	require.Equal(t, "operation is not a subscription", res.Errors[0].Message)
	_, ok := <-results
	require.False(t, ok)

	res, err = e.Execute(context.Background(), Request{Query: `subscription { users { id } }`})
	require.NoError(t, err)
	require.Equal(t, "subscriptions must be executed with Subscribe", res.Errors[0].Message)
}

func TestSubscribe_NotSupported(t *testing.T) {
	e := newSocial(t).executor()
	_, err := e.Subscribe(context.Background(), Request{Query: `subscription { users { id } }`})
	require.ErrorIs(t, err, query.ErrNotSupported)
}

func TestWatchSet(t *testing.T) {
	e := newSocial(t).executor()
	filters, err := e.WatchSet(Request{Query: `subscription { users { name posts { title } } }`})
	require.NoError(t, err)
	require.ElementsMatch(t, []store.SubscriptionFilter{
		{SubgraphID: "QmSocial", EntityType: "User"},
		{SubgraphID: "QmSocial", EntityType: "Post"},
	}, filters)

	_, err = e.WatchSet(Request{Query: `{ users { id } }`})
	require.EqualError(t, err, "operation is not a subscription")
}
