package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	eventbus "github.com/hanpama/entityql/internal/eventbus"
	events "github.com/hanpama/entityql/internal/events"
	query "github.com/hanpama/entityql/internal/query"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSubscribe(t *testing.T) {
	m := New()
	bus := eventbus.New()
	unsubscribe := m.Subscribe(bus)
	ctx := context.Background()

	req := httptest.NewRequest("POST", "/graphql", nil)
	eventbus.Emit(ctx, bus, events.HTTPFinish{Request: req, Status: 200, Duration: time.Millisecond})
	eventbus.Emit(ctx, bus, events.HTTPFinish{Request: req, Status: 503})
	eventbus.Emit(ctx, bus, events.GraphQLFinish{OperationType: "query"})
	eventbus.Emit(ctx, bus, events.GraphQLFinish{OperationType: "query", Cached: true})
	eventbus.Emit(ctx, bus, events.GraphQLFinish{OperationType: "query", Errors: []error{errors.New("x")}})
	eventbus.Emit(ctx, bus, events.QueryBuilt{SubgraphID: "QmX"})
	eventbus.Emit(ctx, bus, events.QueryBuilt{Err: fmt.Errorf("field users: %w", query.ErrRangeArguments)})
	eventbus.Emit(ctx, bus, events.QueryBuilt{Err: errors.New("other")})
	eventbus.Emit(ctx, bus, events.StoreQueryFinish{Entities: 3})
	eventbus.Emit(ctx, bus, events.StoreQueryFinish{Err: errors.New("down")})
	eventbus.Emit(ctx, bus, events.PermitAcquired{})
	eventbus.Emit(ctx, bus, events.PermitAcquired{Wait: time.Millisecond, Queued: true})
	eventbus.Emit(ctx, bus, events.SubscriptionOpened{ID: "a"})
	eventbus.Emit(ctx, bus, events.SubscriptionOpened{ID: "b"})
	eventbus.Emit(ctx, bus, events.SubscriptionClosed{ID: "a", Updates: 4})

	require.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("200")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("503")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.Operations.WithLabelValues("query", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("query", "error")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.CacheHits))
	require.Equal(t, 1.0, testutil.ToFloat64(m.QueriesBuilt))
	require.Equal(t, 1.0, testutil.ToFloat64(m.CompileFailures.WithLabelValues("RangeArguments")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.CompileFailures.WithLabelValues("other")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.StoreQueries.WithLabelValues("ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.StoreQueries.WithLabelValues("error")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.PermitsQueued))
	require.Equal(t, 1.0, testutil.ToFloat64(m.OpenSubscriptions))
	require.Equal(t, 4.0, testutil.ToFloat64(m.SubscriptionUpdates))

	unsubscribe()
	eventbus.Emit(ctx, bus, events.SubscriptionOpened{ID: "c"})
	require.Equal(t, 1.0, testutil.ToFloat64(m.OpenSubscriptions))
}

func TestHandler(t *testing.T) {
	m := New()
	m.QueriesBuilt.Add(2)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, w.Code)
	require.Contains(t, w.Body.String(), "entityql_entity_queries_built_total 2")
	require.Contains(t, w.Body.String(), "go_goroutines")

	err := testutil.GatherAndCompare(m.Registry, strings.NewReader(`
# HELP entityql_subscriptions_open Number of live subscriptions
# TYPE entityql_subscriptions_open gauge
entityql_subscriptions_open 0
`), "entityql_subscriptions_open")
	require.NoError(t, err)
}
