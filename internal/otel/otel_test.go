package otel

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	eventbus "github.com/hanpama/entityql/internal/eventbus"
	events "github.com/hanpama/entityql/internal/events"
	reqid "github.com/hanpama/entityql/internal/reqid"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetupWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup("", "entityql")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	bus := eventbus.New()
	unsubscribe := Register(bus, tp.Tracer("test"))

	ctx, _ := reqid.NewContext(context.Background(), "r1")
	req := httptest.NewRequest("POST", "/graphql", nil)
	eventbus.Emit(ctx, bus, events.HTTPStart{Request: req})
	eventbus.Emit(ctx, bus, events.GraphQLStart{OperationName: "Q", OperationType: "query"})
	eventbus.Emit(ctx, bus, events.StoreQueryFinish{SubgraphID: "QmX", EntityTypes: []string{"Token"}, Entities: 2, Duration: time.Millisecond})
	eventbus.Emit(ctx, bus, events.StoreQueryFinish{SubgraphID: "QmX", Err: errors.New("boom")})
	eventbus.Emit(ctx, bus, events.GraphQLFinish{OperationName: "Q"})
	eventbus.Emit(ctx, bus, events.HTTPFinish{Request: req, Status: 200})

	spans := rec.Ended()
	require.Len(t, spans, 4)
	byName := map[string][]sdktrace.ReadOnlySpan{}
	for _, s := range spans {
		byName[s.Name()] = append(byName[s.Name()], s)
	}
	httpSpan := byName["http.request"][0]
	gqlSpan := byName["graphql.operation"][0]
	require.Equal(t, httpSpan.SpanContext().SpanID(), gqlSpan.Parent().SpanID())
	require.Len(t, byName["store.query"], 2)
	for _, s := range byName["store.query"] {
		require.Equal(t, gqlSpan.SpanContext().SpanID(), s.Parent().SpanID())
	}
	require.Equal(t, codes.Error, byName["store.query"][1].Status().Code)

	unsubscribe()
	eventbus.Emit(ctx, bus, events.HTTPStart{Request: req})
	eventbus.Emit(ctx, bus, events.HTTPFinish{Request: req, Status: 200})
	require.Len(t, rec.Ended(), 4)
}

func TestCachedOperation(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	bus := eventbus.New()
	defer Register(bus, tp.Tracer("test"))()

	eventbus.Emit(context.Background(), bus, events.GraphQLFinish{OperationName: "Q", Cached: true, Duration: time.Millisecond})
	spans := rec.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, "graphql.operation", spans[0].Name())
}
