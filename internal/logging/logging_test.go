package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	eventbus "github.com/hanpama/entityql/internal/eventbus"
	events "github.com/hanpama/entityql/internal/events"
	reqid "github.com/hanpama/entityql/internal/reqid"
	"github.com/stretchr/testify/require"
)

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if l == "" {
			continue
		}
		m := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(l), &m))
		out = append(out, m)
	}
	return out
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "WARN", Output: &buf})
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")

	got := lines(t, &buf)
	require.Len(t, got, 1)
	require.Equal(t, "shown", got[0]["message"])
	require.Equal(t, "entityql", got[0]["service"])

	buf.Reset()
	nonsense := New(Config{Level: "nonsense", Output: &buf})
	nonsense.Debug().Msg("hidden")
	require.Empty(t, buf.String())
}

func TestSubscribe(t *testing.T) {
	var buf bytes.Buffer
	bus := eventbus.New()
	unsubscribe := Subscribe(bus, New(Config{Level: "debug", Output: &buf}))
	ctx, _ := reqid.NewContext(context.Background(), "r1")

	eventbus.Emit(ctx, bus, events.QueryBuilt{SubgraphID: "QmX", EntityTypes: []string{"Token"}})
	eventbus.Emit(ctx, bus, events.QueryBuilt{Err: errors.New("bad filter")})
	eventbus.Emit(ctx, bus, events.GraphQLFinish{OperationName: "Q", OperationType: "query"})
	eventbus.Emit(ctx, bus, events.PermitAcquired{Wait: time.Millisecond})
	eventbus.Emit(ctx, bus, events.PermitAcquired{Wait: 2 * time.Second})

	got := lines(t, &buf)
	require.Len(t, got, 4)
	require.Equal(t, "entity query built", got[0]["message"])
	require.Equal(t, "r1", got[0]["request_id"])
	require.Equal(t, "bad filter", got[1]["error"])
	require.Equal(t, "operation finished", got[2]["message"])
	require.Equal(t, "info", got[2]["level"])
	require.Equal(t, "slow query permit", got[3]["message"])

	unsubscribe()
	buf.Reset()
	eventbus.Emit(ctx, bus, events.GraphQLFinish{})
	require.Empty(t, buf.String())
}
