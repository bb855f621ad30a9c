package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	config "github.com/hanpama/entityql/internal/config"
	store "github.com/hanpama/entityql/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testSDL = `
type Query {
  tokens(first: Int, where: Token_filter, orderBy: Token_orderBy): [Token!]!
}

type Subscription {
  tokens: [Token!]!
}

type Token @entity @subgraphId(id: "QmTokens") {
  id: ID!
  symbol: String!
  holders: [Holder!]!
}

type Holder @entity @subgraphId(id: "QmTokens") {
  id: ID!
}

input Token_filter { symbol: String }
enum Token_orderBy { id symbol }
`

const testFixtures = `
blocks:
  - number: 3
    set:
      Holder:
        - {id: h1}
      Token:
        - {id: t1, symbol: AAA, holders: [h1]}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	require.Equal(t, "entityql dev\n", out)
}

func TestPlan(t *testing.T) {
	sdl := writeFile(t, "schema.graphql", testSDL)
	out, err := execute(t, "plan", "--schema", sdl, `{ tokens(first: 5, where: {symbol: "AAA"}, orderBy: symbol) { symbol } }`)
	require.NoError(t, err)

	var queries []store.EntityQuery
	require.NoError(t, json.Unmarshal([]byte(out), &queries), out)
	require.Len(t, queries, 1)
	q := queries[0]
	require.Equal(t, store.DeploymentHash("QmTokens"), q.SubgraphID)
	require.NotNil(t, q.Range.First)
	require.Equal(t, uint32(5), *q.Range.First)
	require.Equal(t, store.OrderAscending, q.Order.Direction)
	require.Equal(t, "symbol", q.Order.Attribute)
	require.NotNil(t, q.Filter)
}

func TestPlan_NestedWithFixtures(t *testing.T) {
	sdl := writeFile(t, "schema.graphql", testSDL)
	fixtures := writeFile(t, "fixtures.yaml", testFixtures)
	query := writeFile(t, "query.graphql", `{ tokens { symbol holders { id } } }`)
	out, err := execute(t, "plan", "--schema", sdl, "--fixtures", fixtures, "@"+query)
	require.NoError(t, err)

	var queries []struct {
		Block      store.BlockNumber
		Collection struct {
			Entities []struct{ EntityType string }
		}
	}
	require.NoError(t, json.Unmarshal([]byte(out), &queries), out)
	require.Len(t, queries, 2)
	require.Equal(t, store.BlockNumber(3), queries[0].Block)
}

func TestPlan_Errors(t *testing.T) {
	sdl := writeFile(t, "schema.graphql", testSDL)
	_, err := execute(t, "plan", "--schema", sdl, `{ tokens(first: 5000) { id } }`)
	require.ErrorContains(t, err, "first")

	_, err = execute(t, "plan", `{ tokens { id } }`)
	require.ErrorContains(t, err, "schema file is required")

	_, err = execute(t, "plan", "--schema", sdl, "--variables", "{", `{ tokens { id } }`)
	require.ErrorContains(t, err, "parse variables")
}

func TestWatch(t *testing.T) {
	sdl := writeFile(t, "schema.graphql", testSDL)
	out, err := execute(t, "watch", "--schema", sdl, `subscription { tokens { holders { id } } }`)
	require.NoError(t, err)
	var filters []store.SubscriptionFilter
	require.NoError(t, json.Unmarshal([]byte(out), &filters))
	require.Equal(t, []store.SubscriptionFilter{
		{SubgraphID: "QmTokens", EntityType: "Holder"},
		{SubgraphID: "QmTokens", EntityType: "Token"},
	}, filters)

	cfg := writeFile(t, "entityql.yaml", "graphql:\n  schema: "+sdl+"\n")
	_, err = execute(t, "watch", "--config", cfg, `{ tokens { id } }`)
	require.EqualError(t, err, "operation is not a subscription")
}

func TestSchema(t *testing.T) {
	sdl := writeFile(t, "schema.graphql", testSDL)
	out, err := execute(t, "schema", "--schema", sdl)
	require.NoError(t, err)
	require.Contains(t, out, "type Token @entity @subgraphId(id: \"QmTokens\")")
	require.NotContains(t, out, "__Schema")

	dst := filepath.Join(t.TempDir(), "out.graphql")
	_, err = execute(t, "schema", "--schema", sdl, "-o", dst)
	require.NoError(t, err)
	written, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, out, string(written))

	_, err = execute(t, "schema", "--schema", writeFile(t, "bad.graphql", "type Query { x: Missing }"))
	require.Error(t, err)
}

func TestServe_InvalidConfig(t *testing.T) {
	_, err := execute(t, "serve")
	require.ErrorContains(t, err, "graphql.schema is required")

	_, err = execute(t, "serve", "--schema", "x.graphql", "--log-level", "loud")
	require.ErrorContains(t, err, "log.level")
}

func TestBuild(t *testing.T) {
	cfg := config.Default()
	cfg.GraphQL.Schema = writeFile(t, "schema.graphql", testSDL)
	cfg.Store.Fixtures = writeFile(t, "fixtures.yaml", testFixtures)

	c, err := build(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer c.close()

	req := httptest.NewRequest("POST", "/graphql", strings.NewReader(`{"query":"{ tokens { symbol } __type(name: \"Token\") { name } }"}`))
	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"data":{"tokens":[{"symbol":"AAA"}],"__type":{"name":"Token"}}}`, w.Body.String())

	w = httptest.NewRecorder()
	c.metrics.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	require.Contains(t, w.Body.String(), `entityql_graphql_operations_total{status="ok",type="query"} 1`)
}
