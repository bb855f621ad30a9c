package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	changefeed "github.com/hanpama/entityql/internal/changefeed"
	eventbus "github.com/hanpama/entityql/internal/eventbus"
	events "github.com/hanpama/entityql/internal/events"
	execution "github.com/hanpama/entityql/internal/execution"
	language "github.com/hanpama/entityql/internal/language"
	reqid "github.com/hanpama/entityql/internal/reqid"
	resolver "github.com/hanpama/entityql/internal/resolver"
	schema "github.com/hanpama/entityql/internal/schema"
	store "github.com/hanpama/entityql/internal/store"
	memstore "github.com/hanpama/entityql/internal/store/memstore"
	value "github.com/hanpama/entityql/internal/value"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testSDL = `
type Query {
  tokens(orderBy: Token_orderBy): [Token!]!
}

type Subscription {
  tokens(orderBy: Token_orderBy): [Token!]!
}

type Token @entity @subgraphId(id: "QmTokens") {
  id: ID!
  symbol: String!
}

enum Token_orderBy { id symbol }
`

const testFixtures = `
blocks:
  - number: 1
    set:
      Token:
        - {id: t1, symbol: AAA}
        - {id: t2, symbol: BBB}
`

type fixture struct {
	store *memstore.Store
	exec  *execution.Executor
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	sch, err := schema.BuildFromSDL(testSDL)
	require.NoError(t, err)
	st := memstore.New()
	require.NoError(t, memstore.LoadFixtures(sch, st, strings.NewReader(testFixtures)))

	feed := changefeed.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	t.Cleanup(changefeed.Forward(ctx, st, feed, zerolog.Nop()))

	data := resolver.NewStoreResolver(st, resolver.NewPermits(2), resolver.WithChangeSource(feed))
	return fixture{store: st, exec: execution.NewExecutor(sch, data)}
}

func newTestHandler(t *testing.T, opts ...Option) *Handler {
	t.Helper()
	return New(newFixture(t).exec, opts...)
}

func post(h http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/graphql", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestPost(t *testing.T) {
	w := post(newTestHandler(t), `{"query":"{ tokens(orderBy: symbol) { symbol } }"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	require.JSONEq(t, `{"data":{"tokens":[{"symbol":"AAA"},{"symbol":"BBB"}]}}`, w.Body.String())
}

func TestGet(t *testing.T) {
	h := newTestHandler(t)
	params := url.Values{
		"query":         {`query Q($o: Token_orderBy) { tokens(orderBy: $o) { id } }`},
		"operationName": {"Q"},
		"variables":     {`{"o":"id"}`},
	}
	req := httptest.NewRequest("GET", "/graphql?"+params.Encode(), nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"data":{"tokens":[{"id":"t1"},{"id":"t2"}]}}`, w.Body.String())
}

func TestBatch(t *testing.T) {
	w := post(newTestHandler(t), `[{"query":"{ tokens { id } }"},{"query":"{ nope }"}]`)
	require.Equal(t, http.StatusOK, w.Code)
	var out []struct {
		Data   json.RawMessage
		Errors []struct{ Message string }
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 2)
	require.JSONEq(t, `{"tokens":[{"id":"t1"},{"id":"t2"}]}`, string(out[0].Data))
	require.Len(t, out[1].Errors, 1)
}

// abortingResolver breaks an internal guarantee for operations named Boom.
type abortingResolver struct {
	*resolver.StoreResolver
}

func (r abortingResolver) Prefetch(ec *resolver.ExecutionContext, set language.SelectionSet) (value.Value, []error) {
	if ec.Operation.Name == "Boom" {
		panic("store returned an entity without a type")
	}
	return r.StoreResolver.Prefetch(ec, set)
}

func TestBatch_WorstStatus(t *testing.T) {
	sch, err := schema.BuildFromSDL(testSDL)
	require.NoError(t, err)
	st := memstore.New()
	require.NoError(t, memstore.LoadFixtures(sch, st, strings.NewReader(testFixtures)))
	data := abortingResolver{resolver.NewStoreResolver(st, resolver.NewPermits(2))}
	h := New(execution.NewExecutor(sch, data))

	w := post(h, `[{"query":"{ tokens { id } }"},{"query":"query Boom { tokens { id } }"}]`)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	var out []struct {
		Data   json.RawMessage
		Errors []struct{ Message string }
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 2)
	require.JSONEq(t, `{"tokens":[{"id":"t1"},{"id":"t2"}]}`, string(out[0].Data))
	require.Len(t, out[1].Errors, 1)
	require.Contains(t, out[1].Errors[0].Message, "store returned an entity without a type")

	w = post(h, `{"query":"query Boom { tokens { id } }"}`)
	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRequestErrors(t *testing.T) {
	h := newTestHandler(t)
	cases := []struct {
		name, body, contentType string
		status                  int
	}{
		{"invalid json", `{`, "application/json", http.StatusBadRequest},
		{"missing query", `{"variables":{}}`, "application/json", http.StatusBadRequest},
		{"empty batch", `[]`, "application/json", http.StatusBadRequest},
		{"content type", `query=x`, "application/x-www-form-urlencoded", http.StatusBadRequest},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/graphql", strings.NewReader(c.body))
			req.Header.Set("Content-Type", c.contentType)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			require.Equal(t, c.status, w.Code)
		})
	}

	req := httptest.NewRequest("PUT", "/graphql", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestMaxBodyBytes(t *testing.T) {
	h := newTestHandler(t, WithMaxBodyBytes(10))
	w := post(h, `{"query":"{ tokens { id } }"}`)
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestTimeout(t *testing.T) {
	h := newTestHandler(t, WithTimeout(time.Nanosecond))
	w := post(h, `{"query":"{ tokens { id } }"}`)
	require.Contains(t, []int{http.StatusOK, http.StatusServiceUnavailable}, w.Code)
}

func TestCORS(t *testing.T) {
	h := newTestHandler(t, WithCORS("https://example.com"))

	req := httptest.NewRequest("OPTIONS", "/graphql", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "https://example.com", w.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "Content-Type", w.Header().Get("Access-Control-Allow-Headers"))
	require.Equal(t, "GET,POST,OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))

	req = httptest.NewRequest("POST", "/graphql", strings.NewReader(`{"query":"{ tokens { id } }"}`))
	req.Header.Set("Origin", "https://other.example")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestID(t *testing.T) {
	bus := eventbus.New()
	eventbus.Use(bus)
	defer eventbus.Use(nil)
	var seen []string
	var statuses []int
	eventbus.On(bus, func(ctx context.Context, _ events.GraphQLStart) {
		id, _ := reqid.FromContext(ctx)
		seen = append(seen, id)
	})
	eventbus.On(bus, func(_ context.Context, e events.HTTPFinish) { statuses = append(statuses, e.Status) })

	h := newTestHandler(t)
	req := httptest.NewRequest("POST", "/graphql", strings.NewReader(`{"query":"{ tokens { id } }"}`))
	req.Header.Set(reqid.Header, "client-id")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, "client-id", w.Header().Get(reqid.Header))

	w = post(h, `{"query":"{ tokens { id } }"}`)
	generated := w.Header().Get(reqid.Header)
	require.NotEmpty(t, generated)
	require.Equal(t, []string{"client-id", generated}, seen)
	require.Equal(t, []int{http.StatusOK, http.StatusOK}, statuses)
}

func TestMux(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("metrics")) })
	srv := httptest.NewServer(NewMux(newTestHandler(t), metrics))
	defer srv.Close()

	for path, want := range map[string]string{"/healthz": "ok\n", "/metrics": "metrics"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		var buf bytes.Buffer
		_, err = buf.ReadFrom(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)
		require.Equal(t, want, buf.String(), path)
	}
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	d := websocket.Dialer{Subprotocols: []string{subprotocol}}
	conn, resp, err := d.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/subscriptions", nil)
	require.NoError(t, err)
	require.Equal(t, subprotocol, resp.Header.Get("Sec-WebSocket-Protocol"))
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, conn.WriteJSON(wsMessage{Type: msgConnectionInit}))
	require.Equal(t, msgConnectionAck, read(t, conn).Type)
	return conn
}

func read(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg wsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func subscribe(t *testing.T, conn *websocket.Conn, id, query string) {
	t.Helper()
	payload, err := json.Marshal(GraphQLRequest{Query: query})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(wsMessage{ID: id, Type: msgSubscribe, Payload: payload}))
}

func TestSubscriptions(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(NewMux(New(f.exec), nil))
	defer srv.Close()
	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(wsMessage{Type: msgPing}))
	require.Equal(t, msgPong, read(t, conn).Type)

	subscribe(t, conn, "1", `subscription { tokens(orderBy: symbol) { symbol } }`)
	msg := read(t, conn)
	require.Equal(t, "1", msg.ID)
	require.Equal(t, msgNext, msg.Type)
	require.JSONEq(t, `{"data":{"tokens":[{"symbol":"AAA"},{"symbol":"BBB"}]}}`, string(msg.Payload))

	f.store.Set("QmTokens", 2, store.Entity{Type: "Token", Attributes: map[string]store.Value{
		"id":     store.String("t3"),
		"symbol": store.String("CCC"),
	}})
	msg = read(t, conn)
	require.Equal(t, msgNext, msg.Type)
	require.JSONEq(t, `{"data":{"tokens":[{"symbol":"AAA"},{"symbol":"BBB"},{"symbol":"CCC"}]}}`, string(msg.Payload))

	require.NoError(t, conn.WriteJSON(wsMessage{ID: "1", Type: msgComplete}))
	require.NoError(t, conn.WriteJSON(wsMessage{Type: msgPing}))
	require.Equal(t, msgPong, read(t, conn).Type)
}

func TestSubscriptions_Errors(t *testing.T) {
	srv := httptest.NewServer(NewMux(newTestHandler(t), nil))
	defer srv.Close()
	conn := dial(t, srv)

	subscribe(t, conn, "a", `{ tokens { id } }`)
	msg := read(t, conn)
	require.Equal(t, "a", msg.ID)
	require.Equal(t, msgError, msg.Type)
	require.JSONEq(t, `[{"message":"operation is not a subscription"}]`, string(msg.Payload))

	require.NoError(t, conn.WriteJSON(wsMessage{ID: "b", Type: msgSubscribe, Payload: json.RawMessage(`{}`)}))
	msg = read(t, conn)
	require.Equal(t, msgError, msg.Type)
	require.JSONEq(t, `[{"message":"invalid subscribe payload"}]`, string(msg.Payload))
}

func TestSubscriptions_DuplicateID(t *testing.T) {
	srv := httptest.NewServer(NewMux(newTestHandler(t), nil))
	defer srv.Close()
	conn := dial(t, srv)

	subscribe(t, conn, "1", `subscription { tokens { id } }`)
	require.Equal(t, msgNext, read(t, conn).Type)
	subscribe(t, conn, "1", `subscription { tokens { id } }`)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, closeDuplicateID), "got %v", err)
}

func TestCheckOrigin(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest("GET", "http://api.example/subscriptions", nil)
	require.True(t, h.checkOrigin(req))
	req.Header.Set("Origin", "http://api.example")
	require.True(t, h.checkOrigin(req))
	req.Header.Set("Origin", "http://evil.example")
	require.False(t, h.checkOrigin(req))

	h = newTestHandler(t, WithCORS("http://evil.example"))
	require.True(t, h.checkOrigin(req))
}
