package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	execution "github.com/hanpama/entityql/internal/execution"
	resolver "github.com/hanpama/entityql/internal/resolver"
	"github.com/rs/zerolog"
)

// subprotocol is the GraphQL over websocket protocol spoken on /subscriptions.
const subprotocol = "graphql-transport-ws"

// Message types of the protocol.
const (
	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgPing           = "ping"
	msgPong           = "pong"
	msgSubscribe      = "subscribe"
	msgNext           = "next"
	msgError          = "error"
	msgComplete       = "complete"
)

// closeDuplicateID is sent when a client reuses an active operation id.
const closeDuplicateID = 4409

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// wsConn serializes writes; gorilla connections allow one writer at a time.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(id, typ string, payload any) error {
	msg := wsMessage{ID: id, Type: typ}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		msg.Payload = raw
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

func (c *wsConn) close(code int, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(h.opt.CORS.AllowedOrigins) > 0 {
		return originAllowed(h.opt.CORS, origin)
	}
	u, err := url.Parse(origin)
	return err == nil && u.Host == r.Host
}

// serveSubscriptions runs one websocket connection. Each subscribe message
// starts an operation that lives until the client completes it, its change
// stream ends, or the connection closes.
func (h *Handler) serveSubscriptions(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.opt.Logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	ws := &wsConn{conn: conn}
	ctx, cancel := context.WithCancel(r.Context())
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ops = map[string]context.CancelFunc{}
	)
	defer conn.Close()
	defer wg.Wait()
	defer cancel()

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case msgConnectionInit:
			_ = ws.send("", msgConnectionAck, nil)
		case msgPing:
			_ = ws.send("", msgPong, nil)
		case msgSubscribe:
			var req GraphQLRequest
			if err := json.Unmarshal(msg.Payload, &req); err != nil || req.Query == "" {
				_ = ws.send(msg.ID, msgError, []*resolver.Error{{Message: "invalid subscribe payload"}})
				continue
			}
			mu.Lock()
			if _, dup := ops[msg.ID]; dup {
				mu.Unlock()
				ws.close(closeDuplicateID, "Subscriber for "+msg.ID+" already exists")
				return
			}
			opCtx, opCancel := context.WithCancel(ctx)
			ops[msg.ID] = opCancel
			mu.Unlock()

			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				h.runSubscription(opCtx, ws, id, req)
				mu.Lock()
				delete(ops, id)
				mu.Unlock()
				opCancel()
			}(msg.ID)
		case msgComplete:
			mu.Lock()
			if opCancel, ok := ops[msg.ID]; ok {
				opCancel()
			}
			mu.Unlock()
		}
	}
}

func (h *Handler) runSubscription(ctx context.Context, ws *wsConn, id string, req GraphQLRequest) {
	log := h.opt.Logger.With().Str("subscription", id).Logger()
	results, err := h.exec.Subscribe(ctx, execution.Request{
		Query:         req.Query,
		OperationName: req.OperationName,
		Variables:     req.Variables,
	})
	if err != nil {
		log.Debug().Err(err).Msg("subscription rejected")
		_ = ws.send(id, msgError, []*resolver.Error{{Message: err.Error()}})
		return
	}
	first := true
	for res := range results {
		if first && res.Data == nil && res.HasErrors() {
			_ = ws.send(id, msgError, res.Errors)
			return
		}
		first = false
		if err := ws.send(id, msgNext, res); err != nil {
			logWriteError(log, err)
			return
		}
	}
	if ctx.Err() == nil {
		_ = ws.send(id, msgComplete, nil)
	}
}

func logWriteError(log zerolog.Logger, err error) {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return
	}
	log.Debug().Err(err).Msg("websocket write failed")
}
