package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	eventbus "github.com/hanpama/entityql/internal/eventbus"
	events "github.com/hanpama/entityql/internal/events"
	execution "github.com/hanpama/entityql/internal/execution"
	reqid "github.com/hanpama/entityql/internal/reqid"
	resolver "github.com/hanpama/entityql/internal/resolver"
	"github.com/rs/zerolog"
)

// Handler is an http.Handler that serves a GraphQL endpoint.
// It parses requests, runs the executor, and writes GraphQL over HTTP responses.
// Websocket upgrade requests are served as subscriptions.
type Handler struct {
	exec     *execution.Executor
	opt      Options
	upgrader websocket.Upgrader
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout. Subscriptions are not bounded by it.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions

	Logger zerolog.Logger
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithLogger(l zerolog.Logger) Option { return func(o *Options) { o.Logger = l } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

// New creates a new GraphQL HTTP handler around exec.
func New(exec *execution.Executor, opts ...Option) *Handler {
	op := Options{Timeout: 10 * time.Second, Logger: zerolog.Nop()}
	for _, f := range opts {
		f(&op)
	}
	h := &Handler{exec: exec, opt: op}
	h.upgrader = websocket.Upgrader{
		Subprotocols: []string{subprotocol},
		CheckOrigin:  h.checkOrigin,
	}
	return h
}

// NewMux routes /graphql and /subscriptions to h, /healthz to a liveness
// probe, and /metrics to metrics when it is not nil.
func NewMux(h *Handler, metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/graphql", h)
	mux.Handle("/subscriptions", h)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
	return mux
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, rid := reqid.NewContext(r.Context(), r.Header.Get(reqid.Header))
	w.Header().Set(reqid.Header, rid)
	status := http.StatusOK
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Request: r})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{Request: r, Status: status, Duration: time.Since(start)})
	}()

	if websocket.IsWebSocketUpgrade(r) {
		status = http.StatusSwitchingProtocols
		h.serveSubscriptions(w, r.WithContext(ctx))
		return
	}

	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}

	if r.Method == http.MethodOptions {
		if len(h.opt.CORS.AllowedOrigins) > 0 {
			setCORSHeaders(w, r, h.opt.CORS)
		}
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	}

	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		status = http.StatusMethodNotAllowed
		writeJSON(w, status, errorResponse("method not allowed"), h.opt.Pretty)
		return
	}

	req, batch, berr := parseRequest(r, h.opt.MaxBodyBytes)
	if berr != nil {
		status = http.StatusBadRequest
		if errors.Is(berr, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, errorResponse(berr.Error()), h.opt.Pretty)
		return
	}

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}

	// A batch answers with the most severe status of its requests.
	if batch != nil {
		out := make([]any, len(batch))
		for i := range batch {
			var s int
			out[i], s = h.executeOne(ctx, batch[i])
			status = max(status, s)
		}
		writeJSON(w, status, out, h.opt.Pretty)
		return
	}

	var res any
	res, status = h.executeOne(ctx, req)
	writeJSON(w, status, res, h.opt.Pretty)
}

// executeOne runs one request and returns its response body and status.
func (h *Handler) executeOne(ctx context.Context, req GraphQLRequest) (any, int) {
	res, err := h.exec.Execute(ctx, execution.Request{
		Query:         req.Query,
		OperationName: req.OperationName,
		Variables:     req.Variables,
	})
	if err == nil {
		return res, http.StatusOK
	}

	log := h.opt.Logger.With().Str("operation", req.OperationName).Logger()
	if id, ok := reqid.FromContext(ctx); ok {
		log = log.With().Str("request_id", id).Logger()
	}
	var defect *resolver.Defect
	switch {
	case errors.As(err, &defect):
		log.Error().Err(err).Msg("request aborted")
		return errorResponse(err.Error()), http.StatusInternalServerError
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn().Msg("request timed out")
		return errorResponse("request timed out"), http.StatusServiceUnavailable
	default:
		log.Warn().Err(err).Msg("request abandoned")
		return errorResponse(err.Error()), http.StatusServiceUnavailable
	}
}

// ------------------ Request parsing ------------------

type GraphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

var (
	errBodyTooLarge   = errors.New("body too large")
	errMissingQuery   = errors.New("missing 'query'")
	errInvalidJSON    = errors.New("invalid JSON")
	errEmptyBatch     = errors.New("empty batch")
	errContentType    = errors.New("unsupported Content-Type")
	errVariablesJSON  = errors.New("invalid 'variables' JSON")
	errBodyUnreadable = errors.New("failed to read body")
)

func parseRequest(r *http.Request, maxBody int64) (GraphQLRequest, []GraphQLRequest, error) {
	if r.Method == http.MethodGet {
		q := r.URL.Query().Get("query")
		if q == "" {
			return GraphQLRequest{}, nil, errMissingQuery
		}
		vars := map[string]any{}
		if v := r.URL.Query().Get("variables"); v != "" {
			if err := json.Unmarshal([]byte(v), &vars); err != nil {
				return GraphQLRequest{}, nil, errVariablesJSON
			}
		}
		op := r.URL.Query().Get("operationName")
		return GraphQLRequest{Query: q, Variables: vars, OperationName: op}, nil, nil
	}

	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" && !strings.HasPrefix(ct, "application/json;") {
		return GraphQLRequest{}, nil, errContentType
	}
	defer r.Body.Close()
	reader := io.Reader(r.Body)
	if maxBody > 0 {
		reader = io.LimitReader(r.Body, maxBody+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return GraphQLRequest{}, nil, errBodyUnreadable
	}
	if maxBody > 0 && int64(len(body)) > maxBody {
		return GraphQLRequest{}, nil, errBodyTooLarge
	}

	if len(body) > 0 && body[0] == '[' {
		var arr []GraphQLRequest
		if err := json.Unmarshal(body, &arr); err != nil {
			return GraphQLRequest{}, nil, errInvalidJSON
		}
		if len(arr) == 0 {
			return GraphQLRequest{}, nil, errEmptyBatch
		}
		return GraphQLRequest{}, arr, nil
	}
	var req GraphQLRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return GraphQLRequest{}, nil, errInvalidJSON
	}
	if req.Query == "" {
		return GraphQLRequest{}, nil, errMissingQuery
	}
	return req, nil, nil
}

// ------------------ Response formatting ------------------

func errorResponse(message string) *resolver.Result {
	return &resolver.Result{Errors: []*resolver.Error{{Message: message}}}
}

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" || !originAllowed(opts, origin) {
		return
	}
	if contains(opts.AllowedOrigins, "*") {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	}
}

func originAllowed(opts CORSOptions, origin string) bool {
	for _, o := range opts.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
