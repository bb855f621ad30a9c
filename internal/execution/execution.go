// Package execution runs GraphQL operations against a resolver.Resolver.
//
// The engine owns field collection order, argument coercion, value
// completion and null propagation; every data access goes through the
// resolver. Root fields named __schema and __type are answered by the
// introspection resolver when one is configured, together with everything
// below them.
package execution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	eventbus "github.com/hanpama/entityql/internal/eventbus"
	events "github.com/hanpama/entityql/internal/events"
	language "github.com/hanpama/entityql/internal/language"
	query "github.com/hanpama/entityql/internal/query"
	resolver "github.com/hanpama/entityql/internal/resolver"
	schema "github.com/hanpama/entityql/internal/schema"
	store "github.com/hanpama/entityql/internal/store"
	value "github.com/hanpama/entityql/internal/value"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Request is one GraphQL request.
type Request struct {
	Query string
	// Document is the parsed and validated Query. When nil, Query is parsed
	// and validated by Execute.
	Document      *language.QueryDocument
	OperationName string
	Variables     map[string]any
	// Block pins the request to a block. Nil reads the latest block.
	Block *store.BlockNumber
}

// Executor executes requests against one schema.
type Executor struct {
	schema        *schema.Schema
	resolver      resolver.Resolver
	introspection resolver.Resolver
	limits        query.Limits
	logger        zerolog.Logger
	latest        func() store.BlockNumber
	cache         *resultCache
	group         singleflight.Group
	sharedTimeout time.Duration
}

// DefaultSharedTimeout is the deadline of a run shared by several callers.
const DefaultSharedTimeout = 30 * time.Second

type Option func(*Executor)

// WithIntrospection answers __schema and __type through r.
func WithIntrospection(r resolver.Resolver) Option {
	return func(e *Executor) { e.introspection = r }
}

func WithLimits(l query.Limits) Option {
	return func(e *Executor) { e.limits = l }
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithBlockSource sets how the latest block is found for requests that do
// not pin one.
func WithBlockSource(latest func() store.BlockNumber) Option {
	return func(e *Executor) { e.latest = latest }
}

// WithSharedTimeout bounds a cached request run on behalf of several
// callers. Defaults to DefaultSharedTimeout.
func WithSharedTimeout(d time.Duration) Option {
	return func(e *Executor) { e.sharedTimeout = d }
}

// WithCache memoizes up to size results of cacheable resolvers. Only
// error-free results of queries pinned to a known block are kept.
func WithCache(size int) Option {
	return func(e *Executor) {
		if size > 0 {
			e.cache = newResultCache(size)
		}
	}
}

func NewExecutor(s *schema.Schema, r resolver.Resolver, opts ...Option) *Executor {
	e := &Executor{
		schema:        s,
		resolver:      r,
		limits:        query.Limits{MaxFirst: 1000, MaxSkip: 5000},
		logger:        zerolog.Nop(),
		sharedTimeout: DefaultSharedTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Schema returns the schema requests are executed against.
func (e *Executor) Schema() *schema.Schema { return e.schema }

// prepared is a request whose document, operation and variables are known.
type prepared struct {
	req       Request
	doc       *language.QueryDocument
	op        *language.OperationDefinition
	variables map[string]value.Value
	block     store.BlockNumber
}

// prepare parses, validates and coerces a request. Problems with the request
// itself are returned as a result.
func (e *Executor) prepare(req Request) (*prepared, *resolver.Result) {
	doc := req.Document
	if doc == nil {
		var errs []*resolver.Error
		doc, errs = e.parse(req.Query)
		if len(errs) > 0 {
			return nil, &resolver.Result{Errors: errs}
		}
	}
	op := getOperation(doc, req.OperationName)
	if op == nil {
		msg := "operation not found"
		if req.OperationName != "" {
			msg = fmt.Sprintf("Unknown operation named %q", req.OperationName)
		}
		return nil, errorResult(errors.New(msg))
	}
	vars, err := coerceVariableValues(e.schema, op, req.Variables)
	if err != nil {
		return nil, errorResult(err)
	}
	block := e.latestBlock()
	if req.Block != nil {
		block = *req.Block
	}
	return &prepared{req: req, doc: doc, op: op, variables: vars, block: block}, nil
}

func (e *Executor) latestBlock() store.BlockNumber {
	if e.latest == nil {
		return store.BlockNumberMax
	}
	return e.latest()
}

func (e *Executor) parse(src string) (*language.QueryDocument, []*resolver.Error) {
	if sd := e.schema.Document(); sd != nil {
		doc, errs := language.LoadQuery(sd, src)
		if len(errs) > 0 {
			out := make([]*resolver.Error, len(errs))
			for i, err := range errs {
				out[i] = &resolver.Error{Message: err.Message}
			}
			return nil, out
		}
		return doc, nil
	}
	doc, err := language.ParseQuery(src)
	if err != nil {
		return nil, []*resolver.Error{{Message: err.Error()}}
	}
	return doc, nil
}

func errorResult(err error) *resolver.Result {
	return &resolver.Result{Errors: []*resolver.Error{resolver.NewError(err, nil)}}
}

// Execute runs a query or mutation. Request and field errors are reported
// in the result; the returned error is set only when ctx ends before the
// request is admitted or when an internal guarantee breaks.
func (e *Executor) Execute(ctx context.Context, req Request) (*resolver.Result, error) {
	p, res := e.prepare(req)
	if res != nil {
		return res, nil
	}
	if p.op.Operation == language.Subscription {
		return errorResult(errors.New("subscriptions must be executed with Subscribe")), nil
	}
	if e.cache == nil || !e.resolver.Cacheable() || p.op.Operation != language.Query || p.block == store.BlockNumberMax {
		return e.run(ctx, p)
	}

	key, err := cacheKey(p)
	if err != nil {
		return e.run(ctx, p)
	}
	if cached, ok := e.cache.get(key); ok {
		eventbus.Publish(ctx, events.GraphQLFinish{
			Query:         req.Query,
			OperationName: req.OperationName,
			OperationType: string(p.op.Operation),
			Cached:        true,
		})
		return cached, nil
	}
	// Callers of the same request share one run. It outlives any single
	// caller, so it gets its own deadline instead of the caller's.
	shared := context.WithoutCancel(ctx)
	ch := e.group.DoChan(key, func() (any, error) {
		runCtx, cancel := context.WithTimeout(shared, e.sharedTimeout)
		defer cancel()
		res, err := e.run(runCtx, p)
		if err == nil && !res.HasErrors() {
			e.cache.add(key, res)
		}
		return res, err
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*resolver.Result), nil
	}
}

// run executes a prepared request under a query permit.
func (e *Executor) run(ctx context.Context, p *prepared) (*resolver.Result, error) {
	permit, err := e.resolver.QueryPermit(ctx)
	if err != nil {
		return nil, err
	}
	defer permit.Release()

	start := time.Now()
	eventbus.Publish(ctx, events.GraphQLStart{
		Query:         p.req.Query,
		OperationName: p.req.OperationName,
		OperationType: string(p.op.Operation),
	})

	ec := &resolver.ExecutionContext{
		Context:   ctx,
		Schema:    e.schema,
		Document:  p.doc,
		Operation: p.op,
		Variables: p.variables,
		Block:     p.block,
		Limits:    e.limits,
		Logger:    e.logger.With().Str("operation", p.op.Name).Str("type", string(p.op.Operation)).Logger(),
	}
	res, err := e.execute(ec)
	if err == nil {
		err = e.resolver.PostProcess(res)
	}

	finish := events.GraphQLFinish{
		Query:         p.req.Query,
		OperationName: p.req.OperationName,
		OperationType: string(p.op.Operation),
		Duration:      time.Since(start),
	}
	if err != nil {
		finish.Errors = []error{err}
	} else {
		for _, fe := range res.Errors {
			finish.Errors = append(finish.Errors, fe)
		}
	}
	eventbus.Publish(ctx, finish)

	if err != nil {
		ec.Logger.Error().Err(err).Msg("execution aborted")
		return nil, err
	}
	return res, nil
}

// execute resolves the operation's selection set. A panic below it is an
// internal defect and aborts the request.
func (e *Executor) execute(ec *resolver.ExecutionContext) (res *resolver.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = nil, resolver.Defectf("%v", p)
		}
	}()

	root := ec.RootType()
	if root == nil {
		return errorResult(fmt.Errorf("schema does not support %s operations", ec.Operation.Operation)), nil
	}

	var rootValue value.Object
	prefetched, errs := e.resolver.Prefetch(ec, ec.Operation.SelectionSet)
	if len(errs) > 0 {
		res := &resolver.Result{Data: value.Null{}}
		for _, err := range errs {
			var defect *resolver.Defect
			if errors.As(err, &defect) {
				return nil, defect
			}
			res.Errors = append(res.Errors, resolver.NewError(err, nil))
		}
		return res, nil
	}
	if obj, ok := prefetched.(value.Object); ok {
		rootValue = obj
	}

	st := &executionState{ec: ec, executor: e}
	data := st.executeRoot(root, rootValue)
	if st.defect != nil {
		return nil, st.defect
	}
	out := &resolver.Result{Data: data, Errors: st.errors}
	if data == nil {
		out.Data = value.Null{}
	}
	return out, nil
}

// resolverFor picks the resolver answering a root field and its subtree.
func (e *Executor) resolverFor(fieldName string) resolver.Resolver {
	if e.introspection != nil && strings.HasPrefix(fieldName, "__") {
		return e.introspection
	}
	return e.resolver
}

// getOperation retrieves the operation from the document
func getOperation(document *language.QueryDocument, operationName string) *language.OperationDefinition {
	if operationName == "" && len(document.Operations) == 1 {
		return document.Operations[0]
	}
	if operationName == "" {
		return nil
	}
	return document.Operations.ForName(operationName)
}
