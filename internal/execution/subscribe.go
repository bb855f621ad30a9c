package execution

import (
	"context"
	"errors"

	"github.com/google/uuid"
	eventbus "github.com/hanpama/entityql/internal/eventbus"
	events "github.com/hanpama/entityql/internal/events"
	language "github.com/hanpama/entityql/internal/language"
	query "github.com/hanpama/entityql/internal/query"
	resolver "github.com/hanpama/entityql/internal/resolver"
	schema "github.com/hanpama/entityql/internal/schema"
	store "github.com/hanpama/entityql/internal/store"
)

// Subscribe executes a subscription. The returned channel yields the result
// of the operation right away and again each time the entities it selects
// change. It is closed when ctx is done, when the change stream ends, or
// after an internal error has been reported.
//
// Problems with the request itself arrive as a single result on a closed
// channel. The error is set when the resolver cannot stream the field.
func (e *Executor) Subscribe(ctx context.Context, req Request) (<-chan *resolver.Result, error) {
	p, root, field, res := e.subscriptionField(ctx, req)
	if res != nil {
		out := make(chan *resolver.Result, 1)
		out <- res
		close(out)
		return out, nil
	}

	stream, err := e.resolver.ResolveFieldStream(ctx, e.schema, root, field)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	watching := len(query.CollectEntitiesFromQueryField(e.schema, root, field))
	logger := e.logger.With().Str("subscription", id).Str("field", field.Name).Logger()

	out := make(chan *resolver.Result)
	go func() {
		defer close(out)
		updates := 0
		eventbus.Publish(ctx, events.SubscriptionOpened{ID: id, Field: field.Name, Watching: watching})
		defer func() {
			eventbus.Publish(context.WithoutCancel(ctx), events.SubscriptionClosed{ID: id, Field: field.Name, Updates: updates})
		}()
		logger.Debug().Int("watching", watching).Msg("subscription opened")

		// send executes the operation once more and delivers the result. It
		// reports whether the subscription goes on.
		send := func() bool {
			if req.Block == nil {
				p.block = e.latestBlock()
			}
			res, err := e.run(ctx, p)
			done := false
			if err != nil {
				if ctx.Err() != nil {
					return false
				}
				res, done = errorResult(err), true
			}
			select {
			case out <- res:
				updates++
				return !done
			case <-ctx.Done():
				return false
			}
		}

		if !send() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-stream:
				if !ok || !send() {
					return
				}
			}
		}
	}()
	return out, nil
}

// subscriptionField prepares req and returns the single root field it
// subscribes to, or a result describing why the request cannot subscribe.
func (e *Executor) subscriptionField(ctx context.Context, req Request) (*prepared, *schema.Type, *language.Field, *resolver.Result) {
	p, res := e.prepare(req)
	if res != nil {
		return nil, nil, nil, res
	}
	if p.op.Operation != language.Subscription {
		return nil, nil, nil, errorResult(errors.New("operation is not a subscription"))
	}
	root := e.schema.GetSubscriptionType()
	if root == nil {
		return nil, nil, nil, errorResult(errors.New("schema does not support subscription operations"))
	}
	ec := &resolver.ExecutionContext{Context: ctx, Schema: e.schema, Document: p.doc, Operation: p.op, Variables: p.variables}
	groups := ec.CollectFields(root, p.op.SelectionSet)
	if len(groups) != 1 {
		return nil, nil, nil, errorResult(errors.New("a subscription must select exactly one top level field"))
	}
	return p, root, groups[0].Field(), nil
}

// WatchSet returns the entity types a subscription request depends on,
// without opening a change stream.
func (e *Executor) WatchSet(req Request) ([]store.SubscriptionFilter, error) {
	_, root, field, res := e.subscriptionField(context.Background(), req)
	if res != nil {
		return nil, res.Errors[0]
	}
	return query.CollectEntitiesFromQueryField(e.schema, root, field), nil
}
