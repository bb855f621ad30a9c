package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	store "github.com/hanpama/entityql/internal/store"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// DefaultSubjectPrefix is the subject prefix used when none is configured.
const DefaultSubjectPrefix = "entityql.changes"

// transport is the part of a NATS connection the feed uses.
type transport interface {
	publish(subject string, data []byte) error
	subscribe(subject string, fn func(data []byte)) (unsubscribe func() error, err error)
}

type natsTransport struct{ conn *nats.Conn }

func (t natsTransport) publish(subject string, data []byte) error {
	return t.conn.Publish(subject, data)
}

func (t natsTransport) subscribe(subject string, fn func([]byte)) (func() error, error) {
	sub, err := t.conn.Subscribe(subject, func(msg *nats.Msg) { fn(msg.Data) })
	if err != nil {
		return nil, err
	}
	return sub.Unsubscribe, nil
}

// NATS is a Feed over core NATS subjects. Changes are published as JSON on
// <prefix>.<subgraph>.<entity type>, so several server processes share one
// stream of changes.
type NATS struct {
	transport transport
	prefix    string
	logger    zerolog.Logger
}

type NATSOption func(*NATS)

func WithSubjectPrefix(prefix string) NATSOption {
	return func(f *NATS) {
		if prefix != "" {
			f.prefix = strings.TrimSuffix(prefix, ".")
		}
	}
}

func WithLogger(l zerolog.Logger) NATSOption {
	return func(f *NATS) { f.logger = l }
}

func NewNATS(conn *nats.Conn, opts ...NATSOption) *NATS {
	return newNATS(natsTransport{conn: conn}, opts...)
}

func newNATS(t transport, opts ...NATSOption) *NATS {
	f := &NATS{transport: t, prefix: DefaultSubjectPrefix, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Connect dials a NATS server for use by a feed.
func Connect(url, name string) (*nats.Conn, error) {
	return nats.Connect(url, nats.Name(name), nats.MaxReconnects(-1))
}

// Subject returns the subject changes to the pair are published on.
func (f *NATS) Subject(filter store.SubscriptionFilter) string {
	return fmt.Sprintf("%s.%s.%s", f.prefix, filter.SubgraphID, filter.EntityType)
}

func (f *NATS) Publish(_ context.Context, changes []store.EntityChange) error {
	for _, c := range changes {
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("encode change: %w", err)
		}
		if err := f.transport.publish(f.Subject(filterOf(c)), data); err != nil {
			return fmt.Errorf("publish change: %w", err)
		}
	}
	return nil
}

// Subscribe opens one NATS subscription per watched pair. They are all
// dropped when ctx is done.
func (f *NATS) Subscribe(ctx context.Context, filters []store.SubscriptionFilter) (<-chan struct{}, error) {
	sig := newSignal()
	var unsubs []func() error
	drop := func() {
		for _, unsub := range unsubs {
			if err := unsub(); err != nil {
				f.logger.Warn().Err(err).Msg("nats unsubscribe failed")
			}
		}
		sig.close()
	}
	for filter := range filterSet(filters) {
		subject := f.Subject(filter)
		unsub, err := f.transport.subscribe(subject, func(data []byte) {
			var c store.EntityChange
			if err := json.Unmarshal(data, &c); err != nil {
				f.logger.Warn().Err(err).Str("subject", subject).Msg("dropping malformed change")
				return
			}
			if filter.Matches(c) {
				sig.notify()
			}
		})
		if err != nil {
			drop()
			return nil, fmt.Errorf("subscribe %s: %w", subject, err)
		}
		unsubs = append(unsubs, unsub)
	}
	go func() {
		<-ctx.Done()
		drop()
	}()
	return sig.ch, nil
}
