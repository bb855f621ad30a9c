// Package logging builds the service logger and logs bus events.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	eventbus "github.com/hanpama/entityql/internal/eventbus"
	events "github.com/hanpama/entityql/internal/events"
	reqid "github.com/hanpama/entityql/internal/reqid"
	"github.com/rs/zerolog"
)

// Config holds logger configuration.
type Config struct {
	Level  string // debug, info, warn, error
	Pretty bool   // console output for development
	Output io.Writer
}

// SlowPermitWait is the wait above which a permit acquisition is logged.
const SlowPermitWait = time.Second

// New creates the service logger. Unknown levels fall back to info.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("service", "entityql").
		Logger()
}

func withRequest(ctx context.Context, log zerolog.Logger) *zerolog.Logger {
	if id, ok := reqid.FromContext(ctx); ok {
		log = log.With().Str("request_id", id).Logger()
	}
	return &log
}

// Subscribe logs events published on bus.
func Subscribe(bus *eventbus.Bus, log zerolog.Logger) (unsubscribe func()) {
	offs := []func(){
		eventbus.On(bus, func(ctx context.Context, e events.QueryBuilt) {
			l := withRequest(ctx, log)
			if e.Err != nil {
				l.Debug().Err(e.Err).Msg("entity query rejected")
				return
			}
			l.Debug().Str("subgraph", e.SubgraphID).Strs("types", e.EntityTypes).Msg("entity query built")
		}),
		eventbus.On(bus, func(ctx context.Context, e events.GraphQLFinish) {
			withRequest(ctx, log).Info().
				Str("operation", e.OperationName).
				Str("type", e.OperationType).
				Int("errors", len(e.Errors)).
				Bool("cached", e.Cached).
				Dur("duration", e.Duration).
				Msg("operation finished")
		}),
		eventbus.On(bus, func(ctx context.Context, e events.PermitAcquired) {
			if e.Wait > SlowPermitWait {
				withRequest(ctx, log).Warn().Dur("wait", e.Wait).Msg("slow query permit")
			}
		}),
		eventbus.On(bus, func(ctx context.Context, e events.SubscriptionOpened) {
			withRequest(ctx, log).Debug().Str("subscription", e.ID).Str("field", e.Field).Int("watching", e.Watching).Msg("subscription opened")
		}),
		eventbus.On(bus, func(ctx context.Context, e events.SubscriptionClosed) {
			withRequest(ctx, log).Debug().Str("subscription", e.ID).Int("updates", e.Updates).Msg("subscription closed")
		}),
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}
