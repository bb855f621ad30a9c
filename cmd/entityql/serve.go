package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	changefeed "github.com/hanpama/entityql/internal/changefeed"
	config "github.com/hanpama/entityql/internal/config"
	eventbus "github.com/hanpama/entityql/internal/eventbus"
	execution "github.com/hanpama/entityql/internal/execution"
	introspection "github.com/hanpama/entityql/internal/introspection"
	logging "github.com/hanpama/entityql/internal/logging"
	metrics "github.com/hanpama/entityql/internal/metrics"
	otel "github.com/hanpama/entityql/internal/otel"
	query "github.com/hanpama/entityql/internal/query"
	resolver "github.com/hanpama/entityql/internal/resolver"
	schema "github.com/hanpama/entityql/internal/schema"
	server "github.com/hanpama/entityql/internal/server"
	store "github.com/hanpama/entityql/internal/store"
	memstore "github.com/hanpama/entityql/internal/store/memstore"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(root *rootOptions) *cobra.Command {
	var (
		addr, schemaPath, fixtures, natsURL, logLevel, otelEndpoint, metricsAddr string
		introspect                                                               bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve GraphQL queries and subscriptions over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			override := func(name string, apply func()) {
				if flags.Changed(name) {
					apply()
				}
			}
			override("addr", func() { cfg.Server.Addr = addr })
			override("schema", func() { cfg.GraphQL.Schema = schemaPath })
			override("introspection", func() { cfg.GraphQL.Introspection = introspect })
			override("fixtures", func() { cfg.Store.Fixtures = fixtures })
			override("nats-url", func() { cfg.Feed.NATSURL = natsURL })
			override("log-level", func() { cfg.Log.Level = logLevel })
			override("otel-endpoint", func() { cfg.OTel.Endpoint = otelEndpoint })
			override("metrics-addr", func() { cfg.Metrics.Addr = metricsAddr })
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logging.New(logging.Config{
				Level:  cfg.Log.Level,
				Pretty: cfg.Log.Pretty,
				Output: cmd.ErrOrStderr(),
			}))
		},
	}
	f := cmd.Flags()
	f.StringVar(&addr, "addr", "", "HTTP listen address (default :8000)")
	f.StringVar(&schemaPath, "schema", "", "GraphQL SDL file")
	f.BoolVar(&introspect, "introspection", true, "answer __schema and __type")
	f.StringVar(&fixtures, "fixtures", "", "YAML fixtures loaded into the in-memory store")
	f.StringVar(&natsURL, "nats-url", "", "NATS server for the change feed")
	f.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	f.StringVar(&otelEndpoint, "otel-endpoint", "", "OTLP gRPC collector endpoint")
	f.StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics on a separate listener")
	return cmd
}

// components is everything serve wires together.
type components struct {
	store    *memstore.Store
	feed     changefeed.Feed
	executor *execution.Executor
	handler  *server.Handler
	metrics  *metrics.Metrics
	closers  []func()
}

func (c *components) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

func build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*components, error) {
	c := &components{}
	bus := eventbus.New()
	eventbus.Use(bus)
	c.closers = append(c.closers, func() { eventbus.Use(nil) }, logging.Subscribe(bus, log))
	c.metrics = metrics.New()
	c.closers = append(c.closers, c.metrics.Subscribe(bus))

	sch, err := loadSchema(cfg.GraphQL.Schema)
	if err != nil {
		c.close()
		return nil, err
	}
	if c.store, err = loadStore(sch, cfg.Store.Fixtures); err != nil {
		c.close()
		return nil, err
	}

	if cfg.Feed.NATSURL != "" {
		conn, err := changefeed.Connect(cfg.Feed.NATSURL, "entityql")
		if err != nil {
			c.close()
			return nil, fmt.Errorf("connect change feed: %w", err)
		}
		c.closers = append(c.closers, conn.Close)
		c.feed = changefeed.NewNATS(conn,
			changefeed.WithSubjectPrefix(cfg.Feed.SubjectPrefix),
			changefeed.WithLogger(log))
	} else {
		c.feed = changefeed.NewMemory()
	}
	c.closers = append(c.closers, changefeed.Forward(ctx, c.store, c.feed, log))

	data := resolver.NewStoreResolver(c.store,
		resolver.NewPermits(cfg.Limits.MaxConcurrentQueries),
		resolver.WithChangeSource(c.feed),
		resolver.WithLogger(log))
	c.executor = newExecutor(cfg, sch, data, c.store.LatestBlock, log)
	opts := []server.Option{
		server.WithTimeout(cfg.Server.Timeout),
		server.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		server.WithLogger(log),
	}
	if cfg.Server.Pretty {
		opts = append(opts, server.WithPretty())
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		opts = append(opts, server.WithCORS(cfg.Server.CORSOrigins...))
	}
	c.handler = server.New(c.executor, opts...)
	return c, nil
}

func newExecutor(cfg *config.Config, sch *schema.Schema, data resolver.Resolver, latest func() store.BlockNumber, log zerolog.Logger) *execution.Executor {
	if cfg.GraphQL.Block > 0 {
		pinned := store.BlockNumber(cfg.GraphQL.Block)
		latest = func() store.BlockNumber { return pinned }
	}
	opts := []execution.Option{
		execution.WithLimits(query.Limits{MaxFirst: cfg.GraphQL.MaxFirst, MaxSkip: cfg.GraphQL.MaxSkip}),
		execution.WithLogger(log),
		execution.WithBlockSource(latest),
	}
	if cfg.Limits.ResultCacheSize > 0 {
		opts = append(opts, execution.WithCache(cfg.Limits.ResultCacheSize))
		if cfg.Server.Timeout > 0 {
			opts = append(opts, execution.WithSharedTimeout(cfg.Server.Timeout))
		}
	}
	if cfg.GraphQL.Introspection {
		sch = introspection.Extend(sch)
		opts = append(opts, execution.WithIntrospection(introspection.New(sch)))
	}
	return execution.NewExecutor(sch, data, opts...)
}

func serve(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	c, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer c.close()

	shutdown, err := otel.Setup(cfg.OTel.Endpoint, cfg.OTel.Service)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	var servers []*http.Server
	if cfg.Metrics.Addr == "" {
		servers = append(servers, &http.Server{Addr: cfg.Server.Addr, Handler: server.NewMux(c.handler, c.metrics.Handler())})
	} else {
		servers = append(servers,
			&http.Server{Addr: cfg.Server.Addr, Handler: server.NewMux(c.handler, nil)},
			&http.Server{Addr: cfg.Metrics.Addr, Handler: c.metrics.Handler()})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			log.Info().Str("addr", srv.Addr).Msg("listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		for _, srv := range servers {
			if err := srv.Shutdown(sctx); err != nil {
				log.Warn().Err(err).Str("addr", srv.Addr).Msg("shutdown")
			}
		}
		return nil
	})
	err = g.Wait()
	log.Info().Msg("stopped")
	return err
}
