// Package metrics exposes Prometheus metrics derived from bus events.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	eventbus "github.com/hanpama/entityql/internal/eventbus"
	events "github.com/hanpama/entityql/internal/events"
	query "github.com/hanpama/entityql/internal/query"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "entityql"

// Metrics holds the collectors and the registry they live in.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	CacheHits         prometheus.Counter

	QueriesBuilt    prometheus.Counter
	CompileFailures *prometheus.CounterVec

	StoreQueries       *prometheus.CounterVec
	StoreQueryDuration prometheus.Histogram
	StoreEntities      prometheus.Histogram

	PermitWait    prometheus.Histogram
	PermitsQueued prometheus.Counter

	OpenSubscriptions   prometheus.Gauge
	SubscriptionUpdates prometheus.Counter
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{Registry: prometheus.NewRegistry()}

	m.HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by status code",
		},
		[]string{"code"},
	)
	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	m.Operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graphql_operations_total",
			Help:      "Total number of executed GraphQL operations",
		},
		[]string{"type", "status"},
	)
	m.OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "graphql_operation_duration_seconds",
			Help:      "Duration of GraphQL operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"type"},
	)
	m.CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "graphql_cache_hits_total",
		Help:      "Operations answered from the result cache",
	})

	m.QueriesBuilt = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "entity_queries_built_total",
		Help:      "Entity queries compiled from field arguments",
	})
	m.CompileFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entity_query_errors_total",
			Help:      "Entity query compilation failures by kind",
		},
		[]string{"kind"},
	)

	m.StoreQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_queries_total",
			Help:      "Entity queries executed against the store",
		},
		[]string{"status"},
	)
	m.StoreQueryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "store_query_duration_seconds",
		Help:      "Duration of store queries in seconds",
		Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})
	m.StoreEntities = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "store_query_entities",
		Help:      "Entities returned per store query",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	})

	m.PermitWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "query_permit_wait_seconds",
		Help:      "Time requests waited for a query permit",
		Buckets:   []float64{.001, .01, .1, .5, 1, 5, 10},
	})

	m.PermitsQueued = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "query_permits_queued_total",
		Help:      "Requests that found no free query permit on arrival",
	})

	m.OpenSubscriptions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "subscriptions_open",
		Help:      "Number of live subscriptions",
	})
	m.SubscriptionUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "subscription_updates_total",
		Help:      "Results pushed to closed subscriptions over their lifetime",
	})

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequests, m.HTTPRequestDuration,
		m.Operations, m.OperationDuration, m.CacheHits,
		m.QueriesBuilt, m.CompileFailures,
		m.StoreQueries, m.StoreQueryDuration, m.StoreEntities,
		m.PermitWait, m.PermitsQueued,
		m.OpenSubscriptions, m.SubscriptionUpdates,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// Subscribe updates m from events published on bus.
func (m *Metrics) Subscribe(bus *eventbus.Bus) (unsubscribe func()) {
	offs := []func(){
		eventbus.On(bus, func(_ context.Context, e events.HTTPFinish) {
			m.HTTPRequests.WithLabelValues(strconv.Itoa(e.Status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(e.Request.Method).Observe(e.Duration.Seconds())
		}),
		eventbus.On(bus, func(_ context.Context, e events.GraphQLFinish) {
			if e.Cached {
				m.CacheHits.Inc()
			}
			status := "ok"
			if len(e.Errors) > 0 {
				status = "error"
			}
			m.Operations.WithLabelValues(e.OperationType, status).Inc()
			m.OperationDuration.WithLabelValues(e.OperationType).Observe(e.Duration.Seconds())
		}),
		eventbus.On(bus, func(_ context.Context, e events.QueryBuilt) {
			if e.Err == nil {
				m.QueriesBuilt.Inc()
				return
			}
			m.CompileFailures.WithLabelValues(errorKind(e.Err)).Inc()
		}),
		eventbus.On(bus, func(_ context.Context, e events.StoreQueryFinish) {
			if e.Err != nil {
				m.StoreQueries.WithLabelValues("error").Inc()
				return
			}
			m.StoreQueries.WithLabelValues("ok").Inc()
			m.StoreQueryDuration.Observe(e.Duration.Seconds())
			m.StoreEntities.Observe(float64(e.Entities))
		}),
		eventbus.On(bus, func(_ context.Context, e events.PermitAcquired) {
			m.PermitWait.Observe(e.Wait.Seconds())
			if e.Queued {
				m.PermitsQueued.Inc()
			}
		}),
		eventbus.On(bus, func(_ context.Context, _ events.SubscriptionOpened) {
			m.OpenSubscriptions.Inc()
		}),
		eventbus.On(bus, func(_ context.Context, e events.SubscriptionClosed) {
			m.OpenSubscriptions.Dec()
			m.SubscriptionUpdates.Add(float64(e.Updates))
		}),
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}

func errorKind(err error) string {
	var qerr *query.Error
	if errors.As(err, &qerr) {
		return qerr.Kind.String()
	}
	return "other"
}
