// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "zine"

// Metrics is the set of collectors, registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	FollowActions     *prometheus.CounterVec
	MarkToggles       *prometheus.CounterVec
	Votes             *prometheus.CounterVec
	FanMailPosts      *prometheus.CounterVec
	ListenerSnapshots *prometheus.CounterVec
	ListenerErrors    *prometheus.CounterVec
	CatalogRefreshes  *prometheus.CounterVec
	CatalogZines      prometheus.Gauge
	ImageCache        *prometheus.CounterVec
	PassportRender    prometheus.Histogram
	ActiveSessions    prometheus.Gauge
	SSEClients        prometheus.Gauge
}

// New creates and registers all collectors, plus the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		FollowActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "follow_actions_total",
			Help: "Follow store actions by action and result.",
		}, []string{"action", "result"}),
		MarkToggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "issue_mark_toggles_total",
			Help: "Bookmark and read toggles by kind and resulting state.",
		}, []string{"kind", "state"}),
		Votes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "fanmail_votes_total",
			Help: "Fan mail votes by final vote value.",
		}, []string{"final"}),
		FanMailPosts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "fanmail_posts_total",
			Help: "Fan mail posts by result.",
		}, []string{"result"}),
		ListenerSnapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "listener_snapshots_total",
			Help: "Snapshots applied by document listeners.",
		}, []string{"listener"}),
		ListenerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "listener_errors_total",
			Help: "Errors delivered to document listeners.",
		}, []string{"listener"}),
		CatalogRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "catalog_refreshes_total",
			Help: "Catalog refreshes by result.",
		}, []string{"result"}),
		CatalogZines: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "catalog_zines",
			Help: "Zines in the loaded catalog.",
		}),
		ImageCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "image_cache_lookups_total",
			Help: "Image cache lookups by the tier that served them.",
		}, []string{"tier"}),
		PassportRender: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "passport_render_seconds",
			Help:    "Passport render duration.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "active_sessions",
			Help: "User sessions currently open.",
		}),
		SSEClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "sse_clients",
			Help: "Connected event stream clients.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.FollowActions, m.MarkToggles, m.Votes, m.FanMailPosts,
		m.ListenerSnapshots, m.ListenerErrors,
		m.CatalogRefreshes, m.CatalogZines,
		m.ImageCache, m.PassportRender,
		m.ActiveSessions, m.SSEClients,
	)
	return m
}

// Registry exposes the registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Result labels an operation outcome.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
