package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "docshare"

var (
	// Labels: method, route, status
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests handled",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	DocumentsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "documents",
		Name:      "created_total",
		Help:      "Documents created",
	})

	VersionsSaved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "documents",
		Name:      "versions_saved_total",
		Help:      "Versions appended to documents",
	})

	// Labels: outcome (success or the invite_member error code)
	Invites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sharing",
		Name:      "invites_total",
		Help:      "invite_member calls by outcome",
	}, []string{"outcome"})

	MembersRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sharing",
		Name:      "members_removed_total",
		Help:      "Membership rows deleted",
	})

	// Labels: result (sent, rate_limited, error)
	MagicLinks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "magic_links_total",
		Help:      "Magic link requests by result",
	}, []string{"result"})

	SocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "socket",
		Name:      "connections",
		Help:      "Open activity sockets",
	})
)
