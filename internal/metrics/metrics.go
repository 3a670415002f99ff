package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "abxy_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "abxy_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	UsersRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "abxy_users_registered_total",
			Help: "Total users registered",
		},
	)

	Logins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "abxy_logins_total",
			Help: "Total login attempts",
		},
		[]string{"result"}, // "success" or "failure"
	)

	MessagesPosted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "abxy_messages_posted_total",
			Help: "Total messages posted",
		},
	)

	GraphQLOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "abxy_graphql_operations_total",
			Help: "Total GraphQL operations executed",
		},
		[]string{"operation", "result"}, // result: "ok" or "error"
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "abxy_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "abxy_blocked_requests_total",
			Help: "Requests refused before routing",
		},
		[]string{"reason"},
	)

	IPAutoBlocks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "abxy_ip_auto_blocks_total",
			Help: "IPs banned for repeated rate limit violations",
		},
	)
)
