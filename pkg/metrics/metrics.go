// Package metrics holds the prometheus collectors shared by the gateway,
// the session registry and the client data service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SessionsOpen is the number of live registry entries.
var SessionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "budget_gateway_sessions_open",
	Help: "Number of warehouse sessions currently held by the registry",
})

// SessionsOpened counts sessions inserted into the registry.
var SessionsOpened = promauto.NewCounter(prometheus.CounterOpts{
	Name: "budget_gateway_sessions_opened_total",
	Help: "Total number of warehouse sessions opened",
})

// SessionsClosed counts registry removals by reason (disconnect, evicted, shutdown).
var SessionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "budget_gateway_sessions_closed_total",
	Help: "Total number of warehouse sessions closed, by reason",
}, []string{"reason"})

// SessionCloseFailures counts remote teardowns that reported an error.
var SessionCloseFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "budget_gateway_session_close_failures_total",
	Help: "Total number of warehouse session teardowns that failed on the remote end",
})

// ConnectFailures counts failed session opens.
var ConnectFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "budget_gateway_connect_failures_total",
	Help: "Total number of failed warehouse connection attempts",
})

// QueryDuration observes statement execution time, by driver.
var QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "budget_gateway_query_duration_seconds",
	Help:    "Warehouse statement execution duration in seconds",
	Buckets: prometheus.DefBuckets,
}, []string{"driver"})

// QueryErrors counts failed statements, by driver.
var QueryErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "budget_gateway_query_errors_total",
	Help: "Total number of failed warehouse statements",
}, []string{"driver"})

// FallbackReads counts client data service reads served from fixtures after
// a backend failure, by backend kind.
var FallbackReads = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "budget_gateway_fallback_reads_total",
	Help: "Total number of reads that fell back to fixture data, by backend",
}, []string{"backend"})
