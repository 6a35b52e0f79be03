// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	InboundMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_inbound_messages_total",
			Help: "Inbound chat messages accepted, by kind",
		},
		[]string{"kind"},
	)

	DuplicatesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_inbound_duplicates_total",
			Help: "Inbound messages dropped because their id was already seen",
		},
	)

	SignatureFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_signature_failures_total",
			Help: "Webhook deliveries rejected for a bad or missing signature",
		},
	)

	DeliveryStatuses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_delivery_statuses_total",
			Help: "Delivery receipts received for outbound messages, by status",
		},
		[]string{"status"},
	)

	DispatchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_dispatch_failures_total",
			Help: "Inbound messages whose processing failed, by reason",
		},
		[]string{"reason"},
	)

	DispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_dispatch_duration_seconds",
			Help:    "Time spent handling one inbound message",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
	)

	OutboundSends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_outbound_sends_total",
			Help: "Outbound messages sent to the provider, by kind and status",
		},
		[]string{"kind", "status"},
	)

	TicketsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tickets_issued_total",
			Help: "Orders whose ticket was delivered for the first time",
		},
	)

	Validations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_validations_total",
			Help: "Ticket scans, by result",
		},
		[]string{"result"},
	)

	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_goroutines_total",
			Help: "Current number of active goroutines",
		},
	)
)

// Since observes the elapsed time of a dispatch started at start.
func Since(start time.Time) {
	DispatchDuration.Observe(time.Since(start).Seconds())
}

// SampleRuntime refreshes the runtime gauges.  Called by the /metrics handler
// before serving a scrape.
func SampleRuntime() {
	goroutineCount.Set(float64(runtime.NumGoroutine()))
}
