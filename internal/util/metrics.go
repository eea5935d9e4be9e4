package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TicketsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickets_created_total",
		Help: "Total number of tickets created, by initial status",
	}, []string{"status"})

	TicketsPaidTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tickets_paid_total",
		Help: "Total number of tickets that transitioned to paid",
	})

	PaymentConfirmationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_confirmations_total",
		Help: "Payment confirmations by outcome",
	}, []string{"outcome"})

	SignatureFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_signature_failures_total",
		Help: "Rejected payment gateway signatures",
	}, []string{"source"})

	CheckInsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkins_total",
		Help: "Check-in attempts by outcome",
	}, []string{"outcome"})

	TicketTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticket_transitions_total",
		Help: "Administrative ticket transitions by kind and outcome",
	}, []string{"transition", "outcome"})

	FallbackStoreHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fallback_store_hits_total",
		Help: "Operations served by the in-process fallback store",
	}, []string{"operation"})

	StoreUnavailableTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "persistent_store_unavailable_total",
		Help: "Persistent store calls that failed with an infrastructure error",
	}, []string{"operation"})

	NotificationsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_sent_total",
		Help: "Notifications dispatched by channel and outcome",
	}, []string{"channel", "outcome"})

	CheckInLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkin_latency_seconds",
		Help:    "Latency of check-in decisions",
		Buckets: prometheus.DefBuckets,
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
