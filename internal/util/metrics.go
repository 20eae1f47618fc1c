package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	CheckoutFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_failed_total",
		Help: "Total number of rejected or failed checkouts",
	}, []string{"reason"})

	CheckoutLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkout_latency_seconds",
		Help:    "Latency of checkout processing",
		Buckets: prometheus.DefBuckets,
	})

	GiftCardRedemptionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gift_card_redemptions_total",
		Help: "Total number of gift card redemptions applied to orders",
	})

	PaymentAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_attempts_total",
		Help: "Total number of simulated card payments attempted",
	})

	PaymentRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_rejected_total",
		Help: "Total number of rejected card payments",
	}, []string{"reason"})

	NotificationsEnqueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifications_enqueued_total",
		Help: "Total number of notification jobs accepted by the queue",
	})

	NotificationsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_sent_total",
		Help: "Total number of notifications handed to a provider",
	}, []string{"provider"})

	NotificationAttemptsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notification_attempts_failed_total",
		Help: "Total number of notification attempts where every transport failed",
	})

	NotificationsDeadLetteredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifications_dead_lettered_total",
		Help: "Total number of notification jobs pushed to the dead-letter sink",
	})

	NotificationCircuitOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "notification_circuit_open",
		Help: "1 when the primary transport circuit breaker is open",
	})

	InvoiceCacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invoice_cache_lookups_total",
		Help: "Invoice PDF cache lookups by result",
	}, []string{"result"})

	InvoiceRenderLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "invoice_render_latency_seconds",
		Help:    "Latency of invoice PDF rendering",
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
