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

	OrdersPaidTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_paid_total",
		Help: "Total number of orders marked paid",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of rejected order creation attempts",
	}, []string{"reason"})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhook_events_total",
		Help: "Payment webhook deliveries by outcome",
	}, []string{"outcome"})

	DuplicateWebhooksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_webhook_duplicates_total",
		Help: "Webhook deliveries whose provider event id was already seen",
	})

	PaymentAmountMismatchTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_amount_mismatch_total",
		Help: "Provider-reported amounts that differ from the order total",
	})

	StockDecrementFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_decrement_failures_total",
		Help: "Post-payment stock decrements that failed and need manual correction",
	})

	CartRefreshChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_refresh_changes_total",
		Help: "Cart drift reconciliations that surfaced a change",
	}, []string{"kind"})

	ReceiptsSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "receipts_sent_total",
		Help: "Purchase receipt emails sent",
	})

	ReceiptsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "receipts_failed_total",
		Help: "Purchase receipt emails that failed to send",
	})

	AdminStreamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "admin_stream_clients",
		Help: "Currently connected admin stream clients",
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
