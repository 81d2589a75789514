package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Exchange API метрики
	ExchangeRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volbot_exchange_requests_total",
			Help: "Total number of exchange API requests",
		},
		[]string{"exchange", "endpoint", "status"},
	)
	ExchangeRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "volbot_exchange_request_duration_seconds",
			Help:    "Duration of exchange API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"exchange", "endpoint"},
	)
	ExchangeRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volbot_exchange_retries_total",
			Help: "Total number of retried exchange API requests",
		},
		[]string{"exchange", "endpoint"},
	)

	// Scheduler метрики
	TicksSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "volbot_ticks_skipped_total",
			Help: "Scheduler ticks skipped because a previous sweep was still running",
		},
	)
	SweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "volbot_sweep_duration_seconds",
			Help:    "Duration of a full scheduler sweep",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)
	BotExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volbot_bot_executions_total",
			Help: "Bot executions by outcome",
		},
		[]string{"symbol", "outcome"},
	)
	BotsStoppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volbot_bots_stopped_total",
			Help: "Bots switched OFF by safety checks",
		},
		[]string{"symbol", "reason"},
	)

	// Order engine метрики
	OrdersSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volbot_orders_submitted_total",
			Help: "Orders accepted by the exchange",
		},
		[]string{"exchange", "side"},
	)
	OrdersRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volbot_orders_rejected_total",
			Help: "Orders rejected by the exchange",
		},
		[]string{"exchange"},
	)

	// HTTP метрики ops API
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volbot_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "volbot_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

var registerOnce sync.Once

// InitMetrics регистрирует все метрики
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(ExchangeRequestsTotal)
		prometheus.MustRegister(ExchangeRequestDuration)
		prometheus.MustRegister(ExchangeRetriesTotal)

		prometheus.MustRegister(TicksSkippedTotal)
		prometheus.MustRegister(SweepDuration)
		prometheus.MustRegister(BotExecutionsTotal)
		prometheus.MustRegister(BotsStoppedTotal)

		prometheus.MustRegister(OrdersSubmittedTotal)
		prometheus.MustRegister(OrdersRejectedTotal)

		prometheus.MustRegister(HTTPRequestsTotal)
		prometheus.MustRegister(HTTPRequestDuration)
	})
}
