package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "morphgate_operations_total",
		Help: "The total number of gateway operations processed",
	}, []string{"op", "status"})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "morphgate_latency_bucket",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	Rejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "morphgate_rejects_total",
		Help: "Total pre-flight validation rejections",
	}, []string{"reason"})

	MarketEfficiency = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "morphgate_market_efficiency_percent",
		Help: "Matched/pooled efficiency percentage per market",
	}, []string{"market"})
)
