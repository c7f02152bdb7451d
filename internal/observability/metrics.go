package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_requests_total",
			Help: "Total storefront API requests",
		}, []string{"code"},
	)
	Latency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "storefront_request_duration_seconds",
		Help:    "Request latency seconds",
		Buckets: prometheus.DefBuckets,
	})
	InFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_in_flight",
		Help: "In-flight HTTP requests",
	})
	EvaluationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storefront_evaluations_total",
		Help: "Total customer attribute evaluations",
	})
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_decisions_total",
			Help: "Product decisions by visibility outcome",
		}, []string{"outcome"},
	)
	SnapshotRebuilds = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storefront_snapshot_rebuilds_total",
		Help: "Rule snapshot rebuilds",
	})
	OffersExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storefront_offers_expired_total",
		Help: "Perpetual offers observed expired at evaluation time",
	})
)

func init() {
	prometheus.MustRegister(
		RequestsTotal, Latency, InFlight,
		EvaluationsTotal, DecisionsTotal, SnapshotRebuilds, OffersExpired,
	)
}

func MetricsHandler() http.Handler { return promhttp.Handler() }

type rec struct {
	http.ResponseWriter
	code int
}

func (r *rec) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func Measure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		InFlight.Inc()
		defer InFlight.Dec()

		rr := &rec{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rr, r)

		Latency.Observe(time.Since(start).Seconds())
		RequestsTotal.WithLabelValues(strconv.Itoa(rr.code)).Inc()
	})
}
