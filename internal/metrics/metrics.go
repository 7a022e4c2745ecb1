package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/elys-network/yieldhook/internal/types"
	"github.com/elys-network/yieldhook/internal/utils"
)

const namespace = "yieldhook"

// Metrics records committed router events and API traffic on a private registry.
type Metrics struct {
	registry     *prometheus.Registry
	events       *prometheus.CounterVec
	amounts      *prometheus.CounterVec
	claimed      *prometheus.CounterVec
	reserveRatio prometheus.Gauge
	requests     *prometheus.CounterVec
	durations    *prometheus.HistogramVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "events_total",
			Help:      "Committed router events by type and asset.",
		}, []string{"type", "asset"}),
		amounts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "moved_amount_total",
			Help:      "Base units moved into and out of lending, by direction and asset.",
		}, []string{"direction", "asset"}),
		claimed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "claimed_rewards_total",
			Help:      "Reward base units claimed per harvested asset.",
		}, []string{"asset"}),
		reserveRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "reserve_ratio_bps",
			Help:      "Current reserve ratio in basis points.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "HTTP requests processed by the router API.",
		}, []string{"route", "method", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	m.registry.MustRegister(m.events, m.amounts, m.claimed, m.reserveRatio, m.requests, m.durations)
	return m
}

// SetReserveRatio seeds the gauge before the first ratio update event.
func (m *Metrics) SetReserveRatio(bps uint64) {
	m.reserveRatio.Set(float64(bps))
}

// HandleEvent implements events.Sink.
func (m *Metrics) HandleEvent(_ context.Context, event types.RouterEvent) error {
	m.events.WithLabelValues(string(event.Type), event.Asset).Inc()

	switch event.Type {
	case types.EventAssetStaked:
		m.amounts.WithLabelValues("deposit", event.Asset).Add(toFloat(event.Amount))
	case types.EventAssetWithdrawn:
		m.amounts.WithLabelValues("withdraw", event.Asset).Add(toFloat(event.Amount))
	case types.EventYieldHarvested:
		m.claimed.WithLabelValues(event.Asset).Add(toFloat(event.Claimed))
	case types.EventReserveRatioUpdated:
		m.reserveRatio.Set(float64(event.NewRatioBps))
	}
	return nil
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware counts requests by mux route template.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		m.requests.WithLabelValues(route, r.Method, strconv.Itoa(recorder.status)).Inc()
		m.durations.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// toFloat converts base units for counters. Values above 2^53 lose precision.
func toFloat(v sdkmath.Int) float64 {
	if v.IsNil() {
		return 0
	}
	f, err := utils.SDKIntToFloat64(v, 0)
	if err != nil {
		return 0
	}
	return f
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
