// Package metrics exposes the Prometheus counters and histograms the
// lending service records, lazily initialised and registered exactly once
// behind a sync.Once singleton.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type registry struct {
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	loansOpened    *prometheus.CounterVec
	liquidations   *prometheus.CounterVec
	marginCalls    *prometheus.CounterVec
	oracleFetches  *prometheus.CounterVec
	stakingPayouts prometheus.Counter
}

var (
	registeredOnce sync.Once
	reg            *registry
)

func get() *registry {
	registeredOnce.Do(func() {
		reg = &registry{
			httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendingd",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests by route and status class.",
			}, []string{"route", "method", "status"}),
			httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lendingd",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP handler latency distribution.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			loansOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendingd",
				Subsystem: "loans",
				Name:      "opened_total",
				Help:      "Loans created, by collateral and borrow asset.",
			}, []string{"collateral", "borrow"}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendingd",
				Subsystem: "risk",
				Name:      "liquidations_total",
				Help:      "Loans liquidated, by collateral asset.",
			}, []string{"collateral"}),
			marginCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendingd",
				Subsystem: "risk",
				Name:      "margin_calls_total",
				Help:      "Margin-call alerts raised, by severity.",
			}, []string{"alert_type"}),
			oracleFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendingd",
				Subsystem: "oracle",
				Name:      "fetches_total",
				Help:      "External price feed fetch attempts, by outcome.",
			}, []string{"outcome"}),
			stakingPayouts: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "lendingd",
				Subsystem: "staking",
				Name:      "distributions_total",
				Help:      "Completed daily staking distributions.",
			}),
		}
		prometheus.MustRegister(
			reg.httpRequests,
			reg.httpDuration,
			reg.loansOpened,
			reg.liquidations,
			reg.marginCalls,
			reg.oracleFetches,
			reg.stakingPayouts,
		)
	})
	return reg
}

// ObserveHTTP records one completed HTTP request.
func ObserveHTTP(route, method string, status int, duration time.Duration) {
	r := get()
	r.httpRequests.WithLabelValues(route, method, statusClass(status)).Inc()
	r.httpDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordLoanOpened increments the loans-opened counter.
func RecordLoanOpened(collateral, borrow string) {
	get().loansOpened.WithLabelValues(collateral, borrow).Inc()
}

// RecordLiquidation increments the liquidations counter.
func RecordLiquidation(collateral string) {
	get().liquidations.WithLabelValues(collateral).Inc()
}

// RecordMarginCall increments the margin-call counter.
func RecordMarginCall(alertType string) {
	get().marginCalls.WithLabelValues(alertType).Inc()
}

// RecordOracleFetch increments the oracle fetch counter.
func RecordOracleFetch(outcome string) {
	get().oracleFetches.WithLabelValues(outcome).Inc()
}

// RecordStakingDistribution increments the staking distribution counter.
func RecordStakingDistribution() {
	get().stakingPayouts.Inc()
}

// Handler returns the Prometheus scrape endpoint handler.
func Handler() http.Handler {
	get()
	return promhttp.Handler()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
