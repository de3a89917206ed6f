/*

Package metrics exposes the vault's Prometheus collectors: ledger gauges refreshed by the keeper,
event counters fed through the event sink interface, and request counters for the API.

*/

package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/elys-network/clvault/internal/types"
)

const namespace = "clvault"

// Metrics holds every collector on its own registry.
type Metrics struct {
	registry *prometheus.Registry
	decimals int32

	TotalShares     prometheus.Gauge
	TotalAssets     prometheus.Gauge
	IdleAssets      prometheus.Gauge
	LiquidityAssets prometheus.Gauge
	NetValue        prometheus.Gauge
	Positions       prometheus.Gauge
	Accounts        prometheus.Gauge

	EventsTotal         *prometheus.CounterVec
	KeeperCyclesTotal   *prometheus.CounterVec
	KeeperCycleDuration prometheus.Histogram

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New builds and registers the collectors. ioDecimals scales asset gauges to whole token units.
func New(ioDecimals int32) *Metrics {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Subsystem: "vault", Name: name, Help: help})
	}
	m := &Metrics{
		registry:        prometheus.NewRegistry(),
		decimals:        ioDecimals,
		TotalShares:     gauge("total_shares", "Outstanding vault shares in whole units"),
		TotalAssets:     gauge("total_assets", "Vault and asset manager holdings in whole underlying units"),
		IdleAssets:      gauge("idle_assets", "Undeployed underlying in whole units"),
		LiquidityAssets: gauge("liquidity_assets", "Underlying value of open positions in whole units"),
		NetValue:        gauge("net_value", "Underlying per share"),
		Positions:       gauge("positions", "Positions tracked by the position manager"),
		Accounts:        gauge("accounts", "Share ledger accounts"),
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Committed events by name",
		}, []string{"event"}),
		KeeperCyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keeper",
			Name:      "cycles_total",
			Help:      "Keeper cycles by result",
		}, []string{"result"}),
		KeeperCycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "keeper",
			Name:      "cycle_duration_seconds",
			Help:      "Keeper cycle duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "API requests by route and status code",
		}, []string{"route", "code"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "API request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.TotalShares, m.TotalAssets, m.IdleAssets, m.LiquidityAssets, m.NetValue, m.Positions, m.Accounts,
		m.EventsTotal, m.KeeperCyclesTotal, m.KeeperCycleDuration,
		m.HTTPRequestsTotal, m.HTTPRequestDuration,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Emit counts committed events.
func (m *Metrics) Emit(_ context.Context, ev types.Event) {
	m.EventsTotal.WithLabelValues(ev.EventName()).Inc()
}

var _ types.EventSink = (*Metrics)(nil)

// ObserveState refreshes the ledger gauges.
func (m *Metrics) ObserveState(st types.VaultState) {
	m.TotalShares.Set(Scaled(st.TotalShares, m.decimals))
	m.TotalAssets.Set(Scaled(st.TotalAssets, m.decimals))
	m.IdleAssets.Set(Scaled(st.IdleAssets, m.decimals))
	m.LiquidityAssets.Set(Scaled(st.LiquidityAssets, m.decimals))
	m.NetValue.Set(Scaled(st.NetValue, 18))
	m.Positions.Set(float64(len(st.Positions)))
	m.Accounts.Set(float64(st.Accounts))
}

// RecordCycle counts one keeper cycle and its duration.
func (m *Metrics) RecordCycle(success bool, elapsed time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.KeeperCyclesTotal.WithLabelValues(result).Inc()
	m.KeeperCycleDuration.Observe(elapsed.Seconds())
}

// RecordHTTPRequest counts one API request against its route template.
func (m *Metrics) RecordHTTPRequest(route string, code int, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// Scaled converts a raw amount with the given decimals to a float for display.
func Scaled(v sdkmath.Int, decimals int32) float64 {
	if v.IsNil() {
		return 0
	}
	return decimal.NewFromBigInt(v.BigInt(), -decimals).InexactFloat64()
}
