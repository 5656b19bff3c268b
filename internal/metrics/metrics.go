// Package metrics registers the engine's prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "optrix_ticks_total",
		Help: "Segment agent ticks processed.",
	}, []string{"segment"})

	ResolverTierHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "optrix_resolver_tier_hits_total",
		Help: "Candle resolutions by fallback tier.",
	}, []string{"segment", "tier"})

	ResolverFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "optrix_resolver_failures_total",
		Help: "Ticks aborted because every resolver tier failed.",
	}, []string{"segment"})

	EntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "optrix_entries_total",
		Help: "Accepted leg entries.",
	}, []string{"segment", "leg"})

	RiskBreaches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "optrix_risk_breaches_total",
		Help: "Risk breaches by kind (loss_limit, profit_lock).",
	}, []string{"kind"})

	UnrealizedPnL = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "optrix_unrealized_pnl",
		Help: "Unrealized P&L across open positions.",
	})
)
