// Package position owns the per-leg lifecycle: entry, pyramiding, trailing
// stop maintenance, exit and broker reconciliation. CE and PE are tracked
// independently; leg state is owned exclusively by one Machine and never
// shared in memory across workers.
package position

import (
	"fmt"
	"math"
	"time"

	"optrix/internal/gateway/broker"
	"optrix/internal/signal"
)

// Config is the per-segment execution parameter set.
type Config struct {
	Segment      string
	Regime       signal.Regime
	Underlying   string  // spot instrument, e.g. "NSE:NIFTY 50"
	SymbolPrefix string  // option symbol root, e.g. "NIFTY"
	Expiry       string  // current expiry code embedded in option symbols
	StrikeStep   float64 // strike rounding granularity
	LotSize      int
	Lots         int // lots added per entry/pyramid step
	MaxQuantity  int // pyramid cap in units

	StopLossPoints    float64 // buy regime: initial stop offset below entry
	StopLossPct       float64 // sell regime: initial stop percent above entry
	TrailPoints       float64 // buy regime: trail offset from highest premium
	TrailPct          float64 // sell regime: trail percent from lowest premium
	PyramidProfitStep float64 // profit-per-unit threshold scale for adding lots
}

// Leg is the runtime state of one open option leg.
type Leg struct {
	Type         signal.Leg
	Symbol       string
	Strike       float64
	Expiry       string
	Lots         int
	Quantity     int
	EntryPremium float64
	EntryTime    time.Time

	Highest      float64 // highest premium seen (buy trailing anchor)
	Lowest       float64 // lowest premium seen (sell trailing anchor)
	TrailingStop float64
	InitialStop  float64
	StopOrderID  string

	Transaction     broker.TransactionType
	ReducedFidelity bool // adopted from broker data during reconciliation
}

// Unrealized returns the leg's open P&L at the given premium.
func (l *Leg) Unrealized(premium float64) float64 {
	if l.Transaction == broker.Buy {
		return (premium - l.EntryPremium) * float64(l.Quantity)
	}
	return (l.EntryPremium - premium) * float64(l.Quantity)
}

// OptionSymbol builds the tradable contract symbol for a strike and leg.
func (c Config) OptionSymbol(strike float64, leg signal.Leg) string {
	return fmt.Sprintf("%s%s%d%s", c.SymbolPrefix, c.Expiry, int(strike), leg)
}

// ATMStrike rounds the spot to the nearest strike step.
func (c Config) ATMStrike(spot float64) float64 {
	if c.StrikeStep <= 0 {
		return math.Round(spot)
	}
	return math.Round(spot/c.StrikeStep) * c.StrikeStep
}

// entryTransaction is BUY in the buy regime and SELL in the sell regime.
func (c Config) entryTransaction() broker.TransactionType {
	if c.Regime == signal.RegimeSell {
		return broker.Sell
	}
	return broker.Buy
}

// initialStop computes the protective stop for a fresh entry.
func (c Config) initialStop(entry float64) float64 {
	if c.Regime == signal.RegimeSell {
		pct := c.StopLossPct
		if pct <= 0 {
			pct = 25
		}
		return entry * (1 + pct/100)
	}
	pts := c.StopLossPoints
	if pts <= 0 {
		pts = entry * 0.2
	}
	stop := entry - pts
	if stop < 0 {
		stop = 0
	}
	return stop
}

// trailFrom recomputes the trailing stop from the favorable extreme,
// clamped so it never regresses past the initial stop.
func (c Config) trailFrom(l *Leg) float64 {
	if c.Regime == signal.RegimeSell {
		pct := c.TrailPct
		if pct <= 0 {
			pct = 10
		}
		stop := l.Lowest * (1 + pct/100)
		if stop > l.InitialStop {
			stop = l.InitialStop
		}
		return stop
	}
	pts := c.TrailPoints
	if pts <= 0 {
		pts = l.EntryPremium * 0.1
	}
	stop := l.Highest - pts
	if stop < l.InitialStop {
		stop = l.InitialStop
	}
	return stop
}

// pyramidThreshold is the unrealized profit at which the next tranche is
// added, scaled by the quantity already on.
func (c Config) pyramidThreshold(quantity int) float64 {
	step := c.PyramidProfitStep
	if step <= 0 {
		step = 10
	}
	return step * float64(quantity)
}
