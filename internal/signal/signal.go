// Package signal turns indicator series into entry decisions. A crossover is
// detected strictly on the latest fully-closed bar against the one before
// it, so execution always lags the confirmed crossover by exactly one bar.
package signal

import (
	"sync"
	"time"

	"optrix/internal/analysis/indicator"
	"optrix/internal/logger"
	"optrix/internal/market"
)

type Leg string

const (
	LegCE Leg = "CE"
	LegPE Leg = "PE"
)

type Regime string

const (
	RegimeBuy  Regime = "buy"
	RegimeSell Regime = "sell"
)

type Cross string

const (
	CrossNone     Cross = "none"
	CrossBullish  Cross = "bullish"
	CrossBearish  Cross = "bearish"
	CrossConflict Cross = "conflict"
)

// DetectCross compares PriceStrength against VolumeStrength on two
// consecutive closed bars. Both directions true at once cannot happen with
// well-formed inputs; it is surfaced as CrossConflict rather than silently
// resolved.
func DetectCross(prevPS, prevVS, curPS, curVS float64) Cross {
	bearish := prevPS >= prevVS && curPS < curVS
	bullish := prevPS <= prevVS && curPS > curVS
	switch {
	case bearish && bullish:
		return CrossConflict
	case bearish:
		return CrossBearish
	case bullish:
		return CrossBullish
	default:
		return CrossNone
	}
}

// LegFor maps a crossover direction to the option leg to trade. In the buy
// regime the position profits from premium rising on the aligned side; in
// the sell regime the leg is inverted to collect decay on the opposite side.
func LegFor(regime Regime, cross Cross) (Leg, bool) {
	switch {
	case cross == CrossBearish && regime == RegimeBuy:
		return LegPE, true
	case cross == CrossBullish && regime == RegimeBuy:
		return LegCE, true
	case cross == CrossBearish && regime == RegimeSell:
		return LegCE, true
	case cross == CrossBullish && regime == RegimeSell:
		return LegPE, true
	default:
		return "", false
	}
}

// ReentryCross returns the crossover direction that legitimately re-opens
// the given leg in the given regime — the inverse of LegFor.
func ReentryCross(regime Regime, leg Leg) Cross {
	switch {
	case regime == RegimeBuy && leg == LegCE:
		return CrossBullish
	case regime == RegimeBuy && leg == LegPE:
		return CrossBearish
	case regime == RegimeSell && leg == LegCE:
		return CrossBearish
	default:
		return CrossBullish
	}
}

type Action string

const (
	ActionHold  Action = "hold"
	ActionEnter Action = "enter"
)

// FilterResult is one entry in the diagnostic trail.
type FilterResult struct {
	Name   string             `json:"name"`
	Pass   bool               `json:"pass"`
	Reason string             `json:"reason,omitempty"`
	Values map[string]float64 `json:"values,omitempty"`
}

// Decision is the generator output: Hold with a reason, or Enter with the
// leg and the full per-filter trail.
type Decision struct {
	Action   Action             `json:"action"`
	Leg      Leg                `json:"leg,omitempty"`
	Cross    Cross              `json:"cross"`
	Reason   string             `json:"reason"`
	Trail    []FilterResult     `json:"trail,omitempty"`
	Snapshot indicator.Snapshot `json:"snapshot"`
	BarTime  time.Time          `json:"bar_time"`
}

// Input carries everything one evaluation needs. Secondary series are
// best-effort: nil secondary degrades the confirmation filters to pass.
type Input struct {
	Now     time.Time
	Session market.Session

	Primary *indicator.Set
	Bars    []market.Bar // aligned to Primary, oldest first
	Index   int          // latest fully-closed bar

	Secondary     *indicator.Set
	SecondaryBars []market.Bar

	// ReentryWait holds the crossover direction required to re-open a leg
	// after its stop loss fired; absent means no wait state.
	ReentryWait map[Leg]Cross
}

// Generator evaluates the crossover and filter pipeline for one segment.
type Generator struct {
	regime Regime

	mu         sync.RWMutex
	thresholds Thresholds
}

func NewGenerator(regime Regime, th Thresholds) *Generator {
	th.applyDefaults()
	return &Generator{regime: regime, thresholds: th}
}

func (g *Generator) Regime() Regime { return g.regime }

// UpdateThresholds swaps the filter parameters, used by config hot reload.
// The change applies from the next Evaluate call.
func (g *Generator) UpdateThresholds(th Thresholds) {
	th.applyDefaults()
	g.mu.Lock()
	g.thresholds = th
	g.mu.Unlock()
}

// Evaluate runs crossover detection and every filter, returning the full
// trail so a rejected entry is always explainable.
func (g *Generator) Evaluate(in Input) Decision {
	dec := Decision{Action: ActionHold, Cross: CrossNone}
	if in.Index < len(in.Bars) && in.Index >= 0 {
		dec.BarTime = in.Bars[in.Index].Time
	}

	if in.Primary == nil || in.Index < 1 {
		dec.Reason = "indicator_not_ready"
		return dec
	}
	cur, err := in.Primary.At(in.Index)
	if err != nil {
		dec.Reason = "indicator_not_ready"
		return dec
	}
	prev, err := in.Primary.At(in.Index - 1)
	if err != nil {
		dec.Reason = "indicator_not_ready"
		return dec
	}
	dec.Snapshot = cur

	cross := DetectCross(prev.PriceStrength, prev.VolumeStrength, cur.PriceStrength, cur.VolumeStrength)
	dec.Cross = cross
	if cross == CrossConflict {
		logger.Errorf("signal: simultaneous bullish and bearish crossover at %s (ps %.4f/%.4f vs %.4f/%.4f)",
			dec.BarTime.Format(time.RFC3339), prev.PriceStrength, cur.PriceStrength, prev.VolumeStrength, cur.VolumeStrength)
		dec.Reason = "crossover_conflict"
		return dec
	}
	if cross == CrossNone {
		dec.Reason = "no_crossover"
		return dec
	}

	leg, ok := LegFor(g.regime, cross)
	if !ok {
		dec.Reason = "no_crossover"
		return dec
	}
	dec.Leg = leg

	trail := g.runFilters(in, leg, cross, prev, cur)
	dec.Trail = trail
	for _, f := range trail {
		if !f.Pass {
			dec.Reason = "filter_veto:" + f.Name
			return dec
		}
	}
	dec.Action = ActionEnter
	dec.Reason = "crossover_" + string(cross)
	return dec
}
