package signal

import (
	"fmt"
	"math"

	"optrix/internal/analysis/indicator"
)

// Thresholds holds the per-segment filter parameters. Callers pass the
// regime-specific values from config; defaults fill the gaps.
type Thresholds struct {
	// Session window: skip the first and last minutes of the session.
	EntryDelayMin  int
	EntryCutoffMin int

	// ATR / rolling-average-ATR ratio band.
	ATRRatioMin float64
	ATRRatioMax float64

	// RSI extreme guard per leg direction.
	RSIUpper float64 // block bullish entries above this
	RSILower float64 // block bearish entries below this

	// PS/VS percentage-difference band. The tight range applies when the
	// secondary timeframe agrees in sign with the primary, wide otherwise.
	DiffTightMin float64
	DiffTightMax float64
	DiffWideMin  float64
	DiffWideMax  float64

	// Secondary volume spike confirmation.
	VolumeSpikeMult   float64
	VolumeSpikeWindow int
}

func (t *Thresholds) applyDefaults() {
	if t.EntryDelayMin <= 0 {
		t.EntryDelayMin = 15
	}
	if t.EntryCutoffMin <= 0 {
		t.EntryCutoffMin = 30
	}
	if t.ATRRatioMin <= 0 {
		t.ATRRatioMin = 0.5
	}
	if t.ATRRatioMax <= 0 {
		t.ATRRatioMax = 2.5
	}
	if t.RSIUpper <= 0 {
		t.RSIUpper = 75
	}
	if t.RSILower <= 0 {
		t.RSILower = 25
	}
	if t.DiffTightMax <= 0 {
		t.DiffTightMax = 8
	}
	if t.DiffWideMax <= 0 {
		t.DiffWideMax = 15
	}
	if t.VolumeSpikeMult <= 0 {
		t.VolumeSpikeMult = 1.5
	}
	if t.VolumeSpikeWindow <= 0 {
		t.VolumeSpikeWindow = 10
	}
}

// runFilters evaluates every filter regardless of earlier failures so the
// diagnostic trail is complete.
func (g *Generator) runFilters(in Input, leg Leg, cross Cross, prev, cur indicator.Snapshot) []FilterResult {
	g.mu.RLock()
	th := g.thresholds
	g.mu.RUnlock()
	trail := make([]FilterResult, 0, 8)

	trail = append(trail, g.sessionWindow(in, th))
	trail = append(trail, g.atrBand(cur, th))
	trail = append(trail, g.rsiGuard(cross, cur, th))
	trail = append(trail, g.reentryDirection(in, leg, cross))

	secCur, secPrev, secOK := secondarySnapshots(in)
	trail = append(trail, g.diffBand(cur, secCur, secOK, th))
	trail = append(trail, g.secondaryAlignment(cross, secCur, secOK))
	trail = append(trail, g.momentumDirection(cross, secPrev, secCur, secOK))
	trail = append(trail, g.divergence(cross, prev, cur, secPrev, secCur, secOK))
	trail = append(trail, g.volumeSpike(in, th, secOK))

	return trail
}

func secondarySnapshots(in Input) (cur, prev indicator.Snapshot, ok bool) {
	if in.Secondary == nil || in.Secondary.Len() < 2 {
		return indicator.Snapshot{}, indicator.Snapshot{}, false
	}
	i := in.Secondary.Len() - 1
	c, err := in.Secondary.At(i)
	if err != nil {
		return indicator.Snapshot{}, indicator.Snapshot{}, false
	}
	p, err := in.Secondary.At(i - 1)
	if err != nil {
		return indicator.Snapshot{}, indicator.Snapshot{}, false
	}
	return c, p, true
}

func (g *Generator) sessionWindow(in Input, th Thresholds) FilterResult {
	since := in.Session.MinutesSinceOpen(in.Now)
	until := in.Session.MinutesToClose(in.Now)
	res := FilterResult{
		Name:   "session_window",
		Values: map[string]float64{"minutes_since_open": float64(since), "minutes_to_close": float64(until)},
	}
	switch {
	case since < th.EntryDelayMin:
		res.Reason = fmt.Sprintf("within first %d minutes of session", th.EntryDelayMin)
	case until < th.EntryCutoffMin:
		res.Reason = fmt.Sprintf("within last %d minutes of session", th.EntryCutoffMin)
	default:
		res.Pass = true
	}
	return res
}

func (g *Generator) atrBand(cur indicator.Snapshot, th Thresholds) FilterResult {
	res := FilterResult{Name: "atr_band"}
	if cur.ATRAvg <= 0 {
		res.Reason = "atr average undefined"
		return res
	}
	ratio := cur.ATR / cur.ATRAvg
	res.Values = map[string]float64{"atr": cur.ATR, "atr_avg": cur.ATRAvg, "ratio": ratio}
	if ratio < th.ATRRatioMin {
		res.Reason = fmt.Sprintf("volatility ratio %.2f below %.2f", ratio, th.ATRRatioMin)
	} else if ratio > th.ATRRatioMax {
		res.Reason = fmt.Sprintf("volatility ratio %.2f above %.2f", ratio, th.ATRRatioMax)
	} else {
		res.Pass = true
	}
	return res
}

func (g *Generator) rsiGuard(cross Cross, cur indicator.Snapshot, th Thresholds) FilterResult {
	res := FilterResult{Name: "rsi_guard", Values: map[string]float64{"rsi": cur.RSI}}
	switch cross {
	case CrossBullish:
		if cur.RSI > th.RSIUpper {
			res.Reason = fmt.Sprintf("rsi %.1f above %.1f, overextended", cur.RSI, th.RSIUpper)
			return res
		}
	case CrossBearish:
		if cur.RSI < th.RSILower {
			res.Reason = fmt.Sprintf("rsi %.1f below %.1f, overextended", cur.RSI, th.RSILower)
			return res
		}
	}
	res.Pass = true
	return res
}

// reentryDirection blocks a leg that is waiting out a stop-loss exit until
// the crossover direction that legitimately re-opens it appears.
func (g *Generator) reentryDirection(in Input, leg Leg, cross Cross) FilterResult {
	res := FilterResult{Name: "reentry_direction"}
	required, waiting := in.ReentryWait[leg]
	if !waiting || required == cross {
		res.Pass = true
		return res
	}
	res.Reason = fmt.Sprintf("leg %s waiting for %s crossover, got %s", leg, required, cross)
	return res
}

// diffBand checks the PS/VS percentage difference. The band is tight when
// the secondary timeframe agrees in sign with the primary, wide otherwise.
func (g *Generator) diffBand(cur, secCur indicator.Snapshot, secOK bool, th Thresholds) FilterResult {
	res := FilterResult{Name: "psvs_diff_band"}
	if cur.VolumeStrength == 0 {
		res.Reason = "volume strength zero"
		return res
	}
	diff := math.Abs(cur.PriceStrength-cur.VolumeStrength) / math.Abs(cur.VolumeStrength) * 100

	lo, hi := th.DiffWideMin, th.DiffWideMax
	band := "wide"
	if secOK {
		primarySign := sign(cur.PriceStrength - cur.VolumeStrength)
		secondarySign := sign(secCur.PriceStrength - secCur.VolumeStrength)
		if primarySign == secondarySign {
			lo, hi = th.DiffTightMin, th.DiffTightMax
			band = "tight"
		}
	}
	res.Values = map[string]float64{"diff_pct": diff, "band_min": lo, "band_max": hi}
	if diff < lo {
		res.Reason = fmt.Sprintf("%s band: diff %.2f%% below %.2f%%", band, diff, lo)
	} else if diff > hi {
		res.Reason = fmt.Sprintf("%s band: diff %.2f%% above %.2f%%", band, diff, hi)
	} else {
		res.Pass = true
	}
	return res
}

// secondaryAlignment requires the faster timeframe's PS/VS relationship to
// agree with the crossover direction. Degrades to pass without a secondary.
func (g *Generator) secondaryAlignment(cross Cross, secCur indicator.Snapshot, secOK bool) FilterResult {
	res := FilterResult{Name: "secondary_alignment"}
	if !secOK {
		res.Pass = true
		res.Reason = "secondary unavailable, pass"
		return res
	}
	res.Values = map[string]float64{"sec_ps": secCur.PriceStrength, "sec_vs": secCur.VolumeStrength}
	aligned := (cross == CrossBullish && secCur.PriceStrength > secCur.VolumeStrength) ||
		(cross == CrossBearish && secCur.PriceStrength < secCur.VolumeStrength)
	if aligned {
		res.Pass = true
	} else {
		res.Reason = "secondary timeframe disagrees with crossover direction"
	}
	return res
}

// momentumDirection requires the secondary PS to be moving with the cross.
func (g *Generator) momentumDirection(cross Cross, secPrev, secCur indicator.Snapshot, secOK bool) FilterResult {
	res := FilterResult{Name: "momentum_direction"}
	if !secOK {
		res.Pass = true
		res.Reason = "secondary unavailable, pass"
		return res
	}
	delta := secCur.PriceStrength - secPrev.PriceStrength
	res.Values = map[string]float64{"sec_ps_delta": delta}
	with := (cross == CrossBullish && delta > 0) || (cross == CrossBearish && delta < 0)
	if with {
		res.Pass = true
	} else {
		res.Reason = "secondary momentum against crossover direction"
	}
	return res
}

// divergence vetoes when primary and secondary RSI move in opposite
// directions over the last bar, a classic exhaustion tell.
func (g *Generator) divergence(cross Cross, prev, cur, secPrev, secCur indicator.Snapshot, secOK bool) FilterResult {
	res := FilterResult{Name: "divergence"}
	if !secOK {
		res.Pass = true
		res.Reason = "secondary unavailable, pass"
		return res
	}
	pd := cur.RSI - prev.RSI
	sd := secCur.RSI - secPrev.RSI
	res.Values = map[string]float64{"primary_rsi_delta": pd, "secondary_rsi_delta": sd}
	if pd != 0 && sd != 0 && sign(pd) != sign(sd) {
		res.Reason = "primary and secondary rsi diverge"
		return res
	}
	res.Pass = true
	return res
}

// volumeSpike requires the latest secondary bar's volume to stand out
// against its recent average. Volume-less instruments pass.
func (g *Generator) volumeSpike(in Input, th Thresholds, secOK bool) FilterResult {
	res := FilterResult{Name: "volume_spike"}
	if !secOK || len(in.SecondaryBars) < th.VolumeSpikeWindow+1 {
		res.Pass = true
		res.Reason = "secondary unavailable, pass"
		return res
	}
	bars := in.SecondaryBars
	last := bars[len(bars)-1]
	var sum float64
	for _, b := range bars[len(bars)-1-th.VolumeSpikeWindow : len(bars)-1] {
		sum += b.Volume
	}
	avg := sum / float64(th.VolumeSpikeWindow)
	if avg == 0 {
		res.Pass = true
		res.Reason = "no volume data, pass"
		return res
	}
	ratio := last.Volume / avg
	res.Values = map[string]float64{"volume": last.Volume, "avg_volume": avg, "ratio": ratio}
	if ratio >= th.VolumeSpikeMult {
		res.Pass = true
	} else {
		res.Reason = fmt.Sprintf("volume ratio %.2f below %.2f", ratio, th.VolumeSpikeMult)
	}
	return res
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
