// Package indicator computes the momentum series driving entries: Wilder
// RSI, Price Strength (EMA of RSI), Volume Strength (linearly weighted MA of
// RSI), ATR as an SMA of True Range, and session VWAP. Outputs are
// explicitly not-ready until each lookback window is satisfied; a value is
// never silently zero.
package indicator

import (
	"errors"
	"fmt"

	"github.com/markcheno/go-talib"

	"optrix/internal/market"
)

// ErrNotReady signals insufficient history for the requested index.
var ErrNotReady = errors.New("indicator: lookback not satisfied")

// Config holds the lookback parameters.
type Config struct {
	RSIPeriod    int // Wilder smoothing 1/period
	PSSpan       int // EMA span over RSI (fast line)
	VSWindow     int // LWMA window over RSI (slow line)
	ATRPeriod    int // SMA window over True Range
	ATRAvgWindow int // rolling average of ATR for the volatility ratio band
}

func (c *Config) applyDefaults() {
	if c.RSIPeriod <= 0 {
		c.RSIPeriod = 14
	}
	if c.PSSpan <= 0 {
		c.PSSpan = 3
	}
	if c.VSWindow <= 0 {
		c.VSWindow = 21
	}
	if c.ATRPeriod <= 0 {
		c.ATRPeriod = 14
	}
	if c.ATRAvgWindow <= 0 {
		c.ATRAvgWindow = 20
	}
}

// Snapshot is the indicator state aligned to one bar.
type Snapshot struct {
	RSI            float64 `json:"rsi"`
	PriceStrength  float64 `json:"price_strength"`
	VolumeStrength float64 `json:"volume_strength"`
	ATR            float64 `json:"atr"`
	ATRAvg         float64 `json:"atr_avg"`
	VWAP           float64 `json:"vwap"`
}

// Set holds all series aligned to the input bar slice, plus the first index
// at which each series is defined.
type Set struct {
	cfg Config

	rsi    []float64
	ps     []float64
	vs     []float64
	atr    []float64
	atrAvg []float64
	vwap   []float64

	rsiStart    int
	psStart     int
	vsStart     int
	atrStart    int
	atrAvgStart int
}

// MinBars returns the minimum history for a fully-defined snapshot.
func (c Config) MinBars() int {
	c.applyDefaults()
	slow := c.RSIPeriod + c.VSWindow // VS is the slowest RSI derivative
	atr := c.ATRPeriod + c.ATRAvgWindow
	if atr > slow {
		slow = atr
	}
	return slow + 1
}

// Compute builds all series over the bars (oldest first).
func Compute(bars []market.Bar, cfg Config) (*Set, error) {
	cfg.applyDefaults()
	n := len(bars)
	if n == 0 {
		return nil, fmt.Errorf("indicator: no bars")
	}

	closes := make([]float64, n)
	for i, b := range bars {
		closes[i] = b.Close
	}

	s := &Set{cfg: cfg}

	// RSI: talib implements Wilder smoothing (factor 1/period); values are
	// defined from index period onward.
	s.rsi = talib.Rsi(closes, cfg.RSIPeriod)
	s.rsiStart = cfg.RSIPeriod

	// PS/VS smooth the valid RSI region only, so leading zeros in the raw
	// talib output never leak into the derivatives.
	if n > s.rsiStart {
		valid := s.rsi[s.rsiStart:]
		ps := talib.Ema(valid, cfg.PSSpan)
		vs := talib.Wma(valid, cfg.VSWindow)
		s.ps = alignBack(ps, n, s.rsiStart)
		s.vs = alignBack(vs, n, s.rsiStart)
		s.psStart = s.rsiStart + cfg.PSSpan - 1
		s.vsStart = s.rsiStart + cfg.VSWindow - 1
	} else {
		s.ps = make([]float64, n)
		s.vs = make([]float64, n)
		s.psStart = n
		s.vsStart = n
	}

	// ATR: SMA of True Range. TR at index 0 has no previous close and is
	// excluded from the window, so ATR is defined from atrPeriod onward.
	tr := trueRange(bars)
	if n > 1 {
		atr := talib.Sma(tr[1:], cfg.ATRPeriod)
		s.atr = alignBack(atr, n, 1)
		s.atrStart = cfg.ATRPeriod
		atrValid := s.atr[s.atrStart:]
		if len(atrValid) > 0 {
			avg := talib.Sma(atrValid, cfg.ATRAvgWindow)
			s.atrAvg = alignBack(avg, n, s.atrStart)
			s.atrAvgStart = s.atrStart + cfg.ATRAvgWindow - 1
		} else {
			s.atrAvg = make([]float64, n)
			s.atrAvgStart = n
		}
	} else {
		s.atr = make([]float64, n)
		s.atrAvg = make([]float64, n)
		s.atrStart = n
		s.atrAvgStart = n
	}

	s.vwap = sessionVWAP(bars)
	return s, nil
}

// At returns the snapshot for bar index i, or ErrNotReady while any series
// is still inside its lookback.
func (s *Set) At(i int) (Snapshot, error) {
	if i < 0 || i >= len(s.rsi) {
		return Snapshot{}, fmt.Errorf("indicator: index %d out of range", i)
	}
	if !s.Ready(i) {
		return Snapshot{}, ErrNotReady
	}
	return Snapshot{
		RSI:            s.rsi[i],
		PriceStrength:  s.ps[i],
		VolumeStrength: s.vs[i],
		ATR:            s.atr[i],
		ATRAvg:         s.atrAvg[i],
		VWAP:           s.vwap[i],
	}, nil
}

// Ready reports whether every series is defined at index i.
func (s *Set) Ready(i int) bool {
	return i >= s.rsiStart && i >= s.psStart && i >= s.vsStart &&
		i >= s.atrStart && i >= s.atrAvgStart
}

// Len returns the series length.
func (s *Set) Len() int { return len(s.rsi) }

// alignBack pads a series computed over bars[offset:] back to full length.
func alignBack(series []float64, n, offset int) []float64 {
	out := make([]float64, n)
	copy(out[offset:], series)
	return out
}

func trueRange(bars []market.Bar) []float64 {
	tr := make([]float64, len(bars))
	for i, b := range bars {
		if i == 0 {
			tr[i] = b.High - b.Low
			continue
		}
		prevClose := bars[i-1].Close
		hl := b.High - b.Low
		hc := abs(b.High - prevClose)
		lc := abs(b.Low - prevClose)
		tr[i] = max3(hl, hc, lc)
	}
	return tr
}

// sessionVWAP accumulates typical price x volume from each session start,
// resetting on calendar-day change. When the session has no volume at all
// (index instruments), it degrades to a cumulative mean of typical price.
func sessionVWAP(bars []market.Bar) []float64 {
	out := make([]float64, len(bars))
	var cumPV, cumVol, cumTP float64
	var count int
	var day string
	for i, b := range bars {
		d := b.Time.Format("2006-01-02")
		if d != day {
			day = d
			cumPV, cumVol, cumTP, count = 0, 0, 0, 0
		}
		tp := b.TypicalPrice()
		cumPV += tp * b.Volume
		cumVol += b.Volume
		cumTP += tp
		count++
		if cumVol > 0 {
			out[i] = cumPV / cumVol
		} else {
			out[i] = cumTP / float64(count)
		}
	}
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func max3(a, b, c float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}
