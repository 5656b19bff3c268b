package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"optrix/internal/market"
)

func testBars(n int, start time.Time, step time.Duration, closes func(i int) float64) []market.Bar {
	bars := make([]market.Bar, n)
	for i := 0; i < n; i++ {
		c := closes(i)
		bars[i] = market.Bar{
			Time:   start.Add(time.Duration(i) * step),
			Open:   c - 1,
			High:   c + 2,
			Low:    c - 2,
			Close:  c,
			Volume: 100,
		}
	}
	return bars
}

func smallConfig() Config {
	return Config{RSIPeriod: 3, PSSpan: 2, VSWindow: 3, ATRPeriod: 3, ATRAvgWindow: 2}
}

func TestComputeReadyBoundary(t *testing.T) {
	cfg := smallConfig()
	start := time.Date(2026, 8, 31, 9, 15, 0, 0, time.UTC)
	bars := testBars(10, start, 5*time.Minute, func(i int) float64 { return 100 + float64(i) })

	set, err := Compute(bars, cfg)
	assert.NoError(t, err)

	// VS is the slowest series: rsiStart(3) + window(3) - 1 = 5.
	_, err = set.At(4)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.False(t, set.Ready(4))

	snap, err := set.At(5)
	assert.NoError(t, err)
	assert.True(t, set.Ready(5))
	assert.Greater(t, snap.ATR, 0.0)
	assert.Greater(t, snap.ATRAvg, 0.0)
}

func TestComputeRSIRange(t *testing.T) {
	cfg := smallConfig()
	start := time.Date(2026, 8, 31, 9, 15, 0, 0, time.UTC)
	bars := testBars(30, start, 5*time.Minute, func(i int) float64 {
		return 100 + 5*math.Sin(float64(i)/3)
	})

	set, err := Compute(bars, cfg)
	assert.NoError(t, err)
	for i := 5; i < set.Len(); i++ {
		snap, err := set.At(i)
		assert.NoError(t, err)
		assert.GreaterOrEqual(t, snap.RSI, 0.0)
		assert.LessOrEqual(t, snap.RSI, 100.0)
		assert.GreaterOrEqual(t, snap.PriceStrength, 0.0)
		assert.LessOrEqual(t, snap.PriceStrength, 100.0)
	}
}

func TestComputeMonotonicRisesPushRSIUp(t *testing.T) {
	cfg := smallConfig()
	start := time.Date(2026, 8, 31, 9, 15, 0, 0, time.UTC)
	bars := testBars(20, start, 5*time.Minute, func(i int) float64 { return 100 + 2*float64(i) })

	set, err := Compute(bars, cfg)
	assert.NoError(t, err)
	snap, err := set.At(set.Len() - 1)
	assert.NoError(t, err)
	// Every bar closed higher, so RSI saturates at 100.
	assert.InDelta(t, 100.0, snap.RSI, 1e-9)
}

func TestSessionVWAPVolumeFallback(t *testing.T) {
	start := time.Date(2026, 8, 31, 9, 15, 0, 0, time.UTC)
	bars := testBars(4, start, 5*time.Minute, func(i int) float64 { return 100 + float64(i) })
	for i := range bars {
		bars[i].Volume = 0
	}

	out := sessionVWAP(bars)
	// With no volume the series degrades to a running mean of typical price.
	var sum float64
	for i, b := range bars {
		sum += b.TypicalPrice()
		assert.InDelta(t, sum/float64(i+1), out[i], 1e-9)
	}
}

func TestSessionVWAPResetsPerDay(t *testing.T) {
	day1 := time.Date(2026, 8, 31, 15, 25, 0, 0, time.UTC)
	day2 := time.Date(2026, 9, 1, 9, 15, 0, 0, time.UTC)
	bars := []market.Bar{
		{Time: day1, High: 202, Low: 198, Close: 200, Volume: 100},
		{Time: day2, High: 112, Low: 108, Close: 110, Volume: 100},
	}

	out := sessionVWAP(bars)
	assert.InDelta(t, bars[0].TypicalPrice(), out[0], 1e-9)
	// Day change drops the prior session's accumulation entirely.
	assert.InDelta(t, bars[1].TypicalPrice(), out[1], 1e-9)
}

func TestComputeNoBars(t *testing.T) {
	_, err := Compute(nil, smallConfig())
	assert.Error(t, err)
}

func TestMinBarsCoversSlowestSeries(t *testing.T) {
	cfg := smallConfig()
	start := time.Date(2026, 8, 31, 9, 15, 0, 0, time.UTC)
	bars := testBars(cfg.MinBars(), start, 5*time.Minute, func(i int) float64 { return 100 + float64(i%5) })

	set, err := Compute(bars, cfg)
	assert.NoError(t, err)
	assert.True(t, set.Ready(set.Len()-1))
}
