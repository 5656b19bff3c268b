package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectCross(t *testing.T) {
	// PS falls through VS.
	assert.Equal(t, CrossBearish, DetectCross(52, 50, 48, 50))
	// PS rises through VS.
	assert.Equal(t, CrossBullish, DetectCross(48, 50, 52, 50))
	// PS stays above VS.
	assert.Equal(t, CrossNone, DetectCross(52, 50, 53, 50))
	// PS stays below VS.
	assert.Equal(t, CrossNone, DetectCross(48, 50, 47, 50))
	// Touch without crossing.
	assert.Equal(t, CrossNone, DetectCross(50, 50, 50, 50))
}

func TestDetectCrossFromEquality(t *testing.T) {
	// Equality on the previous bar counts as the starting side for both
	// directions; the current bar decides.
	assert.Equal(t, CrossBearish, DetectCross(50, 50, 49, 50))
	assert.Equal(t, CrossBullish, DetectCross(50, 50, 51, 50))
}

func TestLegFor(t *testing.T) {
	cases := []struct {
		regime Regime
		cross  Cross
		leg    Leg
	}{
		{RegimeBuy, CrossBearish, LegPE},
		{RegimeBuy, CrossBullish, LegCE},
		{RegimeSell, CrossBearish, LegCE},
		{RegimeSell, CrossBullish, LegPE},
	}
	for _, c := range cases {
		leg, ok := LegFor(c.regime, c.cross)
		assert.True(t, ok)
		assert.Equal(t, c.leg, leg)
	}
	_, ok := LegFor(RegimeBuy, CrossNone)
	assert.False(t, ok)
}

func TestReentryCrossInvertsLegFor(t *testing.T) {
	for _, regime := range []Regime{RegimeBuy, RegimeSell} {
		for _, leg := range []Leg{LegCE, LegPE} {
			cross := ReentryCross(regime, leg)
			got, ok := LegFor(regime, cross)
			assert.True(t, ok)
			assert.Equal(t, leg, got, "regime %s leg %s", regime, leg)
		}
	}
}

func TestUpdateThresholds(t *testing.T) {
	gen := NewGenerator(RegimeBuy, Thresholds{RSIUpper: 70})
	gen.mu.RLock()
	assert.Equal(t, 70.0, gen.thresholds.RSIUpper)
	gen.mu.RUnlock()

	gen.UpdateThresholds(Thresholds{RSIUpper: 80})
	gen.mu.RLock()
	assert.Equal(t, 80.0, gen.thresholds.RSIUpper)
	// Defaults re-applied on update.
	assert.Equal(t, 25.0, gen.thresholds.RSILower)
	gen.mu.RUnlock()
}
