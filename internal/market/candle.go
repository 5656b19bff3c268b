package market

import "time"

// Bar is one OHLCV interval. Synthetic marks placeholder data substituted
// while genuine data was unavailable; a synthetic bar must never drive
// signal evaluation for a fully elapsed interval.
type Bar struct {
	Time      time.Time `json:"time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Synthetic bool      `json:"synthetic,omitempty"`
}

// LooksSynthetic reports whether the bar is flagged or detectably a
// placeholder. Four equal prices over a genuinely elapsed interval are
// definitionally impossible.
func (b Bar) LooksSynthetic() bool {
	if b.Synthetic {
		return true
	}
	return b.Open == b.High && b.High == b.Low && b.Low == b.Close
}

// TypicalPrice is (H+L+C)/3, the VWAP contribution price.
func (b Bar) TypicalPrice() float64 {
	return (b.High + b.Low + b.Close) / 3
}

// Closed reports whether at least one full interval has elapsed since the
// bar opened, i.e. the bar is no longer forming.
func (b Bar) Closed(interval time.Duration, now time.Time) bool {
	return !now.Before(b.Time.Add(interval))
}
