// Package agent runs one concurrent worker per traded instrument. Each tick:
// gate on market state, resolve the latest closed bar, recompute indicators,
// service open legs (exits and pyramids strictly before any new entry),
// evaluate the signal pipeline, and persist a structured diagnostic record.
package agent

import (
	"context"
	"encoding/json"
	"time"

	"optrix/internal/analysis/indicator"
	"optrix/internal/gateway/marketdata"
	"optrix/internal/logger"
	"optrix/internal/market"
	"optrix/internal/market/resolve"
	"optrix/internal/metrics"
	"optrix/internal/position"
	"optrix/internal/scheduler"
	"optrix/internal/signal"
	"optrix/internal/store"
	"optrix/internal/store/model"
	"optrix/internal/tenant"
)

// Config is the per-segment agent wiring.
type Config struct {
	Segment           string
	Instrument        string // underlying feed symbol
	Interval          string
	IntervalDur       time.Duration
	SecondaryInterval string
	SecondaryDur      time.Duration
	TickOffset        time.Duration
	MaxTradesPerDay   int
	Indicator         indicator.Config
}

// Agent orchestrates one segment.
type Agent struct {
	cfg      Config
	session  market.Session
	frame    *market.Frame
	resolver *resolve.Resolver
	source   marketdata.Source
	store    store.Store
	machine  *position.Machine
	gen      *signal.Generator
	nowFn    func() time.Time
}

func New(cfg Config, session market.Session, frame *market.Frame, resolver *resolve.Resolver,
	source marketdata.Source, st store.Store, machine *position.Machine, gen *signal.Generator) *Agent {
	return &Agent{
		cfg:      cfg,
		session:  session,
		frame:    frame,
		resolver: resolver,
		source:   source,
		store:    st,
		machine:  machine,
		gen:      gen,
		nowFn:    time.Now,
	}
}

// Run recovers leg state and then blocks on the aligned tick loop until ctx
// is done. Per-tick errors are logged at the loop boundary; the loop always
// continues to the next interval.
func (a *Agent) Run(ctx context.Context) {
	if err := a.machine.Recover(ctx); err != nil {
		logger.Errorf("agent[%s]: startup recovery failed: %v", a.cfg.Segment, err)
	}
	sched := scheduler.NewAlignedScheduler(ctx, a.cfg.IntervalDur, a.cfg.TickOffset)
	sched.RunImmediately = true
	sched.Start(func() {
		if err := a.Tick(ctx); err != nil {
			logger.Errorf("agent[%s]: tick failed: %v", a.cfg.Segment, err)
		}
	})
}

// Tick executes one full evaluation cycle.
func (a *Agent) Tick(ctx context.Context) error {
	if _, ok := tenant.From(ctx); !ok {
		logger.Warnf("agent[%s]: tenant not ready, deferring tick", a.cfg.Segment)
		return nil
	}
	now := a.nowFn()
	if !a.session.IsOpen(now) {
		logger.Debugf("agent[%s]: market closed, skipping", a.cfg.Segment)
		return nil
	}
	if blocked, err := a.tradingBlocked(ctx, now); err != nil {
		return err
	} else if blocked {
		logger.Infof("agent[%s]: trading blocked, skipping tick", a.cfg.Segment)
		return nil
	}

	metrics.TicksTotal.WithLabelValues(a.cfg.Segment).Inc()

	bar, tier, err := a.resolver.Resolve(ctx)
	if err != nil {
		// Never fabricate: a tick with no data is skipped entirely.
		logger.Warnf("agent[%s]: %v", a.cfg.Segment, err)
		metrics.ResolverFailures.WithLabelValues(a.cfg.Segment).Inc()
		return nil
	}
	metrics.ResolverTierHits.WithLabelValues(a.cfg.Segment, string(tier)).Inc()

	if err := a.warmup(ctx, now); err != nil {
		logger.Warnf("agent[%s]: warmup: %v", a.cfg.Segment, err)
	}

	bars := a.frame.Window(0)
	set, err := indicator.Compute(bars, a.cfg.Indicator)
	if err != nil {
		return err
	}
	idx := indexOf(bars, bar.Time)
	if idx < 0 {
		logger.Warnf("agent[%s]: resolved bar %s missing from frame", a.cfg.Segment, bar.Time.Format(time.RFC3339))
		return nil
	}

	// Ordering guarantee: service open legs before any new entry, so a
	// just-triggered exit is recognized before fresh risk goes on.
	for _, legType := range a.machine.OpenLegs() {
		if _, err := a.machine.Refresh(ctx, legType); err != nil {
			logger.Errorf("agent[%s]: refresh %s: %v", a.cfg.Segment, legType, err)
		}
	}

	secSet, secBars := a.secondary(ctx, now)
	dec := a.gen.Evaluate(signal.Input{
		Now:           now,
		Session:       a.session,
		Primary:       set,
		Bars:          bars,
		Index:         idx,
		Secondary:     secSet,
		SecondaryBars: secBars,
		ReentryWait:   a.machine.ReentryWaits(),
	})
	a.recordDiagnostic(ctx, bar, dec)

	if dec.Action != signal.ActionEnter {
		logger.Debugf("agent[%s]: hold (%s)", a.cfg.Segment, dec.Reason)
		return nil
	}
	if capped, err := a.tradeCapReached(ctx, now); err != nil {
		return err
	} else if capped {
		logger.Infof("agent[%s]: daily trade cap reached, ignoring %s entry", a.cfg.Segment, dec.Leg)
		return nil
	}
	if err := a.machine.TryEnter(ctx, dec, bar.Close); err != nil {
		logger.Warnf("agent[%s]: entry rejected: %v", a.cfg.Segment, err)
		return nil
	}
	metrics.EntriesTotal.WithLabelValues(a.cfg.Segment, string(dec.Leg)).Inc()
	return nil
}

func (a *Agent) tradingBlocked(ctx context.Context, now time.Time) (bool, error) {
	rec, found, err := a.store.GetDailyStats(ctx, now.Format("2006-01-02"))
	if err != nil {
		return false, err
	}
	if !found || !rec.Blocked {
		return false, nil
	}
	if rec.BlockedUntilUnix > 0 && !now.Before(time.Unix(rec.BlockedUntilUnix, 0)) {
		return false, nil // block expired, monitor will clear it
	}
	return true, nil
}

func (a *Agent) tradeCapReached(ctx context.Context, now time.Time) (bool, error) {
	if a.cfg.MaxTradesPerDay <= 0 {
		return false, nil
	}
	trades, err := a.store.TradesForDay(ctx, now.Format("2006-01-02"))
	if err != nil {
		return false, err
	}
	count := len(a.machine.OpenLegs())
	for _, t := range trades {
		if t.Segment == a.cfg.Segment {
			count++
		}
	}
	return count >= a.cfg.MaxTradesPerDay, nil
}

// warmup backfills the frame until the indicator lookback is satisfiable.
func (a *Agent) warmup(ctx context.Context, now time.Time) error {
	need := a.cfg.Indicator.MinBars() + 2
	if a.frame.Len() >= need {
		return nil
	}
	from := now.AddDate(0, 0, -5)
	bars, err := a.source.Bars(ctx, a.cfg.Instrument, a.cfg.IntervalDur, from, now)
	if err != nil {
		return err
	}
	closed := make([]market.Bar, 0, len(bars))
	for _, b := range bars {
		if b.Closed(a.cfg.IntervalDur, now) && !b.LooksSynthetic() {
			closed = append(closed, b)
		}
	}
	a.frame.PutAll(closed)
	if err := a.store.PutBars(ctx, a.cfg.Instrument, a.cfg.Interval, closed); err != nil {
		logger.Warnf("agent[%s]: persisting warmup bars: %v", a.cfg.Segment, err)
	}
	return nil
}

// secondary fetches and computes the faster confirmation timeframe.
// Best-effort: any failure degrades the dependent filters to pass.
func (a *Agent) secondary(ctx context.Context, now time.Time) (*indicator.Set, []market.Bar) {
	if a.cfg.SecondaryDur <= 0 {
		return nil, nil
	}
	from := now.AddDate(0, 0, -3)
	bars, err := a.source.Bars(ctx, a.cfg.Instrument, a.cfg.SecondaryDur, from, now)
	if err != nil {
		logger.Debugf("agent[%s]: secondary fetch failed: %v", a.cfg.Segment, err)
		return nil, nil
	}
	closed := make([]market.Bar, 0, len(bars))
	for _, b := range bars {
		if b.Closed(a.cfg.SecondaryDur, now) && !b.LooksSynthetic() {
			closed = append(closed, b)
		}
	}
	if len(closed) == 0 {
		return nil, nil
	}
	set, err := indicator.Compute(closed, a.cfg.Indicator)
	if err != nil {
		return nil, nil
	}
	return set, closed
}

func (a *Agent) recordDiagnostic(ctx context.Context, bar market.Bar, dec signal.Decision) {
	trail, err := json.Marshal(dec)
	if err != nil {
		logger.Warnf("agent[%s]: marshal diagnostic: %v", a.cfg.Segment, err)
		return
	}
	rec := model.TickDiagnosticModel{
		Segment:     a.cfg.Segment,
		BarTimeUnix: bar.Time.Unix(),
		Action:      string(dec.Action),
		Reason:      dec.Reason,
		Trail:       trail,
	}
	if err := a.store.InsertDiagnostic(ctx, rec); err != nil {
		logger.Warnf("agent[%s]: persist diagnostic: %v", a.cfg.Segment, err)
	}
}

func indexOf(bars []market.Bar, ts time.Time) int {
	for i := len(bars) - 1; i >= 0; i-- {
		if bars[i].Time.Equal(ts) {
			return i
		}
	}
	return -1
}
