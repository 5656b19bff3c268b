// Package risk implements the process-wide risk monitor: daily loss
// protection, the profit-lock ratchet, realized-profit protection and the
// trading block. It runs on its own short interval, independent of the
// segment agents, and shares state with them only through the persistence
// port.
package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"optrix/internal/gateway/broker"
	"optrix/internal/gateway/notifier"
	"optrix/internal/logger"
	"optrix/internal/market"
	"optrix/internal/metrics"
	"optrix/internal/scheduler"
	"optrix/internal/store"
	"optrix/internal/store/model"
	"optrix/internal/tenant"
)

// Config holds the account-level limits.
type Config struct {
	DailyLossLimit float64
	WarnFraction   float64 // soft warning at this fraction of the limit

	LockActivation float64 // profit at which the lock arms
	LockIncrement  float64 // ladder step once armed

	Interval time.Duration // monitor tick period
}

func (c *Config) applyDefaults() {
	if c.WarnFraction <= 0 || c.WarnFraction >= 1 {
		c.WarnFraction = 0.8
	}
	if c.Interval <= 0 {
		c.Interval = 15 * time.Second
	}
}

// QuoteFunc returns the last traded price of a symbol.
type QuoteFunc func(ctx context.Context, symbol string) (float64, error)

// Status is the externally queryable monitor state.
type Status struct {
	Day             string    `json:"day"`
	Blocked         bool      `json:"blocked"`
	BlockedUntil    time.Time `json:"blocked_until,omitzero"`
	RealizedPnL     float64   `json:"realized_pnl"`
	UnrealizedPnL   float64   `json:"unrealized_pnl"`
	ProtectedProfit float64   `json:"protected_profit"`
	LossUsed        float64   `json:"loss_used"`
	LockLevel       float64   `json:"lock_level"`
	LockArmed       bool      `json:"lock_armed"`
	LockDisarmed    bool      `json:"lock_disarmed"`
}

// Monitor is the risk daemon.
type Monitor struct {
	cfg      Config
	store    store.Store
	broker   broker.Executor
	notifier notifier.TextNotifier
	quote    QuoteFunc
	session  market.Session
	nowFn    func() time.Time

	mu           sync.RWMutex
	status       Status
	lossWarned   bool
	lossNotified bool
}

func NewMonitor(cfg Config, st store.Store, exec broker.Executor, quote QuoteFunc,
	nt notifier.TextNotifier, session market.Session) *Monitor {
	cfg.applyDefaults()
	if nt == nil {
		nt = notifier.Nop{}
	}
	return &Monitor{
		cfg:      cfg,
		store:    st,
		broker:   exec,
		notifier: nt,
		quote:    quote,
		session:  session,
		nowFn:    time.Now,
	}
}

// Status returns a copy of the current monitor state.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Run blocks until ctx is done, ticking on the fixed interval. Per-tick
// errors are logged and the loop continues; only ctx cancellation stops it.
func (m *Monitor) Run(ctx context.Context) {
	sched := scheduler.NewFixedScheduler(ctx, m.cfg.Interval)
	sched.Start(func() {
		now := m.nowFn()
		if !m.session.IsOpen(now) && !m.blockExpired(now) {
			return
		}
		if err := m.Tick(ctx); err != nil {
			logger.Errorf("risk: tick failed: %v", err)
		}
	})
}

func (m *Monitor) blockExpired(now time.Time) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.Blocked && !m.status.BlockedUntil.IsZero() && !now.Before(m.status.BlockedUntil)
}

// Tick runs one full evaluation. A failure inside breach handling itself is
// escalated: the safety mechanism failing is a top-priority event.
func (m *Monitor) Tick(ctx context.Context) error {
	if _, err := tenant.Require(ctx); err != nil {
		logger.Warnf("risk: tenant not ready, deferring tick")
		return nil
	}
	now := m.nowFn()
	day := now.Format("2006-01-02")
	m.rolloverIfNeeded(ctx, day)
	m.maybeUnblock(ctx, now)

	// Profit protection first so protected profit reflects everything
	// already realized before the loss figure is computed.
	if err := m.protectRealized(ctx, day); err != nil {
		logger.Warnf("risk: profit protection: %v", err)
	}

	realized, err := m.realizedForDay(ctx, day)
	if err != nil {
		return err
	}
	unrealized, err := m.unrealizedOpen(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.status.Day = day
	m.status.RealizedPnL = realized
	m.status.UnrealizedPnL = unrealized
	m.status.ProtectedProfit = realized
	m.mu.Unlock()
	metrics.UnrealizedPnL.Set(unrealized)

	if err := m.checkLossLimit(ctx, now, unrealized); err != nil {
		logger.Criticalf("risk: loss-limit handling failed: %v", err)
		return fmt.Errorf("risk: loss-limit handling: %w", err)
	}
	if err := m.checkProfitLock(ctx, realized+unrealized); err != nil {
		logger.Criticalf("risk: profit-lock handling failed: %v", err)
		return fmt.Errorf("risk: profit-lock handling: %w", err)
	}

	return m.persist(ctx)
}

// rolloverIfNeeded resets per-day state on the first tick of a new day.
func (m *Monitor) rolloverIfNeeded(ctx context.Context, day string) {
	m.mu.Lock()
	if m.status.Day == day {
		m.mu.Unlock()
		return
	}
	prev := m.status.Day
	blocked := m.status.Blocked
	until := m.status.BlockedUntil
	m.status = Status{Day: day, Blocked: blocked, BlockedUntil: until}
	m.lossWarned = false
	m.lossNotified = false
	m.mu.Unlock()

	if prev == "" {
		// First tick after startup: restore durable state.
		if rec, found, err := m.store.GetDailyStats(ctx, day); err == nil && found {
			m.mu.Lock()
			m.status.LockLevel = rec.TrailingLock
			m.status.LockArmed = rec.TrailingArmed
			m.status.LockDisarmed = rec.TrailingDisarmed
			m.status.Blocked = rec.Blocked
			if rec.BlockedUntilUnix > 0 {
				m.status.BlockedUntil = time.Unix(rec.BlockedUntilUnix, 0)
			}
			m.mu.Unlock()
		}
	}
}

func (m *Monitor) persist(ctx context.Context) error {
	m.mu.RLock()
	st := m.status
	m.mu.RUnlock()
	loss := -st.UnrealizedPnL
	if loss < 0 {
		loss = 0
	}
	rec := model.DailyStatsModel{
		Day:              st.Day,
		RealizedPnL:      decimal.NewFromFloat(st.RealizedPnL),
		UnrealizedPnL:    decimal.NewFromFloat(st.UnrealizedPnL),
		ProtectedProfit:  decimal.NewFromFloat(st.ProtectedProfit),
		LossUsed:         decimal.NewFromFloat(loss),
		TrailingLock:     st.LockLevel,
		TrailingArmed:    st.LockArmed,
		TrailingDisarmed: st.LockDisarmed,
		Blocked:          st.Blocked,
	}
	if !st.BlockedUntil.IsZero() {
		rec.BlockedUntilUnix = st.BlockedUntil.Unix()
	}
	return m.store.UpsertDailyStats(ctx, rec)
}

// realizedForDay sums the day's closed trades, profit and loss both.
func (m *Monitor) realizedForDay(ctx context.Context, day string) (float64, error) {
	trades, err := m.store.TradesForDay(ctx, day)
	if err != nil {
		return 0, err
	}
	sum := decimal.Zero
	for _, t := range trades {
		sum = sum.Add(t.RealizedPnL)
	}
	f, _ := sum.Float64()
	return f, nil
}

// unrealizedOpen sums open-position P&L off live quotes.
func (m *Monitor) unrealizedOpen(ctx context.Context) (float64, error) {
	positions, err := m.store.ListOpenPositions(ctx)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, p := range positions {
		ltp, err := m.quote(ctx, p.Symbol)
		if err != nil {
			logger.Warnf("risk: quote %s: %v", p.Symbol, err)
			continue
		}
		entry, _ := p.EntryPremium.Float64()
		pnl := (ltp - entry) * float64(p.Quantity)
		if p.Transaction == string(broker.Sell) {
			pnl = -pnl
		}
		total += pnl
	}
	return total, nil
}
