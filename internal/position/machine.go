package position

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"optrix/internal/gateway/broker"
	"optrix/internal/logger"
	"optrix/internal/signal"
	"optrix/internal/store"
	"optrix/internal/store/model"
)

// Exit reasons recorded on trades.
const (
	ExitStopLoss     = "stop_loss"
	ExitTrailingStop = "trailing_stop"
	ExitForced       = "forced"
	ExitRiskBreach   = "risk_breach"
	ExitExternal     = "external"
)

// QuoteFunc returns the current premium for an option symbol.
type QuoteFunc func(ctx context.Context, symbol string) (float64, error)

// Machine is the per-segment position state machine. Not safe for use from
// more than one goroutine; each segment agent owns exactly one.
type Machine struct {
	cfg    Config
	broker broker.Executor
	store  store.Store
	quote  QuoteFunc

	legs    map[signal.Leg]*Leg
	reentry map[signal.Leg]signal.Cross
}

func NewMachine(cfg Config, exec broker.Executor, st store.Store, quote QuoteFunc) *Machine {
	return &Machine{
		cfg:     cfg,
		broker:  exec,
		store:   st,
		quote:   quote,
		legs:    make(map[signal.Leg]*Leg),
		reentry: make(map[signal.Leg]signal.Cross),
	}
}

// Open returns the open leg state, if any.
func (m *Machine) Open(leg signal.Leg) (*Leg, bool) {
	l, ok := m.legs[leg]
	return l, ok
}

// OpenLegs lists currently open leg types, CE before PE for determinism.
func (m *Machine) OpenLegs() []signal.Leg {
	out := make([]signal.Leg, 0, 2)
	for _, lt := range []signal.Leg{signal.LegCE, signal.LegPE} {
		if _, ok := m.legs[lt]; ok {
			out = append(out, lt)
		}
	}
	return out
}

// ReentryWaits exposes pending re-entry requirements for signal input.
func (m *Machine) ReentryWaits() map[signal.Leg]signal.Cross {
	out := make(map[signal.Leg]signal.Cross, len(m.reentry))
	for k, v := range m.reentry {
		out[k] = v
	}
	return out
}

// TryEnter opens a leg for an accepted Enter decision. The logical open is
// rolled back if the broker rejects the order, so a failed entry never
// leaves an orphaned leg.
func (m *Machine) TryEnter(ctx context.Context, dec signal.Decision, spot float64) error {
	leg := dec.Leg
	if _, open := m.legs[leg]; open {
		return fmt.Errorf("position[%s]: leg %s already open", m.cfg.Segment, leg)
	}
	if err := m.gateEntry(ctx, leg); err != nil {
		return err
	}

	strike := m.cfg.ATMStrike(spot)
	symbol := m.cfg.OptionSymbol(strike, leg)
	premium, err := m.quote(ctx, symbol)
	if err != nil {
		return fmt.Errorf("position[%s]: quote %s: %w", m.cfg.Segment, symbol, err)
	}
	if premium <= 0 {
		return fmt.Errorf("position[%s]: bad premium %.2f for %s", m.cfg.Segment, premium, symbol)
	}

	tx := m.cfg.entryTransaction()
	qty := m.cfg.Lots * m.cfg.LotSize
	tag := m.tag(leg)
	rcpt, err := m.broker.PlaceEntry(ctx, broker.OrderRequest{
		Symbol:      symbol,
		Transaction: tx,
		Quantity:    qty,
		Tag:         tag,
	})
	if err != nil {
		return fmt.Errorf("position[%s]: entry order: %w", m.cfg.Segment, err)
	}
	m.audit(ctx, rcpt.OrderID, "entry", symbol, qty, premium, rcpt.Raw)

	l := &Leg{
		Type:         leg,
		Symbol:       symbol,
		Strike:       strike,
		Expiry:       m.cfg.Expiry,
		Lots:         m.cfg.Lots,
		Quantity:     qty,
		EntryPremium: premium,
		EntryTime:    time.Now(),
		Highest:      premium,
		Lowest:       premium,
		Transaction:  tx,
	}
	l.InitialStop = m.cfg.initialStop(premium)
	l.TrailingStop = l.InitialStop

	stopID, err := m.placeStop(ctx, l)
	if err != nil {
		// Leg still protected by the local breach fallback; try again on
		// the next tick via Refresh.
		logger.Errorf("position[%s]: stop order for %s failed: %v", m.cfg.Segment, symbol, err)
	} else {
		l.StopOrderID = stopID
	}

	m.legs[leg] = l
	delete(m.reentry, leg)

	if err := m.persist(ctx, l); err != nil {
		logger.Errorf("position[%s]: persisting open leg %s failed: %v", m.cfg.Segment, leg, err)
		return err
	}
	logger.Infof("position[%s]: opened %s %s qty=%d entry=%.2f stop=%.2f",
		m.cfg.Segment, tx, symbol, qty, premium, l.TrailingStop)
	return nil
}

// gateEntry enforces the sell-regime guards: no duplicate externally-tagged
// live order, and when the other strangle leg is already open only a
// legitimate re-entry may open this side.
func (m *Machine) gateEntry(ctx context.Context, leg signal.Leg) error {
	if m.cfg.Regime != signal.RegimeSell {
		return nil
	}
	orders, err := m.broker.Orders(ctx)
	if err != nil {
		return fmt.Errorf("position[%s]: order scan: %w", m.cfg.Segment, err)
	}
	tag := m.tag(leg)
	for _, o := range orders {
		if o.Tag == tag && (o.Status == broker.StatusOpen || o.Status == broker.StatusTriggerPending) {
			return fmt.Errorf("position[%s]: duplicate live order %s for leg %s", m.cfg.Segment, o.ID, leg)
		}
	}
	other := signal.LegCE
	if leg == signal.LegCE {
		other = signal.LegPE
	}
	if _, otherOpen := m.legs[other]; otherOpen {
		if _, waiting := m.reentry[leg]; !waiting {
			return fmt.Errorf("position[%s]: strangle guard: %s open, only re-entry may open %s",
				m.cfg.Segment, other, leg)
		}
	}
	return nil
}

// Refresh recomputes premium extremes and the trailing stop for an open
// leg, detects exits (broker stop fill first, local breach as fallback) and
// pyramids when profit allows. Returns whether the leg is still open.
func (m *Machine) Refresh(ctx context.Context, legType signal.Leg) (bool, error) {
	l, ok := m.legs[legType]
	if !ok {
		return false, nil
	}

	// Broker-confirmed stop execution wins over anything local.
	if l.StopOrderID != "" {
		order, err := m.broker.OrderStatus(ctx, l.StopOrderID)
		if err != nil {
			logger.Warnf("position[%s]: stop status %s: %v", m.cfg.Segment, l.StopOrderID, err)
		} else if order.Status == broker.StatusComplete {
			px := order.AvgPrice
			if px <= 0 {
				px = l.TrailingStop
			}
			return false, m.close(ctx, l, px, ExitStopLoss, false)
		}
	}

	premium, err := m.quote(ctx, l.Symbol)
	if err != nil {
		return true, fmt.Errorf("position[%s]: quote %s: %w", m.cfg.Segment, l.Symbol, err)
	}

	if premium > l.Highest {
		l.Highest = premium
	}
	if premium < l.Lowest {
		l.Lowest = premium
	}

	// Trailing stop only ever moves in the profit-favorable direction.
	next := m.cfg.trailFrom(l)
	moved := false
	if m.cfg.Regime == signal.RegimeSell {
		if next < l.TrailingStop {
			l.TrailingStop = next
			moved = true
		}
	} else if next > l.TrailingStop {
		l.TrailingStop = next
		moved = true
	}
	if moved && l.StopOrderID != "" {
		if err := m.broker.ModifyStop(ctx, l.StopOrderID, l.TrailingStop); err != nil {
			logger.Warnf("position[%s]: modify stop %s: %v", m.cfg.Segment, l.StopOrderID, err)
		} else {
			m.audit(ctx, l.StopOrderID, "modify_stop", l.Symbol, l.Quantity, l.TrailingStop, nil)
		}
	}
	if l.StopOrderID == "" {
		// Entry succeeded but the stop never went on; retry.
		if stopID, err := m.placeStop(ctx, l); err == nil {
			l.StopOrderID = stopID
		}
	}

	// Local premium breach fallback when broker status is unknown.
	breached := (m.cfg.Regime != signal.RegimeSell && premium <= l.TrailingStop) ||
		(m.cfg.Regime == signal.RegimeSell && premium >= l.TrailingStop)
	if breached {
		reason := ExitTrailingStop
		if l.TrailingStop == l.InitialStop {
			reason = ExitStopLoss
		}
		return false, m.close(ctx, l, premium, reason, true)
	}

	if err := m.maybePyramid(ctx, l, premium); err != nil {
		logger.Warnf("position[%s]: pyramid: %v", m.cfg.Segment, err)
	}

	if err := m.persist(ctx, l); err != nil {
		return true, err
	}
	return true, nil
}

// maybePyramid adds lots when unrealized profit crosses the quantity-scaled
// threshold and capacity remains.
func (m *Machine) maybePyramid(ctx context.Context, l *Leg, premium float64) error {
	remaining := m.cfg.MaxQuantity - l.Quantity
	if remaining <= 0 {
		return nil
	}
	if l.Unrealized(premium) < m.cfg.pyramidThreshold(l.Quantity) {
		return nil
	}
	add := m.cfg.Lots * m.cfg.LotSize
	if add > remaining {
		add = remaining
	}
	rcpt, err := m.broker.PlaceEntry(ctx, broker.OrderRequest{
		Symbol:      l.Symbol,
		Transaction: l.Transaction,
		Quantity:    add,
		Tag:         m.tag(l.Type),
	})
	if err != nil {
		return err
	}
	m.audit(ctx, rcpt.OrderID, "pyramid", l.Symbol, add, premium, rcpt.Raw)

	oldQty := float64(l.Quantity)
	l.Quantity += add
	l.Lots = l.Quantity / m.cfg.LotSize
	l.EntryPremium = (l.EntryPremium*oldQty + premium*float64(add)) / float64(l.Quantity)
	logger.Infof("position[%s]: pyramided %s +%d → qty=%d avg=%.2f",
		m.cfg.Segment, l.Symbol, add, l.Quantity, l.EntryPremium)
	return nil
}

// ForceExit closes an open leg at market, used for manual exits and risk
// breaches.
func (m *Machine) ForceExit(ctx context.Context, legType signal.Leg, reason string) error {
	l, ok := m.legs[legType]
	if !ok {
		return nil
	}
	premium, err := m.quote(ctx, l.Symbol)
	if err != nil {
		premium = l.EntryPremium
	}
	return m.close(ctx, l, premium, reason, true)
}

// close finalizes the leg: flatten at the broker if needed, record the
// immutable Trade, clear the durable position, and arm the re-entry wait if
// a stop loss caused the close.
func (m *Machine) close(ctx context.Context, l *Leg, exitPremium float64, reason string, squareOff bool) error {
	if l.StopOrderID != "" && squareOff {
		if err := m.broker.CancelOrder(ctx, l.StopOrderID); err != nil {
			logger.Warnf("position[%s]: cancel stop %s: %v", m.cfg.Segment, l.StopOrderID, err)
		}
	}
	if squareOff {
		rcpt, err := m.broker.SquareOff(ctx, l.Symbol, l.Quantity, l.Transaction.Opposite())
		if err != nil {
			return fmt.Errorf("position[%s]: square off %s: %w", m.cfg.Segment, l.Symbol, err)
		}
		m.audit(ctx, rcpt.OrderID, "square_off", l.Symbol, l.Quantity, exitPremium, rcpt.Raw)
	}

	pnl := l.Unrealized(exitPremium)
	trade := model.TradeModel{
		Segment:      m.cfg.Segment,
		Leg:          string(l.Type),
		Symbol:       l.Symbol,
		Lots:         l.Lots,
		Quantity:     l.Quantity,
		EntryPremium: decimal.NewFromFloat(l.EntryPremium),
		ExitPremium:  decimal.NewFromFloat(exitPremium),
		EntryTime:    l.EntryTime,
		ExitTime:     time.Now(),
		RealizedPnL:  decimal.NewFromFloat(pnl),
		ExitReason:   reason,
	}
	if err := m.store.InsertTrade(ctx, trade); err != nil {
		logger.Errorf("position[%s]: trade insert failed (leg stays closed locally): %v", m.cfg.Segment, err)
	}
	if err := m.store.DeletePosition(ctx, m.cfg.Segment, string(l.Type)); err != nil {
		logger.Errorf("position[%s]: position delete failed: %v", m.cfg.Segment, err)
	}

	delete(m.legs, l.Type)
	if reason == ExitStopLoss || reason == ExitTrailingStop {
		m.reentry[l.Type] = signal.ReentryCross(m.cfg.Regime, l.Type)
	}
	logger.Infof("position[%s]: closed %s qty=%d exit=%.2f pnl=%.2f reason=%s",
		m.cfg.Segment, l.Symbol, l.Quantity, exitPremium, pnl, reason)
	return nil
}

func (m *Machine) placeStop(ctx context.Context, l *Leg) (string, error) {
	rcpt, err := m.broker.PlaceStop(ctx, broker.OrderRequest{
		Symbol:       l.Symbol,
		Transaction:  l.Transaction.Opposite(),
		Quantity:     l.Quantity,
		TriggerPrice: l.TrailingStop,
		Tag:          m.tag(l.Type),
	})
	if err == nil {
		m.audit(ctx, rcpt.OrderID, "place_stop", l.Symbol, l.Quantity, l.TrailingStop, rcpt.Raw)
	}
	return rcpt.OrderID, err
}

func (m *Machine) persist(ctx context.Context, l *Leg) error {
	return m.store.UpsertPosition(ctx, model.PositionModel{
		Segment:         m.cfg.Segment,
		Leg:             string(l.Type),
		Symbol:          l.Symbol,
		Strike:          l.Strike,
		Expiry:          l.Expiry,
		Lots:            l.Lots,
		Quantity:        l.Quantity,
		EntryPremium:    decimal.NewFromFloat(l.EntryPremium),
		EntryTime:       l.EntryTime,
		HighestPremium:  l.Highest,
		LowestPremium:   l.Lowest,
		TrailingStop:    l.TrailingStop,
		InitialStop:     l.InitialStop,
		StopOrderID:     l.StopOrderID,
		Transaction:     string(l.Transaction),
		ReducedFidelity: l.ReducedFidelity,
	})
}

func (m *Machine) audit(ctx context.Context, orderID, action, symbol string, qty int, price float64, raw []byte) {
	err := m.store.InsertOrderEvent(ctx, model.OrderEventModel{
		Segment:  m.cfg.Segment,
		OrderID:  orderID,
		Action:   action,
		Symbol:   symbol,
		Quantity: qty,
		Price:    price,
		Raw:      datatypes.JSON(raw),
	})
	if err != nil {
		logger.Warnf("position[%s]: audit %s: %v", m.cfg.Segment, action, err)
	}
}

func (m *Machine) tag(leg signal.Leg) string {
	return m.cfg.Segment + "-" + string(leg)
}
