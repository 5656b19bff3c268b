package risk

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"optrix/internal/gateway/broker"
	"optrix/internal/logger"
	"optrix/internal/store/model"
)

// protectRealized detects positions closed outside the engine (vanished
// from the broker or quantity at zero) and converts them into persisted
// realized trades, so protected profit always equals the sum of the day's
// realized P&L.
func (m *Monitor) protectRealized(ctx context.Context, day string) error {
	open, err := m.store.ListOpenPositions(ctx)
	if err != nil {
		return err
	}
	if len(open) == 0 {
		return nil
	}
	live, err := m.broker.Positions(ctx)
	if err != nil {
		return err
	}
	liveQty := make(map[string]int, len(live))
	for _, p := range live {
		liveQty[p.Symbol] = p.Quantity
	}

	for _, rec := range open {
		if qty := liveQty[rec.Symbol]; qty != 0 {
			continue
		}
		exit, err := m.quote(ctx, rec.Symbol)
		if err != nil {
			logger.Warnf("risk: exit quote for externally closed %s: %v", rec.Symbol, err)
			exit, _ = rec.EntryPremium.Float64()
		}
		entry, _ := rec.EntryPremium.Float64()
		pnl := (exit - entry) * float64(rec.Quantity)
		if rec.Transaction == string(broker.Sell) {
			pnl = -pnl
		}
		trade := model.TradeModel{
			Day:          day,
			Segment:      rec.Segment,
			Leg:          rec.Leg,
			Symbol:       rec.Symbol,
			Lots:         rec.Lots,
			Quantity:     rec.Quantity,
			EntryPremium: rec.EntryPremium,
			ExitPremium:  decimal.NewFromFloat(exit),
			EntryTime:    rec.EntryTime,
			ExitTime:     time.Now(),
			RealizedPnL:  decimal.NewFromFloat(pnl),
			ExitReason:   "external",
		}
		if err := m.store.InsertTrade(ctx, trade); err != nil {
			logger.Errorf("risk: recording external close of %s failed: %v", rec.Symbol, err)
			continue
		}
		if err := m.store.DeletePosition(ctx, rec.Segment, rec.Leg); err != nil {
			logger.Errorf("risk: clearing externally closed %s failed: %v", rec.Symbol, err)
		}
		logger.Infof("risk: position %s closed externally, realized %.2f recorded", rec.Symbol, pnl)
	}
	return nil
}

// clearOpenPositions converts every open position into a realized trade
// after a forced square-off, using the last quote as the exit premium.
func (m *Monitor) clearOpenPositions(ctx context.Context, reason string) error {
	open, err := m.store.ListOpenPositions(ctx)
	if err != nil {
		return err
	}
	for _, rec := range open {
		exit, qerr := m.quote(ctx, rec.Symbol)
		entry, _ := rec.EntryPremium.Float64()
		if qerr != nil {
			exit = entry
		}
		pnl := (exit - entry) * float64(rec.Quantity)
		if rec.Transaction == string(broker.Sell) {
			pnl = -pnl
		}
		trade := model.TradeModel{
			Segment:      rec.Segment,
			Leg:          rec.Leg,
			Symbol:       rec.Symbol,
			Lots:         rec.Lots,
			Quantity:     rec.Quantity,
			EntryPremium: rec.EntryPremium,
			ExitPremium:  decimal.NewFromFloat(exit),
			EntryTime:    rec.EntryTime,
			ExitTime:     time.Now(),
			RealizedPnL:  decimal.NewFromFloat(pnl),
			ExitReason:   reason,
		}
		if err := m.store.InsertTrade(ctx, trade); err != nil {
			return err
		}
		if err := m.store.DeletePosition(ctx, rec.Segment, rec.Leg); err != nil {
			return err
		}
	}
	return nil
}

func (m *Monitor) notify(text string) {
	if err := m.notifier.SendText(text); err != nil {
		logger.Warnf("risk: notification failed: %v", err)
	}
}
