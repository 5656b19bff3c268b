package position

import (
	"context"
	"strconv"
	"strings"
	"time"

	"optrix/internal/gateway/broker"
	"optrix/internal/logger"
	"optrix/internal/signal"
)

// Recover rebuilds in-memory leg state before the agent loop starts. The
// broker's live position list and the durable snapshot are merged, preferring
// whichever source carries richer detail: the snapshot knows strike, expiry
// and trailing state; the broker is authoritative about what is actually
// open.
func (m *Machine) Recover(ctx context.Context) error {
	brokerPositions, err := m.broker.Positions(ctx)
	if err != nil {
		return err
	}
	bySymbol := make(map[string]broker.Position, len(brokerPositions))
	for _, p := range brokerPositions {
		bySymbol[p.Symbol] = p
	}

	for _, legType := range []signal.Leg{signal.LegCE, signal.LegPE} {
		rec, found, err := m.store.GetPosition(ctx, m.cfg.Segment, string(legType))
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		bp, live := bySymbol[rec.Symbol]
		if !live {
			// Logical open with nothing at the broker: stale state.
			logger.Warnf("position[%s]: reconcile drift: %s open in store but absent at broker, clearing",
				m.cfg.Segment, rec.Symbol)
			if err := m.store.DeletePosition(ctx, m.cfg.Segment, string(legType)); err != nil {
				logger.Errorf("position[%s]: clearing stale %s failed: %v", m.cfg.Segment, legType, err)
			}
			continue
		}
		entry, _ := rec.EntryPremium.Float64()
		l := &Leg{
			Type:         legType,
			Symbol:       rec.Symbol,
			Strike:       rec.Strike,
			Expiry:       rec.Expiry,
			Lots:         rec.Lots,
			Quantity:     rec.Quantity,
			EntryPremium: entry,
			EntryTime:    rec.EntryTime,
			Highest:      rec.HighestPremium,
			Lowest:       rec.LowestPremium,
			TrailingStop: rec.TrailingStop,
			InitialStop:  rec.InitialStop,
			StopOrderID:  rec.StopOrderID,
			Transaction:  broker.TransactionType(rec.Transaction),
		}
		if qty := abs(bp.Quantity); qty != l.Quantity {
			logger.Warnf("position[%s]: reconcile: broker qty %d != stored %d for %s, adopting broker",
				m.cfg.Segment, qty, l.Quantity, rec.Symbol)
			l.Quantity = qty
			if m.cfg.LotSize > 0 {
				l.Lots = qty / m.cfg.LotSize
			}
		}
		m.legs[legType] = l
		logger.Infof("position[%s]: recovered %s %s qty=%d entry=%.2f stop=%.2f",
			m.cfg.Segment, l.Transaction, l.Symbol, l.Quantity, l.EntryPremium, l.TrailingStop)
	}

	// Broker positions on our contracts with no logical state: adopt with
	// reduced fidelity rather than trade blind next to them.
	for _, bp := range brokerPositions {
		legType, ok := m.legForSymbol(bp.Symbol)
		if !ok {
			continue
		}
		if _, tracked := m.legs[legType]; tracked {
			continue
		}
		l := m.adoptBrokerPosition(bp, legType)
		m.legs[legType] = l
		logger.Warnf("position[%s]: reconcile drift: adopted untracked broker position %s qty=%d (reduced fidelity)",
			m.cfg.Segment, bp.Symbol, l.Quantity)
		if err := m.persist(ctx, l); err != nil {
			logger.Errorf("position[%s]: persisting adopted %s failed: %v", m.cfg.Segment, legType, err)
		}
	}
	return nil
}

// adoptBrokerPosition builds leg state from broker data alone. Entry premium
// comes from the average price; trailing state restarts from scratch.
func (m *Machine) adoptBrokerPosition(bp broker.Position, legType signal.Leg) *Leg {
	tx := broker.Buy
	if bp.Quantity < 0 {
		tx = broker.Sell
	}
	l := &Leg{
		Type:            legType,
		Symbol:          bp.Symbol,
		Strike:          m.strikeFromSymbol(bp.Symbol),
		Expiry:          m.cfg.Expiry,
		Quantity:        abs(bp.Quantity),
		EntryPremium:    bp.AvgPrice,
		EntryTime:       time.Now(),
		Highest:         bp.AvgPrice,
		Lowest:          bp.AvgPrice,
		Transaction:     tx,
		ReducedFidelity: true,
	}
	if m.cfg.LotSize > 0 {
		l.Lots = l.Quantity / m.cfg.LotSize
	}
	l.InitialStop = m.cfg.initialStop(bp.AvgPrice)
	l.TrailingStop = l.InitialStop
	return l
}

// legForSymbol matches a broker symbol to this segment's CE or PE contract.
func (m *Machine) legForSymbol(symbol string) (signal.Leg, bool) {
	if !strings.HasPrefix(symbol, m.cfg.SymbolPrefix) {
		return "", false
	}
	switch {
	case strings.HasSuffix(symbol, string(signal.LegCE)):
		return signal.LegCE, true
	case strings.HasSuffix(symbol, string(signal.LegPE)):
		return signal.LegPE, true
	default:
		return "", false
	}
}

// strikeFromSymbol best-effort parses the strike out of an option symbol.
func (m *Machine) strikeFromSymbol(symbol string) float64 {
	body := strings.TrimPrefix(symbol, m.cfg.SymbolPrefix+m.cfg.Expiry)
	body = strings.TrimSuffix(strings.TrimSuffix(body, string(signal.LegCE)), string(signal.LegPE))
	v, err := strconv.ParseFloat(body, 64)
	if err != nil {
		return 0
	}
	return v
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
