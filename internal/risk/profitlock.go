package risk

import (
	"context"
	"fmt"
	"math"

	"optrix/internal/metrics"
)

// checkProfitLock maintains the profit-lock ratchet over total daily profit
// (realized + unrealized). Once total profit reaches the activation level,
// the lock arms at that level; thereafter it steps up the increment ladder
// and never moves down. A fall to or below the lock forces a full square-off
// and disarms the mechanism for the rest of the day.
func (m *Monitor) checkProfitLock(ctx context.Context, totalProfit float64) error {
	if m.cfg.LockActivation <= 0 || m.cfg.LockIncrement <= 0 {
		return nil
	}
	m.mu.Lock()
	if m.status.LockDisarmed {
		m.mu.Unlock()
		return nil
	}
	armedBefore := m.status.LockArmed
	if !armedBefore {
		if totalProfit < m.cfg.LockActivation {
			m.mu.Unlock()
			return nil
		}
		m.status.LockArmed = true
		m.status.LockLevel = m.cfg.LockActivation
		m.mu.Unlock()
		m.notify(fmt.Sprintf("🔒 Profit lock armed at %.0f (profit %.0f)", m.cfg.LockActivation, totalProfit))
		m.mu.Lock()
	}

	// Ladder: profit of activation+k·increment locks k·increment.
	if steps := math.Floor((totalProfit - m.cfg.LockActivation) / m.cfg.LockIncrement); steps >= 1 {
		if candidate := steps * m.cfg.LockIncrement; candidate > m.status.LockLevel {
			m.status.LockLevel = candidate
			lvl := m.status.LockLevel
			m.mu.Unlock()
			m.notify(fmt.Sprintf("🔒 Profit lock raised to %.0f (profit %.0f)", lvl, totalProfit))
			m.mu.Lock()
		}
	}
	// The breach test applies only once the lock was armed on an earlier
	// tick; profit landing exactly on the activation level arms the lock and
	// nothing more.
	lock := m.status.LockLevel
	breached := armedBefore && totalProfit <= lock
	if breached {
		m.status.LockDisarmed = true
		m.status.LockArmed = false
	}
	m.mu.Unlock()

	if !breached {
		return nil
	}
	metrics.RiskBreaches.WithLabelValues("profit_lock").Inc()
	if err := m.broker.SquareOffAll(ctx); err != nil {
		return fmt.Errorf("square off all: %w", err)
	}
	if err := m.clearOpenPositions(ctx, "risk_breach"); err != nil {
		return err
	}
	m.notify(fmt.Sprintf("🔓 Profit lock breached: profit %.0f fell to lock %.0f. Squared off; lock disarmed for today.",
		totalProfit, lock))
	return nil
}
