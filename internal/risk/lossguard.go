package risk

import (
	"context"
	"fmt"
	"time"

	"optrix/internal/metrics"
)

// checkLossLimit enforces the daily loss cutoff. The loss figure counts only
// the unrealized P&L of currently open positions; profit already realized
// today is protected and deliberately excluded.
func (m *Monitor) checkLossLimit(ctx context.Context, now time.Time, unrealized float64) error {
	if m.cfg.DailyLossLimit <= 0 {
		return nil
	}
	loss := -unrealized
	if loss < 0 {
		loss = 0
	}
	m.mu.Lock()
	m.status.LossUsed = loss
	warned := m.lossWarned
	notified := m.lossNotified
	m.mu.Unlock()

	warnAt := m.cfg.DailyLossLimit * m.cfg.WarnFraction
	if loss >= warnAt && loss < m.cfg.DailyLossLimit && !warned {
		m.mu.Lock()
		m.lossWarned = true
		m.mu.Unlock()
		m.notify(fmt.Sprintf("⚠️ Loss warning: %.0f of %.0f daily limit used", loss, m.cfg.DailyLossLimit))
	}

	if loss < m.cfg.DailyLossLimit {
		return nil
	}
	if notified {
		return nil // breach already handled today
	}

	metrics.RiskBreaches.WithLabelValues("loss_limit").Inc()
	if err := m.broker.SquareOffAll(ctx); err != nil {
		return fmt.Errorf("square off all: %w", err)
	}
	if err := m.clearOpenPositions(ctx, "risk_breach"); err != nil {
		return err
	}
	m.block(now)
	m.mu.Lock()
	m.lossNotified = true
	m.mu.Unlock()
	m.notify(fmt.Sprintf("🛑 Daily loss limit breached (%.0f ≥ %.0f). All positions squared off; trading blocked until next session open.",
		loss, m.cfg.DailyLossLimit))
	return nil
}
