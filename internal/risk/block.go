package risk

import (
	"context"
	"time"

	"optrix/internal/logger"
)

// block sets the trading block until the next session open.
func (m *Monitor) block(now time.Time) {
	until := m.session.NextOpen(now)
	m.mu.Lock()
	m.status.Blocked = true
	m.status.BlockedUntil = until
	m.mu.Unlock()
	logger.Warnf("risk: trading blocked until %s", until.Format(time.RFC3339))
}

// maybeUnblock clears an expired block at (or after) the next session open.
func (m *Monitor) maybeUnblock(ctx context.Context, now time.Time) {
	m.mu.Lock()
	if !m.status.Blocked || m.status.BlockedUntil.IsZero() || now.Before(m.status.BlockedUntil) {
		m.mu.Unlock()
		return
	}
	m.status.Blocked = false
	m.status.BlockedUntil = time.Time{}
	m.mu.Unlock()
	logger.Infof("risk: trading block lifted at session open")
	if err := m.persist(ctx); err != nil {
		logger.Errorf("risk: persisting unblock failed: %v", err)
	}
}

// Blocked reports whether trading is currently blocked.
func (m *Monitor) Blocked() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.Blocked
}
