// Package store defines the persistence port. Every call is scoped by the
// tenant carried in ctx; a missing tenant yields tenant.ErrMissing so the
// caller can defer and retry instead of crashing the loop.
package store

import (
	"context"
	"time"

	"optrix/internal/market"
	"optrix/internal/store/model"
)

// Store is the persistence port shared by segment agents and the risk
// monitor. Implementations must serialize concurrent read-modify-write per
// (tenant, segment) key.
type Store interface {
	// Positions.
	UpsertPosition(ctx context.Context, rec model.PositionModel) error
	GetPosition(ctx context.Context, segment, leg string) (model.PositionModel, bool, error)
	ListOpenPositions(ctx context.Context) ([]model.PositionModel, error)
	DeletePosition(ctx context.Context, segment, leg string) error

	// Trades.
	InsertTrade(ctx context.Context, rec model.TradeModel) error
	TradesForDay(ctx context.Context, day string) ([]model.TradeModel, error)

	// Daily stats.
	UpsertDailyStats(ctx context.Context, rec model.DailyStatsModel) error
	GetDailyStats(ctx context.Context, day string) (model.DailyStatsModel, bool, error)

	// Bars (not tenant-scoped: market data is shared).
	PutBars(ctx context.Context, instrument, interval string, bars []market.Bar) error
	GetBar(ctx context.Context, instrument, interval string, ts time.Time) (market.Bar, bool, error)

	// Audit.
	InsertOrderEvent(ctx context.Context, rec model.OrderEventModel) error
	InsertDiagnostic(ctx context.Context, rec model.TickDiagnosticModel) error
	RecentDiagnostics(ctx context.Context, segment string, limit int) ([]model.TickDiagnosticModel, error)
	Purge(ctx context.Context, olderThan time.Time) error

	Close() error
}
