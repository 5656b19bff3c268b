package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PositionModel is the durable snapshot of one open option leg. At most one
// row may exist per (tenant, segment, leg).
type PositionModel struct {
	ID              int64           `gorm:"column:id;primaryKey"`
	Tenant          string          `gorm:"column:tenant;uniqueIndex:idx_open_leg,priority:1"`
	Segment         string          `gorm:"column:segment;uniqueIndex:idx_open_leg,priority:2"`
	Leg             string          `gorm:"column:leg;uniqueIndex:idx_open_leg,priority:3"`
	Symbol          string          `gorm:"column:symbol"`
	Strike          float64         `gorm:"column:strike"`
	Expiry          string          `gorm:"column:expiry"`
	Lots            int             `gorm:"column:lots"`
	Quantity        int             `gorm:"column:quantity"`
	EntryPremium    decimal.Decimal `gorm:"column:entry_premium;type:TEXT"`
	EntryTime       time.Time       `gorm:"column:entry_time"`
	HighestPremium  float64         `gorm:"column:highest_premium"`
	LowestPremium   float64         `gorm:"column:lowest_premium"`
	TrailingStop    float64         `gorm:"column:trailing_stop"`
	InitialStop     float64         `gorm:"column:initial_stop"`
	StopOrderID     string          `gorm:"column:stop_order_id"`
	Transaction     string          `gorm:"column:transaction_type"`
	ReducedFidelity bool            `gorm:"column:reduced_fidelity"`
	UpdatedAtUnix   int64           `gorm:"column:updated_at"`
}

func (PositionModel) TableName() string { return "positions" }

// TradeModel is an immutable closed-position record, written exactly once
// per leg close.
type TradeModel struct {
	ID           int64           `gorm:"column:id;primaryKey"`
	Tenant       string          `gorm:"column:tenant;index:idx_trade_day,priority:1"`
	Day          string          `gorm:"column:day;index:idx_trade_day,priority:2"`
	Segment      string          `gorm:"column:segment"`
	Leg          string          `gorm:"column:leg"`
	Symbol       string          `gorm:"column:symbol"`
	Lots         int             `gorm:"column:lots"`
	Quantity     int             `gorm:"column:quantity"`
	EntryPremium decimal.Decimal `gorm:"column:entry_premium;type:TEXT"`
	ExitPremium  decimal.Decimal `gorm:"column:exit_premium;type:TEXT"`
	EntryTime    time.Time       `gorm:"column:entry_time"`
	ExitTime     time.Time       `gorm:"column:exit_time"`
	RealizedPnL  decimal.Decimal `gorm:"column:realized_pnl;type:TEXT"`
	ExitReason   string          `gorm:"column:exit_reason"`
}

func (TradeModel) TableName() string { return "trades" }

// DailyStatsModel is upserted continuously by the risk monitor, one row per
// tenant per trading day.
type DailyStatsModel struct {
	ID               int64           `gorm:"column:id;primaryKey"`
	Tenant           string          `gorm:"column:tenant;uniqueIndex:idx_daily,priority:1"`
	Day              string          `gorm:"column:day;uniqueIndex:idx_daily,priority:2"`
	RealizedPnL      decimal.Decimal `gorm:"column:realized_pnl;type:TEXT"`
	UnrealizedPnL    decimal.Decimal `gorm:"column:unrealized_pnl;type:TEXT"`
	ProtectedProfit  decimal.Decimal `gorm:"column:protected_profit;type:TEXT"`
	LossUsed         decimal.Decimal `gorm:"column:loss_used;type:TEXT"`
	TrailingLock     float64         `gorm:"column:trailing_lock"`
	TrailingArmed    bool            `gorm:"column:trailing_armed"`
	TrailingDisarmed bool            `gorm:"column:trailing_disarmed"`
	Blocked          bool            `gorm:"column:blocked"`
	BlockedUntilUnix int64           `gorm:"column:blocked_until"`
	TradesToday      int             `gorm:"column:trades_today"`
	UpdatedAtUnix    int64           `gorm:"column:updated_at"`
}

func (DailyStatsModel) TableName() string { return "daily_stats" }

// BarModel persists resolved candles so restarts and other workers can reuse
// them without refetching.
type BarModel struct {
	ID         int64   `gorm:"column:id;primaryKey"`
	Instrument string  `gorm:"column:instrument;uniqueIndex:idx_bar,priority:1"`
	Interval   string  `gorm:"column:interval;uniqueIndex:idx_bar,priority:2"`
	TimeUnix   int64   `gorm:"column:time_unix;uniqueIndex:idx_bar,priority:3"`
	Open       float64 `gorm:"column:open"`
	High       float64 `gorm:"column:high"`
	Low        float64 `gorm:"column:low"`
	Close      float64 `gorm:"column:close"`
	Volume     float64 `gorm:"column:volume"`
	Synthetic  bool    `gorm:"column:synthetic"`
}

func (BarModel) TableName() string { return "bars" }

// OrderEventModel is the audit trail of every broker interaction.
type OrderEventModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	Tenant        string         `gorm:"column:tenant;index"`
	Segment       string         `gorm:"column:segment"`
	OrderID       string         `gorm:"column:order_id"`
	Action        string         `gorm:"column:action"`
	Symbol        string         `gorm:"column:symbol"`
	Quantity      int            `gorm:"column:quantity"`
	Price         float64        `gorm:"column:price"`
	Raw           datatypes.JSON `gorm:"column:raw;type:TEXT"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
}

func (OrderEventModel) TableName() string { return "order_events" }

// TickDiagnosticModel stores the per-tick filter trail for operator
// visibility; every rejected entry is explainable from these rows.
type TickDiagnosticModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	Tenant        string         `gorm:"column:tenant;index:idx_diag,priority:1"`
	Segment       string         `gorm:"column:segment;index:idx_diag,priority:2"`
	BarTimeUnix   int64          `gorm:"column:bar_time"`
	Action        string         `gorm:"column:action"`
	Reason        string         `gorm:"column:reason"`
	Trail         datatypes.JSON `gorm:"column:trail;type:TEXT"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
}

func (TickDiagnosticModel) TableName() string { return "tick_diagnostics" }
