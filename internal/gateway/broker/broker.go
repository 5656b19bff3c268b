// Package broker implements the execution port: order placement, status,
// live positions and square-off against the broker API. Paper and live
// executors are interchangeable behind the Executor interface and selected
// at construction time.
package broker

import (
	"context"
	"errors"
	"time"
)

// ErrOrderRejected marks an entry order the broker refused. The caller must
// roll back the logical open so no orphaned leg remains.
var ErrOrderRejected = errors.New("broker: order rejected")

type TransactionType string

const (
	Buy  TransactionType = "BUY"
	Sell TransactionType = "SELL"
)

// Opposite returns the counter transaction, used for square-off orders.
func (t TransactionType) Opposite() TransactionType {
	if t == Buy {
		return Sell
	}
	return Buy
}

type OrderStatus string

const (
	StatusOpen           OrderStatus = "OPEN"
	StatusComplete       OrderStatus = "COMPLETE"
	StatusCancelled      OrderStatus = "CANCELLED"
	StatusRejected       OrderStatus = "REJECTED"
	StatusTriggerPending OrderStatus = "TRIGGER PENDING"
	StatusUnknown        OrderStatus = "UNKNOWN"
)

// OrderRequest describes an order to place. Price zero means market.
// TriggerPrice is set only for stop orders. Tag carries the client order id
// used to recognize our own orders during reconciliation.
type OrderRequest struct {
	Symbol       string
	Transaction  TransactionType
	Quantity     int
	Price        float64
	TriggerPrice float64
	Tag          string
}

// Order is the broker's view of one order.
type Order struct {
	ID           string
	Symbol       string
	Transaction  TransactionType
	Quantity     int
	FilledQty    int
	Price        float64
	AvgPrice     float64
	TriggerPrice float64
	Status       OrderStatus
	Tag          string
	PlacedAt     time.Time
}

// Position is the broker's view of one open net position.
type Position struct {
	Symbol    string
	Quantity  int
	AvgPrice  float64
	LastPrice float64
	PnL       float64
}

// Receipt is returned by order-placing calls: the broker's order id plus the
// raw wire response, preserved verbatim for the audit trail.
type Receipt struct {
	OrderID string
	Raw     []byte
}

// Executor is the broker execution port.
type Executor interface {
	PlaceEntry(ctx context.Context, req OrderRequest) (Receipt, error)
	PlaceStop(ctx context.Context, req OrderRequest) (Receipt, error)
	ModifyStop(ctx context.Context, orderID string, triggerPrice float64) error
	CancelOrder(ctx context.Context, orderID string) error
	OrderStatus(ctx context.Context, orderID string) (Order, error)
	Orders(ctx context.Context) ([]Order, error)
	Positions(ctx context.Context) ([]Position, error)
	SquareOff(ctx context.Context, symbol string, quantity int, tx TransactionType) (Receipt, error)
	SquareOffAll(ctx context.Context) error
}
