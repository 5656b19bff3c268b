package broker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func paperWithQuote(price float64) *Paper {
	return NewPaper(func(context.Context, string) (float64, error) {
		return price, nil
	})
}

func TestPaperEntryFillsImmediately(t *testing.T) {
	p := paperWithQuote(100)
	ctx := context.Background()

	rcpt, err := p.PlaceEntry(ctx, OrderRequest{Symbol: "NIFTY25SEP24500CE", Transaction: Buy, Quantity: 75})
	assert.NoError(t, err)
	assert.NotEmpty(t, rcpt.OrderID)
	// The fill is preserved as the raw payload for the audit trail.
	assert.NotEmpty(t, rcpt.Raw)

	o, err := p.OrderStatus(ctx, rcpt.OrderID)
	assert.NoError(t, err)
	assert.Equal(t, StatusComplete, o.Status)
	assert.Equal(t, 100.0, o.AvgPrice)

	positions, err := p.Positions(ctx)
	assert.NoError(t, err)
	assert.Len(t, positions, 1)
	assert.Equal(t, 75, positions[0].Quantity)
}

func TestPaperRejectsBadEntry(t *testing.T) {
	p := paperWithQuote(100)
	_, err := p.PlaceEntry(context.Background(), OrderRequest{Symbol: "X", Quantity: 0})
	assert.ErrorIs(t, err, ErrOrderRejected)
}

func TestPaperStopTriggersOnCross(t *testing.T) {
	p := paperWithQuote(100)
	ctx := context.Background()
	sym := "NIFTY25SEP24500CE"

	_, err := p.PlaceEntry(ctx, OrderRequest{Symbol: sym, Transaction: Buy, Quantity: 75})
	assert.NoError(t, err)
	stop, err := p.PlaceStop(ctx, OrderRequest{Symbol: sym, Transaction: Sell, Quantity: 75, TriggerPrice: 80})
	assert.NoError(t, err)

	// Above the trigger nothing happens.
	p.Tick(sym, 90)
	o, _ := p.OrderStatus(ctx, stop.OrderID)
	assert.Equal(t, StatusTriggerPending, o.Status)

	// Crossing the trigger fills the stop and flattens the book.
	p.Tick(sym, 79)
	o, _ = p.OrderStatus(ctx, stop.OrderID)
	assert.Equal(t, StatusComplete, o.Status)
	assert.Equal(t, 79.0, o.AvgPrice)

	positions, _ := p.Positions(ctx)
	assert.Empty(t, positions)
}

func TestPaperModifyAndCancelStop(t *testing.T) {
	p := paperWithQuote(100)
	ctx := context.Background()
	sym := "NIFTY25SEP24500CE"

	stop, err := p.PlaceStop(ctx, OrderRequest{Symbol: sym, Transaction: Sell, Quantity: 75, TriggerPrice: 80})
	assert.NoError(t, err)

	assert.NoError(t, p.ModifyStop(ctx, stop.OrderID, 95))
	o, _ := p.OrderStatus(ctx, stop.OrderID)
	assert.Equal(t, 95.0, o.TriggerPrice)

	assert.NoError(t, p.CancelOrder(ctx, stop.OrderID))
	o, _ = p.OrderStatus(ctx, stop.OrderID)
	assert.Equal(t, StatusCancelled, o.Status)

	// A cancelled stop never fires.
	p.Tick(sym, 50)
	o, _ = p.OrderStatus(ctx, stop.OrderID)
	assert.Equal(t, StatusCancelled, o.Status)
}

func TestPaperNetsAveragePrice(t *testing.T) {
	p := NewPaper(nil)
	ctx := context.Background()
	sym := "NIFTY25SEP24500CE"

	_, err := p.PlaceEntry(ctx, OrderRequest{Symbol: sym, Transaction: Buy, Quantity: 75, Price: 100})
	assert.NoError(t, err)
	_, err = p.PlaceEntry(ctx, OrderRequest{Symbol: sym, Transaction: Buy, Quantity: 75, Price: 110})
	assert.NoError(t, err)

	positions, _ := p.Positions(ctx)
	assert.Len(t, positions, 1)
	assert.Equal(t, 150, positions[0].Quantity)
	assert.InDelta(t, 105.0, positions[0].AvgPrice, 1e-9)
}

func TestPaperSquareOffAll(t *testing.T) {
	p := paperWithQuote(100)
	ctx := context.Background()

	_, err := p.PlaceEntry(ctx, OrderRequest{Symbol: "A25SEP100CE", Transaction: Buy, Quantity: 75})
	assert.NoError(t, err)
	_, err = p.PlaceEntry(ctx, OrderRequest{Symbol: "B25SEP200PE", Transaction: Sell, Quantity: 35})
	assert.NoError(t, err)

	assert.NoError(t, p.SquareOffAll(ctx))
	positions, _ := p.Positions(ctx)
	assert.Empty(t, positions)
}

func TestTransactionOpposite(t *testing.T) {
	assert.Equal(t, Sell, Buy.Opposite())
	assert.Equal(t, Buy, Sell.Opposite())
}
