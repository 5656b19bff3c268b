package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"optrix/internal/logger"
)

// QuoteFunc supplies a fill price for market orders in paper mode.
type QuoteFunc func(ctx context.Context, symbol string) (float64, error)

// Paper simulates execution in memory. Entries fill immediately at the
// quoted price; stop orders rest as trigger-pending and are fired by Tick
// when the price crosses the trigger.
type Paper struct {
	quote QuoteFunc

	mu        sync.Mutex
	orders    map[string]*Order
	positions map[string]*Position
}

func NewPaper(quote QuoteFunc) *Paper {
	return &Paper{
		quote:     quote,
		orders:    make(map[string]*Order),
		positions: make(map[string]*Position),
	}
}

func (p *Paper) fillPrice(ctx context.Context, req OrderRequest) (float64, error) {
	if req.Price > 0 {
		return req.Price, nil
	}
	if p.quote == nil {
		return 0, fmt.Errorf("paper: no quote source for market order %s", req.Symbol)
	}
	return p.quote(ctx, req.Symbol)
}

func (p *Paper) PlaceEntry(ctx context.Context, req OrderRequest) (Receipt, error) {
	if req.Quantity <= 0 {
		return Receipt{}, fmt.Errorf("%w: quantity %d", ErrOrderRejected, req.Quantity)
	}
	px, err := p.fillPrice(ctx, req)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", ErrOrderRejected, err)
	}
	id := uuid.NewString()
	p.mu.Lock()
	defer p.mu.Unlock()
	o := &Order{
		ID: id, Symbol: req.Symbol, Transaction: req.Transaction,
		Quantity: req.Quantity, FilledQty: req.Quantity,
		Price: px, AvgPrice: px, Status: StatusComplete,
		Tag: req.Tag, PlacedAt: time.Now(),
	}
	p.orders[id] = o
	p.apply(req.Symbol, req.Transaction, req.Quantity, px)
	logger.Infof("paper: %s %d x %s @ %.2f", req.Transaction, req.Quantity, req.Symbol, px)
	return receiptFor(o), nil
}

func (p *Paper) PlaceStop(ctx context.Context, req OrderRequest) (Receipt, error) {
	if req.TriggerPrice <= 0 {
		return Receipt{}, fmt.Errorf("%w: stop needs trigger price", ErrOrderRejected)
	}
	id := uuid.NewString()
	p.mu.Lock()
	defer p.mu.Unlock()
	o := &Order{
		ID: id, Symbol: req.Symbol, Transaction: req.Transaction,
		Quantity: req.Quantity, TriggerPrice: req.TriggerPrice,
		Status: StatusTriggerPending, Tag: req.Tag, PlacedAt: time.Now(),
	}
	p.orders[id] = o
	return receiptFor(o), nil
}

// receiptFor stands in for a wire response: the simulated order state is the
// raw payload.
func receiptFor(o *Order) Receipt {
	raw, _ := json.Marshal(o)
	return Receipt{OrderID: o.ID, Raw: raw}
}

func (p *Paper) ModifyStop(_ context.Context, orderID string, triggerPrice float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return fmt.Errorf("paper: order %s not found", orderID)
	}
	if o.Status != StatusTriggerPending {
		return fmt.Errorf("paper: order %s not modifiable in status %s", orderID, o.Status)
	}
	o.TriggerPrice = triggerPrice
	return nil
}

func (p *Paper) CancelOrder(_ context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return fmt.Errorf("paper: order %s not found", orderID)
	}
	if o.Status == StatusTriggerPending || o.Status == StatusOpen {
		o.Status = StatusCancelled
	}
	return nil
}

func (p *Paper) OrderStatus(_ context.Context, orderID string) (Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return Order{}, fmt.Errorf("paper: order %s not found", orderID)
	}
	return *o, nil
}

func (p *Paper) Orders(_ context.Context) ([]Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Order, 0, len(p.orders))
	for _, o := range p.orders {
		out = append(out, *o)
	}
	return out, nil
}

func (p *Paper) Positions(_ context.Context) ([]Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Position, 0, len(p.positions))
	for _, pos := range p.positions {
		if pos.Quantity != 0 {
			out = append(out, *pos)
		}
	}
	return out, nil
}

func (p *Paper) SquareOff(ctx context.Context, symbol string, quantity int, tx TransactionType) (Receipt, error) {
	px, err := p.fillPrice(ctx, OrderRequest{Symbol: symbol})
	if err != nil {
		return Receipt{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.apply(symbol, tx, quantity, px)
	logger.Infof("paper: square off %s qty=%d @ %.2f", symbol, quantity, px)
	raw, _ := json.Marshal(struct {
		Symbol   string          `json:"symbol"`
		Quantity int             `json:"quantity"`
		Price    float64         `json:"price"`
		Tx       TransactionType `json:"transaction_type"`
	}{symbol, quantity, px, tx})
	return Receipt{Raw: raw}, nil
}

func (p *Paper) SquareOffAll(ctx context.Context) error {
	p.mu.Lock()
	symbols := make(map[string]Position)
	for sym, pos := range p.positions {
		if pos.Quantity != 0 {
			symbols[sym] = *pos
		}
	}
	p.mu.Unlock()
	for sym, pos := range symbols {
		tx := Sell
		qty := pos.Quantity
		if qty < 0 {
			tx = Buy
			qty = -qty
		}
		if _, err := p.SquareOff(ctx, sym, qty, tx); err != nil {
			return err
		}
	}
	return nil
}

// Tick fires resting stop orders whose trigger the price has crossed and
// refreshes mark prices. Called by the paper loop; harmless if unused.
func (p *Paper) Tick(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pos, ok := p.positions[symbol]; ok {
		pos.LastPrice = price
		pos.PnL = float64(pos.Quantity) * (price - pos.AvgPrice)
	}
	for _, o := range p.orders {
		if o.Symbol != symbol || o.Status != StatusTriggerPending {
			continue
		}
		triggered := (o.Transaction == Sell && price <= o.TriggerPrice) ||
			(o.Transaction == Buy && price >= o.TriggerPrice)
		if !triggered {
			continue
		}
		o.Status = StatusComplete
		o.FilledQty = o.Quantity
		o.AvgPrice = price
		p.apply(o.Symbol, o.Transaction, o.Quantity, price)
		logger.Infof("paper: stop triggered %s %s qty=%d @ %.2f", o.Transaction, symbol, o.Quantity, price)
	}
}

// apply nets a fill into the position book. Caller holds the lock.
func (p *Paper) apply(symbol string, tx TransactionType, qty int, px float64) {
	pos, ok := p.positions[symbol]
	if !ok {
		pos = &Position{Symbol: symbol}
		p.positions[symbol] = pos
	}
	signed := qty
	if tx == Sell {
		signed = -qty
	}
	newQty := pos.Quantity + signed
	switch {
	case pos.Quantity == 0 || (pos.Quantity > 0) == (signed > 0):
		// Adding to the same side: volume-weighted average.
		total := float64(abs(pos.Quantity))*pos.AvgPrice + float64(abs(signed))*px
		pos.AvgPrice = total / float64(abs(pos.Quantity)+abs(signed))
	case newQty == 0:
		pos.AvgPrice = 0
	}
	pos.Quantity = newQty
	pos.LastPrice = px
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
