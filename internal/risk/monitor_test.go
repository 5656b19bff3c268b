package risk

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"optrix/internal/gateway/broker"
	"optrix/internal/market"
	"optrix/internal/store/model"
	"optrix/internal/tenant"
)

type fakeStore struct {
	positions map[string]model.PositionModel
	trades    []model.TradeModel
	stats     map[string]model.DailyStatsModel
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		positions: make(map[string]model.PositionModel),
		stats:     make(map[string]model.DailyStatsModel),
	}
}

func (f *fakeStore) UpsertPosition(_ context.Context, rec model.PositionModel) error {
	f.positions[rec.Segment+"/"+rec.Leg] = rec
	return nil
}

func (f *fakeStore) GetPosition(_ context.Context, segment, leg string) (model.PositionModel, bool, error) {
	rec, ok := f.positions[segment+"/"+leg]
	return rec, ok, nil
}

func (f *fakeStore) ListOpenPositions(_ context.Context) ([]model.PositionModel, error) {
	out := make([]model.PositionModel, 0, len(f.positions))
	for _, rec := range f.positions {
		out = append(out, rec)
	}
	return out, nil
}

func (f *fakeStore) DeletePosition(_ context.Context, segment, leg string) error {
	delete(f.positions, segment+"/"+leg)
	return nil
}

func (f *fakeStore) InsertTrade(_ context.Context, rec model.TradeModel) error {
	f.trades = append(f.trades, rec)
	return nil
}

func (f *fakeStore) TradesForDay(context.Context, string) ([]model.TradeModel, error) {
	return f.trades, nil
}

func (f *fakeStore) UpsertDailyStats(_ context.Context, rec model.DailyStatsModel) error {
	f.stats[rec.Day] = rec
	return nil
}

func (f *fakeStore) GetDailyStats(_ context.Context, day string) (model.DailyStatsModel, bool, error) {
	rec, ok := f.stats[day]
	return rec, ok, nil
}

func (f *fakeStore) PutBars(context.Context, string, string, []market.Bar) error { return nil }
func (f *fakeStore) GetBar(context.Context, string, string, time.Time) (market.Bar, bool, error) {
	return market.Bar{}, false, nil
}
func (f *fakeStore) InsertOrderEvent(context.Context, model.OrderEventModel) error     { return nil }
func (f *fakeStore) InsertDiagnostic(context.Context, model.TickDiagnosticModel) error { return nil }
func (f *fakeStore) RecentDiagnostics(context.Context, string, int) ([]model.TickDiagnosticModel, error) {
	return nil, nil
}
func (f *fakeStore) Purge(context.Context, time.Time) error { return nil }
func (f *fakeStore) Close() error                           { return nil }

type fakeExec struct {
	positions  []broker.Position
	squareAlls int
}

func (f *fakeExec) PlaceEntry(context.Context, broker.OrderRequest) (broker.Receipt, error) {
	return broker.Receipt{}, nil
}
func (f *fakeExec) PlaceStop(context.Context, broker.OrderRequest) (broker.Receipt, error) {
	return broker.Receipt{}, nil
}
func (f *fakeExec) ModifyStop(context.Context, string, float64) error { return nil }
func (f *fakeExec) CancelOrder(context.Context, string) error                       { return nil }
func (f *fakeExec) OrderStatus(context.Context, string) (broker.Order, error) {
	return broker.Order{}, nil
}
func (f *fakeExec) Orders(context.Context) ([]broker.Order, error) { return nil, nil }
func (f *fakeExec) Positions(context.Context) ([]broker.Position, error) {
	return f.positions, nil
}
func (f *fakeExec) SquareOff(context.Context, string, int, broker.TransactionType) (broker.Receipt, error) {
	return broker.Receipt{}, nil
}
func (f *fakeExec) SquareOffAll(context.Context) error {
	f.squareAlls++
	f.positions = nil
	return nil
}

type quoteBook map[string]float64

func (q quoteBook) quote(_ context.Context, symbol string) (float64, error) {
	return q[symbol], nil
}

var testNow = time.Date(2026, 8, 31, 11, 0, 0, 0, time.UTC)

func testMonitor(cfg Config, st *fakeStore, exec *fakeExec, quotes quoteBook) *Monitor {
	m := NewMonitor(cfg, st, exec, quotes.quote, nil, market.DefaultSession(time.UTC))
	m.nowFn = func() time.Time { return testNow }
	return m
}

func testCtx() context.Context {
	return tenant.With(context.Background(), "default")
}

func openPosition(st *fakeStore, exec *fakeExec, symbol string, qty int, entry float64, tx broker.TransactionType) {
	leg := symbol[len(symbol)-2:]
	st.positions["nifty/"+leg] = model.PositionModel{
		Segment:      "nifty",
		Leg:          leg,
		Symbol:       symbol,
		Quantity:     qty,
		EntryPremium: decimal.NewFromFloat(entry),
		Transaction:  string(tx),
	}
	bq := qty
	if tx == broker.Sell {
		bq = -qty
	}
	exec.positions = append(exec.positions, broker.Position{Symbol: symbol, Quantity: bq, AvgPrice: entry})
}

func addRealized(st *fakeStore, pnl float64) {
	st.trades = append(st.trades, model.TradeModel{
		Segment:     "nifty",
		RealizedPnL: decimal.NewFromFloat(pnl),
		ExitTime:    testNow,
	})
}

func TestLossCountsOnlyOpenUnrealized(t *testing.T) {
	st := newFakeStore()
	exec := &fakeExec{}
	quotes := quoteBook{"NIFTY25SEP24500CE": 60}
	openPosition(st, exec, "NIFTY25SEP24500CE", 75, 100, broker.Buy)
	addRealized(st, 5000)

	m := testMonitor(Config{DailyLossLimit: 10000}, st, exec, quotes)
	assert.NoError(t, m.Tick(testCtx()))

	status := m.Status()
	// Unrealized -3000 drives the loss figure; realized +5000 is protected
	// and never offsets it.
	assert.InDelta(t, -3000.0, status.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 3000.0, status.LossUsed, 1e-9)
	assert.InDelta(t, 5000.0, status.RealizedPnL, 1e-9)
	assert.InDelta(t, 5000.0, status.ProtectedProfit, 1e-9)
	assert.False(t, status.Blocked)
	assert.Equal(t, 0, exec.squareAlls)
}

func TestLossBreachSquaresOffAndBlocks(t *testing.T) {
	st := newFakeStore()
	exec := &fakeExec{}
	quotes := quoteBook{"NIFTY25SEP24500CE": 40}
	openPosition(st, exec, "NIFTY25SEP24500CE", 200, 100, broker.Buy)

	m := testMonitor(Config{DailyLossLimit: 10000}, st, exec, quotes)
	assert.NoError(t, m.Tick(testCtx()))

	status := m.Status()
	assert.True(t, status.Blocked)
	assert.Equal(t, 1, exec.squareAlls)
	// The block lasts until the next session open.
	next := market.DefaultSession(time.UTC).NextOpen(testNow)
	assert.True(t, status.BlockedUntil.Equal(next))
	// Open positions were converted to realized trades.
	assert.Empty(t, st.positions)
	assert.Len(t, st.trades, 1)
	assert.Equal(t, "risk_breach", st.trades[0].ExitReason)
	// Durable state reflects the block.
	rec, ok := st.stats[status.Day]
	assert.True(t, ok)
	assert.True(t, rec.Blocked)
}

func TestLossBreachHandledOnce(t *testing.T) {
	st := newFakeStore()
	exec := &fakeExec{}
	quotes := quoteBook{"NIFTY25SEP24500CE": 40}
	openPosition(st, exec, "NIFTY25SEP24500CE", 200, 100, broker.Buy)

	m := testMonitor(Config{DailyLossLimit: 10000}, st, exec, quotes)
	assert.NoError(t, m.Tick(testCtx()))
	assert.NoError(t, m.Tick(testCtx()))
	assert.Equal(t, 1, exec.squareAlls)
}

func TestProfitLockLadder(t *testing.T) {
	st := newFakeStore()
	exec := &fakeExec{}
	m := testMonitor(Config{LockActivation: 5000, LockIncrement: 5000}, st, exec, quoteBook{})
	ctx := testCtx()

	// Below activation: nothing armed.
	addRealized(st, 4000)
	assert.NoError(t, m.Tick(ctx))
	assert.False(t, m.Status().LockArmed)

	// Crossing activation arms the lock at the activation level.
	addRealized(st, 2000) // total 6000
	assert.NoError(t, m.Tick(ctx))
	status := m.Status()
	assert.True(t, status.LockArmed)
	assert.InDelta(t, 5000.0, status.LockLevel, 1e-9)

	// 15000 locks 10000.
	addRealized(st, 9000)
	assert.NoError(t, m.Tick(ctx))
	assert.InDelta(t, 10000.0, m.Status().LockLevel, 1e-9)

	// 28000 locks 20000.
	addRealized(st, 13000)
	assert.NoError(t, m.Tick(ctx))
	assert.InDelta(t, 20000.0, m.Status().LockLevel, 1e-9)
	assert.Equal(t, 0, exec.squareAlls)
}

func TestProfitLockArmsAtExactActivation(t *testing.T) {
	st := newFakeStore()
	exec := &fakeExec{}
	m := testMonitor(Config{LockActivation: 5000, LockIncrement: 10000}, st, exec, quoteBook{})

	// Profit landing exactly on the activation level arms the lock without
	// registering a breach on the same tick.
	addRealized(st, 5000)
	assert.NoError(t, m.Tick(testCtx()))

	status := m.Status()
	assert.True(t, status.LockArmed)
	assert.False(t, status.LockDisarmed)
	assert.InDelta(t, 5000.0, status.LockLevel, 1e-9)
	assert.Equal(t, 0, exec.squareAlls)
}

func TestProfitLockNeverRatchetsDown(t *testing.T) {
	st := newFakeStore()
	exec := &fakeExec{}
	m := testMonitor(Config{LockActivation: 5000, LockIncrement: 5000}, st, exec, quoteBook{})
	ctx := testCtx()

	addRealized(st, 28000)
	assert.NoError(t, m.Tick(ctx))
	assert.InDelta(t, 20000.0, m.Status().LockLevel, 1e-9)

	// Profit falls but stays above the lock: level holds.
	st.trades = nil
	addRealized(st, 22000)
	assert.NoError(t, m.Tick(ctx))
	status := m.Status()
	assert.InDelta(t, 20000.0, status.LockLevel, 1e-9)
	assert.True(t, status.LockArmed)
	assert.Equal(t, 0, exec.squareAlls)
}

func TestProfitLockBreachDisarmsForDay(t *testing.T) {
	st := newFakeStore()
	exec := &fakeExec{}
	m := testMonitor(Config{LockActivation: 5000, LockIncrement: 5000}, st, exec, quoteBook{})
	ctx := testCtx()

	addRealized(st, 28000)
	assert.NoError(t, m.Tick(ctx))

	// Fall to the lock level triggers the square-off and disarms.
	st.trades = nil
	addRealized(st, 20000)
	assert.NoError(t, m.Tick(ctx))
	status := m.Status()
	assert.True(t, status.LockDisarmed)
	assert.False(t, status.LockArmed)
	assert.Equal(t, 1, exec.squareAlls)

	// Fresh profit later the same day does not re-arm.
	st.trades = nil
	addRealized(st, 40000)
	assert.NoError(t, m.Tick(ctx))
	status = m.Status()
	assert.True(t, status.LockDisarmed)
	assert.Equal(t, 1, exec.squareAlls)
}

func TestProtectRealizedRecordsExternalClose(t *testing.T) {
	st := newFakeStore()
	exec := &fakeExec{}
	quotes := quoteBook{"NIFTY25SEP24500CE": 130}
	openPosition(st, exec, "NIFTY25SEP24500CE", 75, 100, broker.Buy)
	// The broker no longer holds the position.
	exec.positions = nil

	m := testMonitor(Config{DailyLossLimit: 10000}, st, exec, quotes)
	assert.NoError(t, m.Tick(testCtx()))

	assert.Empty(t, st.positions)
	assert.Len(t, st.trades, 1)
	assert.Equal(t, "external", st.trades[0].ExitReason)
	pnl, _ := st.trades[0].RealizedPnL.Float64()
	assert.InDelta(t, (130-100)*75, pnl, 1e-9)
	// Once realized, the profit is protected.
	assert.InDelta(t, 2250.0, m.Status().ProtectedProfit, 1e-9)
}

func TestTickDefersWithoutTenant(t *testing.T) {
	st := newFakeStore()
	exec := &fakeExec{}
	m := testMonitor(Config{DailyLossLimit: 10000}, st, exec, quoteBook{})

	assert.NoError(t, m.Tick(context.Background()))
	assert.Empty(t, st.stats)
}
