package position

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"optrix/internal/gateway/broker"
	"optrix/internal/signal"
	"optrix/internal/store/model"
)

func brokerEntry(symbol string, qty int) broker.OrderRequest {
	return broker.OrderRequest{Symbol: symbol, Transaction: broker.Buy, Quantity: qty}
}

func storedPosition(symbol string, leg signal.Leg, qty int, entry float64) model.PositionModel {
	return model.PositionModel{
		Segment:        "nifty",
		Leg:            string(leg),
		Symbol:         symbol,
		Strike:         24500,
		Expiry:         "25SEP",
		Lots:           qty / 75,
		Quantity:       qty,
		EntryPremium:   decimal.NewFromFloat(entry),
		EntryTime:      time.Date(2026, 8, 31, 9, 30, 0, 0, time.UTC),
		HighestPremium: entry + 10,
		LowestPremium:  entry,
		TrailingStop:   entry - 5,
		InitialStop:    entry - 20,
		Transaction:    "BUY",
	}
}

func TestRecoverRestoresFromStore(t *testing.T) {
	m, exec, st, book := setup(buyConfig())
	ctx := context.Background()
	symbol := "NIFTY25SEP24500CE"
	book.prices[symbol] = 100

	st.positions["nifty/CE"] = storedPosition(symbol, signal.LegCE, 75, 100)
	_, err := exec.PlaceEntry(ctx, brokerEntry(symbol, 75))
	assert.NoError(t, err)

	assert.NoError(t, m.Recover(ctx))

	l, ok := m.Open(signal.LegCE)
	assert.True(t, ok)
	assert.Equal(t, 75, l.Quantity)
	assert.Equal(t, 110.0, l.Highest)
	assert.Equal(t, 95.0, l.TrailingStop)
	assert.Equal(t, 80.0, l.InitialStop)
	assert.False(t, l.ReducedFidelity)
}

func TestRecoverClearsStaleStoreState(t *testing.T) {
	m, _, st, _ := setup(buyConfig())
	ctx := context.Background()
	st.positions["nifty/CE"] = storedPosition("NIFTY25SEP24500CE", signal.LegCE, 75, 100)

	assert.NoError(t, m.Recover(ctx))

	assert.Empty(t, m.OpenLegs())
	_, found, err := st.GetPosition(ctx, "nifty", "CE")
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestRecoverAdoptsBrokerQuantityDrift(t *testing.T) {
	m, exec, st, book := setup(buyConfig())
	ctx := context.Background()
	symbol := "NIFTY25SEP24500CE"
	book.prices[symbol] = 100

	st.positions["nifty/CE"] = storedPosition(symbol, signal.LegCE, 75, 100)
	_, err := exec.PlaceEntry(ctx, brokerEntry(symbol, 150))
	assert.NoError(t, err)

	assert.NoError(t, m.Recover(ctx))

	l, ok := m.Open(signal.LegCE)
	assert.True(t, ok)
	assert.Equal(t, 150, l.Quantity)
	assert.Equal(t, 2, l.Lots)
}

func TestRecoverAdoptsUntrackedBrokerPosition(t *testing.T) {
	m, exec, st, book := setup(buyConfig())
	ctx := context.Background()
	symbol := "NIFTY25SEP24600PE"
	book.prices[symbol] = 90

	_, err := exec.PlaceEntry(ctx, brokerEntry(symbol, 75))
	assert.NoError(t, err)

	assert.NoError(t, m.Recover(ctx))

	l, ok := m.Open(signal.LegPE)
	assert.True(t, ok)
	assert.True(t, l.ReducedFidelity)
	assert.Equal(t, 24600.0, l.Strike)
	assert.Equal(t, 90.0, l.EntryPremium)
	// Trailing state restarts from the adopted entry premium.
	assert.Equal(t, 70.0, l.InitialStop)

	// The adopted leg is persisted for the next restart.
	_, found, err := st.GetPosition(ctx, "nifty", "PE")
	assert.NoError(t, err)
	assert.True(t, found)
}

func TestRecoverIgnoresForeignSymbols(t *testing.T) {
	m, exec, _, book := setup(buyConfig())
	ctx := context.Background()
	book.prices["BANKNIFTY25SEP52000CE"] = 300

	_, err := exec.PlaceEntry(ctx, brokerEntry("BANKNIFTY25SEP52000CE", 35))
	assert.NoError(t, err)

	assert.NoError(t, m.Recover(ctx))
	assert.Empty(t, m.OpenLegs())
}
