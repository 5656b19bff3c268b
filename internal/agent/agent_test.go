package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optrix/internal/analysis/indicator"
	"optrix/internal/gateway/broker"
	"optrix/internal/market"
	"optrix/internal/market/resolve"
	"optrix/internal/position"
	"optrix/internal/signal"
	"optrix/internal/store/model"
	"optrix/internal/tenant"
)

type fakeStore struct {
	positions   map[string]model.PositionModel
	trades      []model.TradeModel
	stats       map[string]model.DailyStatsModel
	diagnostics []model.TickDiagnosticModel
	bars        map[int64]market.Bar
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		positions: make(map[string]model.PositionModel),
		stats:     make(map[string]model.DailyStatsModel),
		bars:      make(map[int64]market.Bar),
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
	return nil, nil
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

func (f *fakeStore) PutBars(_ context.Context, _, _ string, bars []market.Bar) error {
	for _, b := range bars {
		f.bars[b.Time.Unix()] = b
	}
	return nil
}

func (f *fakeStore) GetBar(_ context.Context, _, _ string, ts time.Time) (market.Bar, bool, error) {
	b, ok := f.bars[ts.Unix()]
	return b, ok, nil
}

func (f *fakeStore) InsertOrderEvent(context.Context, model.OrderEventModel) error { return nil }

func (f *fakeStore) InsertDiagnostic(_ context.Context, rec model.TickDiagnosticModel) error {
	f.diagnostics = append(f.diagnostics, rec)
	return nil
}

func (f *fakeStore) RecentDiagnostics(context.Context, string, int) ([]model.TickDiagnosticModel, error) {
	return nil, nil
}
func (f *fakeStore) Purge(context.Context, time.Time) error { return nil }
func (f *fakeStore) Close() error                           { return nil }

type fakeSource struct {
	bars  []market.Bar
	err   error
	calls int
}

func (f *fakeSource) Bars(context.Context, string, time.Duration, time.Time, time.Time) ([]market.Bar, error) {
	f.calls++
	return f.bars, f.err
}

func (f *fakeSource) LTP(context.Context, string) (float64, error) { return 100, nil }

var testNow = time.Date(2026, 8, 31, 11, 2, 0, 0, time.UTC)

func testAgent(st *fakeStore, src *fakeSource, frame *market.Frame) *Agent {
	session := market.DefaultSession(time.UTC)
	cfg := Config{
		Segment:     "nifty",
		Instrument:  "NSE:NIFTY 50",
		Interval:    "5m",
		IntervalDur: 5 * time.Minute,
		Indicator:   indicator.Config{RSIPeriod: 3, PSSpan: 2, VSWindow: 3, ATRPeriod: 3, ATRAvgWindow: 2},
	}
	resolver := resolve.NewResolver(cfg.Instrument, cfg.Interval, cfg.IntervalDur, session, frame, st, src,
		resolve.WithNow(func() time.Time { return testNow }))

	exec := broker.NewPaper(func(context.Context, string) (float64, error) { return 100, nil })
	machine := position.NewMachine(position.Config{
		Segment: "nifty", Regime: signal.RegimeBuy, SymbolPrefix: "NIFTY", Expiry: "25SEP",
		StrikeStep: 50, LotSize: 75, Lots: 1, StopLossPoints: 20,
	}, exec, st, func(context.Context, string) (float64, error) { return 100, nil })
	gen := signal.NewGenerator(signal.RegimeBuy, signal.Thresholds{})

	a := New(cfg, session, frame, resolver, src, st, machine, gen)
	a.nowFn = func() time.Time { return testNow }
	return a
}

func fillFrame(frame *market.Frame, end time.Time, n int) {
	for i := n - 1; i >= 0; i-- {
		ts := end.Add(-time.Duration(i) * 5 * time.Minute)
		c := 100 + float64(i%7)
		frame.Put(market.Bar{Time: ts, Open: c - 1, High: c + 2, Low: c - 2, Close: c, Volume: 50})
	}
}

func testCtx() context.Context {
	return tenant.With(context.Background(), "default")
}

func TestTickSkipsOutsideSession(t *testing.T) {
	st := newFakeStore()
	src := &fakeSource{err: errors.New("unused")}
	a := testAgent(st, src, market.NewFrame(100))
	a.nowFn = func() time.Time { return time.Date(2026, 9, 5, 11, 0, 0, 0, time.UTC) } // Saturday

	assert.NoError(t, a.Tick(testCtx()))
	assert.Zero(t, src.calls)
	assert.Empty(t, st.diagnostics)
}

func TestTickDefersWithoutTenant(t *testing.T) {
	st := newFakeStore()
	src := &fakeSource{err: errors.New("unused")}
	a := testAgent(st, src, market.NewFrame(100))

	assert.NoError(t, a.Tick(context.Background()))
	assert.Zero(t, src.calls)
}

func TestTickSkipsWhileBlocked(t *testing.T) {
	st := newFakeStore()
	st.stats[testNow.Format("2006-01-02")] = model.DailyStatsModel{
		Day:              testNow.Format("2006-01-02"),
		Blocked:          true,
		BlockedUntilUnix: testNow.Add(time.Hour).Unix(),
	}
	src := &fakeSource{err: errors.New("unused")}
	a := testAgent(st, src, market.NewFrame(100))

	assert.NoError(t, a.Tick(testCtx()))
	assert.Zero(t, src.calls)
	assert.Empty(t, st.diagnostics)
}

func TestTickSkipsWhenNoDataAnywhere(t *testing.T) {
	st := newFakeStore()
	src := &fakeSource{err: errors.New("feed down")}
	a := testAgent(st, src, market.NewFrame(100))

	// Every resolver tier fails; the tick is skipped, never fabricated.
	assert.NoError(t, a.Tick(testCtx()))
	assert.Empty(t, st.diagnostics)
}

func TestTickRecordsDiagnostic(t *testing.T) {
	st := newFakeStore()
	src := &fakeSource{err: errors.New("secondary down")}
	frame := market.NewFrame(100)
	fillFrame(frame, time.Date(2026, 8, 31, 10, 55, 0, 0, time.UTC), 40)
	a := testAgent(st, src, frame)

	assert.NoError(t, a.Tick(testCtx()))
	require.Len(t, st.diagnostics, 1)
	d := st.diagnostics[0]
	assert.Equal(t, "nifty", d.Segment)
	assert.Equal(t, time.Date(2026, 8, 31, 10, 55, 0, 0, time.UTC).Unix(), d.BarTimeUnix)
	assert.NotEmpty(t, d.Action)
	assert.NotEmpty(t, d.Trail)
}

func TestTickEvaluatesPriorSessionSubstitute(t *testing.T) {
	st := newFakeStore()
	src := &fakeSource{err: errors.New("feed down")}
	frame := market.NewFrame(100)
	// History ends one interval short of the expected bar, and the live
	// source is down; only the same-weekday prior-session bar exists.
	fillFrame(frame, time.Date(2026, 8, 31, 10, 50, 0, 0, time.UTC), 40)
	expected := time.Date(2026, 8, 31, 10, 55, 0, 0, time.UTC)
	prior := expected.AddDate(0, 0, -7)
	st.bars[prior.Unix()] = market.Bar{Time: prior, Open: 99, High: 103, Low: 97, Close: 101, Volume: 40}

	a := testAgent(st, src, frame)
	assert.NoError(t, a.Tick(testCtx()))

	// The substitute drives a full evaluation instead of skipping the tick.
	require.Len(t, st.diagnostics, 1)
	assert.Equal(t, expected.Unix(), st.diagnostics[0].BarTimeUnix)
	assert.NotEmpty(t, st.diagnostics[0].Action)
}
