package app

import (
	"context"
	"fmt"
	"time"

	"optrix/internal/agent"
	"optrix/internal/analysis/indicator"
	"optrix/internal/config"
	"optrix/internal/gateway/broker"
	"optrix/internal/gateway/marketdata"
	"optrix/internal/gateway/notifier"
	"optrix/internal/market"
	"optrix/internal/market/resolve"
	"optrix/internal/position"
	"optrix/internal/risk"
	"optrix/internal/scheduler"
	"optrix/internal/signal"
	"optrix/internal/store/gormstore"
	"optrix/internal/tenant"
	livehttp "optrix/internal/transport/http/live"
)

const frameCapacity = 500

func build(cfg *config.Config) (*App, error) {
	loc, err := time.LoadLocation(cfg.Session.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone: %w", err)
	}
	session := market.Session{
		OpenHour:    cfg.Session.OpenHour,
		OpenMinute:  cfg.Session.OpenMinute,
		CloseHour:   cfg.Session.CloseHour,
		CloseMinute: cfg.Session.CloseMinute,
		Location:    loc,
	}

	st, err := gormstore.NewGormStore(cfg.App.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	var ticker *marketdata.Ticker
	var mdOpts []marketdata.Option
	if cfg.MarketData.WSURL != "" {
		instruments := make([]string, 0, len(cfg.Segments))
		for _, seg := range cfg.Segments {
			instruments = append(instruments, seg.Instrument)
		}
		ticker = marketdata.NewTicker(cfg.MarketData.WSURL, cfg.MarketData.APIKey, instruments)
		mdOpts = append(mdOpts, marketdata.WithTicker(ticker))
	}
	md := marketdata.NewClient(cfg.MarketData.BaseURL, cfg.MarketData.APIKey,
		time.Duration(cfg.MarketData.TimeoutSeconds)*time.Second, mdOpts...)

	exec, err := buildBroker(cfg, md)
	if err != nil {
		return nil, err
	}

	var nt notifier.TextNotifier = notifier.Nop{}
	if cfg.Notify.Telegram.Enabled {
		nt = notifier.NewTelegram(cfg.Notify.Telegram.BotToken, cfg.Notify.Telegram.ChatID)
	}

	monitor := risk.NewMonitor(risk.Config{
		DailyLossLimit: cfg.Risk.DailyLossLimit,
		WarnFraction:   cfg.Risk.WarnFraction,
		LockActivation: cfg.Risk.LockActivation,
		LockIncrement:  cfg.Risk.LockIncrement,
		Interval:       time.Duration(cfg.Risk.IntervalSeconds) * time.Second,
	}, st, exec, md.LTP, nt, session)

	a := &App{
		cfg:     cfg,
		tenant:  tenant.ID(cfg.Tenant),
		store:   st,
		ticker:  ticker,
		gens:    make(map[string]*signal.Generator, len(cfg.Segments)),
		monitor: monitor,
	}

	for _, seg := range cfg.Segments {
		ag, gen, err := buildSegment(seg, session, st, md, exec)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("segment %s: %w", seg.Name, err)
		}
		a.agents = append(a.agents, ag)
		a.gens[seg.Name] = gen
	}

	srv, err := livehttp.NewServer(livehttp.ServerConfig{
		Addr:    cfg.App.HTTPAddr,
		Tenant:  a.tenant,
		Store:   st,
		Monitor: monitor,
	})
	if err != nil {
		st.Close()
		return nil, err
	}
	a.http = srv
	return a, nil
}

func buildBroker(cfg *config.Config, md *marketdata.Client) (broker.Executor, error) {
	switch cfg.Broker.Mode {
	case "paper":
		return broker.NewPaper(func(ctx context.Context, symbol string) (float64, error) {
			return md.LTP(ctx, symbol)
		}), nil
	case "live":
		return broker.NewREST(cfg.Broker.BaseURL, cfg.Broker.APIKey, cfg.Broker.AccessToken,
			cfg.Broker.Product, time.Duration(cfg.Broker.TimeoutSeconds)*time.Second), nil
	default:
		return nil, fmt.Errorf("unknown broker mode %q", cfg.Broker.Mode)
	}
}

func buildSegment(seg config.SegmentConfig, session market.Session, st *gormstore.GormStore,
	md *marketdata.Client, exec broker.Executor) (*agent.Agent, *signal.Generator, error) {

	intervalDur, ok := scheduler.ParseIntervalDuration(seg.Interval)
	if !ok {
		return nil, nil, fmt.Errorf("invalid interval %q", seg.Interval)
	}
	var secondaryDur time.Duration
	if seg.SecondaryInterval != "" {
		secondaryDur, ok = scheduler.ParseIntervalDuration(seg.SecondaryInterval)
		if !ok {
			return nil, nil, fmt.Errorf("invalid secondary interval %q", seg.SecondaryInterval)
		}
	}

	frame := market.NewFrame(frameCapacity)
	resolver := resolve.NewResolver(seg.Instrument, seg.Interval, intervalDur, session, frame, st, md)
	machine := position.NewMachine(positionConfigFor(seg), exec, st, md.LTP)
	gen := signal.NewGenerator(signal.Regime(seg.Regime), thresholdsFor(seg))

	ag := agent.New(agent.Config{
		Segment:           seg.Name,
		Instrument:        seg.Instrument,
		Interval:          seg.Interval,
		IntervalDur:       intervalDur,
		SecondaryInterval: seg.SecondaryInterval,
		SecondaryDur:      secondaryDur,
		TickOffset:        time.Duration(seg.TickOffsetSeconds) * time.Second,
		MaxTradesPerDay:   seg.MaxTradesPerDay,
		Indicator:         indicatorConfigFor(seg),
	}, session, frame, resolver, md, st, machine, gen)
	return ag, gen, nil
}

func positionConfigFor(seg config.SegmentConfig) position.Config {
	return position.Config{
		Segment:           seg.Name,
		Regime:            signal.Regime(seg.Regime),
		Underlying:        seg.Instrument,
		SymbolPrefix:      seg.SymbolPrefix,
		Expiry:            seg.Expiry,
		StrikeStep:        seg.StrikeStep,
		LotSize:           seg.LotSize,
		Lots:              seg.Lots,
		MaxQuantity:       seg.MaxQuantity,
		StopLossPoints:    seg.StopLossPoints,
		StopLossPct:       seg.StopLossPct,
		TrailPoints:       seg.TrailPoints,
		TrailPct:          seg.TrailPct,
		PyramidProfitStep: seg.PyramidProfitStep,
	}
}

func indicatorConfigFor(seg config.SegmentConfig) indicator.Config {
	return indicator.Config{
		RSIPeriod:    seg.RSIPeriod,
		PSSpan:       seg.PSSpan,
		VSWindow:     seg.VSWindow,
		ATRPeriod:    seg.ATRPeriod,
		ATRAvgWindow: seg.ATRAvgWindow,
	}
}

func thresholdsFor(seg config.SegmentConfig) signal.Thresholds {
	return signal.Thresholds{
		EntryDelayMin:     seg.EntryDelayMin,
		EntryCutoffMin:    seg.EntryCutoffMin,
		ATRRatioMin:       seg.ATRRatioMin,
		ATRRatioMax:       seg.ATRRatioMax,
		RSIUpper:          seg.RSIUpper,
		RSILower:          seg.RSILower,
		DiffTightMin:      seg.DiffTightMin,
		DiffTightMax:      seg.DiffTightMax,
		DiffWideMin:       seg.DiffWideMin,
		DiffWideMax:       seg.DiffWideMax,
		VolumeSpikeMult:   seg.VolumeSpikeMult,
		VolumeSpikeWindow: seg.VolumeSpikeWindow,
	}
}
