// Package app wires the configured components together and supervises them:
// one agent per segment, the shared risk monitor, the websocket ticker, the
// HTTP API and the retention job.
package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"optrix/internal/agent"
	"optrix/internal/config"
	"optrix/internal/gateway/marketdata"
	"optrix/internal/logger"
	"optrix/internal/risk"
	"optrix/internal/signal"
	"optrix/internal/store"
	"optrix/internal/tenant"
	livehttp "optrix/internal/transport/http/live"
)

// App is the assembled engine.
type App struct {
	cfg     *config.Config
	tenant  tenant.ID
	store   store.Store
	ticker  *marketdata.Ticker
	agents  []*agent.Agent
	gens    map[string]*signal.Generator
	monitor *risk.Monitor
	http    *livehttp.Server
}

// NewApp builds the application from config without starting anything.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return build(cfg)
}

// Run starts every component and blocks until ctx is cancelled or a
// component fails fatally. All store writes run under the app tenant.
func (a *App) Run(ctx context.Context) error {
	ctx = tenant.With(ctx, a.tenant)
	group, ctx := errgroup.WithContext(ctx)

	if a.ticker != nil {
		group.Go(func() error {
			a.ticker.Run(ctx)
			return nil
		})
	}
	for _, ag := range a.agents {
		ag := ag
		group.Go(func() error {
			ag.Run(ctx)
			return nil
		})
	}
	group.Go(func() error {
		a.monitor.Run(ctx)
		return nil
	})
	group.Go(func() error {
		return a.http.Start()
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.http.Shutdown(shutdownCtx)
	})
	group.Go(func() error {
		a.retentionLoop(ctx)
		return nil
	})

	err := group.Wait()
	if closeErr := a.store.Close(); closeErr != nil {
		logger.Warnf("app: closing store: %v", closeErr)
	}
	return err
}

// ApplyThresholds pushes reloaded filter parameters into the running
// generators. Unknown segments in the new config are ignored; structural
// changes (new segments, broker swap) still require a restart.
func (a *App) ApplyThresholds(cfg *config.Config) {
	for _, seg := range cfg.Segments {
		gen, ok := a.gens[seg.Name]
		if !ok {
			continue
		}
		gen.UpdateThresholds(thresholdsFor(seg))
		logger.Infof("app: thresholds updated for segment %s", seg.Name)
	}
}

// retentionLoop purges diagnostics and audit rows past the retention window
// once a day.
func (a *App) retentionLoop(ctx context.Context) {
	if a.cfg.App.PurgeAfterDay <= 0 {
		return
	}
	run := func() {
		cutoff := time.Now().AddDate(0, 0, -a.cfg.App.PurgeAfterDay)
		if err := a.store.Purge(ctx, cutoff); err != nil {
			logger.Warnf("app: purge: %v", err)
		}
	}
	run()
	tick := time.NewTicker(24 * time.Hour)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			run()
		}
	}
}
