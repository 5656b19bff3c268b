package marketdata

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"optrix/internal/logger"
)

// Ticker maintains a websocket subscription to the feed's tick stream and
// caches the last traded price per instrument. Reconnects with backoff; a
// stale cache entry expires so REST remains the source of truth after a
// silent disconnect.
type Ticker struct {
	url         string
	apiKey      string
	instruments []string
	staleAfter  time.Duration

	mu   sync.RWMutex
	last map[string]tick
}

type tick struct {
	price float64
	at    time.Time
}

func NewTicker(url, apiKey string, instruments []string) *Ticker {
	return &Ticker{
		url:         url,
		apiKey:      apiKey,
		instruments: instruments,
		staleAfter:  15 * time.Second,
		last:        make(map[string]tick),
	}
}

// Last returns the cached LTP if fresh.
func (t *Ticker) Last(instrument string) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entry, ok := t.last[instrument]
	if !ok || time.Since(entry.at) > t.staleAfter {
		return 0, false
	}
	return entry.price, true
}

func (t *Ticker) put(instrument string, price float64) {
	t.mu.Lock()
	t.last[instrument] = tick{price: price, at: time.Now()}
	t.mu.Unlock()
}

// Run blocks, maintaining the connection until ctx is done.
func (t *Ticker) Run(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		if err := t.connectAndRead(ctx); err != nil && ctx.Err() == nil {
			logger.Warnf("ticker: connection lost: %v, retry in %s", err, backoff)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

type subscribeMsg struct {
	Action      string   `json:"a"`
	Instruments []string `json:"v"`
}

type tickMsg struct {
	Instrument string  `json:"instrument"`
	LastPrice  float64 `json:"last_price"`
}

func (t *Ticker) connectAndRead(ctx context.Context) error {
	header := map[string][]string{"Authorization": {"token " + t.apiKey}}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.url, header)
	if err != nil {
		return err
	}
	defer conn.Close()
	logger.Infof("ticker: connected, subscribing %d instruments", len(t.instruments))
	if err := conn.WriteJSON(subscribeMsg{Action: "subscribe", Instruments: t.instruments}); err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var msg tickMsg
		if err := json.Unmarshal(data, &msg); err != nil || msg.Instrument == "" {
			continue
		}
		t.put(msg.Instrument, msg.LastPrice)
	}
}
