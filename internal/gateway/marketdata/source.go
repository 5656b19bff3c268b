// Package marketdata implements the market data port: historical bars and
// live last-traded prices from the upstream feed API.
package marketdata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"optrix/internal/logger"
	"optrix/internal/market"
)

// Source is the market data port consumed by the candle resolver and the
// segment agents.
type Source interface {
	Bars(ctx context.Context, instrument string, interval time.Duration, from, to time.Time) ([]market.Bar, error)
	LTP(ctx context.Context, instrument string) (float64, error)
}

// Client talks to the feed's REST API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	ticker  *Ticker
}

type Option func(*Client)

// WithTicker attaches a live websocket ticker; LTP reads consult its cache
// before falling back to REST.
func WithTicker(t *Ticker) Option {
	return func(c *Client) { c.ticker = t }
}

func NewClient(baseURL, apiKey string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "token "+c.apiKey)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("marketdata: %s status=%d body=%s", path, resp.StatusCode, truncate(body, 200))
	}
	return body, nil
}

// Bars fetches historical candles for the range, oldest first.
func (c *Client) Bars(ctx context.Context, instrument string, interval time.Duration, from, to time.Time) ([]market.Bar, error) {
	q := url.Values{}
	q.Set("instrument", instrument)
	q.Set("interval", strconv.Itoa(int(interval/time.Minute))+"minute")
	q.Set("from", from.UTC().Format(time.RFC3339))
	q.Set("to", to.UTC().Format(time.RFC3339))
	body, err := c.get(ctx, "/v1/historical/bars", q)
	if err != nil {
		return nil, err
	}
	rows := gjson.GetBytes(body, "data.candles")
	if !rows.Exists() {
		return nil, fmt.Errorf("marketdata: bars response missing data.candles")
	}
	var bars []market.Bar
	rows.ForEach(func(_, row gjson.Result) bool {
		// Row shape: [timestamp, open, high, low, close, volume].
		arr := row.Array()
		if len(arr) < 6 {
			return true
		}
		ts, err := time.Parse(time.RFC3339, arr[0].String())
		if err != nil {
			logger.Warnf("marketdata: bad bar timestamp %q: %v", arr[0].String(), err)
			return true
		}
		bars = append(bars, market.Bar{
			Time:   ts,
			Open:   arr[1].Float(),
			High:   arr[2].Float(),
			Low:    arr[3].Float(),
			Close:  arr[4].Float(),
			Volume: arr[5].Float(),
		})
		return true
	})
	return bars, nil
}

// LTP returns the last traded price, preferring the live ticker cache.
func (c *Client) LTP(ctx context.Context, instrument string) (float64, error) {
	if c.ticker != nil {
		if px, ok := c.ticker.Last(instrument); ok {
			return px, nil
		}
	}
	q := url.Values{}
	q.Set("instrument", instrument)
	body, err := c.get(ctx, "/v1/quote/ltp", q)
	if err != nil {
		return 0, err
	}
	px := gjson.GetBytes(body, "data."+instrument+".last_price")
	if !px.Exists() {
		// Some feeds key the map by instrument token instead.
		px = gjson.GetBytes(body, "data.*.last_price")
	}
	if !px.Exists() {
		return 0, fmt.Errorf("marketdata: ltp missing for %s", instrument)
	}
	return px.Float(), nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
