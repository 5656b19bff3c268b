package broker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"optrix/internal/logger"
)

// REST is the live executor over the broker's HTTP API.
type REST struct {
	baseURL string
	apiKey  string
	token   string
	product string
	http    *http.Client
}

func NewREST(baseURL, apiKey, accessToken, product string, timeout time.Duration) *REST {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if product == "" {
		product = "MIS"
	}
	return &REST{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		token:   accessToken,
		product: product,
		http:    &http.Client{Timeout: timeout},
	}
}

func (r *REST) do(ctx context.Context, method, path string, form url.Values) ([]byte, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "token "+r.apiKey+":"+r.token)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		msg := gjson.GetBytes(data, "message").String()
		return nil, fmt.Errorf("broker: %s %s status=%d message=%s", method, path, resp.StatusCode, msg)
	}
	if status := gjson.GetBytes(data, "status").String(); status != "" && status != "success" {
		return nil, fmt.Errorf("broker: %s %s api status=%s", method, path, status)
	}
	return data, nil
}

func (r *REST) placeOrder(ctx context.Context, req OrderRequest, variety string) (Receipt, error) {
	form := url.Values{}
	form.Set("tradingsymbol", req.Symbol)
	form.Set("transaction_type", string(req.Transaction))
	form.Set("quantity", strconv.Itoa(req.Quantity))
	form.Set("product", r.product)
	form.Set("tag", req.Tag)
	if req.Price > 0 {
		form.Set("order_type", "LIMIT")
		form.Set("price", formatPx(req.Price))
	} else {
		form.Set("order_type", "MARKET")
	}
	if req.TriggerPrice > 0 {
		form.Set("order_type", "SL-M")
		form.Set("trigger_price", formatPx(req.TriggerPrice))
	}
	data, err := r.do(ctx, http.MethodPost, "/v1/orders/"+variety, form)
	if err != nil {
		return Receipt{}, err
	}
	id := gjson.GetBytes(data, "data.order_id").String()
	if id == "" {
		return Receipt{}, fmt.Errorf("%w: no order_id in response", ErrOrderRejected)
	}
	return Receipt{OrderID: id, Raw: data}, nil
}

func (r *REST) PlaceEntry(ctx context.Context, req OrderRequest) (Receipt, error) {
	rcpt, err := r.placeOrder(ctx, req, "regular")
	if err != nil {
		return Receipt{}, err
	}
	// An accepted order can still land REJECTED; surface that as a
	// rejection so the caller rolls back the logical open.
	order, serr := r.OrderStatus(ctx, rcpt.OrderID)
	if serr == nil && order.Status == StatusRejected {
		return Receipt{}, fmt.Errorf("%w: order %s", ErrOrderRejected, rcpt.OrderID)
	}
	return rcpt, nil
}

func (r *REST) PlaceStop(ctx context.Context, req OrderRequest) (Receipt, error) {
	return r.placeOrder(ctx, req, "regular")
}

func (r *REST) ModifyStop(ctx context.Context, orderID string, triggerPrice float64) error {
	form := url.Values{}
	form.Set("order_type", "SL-M")
	form.Set("trigger_price", formatPx(triggerPrice))
	_, err := r.do(ctx, http.MethodPut, "/v1/orders/regular/"+orderID, form)
	return err
}

func (r *REST) CancelOrder(ctx context.Context, orderID string) error {
	_, err := r.do(ctx, http.MethodDelete, "/v1/orders/regular/"+orderID, nil)
	return err
}

func (r *REST) OrderStatus(ctx context.Context, orderID string) (Order, error) {
	data, err := r.do(ctx, http.MethodGet, "/v1/orders/"+orderID, nil)
	if err != nil {
		return Order{}, err
	}
	// The history endpoint returns the order's state transitions; the last
	// entry is current.
	rows := gjson.GetBytes(data, "data").Array()
	if len(rows) == 0 {
		return Order{Status: StatusUnknown}, nil
	}
	return parseOrder(rows[len(rows)-1]), nil
}

func (r *REST) Orders(ctx context.Context) ([]Order, error) {
	data, err := r.do(ctx, http.MethodGet, "/v1/orders", nil)
	if err != nil {
		return nil, err
	}
	var out []Order
	gjson.GetBytes(data, "data").ForEach(func(_, row gjson.Result) bool {
		out = append(out, parseOrder(row))
		return true
	})
	return out, nil
}

func (r *REST) Positions(ctx context.Context) ([]Position, error) {
	data, err := r.do(ctx, http.MethodGet, "/v1/portfolio/positions", nil)
	if err != nil {
		return nil, err
	}
	var out []Position
	gjson.GetBytes(data, "data.net").ForEach(func(_, row gjson.Result) bool {
		qty := int(row.Get("quantity").Int())
		if qty == 0 {
			return true
		}
		out = append(out, Position{
			Symbol:    row.Get("tradingsymbol").String(),
			Quantity:  qty,
			AvgPrice:  row.Get("average_price").Float(),
			LastPrice: row.Get("last_price").Float(),
			PnL:       row.Get("pnl").Float(),
		})
		return true
	})
	return out, nil
}

func (r *REST) SquareOff(ctx context.Context, symbol string, quantity int, tx TransactionType) (Receipt, error) {
	return r.placeOrder(ctx, OrderRequest{
		Symbol:      symbol,
		Transaction: tx,
		Quantity:    quantity,
		Tag:         "squareoff",
	}, "regular")
}

func (r *REST) SquareOffAll(ctx context.Context) error {
	positions, err := r.Positions(ctx)
	if err != nil {
		return err
	}
	var firstErr error
	for _, pos := range positions {
		tx := Sell
		qty := pos.Quantity
		if qty < 0 {
			tx = Buy
			qty = -qty
		}
		if _, err := r.SquareOff(ctx, pos.Symbol, qty, tx); err != nil {
			logger.Errorf("broker: square off %s failed: %v", pos.Symbol, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func parseOrder(row gjson.Result) Order {
	status := OrderStatus(strings.ToUpper(row.Get("status").String()))
	switch status {
	case StatusOpen, StatusComplete, StatusCancelled, StatusRejected, StatusTriggerPending:
	default:
		status = StatusUnknown
	}
	placedAt, _ := time.Parse("2006-01-02 15:04:05", row.Get("order_timestamp").String())
	return Order{
		ID:           row.Get("order_id").String(),
		Symbol:       row.Get("tradingsymbol").String(),
		Transaction:  TransactionType(row.Get("transaction_type").String()),
		Quantity:     int(row.Get("quantity").Int()),
		FilledQty:    int(row.Get("filled_quantity").Int()),
		Price:        row.Get("price").Float(),
		AvgPrice:     row.Get("average_price").Float(),
		TriggerPrice: row.Get("trigger_price").Float(),
		Status:       status,
		Tag:          row.Get("tag").String(),
		PlacedAt:     placedAt,
	}
}

func formatPx(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
