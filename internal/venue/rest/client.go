// Package rest is a generic HMAC-authenticated REST venue adapter,
// implementing venue.OrderSubmitter and venue.Reconciler against any
// exchange that speaks a CLOB-shaped order API: POST /orders,
// DELETE /orders, DELETE /cancel-all, GET /orders (status query). Built
// on resty wiring (base URL, timeout; resty's own retry is off and the
// client does no rate limiting, both are left to the engine's httpx.Do and
// Limiter around each call), generalized from a single hardcoded venue to
// any venue described by venue.Capabilities and a VenueConfig.
package rest

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/nautilus-go/exec-core/internal/model"
	"github.com/nautilus-go/exec-core/internal/venue"
)

// Credentials is the HMAC key triple most CLOB-style venues issue
// (api_key/secret/passphrase), without an EIP-712 wallet signing half,
// which this adapter has no use for outside an on-chain settlement
// venue.
type Credentials struct {
	ApiKey     string
	ApiSecret  string
	Passphrase string
}

// Client is a generic REST venue adapter.
type Client struct {
	http  *resty.Client
	creds Credentials
	caps  venue.Capabilities

	connMu    sync.Mutex
	connected bool
}

// New builds a Client against baseURL with the given credentials and
// capability set.
func New(baseURL string, creds Credentials, caps venue.Capabilities) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(0). // retry is the caller's httpx.Do responsibility, not resty's
		SetHeader("Content-Type", "application/json")

	return &Client{http: httpClient, creds: creds, caps: caps}
}

func (c *Client) Capabilities() venue.Capabilities { return c.caps }

func (c *Client) Connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	c.connected = true
	return nil
}

func (c *Client) Disconnect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	c.connected = false
	return nil
}

func (c *Client) IsConnected() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.connected
}

// sign computes the HMAC-SHA256 request signature:
// base64(HMAC-SHA256(secret, timestamp+method+path+body)).
func (c *Client) sign(method, path, body string) (string, string) {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(c.creds.ApiSecret))
	mac.Write([]byte(ts + method + path + body))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return ts, sig
}

func (c *Client) authRequest(ctx context.Context, method, path string, body interface{}) *resty.Request {
	var bodyStr string
	if body != nil {
		b, _ := json.Marshal(body)
		bodyStr = string(b)
	}
	ts, sig := c.sign(method, path, bodyStr)

	req := c.http.R().
		SetContext(ctx).
		SetHeader("EXEC-API-KEY", c.creds.ApiKey).
		SetHeader("EXEC-API-SIGN", sig).
		SetHeader("EXEC-API-TIMESTAMP", ts).
		SetHeader("EXEC-API-PASSPHRASE", c.creds.Passphrase)
	if body != nil {
		req.SetBody(body)
	}
	return req
}

type orderRequest struct {
	ClientOrderID string `json:"client_order_id"`
	InstrumentID  string `json:"instrument_id"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	Quantity      string `json:"quantity"`
	Price         string `json:"price,omitempty"`
	TriggerPrice  string `json:"trigger_price,omitempty"`
	TimeInForce   string `json:"time_in_force"`
	PostOnly      bool   `json:"post_only,omitempty"`
	ReduceOnly    bool   `json:"reduce_only,omitempty"`
}

type orderResponse struct {
	VenueOrderID string `json:"venue_order_id"`
}

// SubmitOrder posts a new order and returns the venue-assigned id.
func (c *Client) SubmitOrder(ctx context.Context, order *model.Order) (model.VenueOrderID, error) {
	req := orderRequest{
		ClientOrderID: string(order.ClientOrderID),
		InstrumentID:  order.InstrumentID.String(),
		Side:          string(order.Side),
		Type:          string(order.Type),
		Quantity:      order.Quantity.String(),
		TimeInForce:   string(order.TimeInForce),
		PostOnly:      order.PostOnly,
		ReduceOnly:    order.ReduceOnly,
	}
	if !order.Price.IsZero() {
		req.Price = order.Price.String()
	}
	if !order.TriggerPrice.IsZero() {
		req.TriggerPrice = order.TriggerPrice.String()
	}

	var result orderResponse
	resp, err := c.authRequest(ctx, http.MethodPost, "/orders", req).
		SetResult(&result).
		Post("/orders")
	if err != nil {
		return "", model.NewVenueError(model.ErrorTransient, fmt.Errorf("submit order: %w", err))
	}
	if err := c.classifyStatus(resp); err != nil {
		return "", err
	}
	return model.VenueOrderID(result.VenueOrderID), nil
}

type modifyOrderRequest struct {
	Price    string `json:"price,omitempty"`
	Quantity string `json:"quantity,omitempty"`
}

// ModifyOrder replaces price and/or quantity on a resting order. A zero
// newPrice or newQuantity means "leave that term unchanged" and is omitted
// from the request body entirely.
func (c *Client) ModifyOrder(ctx context.Context, order *model.Order, newPrice, newQuantity decimal.Decimal) error {
	req := modifyOrderRequest{}
	if !newPrice.IsZero() {
		req.Price = newPrice.String()
	}
	if !newQuantity.IsZero() {
		req.Quantity = newQuantity.String()
	}

	path := fmt.Sprintf("/orders/%s", order.VenueOrderID)
	resp, err := c.authRequest(ctx, http.MethodPatch, path, req).Patch(path)
	if err != nil {
		return model.NewVenueError(model.ErrorTransient, fmt.Errorf("modify order: %w", err))
	}
	return c.classifyStatus(resp)
}

// CancelOrder cancels a single order by its venue id.
func (c *Client) CancelOrder(ctx context.Context, order *model.Order) error {
	path := fmt.Sprintf("/orders/%s", order.VenueOrderID)
	resp, err := c.authRequest(ctx, http.MethodDelete, path, nil).Delete(path)
	if err != nil {
		return model.NewVenueError(model.ErrorTransient, fmt.Errorf("cancel order: %w", err))
	}
	return c.classifyStatus(resp)
}

// CancelAllOrders cancels every open order for instrumentID.
func (c *Client) CancelAllOrders(ctx context.Context, instrumentID model.InstrumentId) error {
	resp, err := c.authRequest(ctx, http.MethodDelete, "/cancel-all", nil).
		SetQueryParam("instrument_id", instrumentID.String()).
		Delete("/cancel-all")
	if err != nil {
		return model.NewVenueError(model.ErrorTransient, fmt.Errorf("cancel all: %w", err))
	}
	return c.classifyStatus(resp)
}

type massStatusResponse struct {
	Orders []struct {
		ClientOrderID string `json:"client_order_id"`
		VenueOrderID  string `json:"venue_order_id"`
		InstrumentID  string `json:"instrument_id"`
		Side          string `json:"side"`
		Type          string `json:"type"`
		Status        string `json:"status"`
		Quantity      string `json:"quantity"`
		FilledQty     string `json:"filled_qty"`
		AvgFillPx     string `json:"avg_fill_px"`
	} `json:"orders"`
}

// GenerateMassStatus queries the venue's own view of open/recent orders
// for reconciliation.
func (c *Client) GenerateMassStatus(ctx context.Context, accountID model.AccountID) (model.ExecutionMassStatus, error) {
	var result massStatusResponse
	resp, err := c.authRequest(ctx, http.MethodGet, "/orders", nil).
		SetResult(&result).
		Get("/orders")
	if err != nil {
		return model.ExecutionMassStatus{}, model.NewVenueError(model.ErrorTransient, fmt.Errorf("mass status: %w", err))
	}
	if err := c.classifyStatus(resp); err != nil {
		return model.ExecutionMassStatus{}, err
	}

	status := model.ExecutionMassStatus{AccountID: accountID}
	for _, o := range result.Orders {
		qty, _ := decimal.NewFromString(o.Quantity)
		filled, _ := decimal.NewFromString(o.FilledQty)
		avgPx, _ := decimal.NewFromString(o.AvgFillPx)
		status.Orders = append(status.Orders, model.OrderStatusReport{
			ClientOrderID: model.ClientOrderID(o.ClientOrderID),
			VenueOrderID:  model.VenueOrderID(o.VenueOrderID),
			Side:          model.OrderSide(o.Side),
			Type:          model.OrderType(o.Type),
			Status:        model.OrderStatus(o.Status),
			Quantity:      qty,
			FilledQty:     filled,
			AvgFillPx:     avgPx,
		})
	}
	return status, nil
}

// classifyStatus maps an HTTP response to the error taxonomy so retry and
// engine logic can branch on Kind instead of status codes.
func (c *Client) classifyStatus(resp *resty.Response) error {
	switch {
	case resp.StatusCode() >= 200 && resp.StatusCode() < 300:
		return nil
	case resp.StatusCode() == http.StatusTooManyRequests:
		return model.NewRateLimitedError(
			fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()),
			parseRetryAfter(resp.Header().Get("Retry-After")),
		)
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		return model.NewVenueError(model.ErrorAuth, fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	case resp.StatusCode() >= 500:
		return model.NewVenueError(model.ErrorTransient, fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	case resp.StatusCode() == http.StatusRequestTimeout:
		return model.NewVenueError(model.ErrorTimeout, fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	default:
		return model.NewVenueError(model.ErrorValidation, fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}
}

// parseRetryAfter reads a Retry-After header value per RFC 7231: either a
// number of seconds or an HTTP-date. An empty or unparseable header yields
// zero, meaning "no hint" to the caller.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(header); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return 0
}
