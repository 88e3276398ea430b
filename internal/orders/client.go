package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pickline/internal/config"
	"pickline/internal/picking"
	"pickline/internal/services"
)

const userAgent = "Pickline-Go/0.1.0"

// Source supplies the line items of an order.
type Source interface {
	FetchOrder(ctx context.Context, orderID string) (picking.OrderSnapshot, error)
}

// Client reads orders from the order-of-record HTTP service.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient builds an order client from configuration.
func NewClient(cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("orders client requires configuration")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.Orders.BaseURL), "/")
	if base == "" {
		return nil, services.Wrap(services.ErrValidation, "orders", "configure", "orders.base_url is required", nil)
	}
	timeout := time.Duration(cfg.Orders.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: base,
		apiKey:  strings.TrimSpace(cfg.Orders.APIKey),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type wireLine struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	SKU        string `json:"sku"`
	ImageURL   string `json:"image_url"`
	PriceCents int64  `json:"price_cents"`
	Quantity   int    `json:"quantity"`
}

type wireOrder struct {
	ID            string     `json:"id"`
	CustomerLabel string     `json:"customer_label"`
	Lines         []wireLine `json:"lines"`
}

// FetchOrder implements Source.
func (c *Client) FetchOrder(ctx context.Context, orderID string) (picking.OrderSnapshot, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return picking.OrderSnapshot{}, services.Wrap(services.ErrValidation, "orders", "fetch", "order id is required", nil)
	}

	endpoint := c.baseURL + "/orders/" + url.PathEscape(orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return picking.OrderSnapshot{}, services.Wrap(services.ErrExternalSystem, "orders", "fetch", "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return picking.OrderSnapshot{}, services.Wrap(services.ErrExternalSystem, "orders", "fetch", "order "+orderID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		msg := fmt.Sprintf("order %s: status %d: %s", orderID, resp.StatusCode, strings.TrimSpace(string(body)))
		return picking.OrderSnapshot{}, services.Wrap(services.ErrExternalSystem, "orders", "fetch", msg, nil)
	}

	var payload wireOrder
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return picking.OrderSnapshot{}, services.Wrap(services.ErrExternalSystem, "orders", "decode", "order "+orderID, err)
	}
	return convert(orderID, payload)
}

func convert(orderID string, payload wireOrder) (picking.OrderSnapshot, error) {
	if id := strings.TrimSpace(payload.ID); id != "" && id != orderID {
		return picking.OrderSnapshot{}, services.Wrap(services.ErrExternalSystem, "orders", "decode", fmt.Sprintf("requested order %s, received %s", orderID, id), nil)
	}
	snapshot := picking.OrderSnapshot{
		OrderID:       orderID,
		CustomerLabel: strings.TrimSpace(payload.CustomerLabel),
		Items:         make([]picking.LineItem, 0, len(payload.Lines)),
	}
	for i, line := range payload.Lines {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return picking.OrderSnapshot{}, services.Wrap(services.ErrExternalSystem, "orders", "decode", fmt.Sprintf("order %s line %d has no product id", orderID, i+1), nil)
		}
		if line.Quantity <= 0 {
			continue
		}
		snapshot.Items = append(snapshot.Items, picking.LineItem{
			ProductID:  productID,
			Name:       strings.TrimSpace(line.Name),
			SKU:        strings.TrimSpace(line.SKU),
			ImageURL:   strings.TrimSpace(line.ImageURL),
			PriceCents: line.PriceCents,
			Quantity:   line.Quantity,
		})
	}
	return snapshot, nil
}
