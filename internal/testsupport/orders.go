package testsupport

import (
	"context"
	"fmt"
	"sync"

	"pickline/internal/picking"
	"pickline/internal/services"
)

// FakeOrders is an in-memory order-of-record source.
type FakeOrders struct {
	mu     sync.Mutex
	orders map[string]picking.OrderSnapshot
	fail   map[string]error
	calls  map[string]int
}

// NewFakeOrders returns a source seeded with the provided orders.
func NewFakeOrders(orders ...picking.OrderSnapshot) *FakeOrders {
	f := &FakeOrders{
		orders: make(map[string]picking.OrderSnapshot),
		fail:   make(map[string]error),
		calls:  make(map[string]int),
	}
	for _, order := range orders {
		f.orders[order.OrderID] = order
	}
	return f
}

// Fail makes every fetch of orderID return err.
func (f *FakeOrders) Fail(orderID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[orderID] = err
}

// Calls reports how many times orderID was fetched.
func (f *FakeOrders) Calls(orderID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[orderID]
}

// FetchOrder implements orders.Source.
func (f *FakeOrders) FetchOrder(_ context.Context, orderID string) (picking.OrderSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[orderID]++
	if err := f.fail[orderID]; err != nil {
		return picking.OrderSnapshot{}, err
	}
	order, ok := f.orders[orderID]
	if !ok {
		return picking.OrderSnapshot{}, services.Wrap(services.ErrExternalSystem, "orders", "fetch", fmt.Sprintf("order %s not found", orderID), nil)
	}
	return order, nil
}

// Order builds a snapshot with one line per (product, quantity) pair.
func Order(orderID, label string, lines ...picking.LineItem) picking.OrderSnapshot {
	return picking.OrderSnapshot{OrderID: orderID, CustomerLabel: label, Items: lines}
}

// Line builds a line item with a SKU derived from the product id.
func Line(productID string, quantity int) picking.LineItem {
	return picking.LineItem{
		ProductID:  productID,
		Name:       "Product " + productID,
		SKU:        "SKU-" + productID,
		PriceCents: 199,
		Quantity:   quantity,
	}
}
