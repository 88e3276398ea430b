package picking

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a picking session or one of its assignments.
type Status string

const (
	StatusActive       Status = "active"
	StatusPendingAudit Status = "pending_audit"
	StatusAudited      Status = "audited"
	StatusCompleted    Status = "completed"
	StatusCancelled    Status = "cancelled"
)

var allStatuses = []Status{
	StatusActive,
	StatusPendingAudit,
	StatusAudited,
	StatusCompleted,
	StatusCancelled,
}

var terminalStatuses = map[Status]struct{}{
	StatusAudited:   {},
	StatusCompleted: {},
	StatusCancelled: {},
}

// ParseStatus normalizes user input into a known status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether no further transitions leave this status.
func (s Status) IsTerminal() bool {
	_, ok := terminalStatuses[s]
	return ok
}

// LineItem is one frozen order line. Identity, quantity and price never change
// after the snapshot is taken.
type LineItem struct {
	ProductID  string `json:"productId"`
	Name       string `json:"name"`
	SKU        string `json:"sku"`
	ImageURL   string `json:"imageUrl,omitempty"`
	PriceCents int64  `json:"priceCents"`
	Quantity   int    `json:"quantity"`
}

// OrderSnapshot is the per-order slice of a session snapshot.
type OrderSnapshot struct {
	OrderID       string     `json:"orderId"`
	CustomerLabel string     `json:"customerLabel"`
	Items         []LineItem `json:"items"`
}

// RequiredQuantity sums the line quantities for productID within the order.
func (o OrderSnapshot) RequiredQuantity(productID string) int {
	total := 0
	for _, item := range o.Items {
		if item.ProductID == productID {
			total += item.Quantity
		}
	}
	return total
}

// HasProduct reports whether any line in the order references productID.
func (o OrderSnapshot) HasProduct(productID string) bool {
	for _, item := range o.Items {
		if item.ProductID == productID {
			return true
		}
	}
	return false
}

// Session is one picker's batch of orders.
type Session struct {
	ID        string
	PickerID  string
	OrderIDs  []string
	Snapshot  []OrderSnapshot
	Status    Status
	StartedAt time.Time
	EndedAt   time.Time
	UpdatedAt time.Time
}

// Assignment is the per-order slice of a session.
type Assignment struct {
	ID         string
	SessionID  string
	OrderID    string
	PickerName string
	Order      OrderSnapshot
	Status     Status
	StartedAt  time.Time
	EndedAt    time.Time
	UpdatedAt  time.Time
}

// Picker is a warehouse worker that can own at most one live session.
type Picker struct {
	ID        string
	Name      string
	Busy      bool
	UpdatedAt time.Time
}
