package picking

import "sort"

// Breakdown is one order's contribution to a merged item.
type Breakdown struct {
	OrderID       string     `json:"orderId"`
	AssignmentID  string     `json:"assignmentId"`
	CustomerLabel string     `json:"customerLabel"`
	Quantity      int        `json:"quantity"`
	Required      int        `json:"required"`
	Counts        Counts     `json:"counts"`
	Status        ItemStatus `json:"status"`
	Removed       bool       `json:"removed"`
}

// MergedItem is a product aggregated across every order of a session, with
// derived fulfillment state.
type MergedItem struct {
	ProductID  string      `json:"productId"`
	Name       string      `json:"name"`
	SKU        string      `json:"sku"`
	ImageURL   string      `json:"imageUrl,omitempty"`
	PriceCents int64       `json:"priceCents"`
	Required   int         `json:"required"`
	Counts     Counts      `json:"counts"`
	Status     ItemStatus  `json:"status"`
	Removed    bool        `json:"removed"`
	Removal    *Removal    `json:"removal,omitempty"`
	Substitute *Substitute `json:"substitute,omitempty"`
	Breakdown  []Breakdown `json:"breakdown"`

	substituteSeq int64
}

// OrderSummary condenses one assignment for list views.
type OrderSummary struct {
	OrderID       string `json:"orderId"`
	AssignmentID  string `json:"assignmentId"`
	CustomerLabel string `json:"customerLabel"`
	Status        Status `json:"status"`
	LineCount     int    `json:"lineCount"`
	UnitsRequired int    `json:"unitsRequired"`
	UnitsDone     int    `json:"unitsDone"`
}

// MergeItems groups line items across assignments by product id. Orders are
// visited in the given order and the first occurrence of a product sets its
// display attributes. Demand accumulates only over pairs that are not removed;
// a removal on any constituent order flags the merged item. Removed items are
// dropped unless includeRemoved is set.
func MergeItems(assignments []Assignment, ledger Ledger, includeRemoved bool) []MergedItem {
	index := make(map[string]int)
	merged := make([]MergedItem, 0)

	for _, assignment := range assignments {
		seen := make(map[string]struct{})
		for _, line := range assignment.Order.Items {
			if _, dup := seen[line.ProductID]; dup {
				continue
			}
			seen[line.ProductID] = struct{}{}

			pos, ok := index[line.ProductID]
			if !ok {
				merged = append(merged, MergedItem{
					ProductID:  line.ProductID,
					Name:       line.Name,
					SKU:        line.SKU,
					ImageURL:   line.ImageURL,
					PriceCents: line.PriceCents,
				})
				pos = len(merged) - 1
				index[line.ProductID] = pos
			}
			item := &merged[pos]

			state := ledger.Item(assignment.ID, line.ProductID)
			quantity := assignment.Order.RequiredQuantity(line.ProductID)
			required := quantity
			if state.Removed {
				required = 0
				item.Removed = true
				if item.Removal == nil && state.Removal != nil {
					removal := *state.Removal
					item.Removal = &removal
				}
			}
			item.Required += required
			item.Counts.add(state.Counts)
			if state.Substitute != nil && state.substituteSeq > item.substituteSeq {
				sub := *state.Substitute
				item.Substitute = &sub
				item.substituteSeq = state.substituteSeq
			}
			item.Breakdown = append(item.Breakdown, Breakdown{
				OrderID:       assignment.OrderID,
				AssignmentID:  assignment.ID,
				CustomerLabel: assignment.Order.CustomerLabel,
				Quantity:      quantity,
				Required:      required,
				Counts:        state.Counts,
				Status:        DeriveStatus(required, state.Done(), state.Removed),
				Removed:       state.Removed,
			})
		}
	}

	out := make([]MergedItem, 0, len(merged))
	for _, item := range merged {
		item.Status = DeriveStatus(item.Required, item.Counts.Done(), item.Removed)
		if item.Removed && !includeRemoved {
			continue
		}
		out = append(out, item)
	}
	return out
}

// SortByPlacement orders items by the routing priority list. Products not in
// the list keep their snapshot order after every listed product.
func SortByPlacement(items []MergedItem, placement []string) {
	if len(placement) == 0 {
		return
	}
	rank := make(map[string]int, len(placement))
	for i, productID := range placement {
		if _, exists := rank[productID]; !exists {
			rank[productID] = i
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		ri, iok := rank[items[i].ProductID]
		rj, jok := rank[items[j].ProductID]
		switch {
		case iok && jok:
			return ri < rj
		case iok:
			return true
		default:
			return false
		}
	})
}

// SummarizeOrders builds per-assignment progress rows. Done units are capped at
// demand per product so force-completed or over-reported lines never push an
// order past 100%.
func SummarizeOrders(assignments []Assignment, ledger Ledger) []OrderSummary {
	summaries := make([]OrderSummary, 0, len(assignments))
	for _, assignment := range assignments {
		summary := OrderSummary{
			OrderID:       assignment.OrderID,
			AssignmentID:  assignment.ID,
			CustomerLabel: assignment.Order.CustomerLabel,
			Status:        assignment.Status,
			LineCount:     len(assignment.Order.Items),
		}
		seen := make(map[string]struct{})
		for _, line := range assignment.Order.Items {
			if _, dup := seen[line.ProductID]; dup {
				continue
			}
			seen[line.ProductID] = struct{}{}
			required := ledger.Required(assignment.ID, assignment.Order, line.ProductID)
			done := ledger.Item(assignment.ID, line.ProductID).Done()
			summary.UnitsRequired += required
			summary.UnitsDone += min(done, required)
		}
		summaries = append(summaries, summary)
	}
	return summaries
}
