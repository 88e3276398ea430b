package picking

import "time"

// ViewOptions tunes how a session view is assembled.
type ViewOptions struct {
	IncludeRemoved bool
	// Placement is the routing priority list; earlier products come first.
	Placement []string
}

// SessionHeader is the identifying part of a session view.
type SessionHeader struct {
	ID        string    `json:"id"`
	PickerID  string    `json:"pickerId"`
	Status    Status    `json:"status"`
	OrderIDs  []string  `json:"orderIds"`
	StartedAt time.Time `json:"startedAt"`
}

// SessionView is what a picker device renders: merged items with derived
// state plus one progress row per order.
type SessionView struct {
	Session SessionHeader  `json:"session"`
	Items   []MergedItem   `json:"items"`
	Orders  []OrderSummary `json:"orders"`
}

// BuildView replays the ledger against the frozen snapshot.
func BuildView(session Session, assignments []Assignment, events []Event, opts ViewOptions) SessionView {
	ledger := Replay(events)
	items := MergeItems(assignments, ledger, opts.IncludeRemoved)
	SortByPlacement(items, opts.Placement)
	return SessionView{
		Session: SessionHeader{
			ID:        session.ID,
			PickerID:  session.PickerID,
			Status:    session.Status,
			OrderIDs:  append([]string(nil), session.OrderIDs...),
			StartedAt: session.StartedAt,
		},
		Items:  items,
		Orders: SummarizeOrders(assignments, ledger),
	}
}

// Find returns the merged item for productID.
func (v SessionView) Find(productID string) (MergedItem, bool) {
	for _, item := range v.Items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return MergedItem{}, false
}
