package picking

import (
	"sort"
	"time"
)

// ItemStatus is the derived fulfillment state of an item.
type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemPartial   ItemStatus = "partial"
	ItemFulfilled ItemStatus = "fulfilled"
)

// Counts tallies effective unit events.
type Counts struct {
	Picked      int `json:"picked"`
	Substituted int `json:"substituted"`
	Short       int `json:"short"`
}

// Done is the number of units resolved by any means.
func (c Counts) Done() int {
	return c.Picked + c.Substituted + c.Short
}

func (c *Counts) add(other Counts) {
	c.Picked += other.Picked
	c.Substituted += other.Substituted
	c.Short += other.Short
}

// Removal is the metadata of the latest item_removed event.
type Removal struct {
	Actor  string    `json:"actor"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// ItemKey addresses one product inside one assignment.
type ItemKey struct {
	AssignmentID string
	ProductID    string
}

// ItemLedger is the folded state of one (assignment, product) pair.
type ItemLedger struct {
	Counts
	// ForceCompleted counts effective picked units written by the admin
	// force-complete path.
	ForceCompleted int
	Removed        bool
	Removal        *Removal
	Substitute     *Substitute
	substituteSeq  int64
}

// Ledger is the replayed view of a session's events.
type Ledger map[ItemKey]*ItemLedger

// Replay folds events in seq order. A void event clears the unit counts and
// active substitute accumulated so far for its (assignment, original product)
// but leaves removal state untouched. The latest removal event decides the
// removed flag.
func Replay(events []Event) Ledger {
	ordered := make([]Event, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })

	ledger := make(Ledger)
	for _, evt := range ordered {
		key := ItemKey{AssignmentID: evt.AssignmentID, ProductID: evt.OriginalProductID}
		item, ok := ledger[key]
		if !ok {
			item = &ItemLedger{}
			ledger[key] = item
		}
		switch evt.Kind {
		case KindPicked:
			item.Picked++
			if evt.Source == SourceForceComplete {
				item.ForceCompleted++
			}
		case KindSubstituted:
			item.Substituted++
			if evt.Substitute != nil {
				sub := *evt.Substitute
				item.Substitute = &sub
				item.substituteSeq = evt.Seq
			}
		case KindShort:
			item.Short++
		case KindVoid:
			item.Counts = Counts{}
			item.ForceCompleted = 0
			item.Substitute = nil
			item.substituteSeq = 0
		case KindItemRemoved:
			item.Removed = true
			item.Removal = &Removal{Actor: evt.Actor, Reason: evt.Reason, At: evt.At}
		case KindItemRestored:
			item.Removed = false
			item.Removal = nil
		}
	}
	return ledger
}

// Item returns the folded state for a pair, or the zero state when the pair
// has no events.
func (l Ledger) Item(assignmentID, productID string) ItemLedger {
	if item, ok := l[ItemKey{AssignmentID: assignmentID, ProductID: productID}]; ok && item != nil {
		return *item
	}
	return ItemLedger{}
}

// Required is the demand an order places on productID once removal is
// applied: removed pairs require nothing.
func (l Ledger) Required(assignmentID string, order OrderSnapshot, productID string) int {
	if l.Item(assignmentID, productID).Removed {
		return 0
	}
	return order.RequiredQuantity(productID)
}

// Remaining is the outstanding demand for productID in the order, never negative.
func (l Ledger) Remaining(assignmentID string, order OrderSnapshot, productID string) int {
	remaining := l.Required(assignmentID, order, productID) - l.Item(assignmentID, productID).Done()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// PickerExcess is how many effective units beyond the order's demand came
// from non-admin events. Force-completed units may exceed demand; picker
// units never should.
func (l Ledger) PickerExcess(assignmentID string, order OrderSnapshot, productID string) int {
	item := l.Item(assignmentID, productID)
	excess := item.Done() - item.ForceCompleted - order.RequiredQuantity(productID)
	if excess < 0 {
		return 0
	}
	return excess
}

// DeriveStatus applies the fulfillment rule. Zero demand with zero activity
// counts as fulfilled unless the item was removed, in which case it stays
// pending so removed lines never read as picked.
func DeriveStatus(required, done int, removed bool) ItemStatus {
	switch {
	case removed && done == 0:
		return ItemPending
	case done >= required:
		return ItemFulfilled
	case done > 0:
		return ItemPartial
	default:
		return ItemPending
	}
}
