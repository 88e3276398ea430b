package picking

import (
	"fmt"
	"strings"
	"time"
)

// EventKind tags a ledger event.
type EventKind string

const (
	KindPicked       EventKind = "picked"
	KindSubstituted  EventKind = "substituted"
	KindShort        EventKind = "short"
	KindVoid         EventKind = "void"
	KindItemRemoved  EventKind = "item_removed"
	KindItemRestored EventKind = "item_restored"
)

// IsUnit reports whether the event represents one physical unit.
func (k EventKind) IsUnit() bool {
	switch k {
	case KindPicked, KindSubstituted, KindShort:
		return true
	default:
		return false
	}
}

// ActionKind is what a picker device submits. Every action except reset maps
// one to one onto a unit event; reset is recorded as a void event.
type ActionKind string

const (
	ActionPicked      ActionKind = "picked"
	ActionSubstituted ActionKind = "substituted"
	ActionShort       ActionKind = "short"
	ActionReset       ActionKind = "reset"
)

// ParseActionKind validates a submitted action kind.
func ParseActionKind(value string) (ActionKind, error) {
	switch kind := ActionKind(strings.ToLower(strings.TrimSpace(value))); kind {
	case ActionPicked, ActionSubstituted, ActionShort, ActionReset:
		return kind, nil
	case "":
		return "", fmt.Errorf("action kind is required")
	default:
		return "", fmt.Errorf("unknown action kind %q", value)
	}
}

// EventKind returns the ledger kind recorded for the action.
func (a ActionKind) EventKind() EventKind {
	if a == ActionReset {
		return KindVoid
	}
	return EventKind(a)
}

// Source records who wrote an event.
type Source string

const (
	SourcePicker        Source = "picker"
	SourceAdmin         Source = "admin"
	SourceForceComplete Source = "admin_force_complete"
)

// Substitute describes the product handed out in place of the requested one.
type Substitute struct {
	ProductID  string `json:"productId"`
	Name       string `json:"name"`
	PriceCents int64  `json:"priceCents"`
}

// Event is one append-only ledger row. OriginalProductID always names the
// requested product; ProductID names what physically left the shelf.
type Event struct {
	ID                string
	Seq               int64
	SessionID         string
	AssignmentID      string
	OrderID           string
	ProductID         string
	OriginalProductID string
	Kind              EventKind
	Source            Source
	Actor             string
	At                time.Time
	Substitute        *Substitute
	WeightGrams       *int
	Reason            string
	ScannedCode       string
	IdempotencyKey    string
}
