package picking

import (
	"testing"
	"time"
)

func unit(seq int64, assignment, product string, kind EventKind) Event {
	return Event{
		Seq:               seq,
		AssignmentID:      assignment,
		OrderID:           "order-" + assignment,
		ProductID:         product,
		OriginalProductID: product,
		Kind:              kind,
		Source:            SourcePicker,
	}
}

func TestReplayCountsUnitEvents(t *testing.T) {
	events := []Event{
		unit(3, "a1", "p1", KindShort),
		unit(1, "a1", "p1", KindPicked),
		unit(2, "a1", "p1", KindPicked),
		unit(4, "a1", "p2", KindPicked),
	}
	ledger := Replay(events)

	got := ledger.Item("a1", "p1")
	if got.Picked != 2 || got.Short != 1 || got.Substituted != 0 {
		t.Fatalf("unexpected counts for p1: %+v", got.Counts)
	}
	if got.Done() != 3 {
		t.Fatalf("expected done 3, got %d", got.Done())
	}
	if ledger.Item("a1", "p2").Picked != 1 {
		t.Fatal("expected p2 picked once")
	}
	if ledger.Item("a2", "p1").Done() != 0 {
		t.Fatal("expected untouched pair to be zero")
	}
}

func TestReplayVoidCancelsEarlierUnitsOnly(t *testing.T) {
	sub := &Substitute{ProductID: "s1", Name: "Oat milk", PriceCents: 250}
	subEvent := unit(2, "a1", "p1", KindSubstituted)
	subEvent.ProductID = "s1"
	subEvent.Substitute = sub

	events := []Event{
		unit(1, "a1", "p1", KindPicked),
		subEvent,
		unit(3, "a1", "p2", KindPicked),
		unit(4, "a1", "p1", KindVoid),
		unit(5, "a1", "p1", KindShort),
	}
	ledger := Replay(events)

	p1 := ledger.Item("a1", "p1")
	if p1.Picked != 0 || p1.Substituted != 0 || p1.Short != 1 {
		t.Fatalf("expected only the post-void short to count, got %+v", p1.Counts)
	}
	if p1.Substitute != nil {
		t.Fatalf("expected void to clear active substitute, got %+v", p1.Substitute)
	}
	if ledger.Item("a1", "p2").Picked != 1 {
		t.Fatal("expected void to leave other products untouched")
	}
}

func TestReplayRemovalLatestEventWins(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	removed := unit(2, "a1", "p1", KindItemRemoved)
	removed.Source = SourceAdmin
	removed.Actor = "lead"
	removed.Reason = "damaged"
	removed.At = at
	restored := unit(3, "a1", "p1", KindItemRestored)
	restored.Source = SourceAdmin

	ledger := Replay([]Event{unit(1, "a1", "p1", KindPicked), removed})
	state := ledger.Item("a1", "p1")
	if !state.Removed || state.Removal == nil || state.Removal.Reason != "damaged" || state.Removal.Actor != "lead" {
		t.Fatalf("expected removal metadata, got %+v", state)
	}
	if state.Picked != 1 {
		t.Fatalf("expected removal to keep history, got %+v", state.Counts)
	}

	ledger = Replay([]Event{unit(1, "a1", "p1", KindPicked), removed, restored})
	state = ledger.Item("a1", "p1")
	if state.Removed || state.Removal != nil {
		t.Fatalf("expected restore to clear removal, got %+v", state)
	}
}

func TestReplayTracksForceCompletedUnits(t *testing.T) {
	forced := unit(2, "a1", "p1", KindPicked)
	forced.Source = SourceForceComplete
	ledger := Replay([]Event{unit(1, "a1", "p1", KindPicked), forced})
	state := ledger.Item("a1", "p1")
	if state.Picked != 2 || state.ForceCompleted != 1 {
		t.Fatalf("unexpected force-complete accounting: %+v", state)
	}
}

func TestPickerExcessIgnoresForceCompletedUnits(t *testing.T) {
	order := OrderSnapshot{OrderID: "o1", Items: []LineItem{{ProductID: "p1", Quantity: 2}}}
	forced := unit(3, "a1", "p1", KindPicked)
	forced.Source = SourceForceComplete

	ledger := Replay([]Event{unit(1, "a1", "p1", KindPicked), unit(2, "a1", "p1", KindShort), forced})
	if got := ledger.PickerExcess("a1", order, "p1"); got != 0 {
		t.Fatalf("expected force-completed overflow to be allowed, got excess %d", got)
	}

	ledger = Replay([]Event{
		unit(1, "a1", "p1", KindPicked),
		unit(2, "a1", "p1", KindPicked),
		unit(3, "a1", "p1", KindSubstituted),
	})
	if got := ledger.PickerExcess("a1", order, "p1"); got != 1 {
		t.Fatalf("expected one picker unit over demand, got %d", got)
	}

	ledger = Replay([]Event{
		unit(1, "a1", "p1", KindPicked),
		unit(2, "a1", "p1", KindPicked),
		unit(3, "a1", "p1", KindPicked),
		unit(4, "a1", "p1", KindVoid),
	})
	if got := ledger.PickerExcess("a1", order, "p1"); got != 0 {
		t.Fatalf("expected void to clear excess, got %d", got)
	}
}

func TestRequiredAndRemaining(t *testing.T) {
	order := OrderSnapshot{OrderID: "o1", Items: []LineItem{
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p1", Quantity: 1},
		{ProductID: "p2", Quantity: 4},
	}}
	removed := unit(2, "a1", "p2", KindItemRemoved)
	ledger := Replay([]Event{unit(1, "a1", "p1", KindPicked), removed})

	if got := ledger.Required("a1", order, "p1"); got != 3 {
		t.Fatalf("expected duplicate lines to sum to 3, got %d", got)
	}
	if got := ledger.Remaining("a1", order, "p1"); got != 2 {
		t.Fatalf("expected 2 remaining, got %d", got)
	}
	if got := ledger.Required("a1", order, "p2"); got != 0 {
		t.Fatalf("expected removed product to require 0, got %d", got)
	}
	if got := ledger.Remaining("a1", order, "p3"); got != 0 {
		t.Fatalf("expected unknown product to have no demand, got %d", got)
	}
}

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name     string
		required int
		done     int
		removed  bool
		want     ItemStatus
	}{
		{name: "nothing done", required: 3, done: 0, want: ItemPending},
		{name: "some done", required: 3, done: 1, want: ItemPartial},
		{name: "all done", required: 3, done: 3, want: ItemFulfilled},
		{name: "over done", required: 3, done: 4, want: ItemFulfilled},
		{name: "zero demand live", required: 0, done: 0, want: ItemFulfilled},
		{name: "zero demand removed", required: 0, done: 0, removed: true, want: ItemPending},
		{name: "removed with history", required: 0, done: 2, removed: true, want: ItemFulfilled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveStatus(tt.required, tt.done, tt.removed); got != tt.want {
				t.Fatalf("DeriveStatus(%d, %d, %v) = %s, want %s", tt.required, tt.done, tt.removed, got, tt.want)
			}
		})
	}
}

func TestParseActionKind(t *testing.T) {
	kind, err := ParseActionKind(" Reset ")
	if err != nil || kind != ActionReset {
		t.Fatalf("unexpected parse: %v %v", kind, err)
	}
	if kind.EventKind() != KindVoid {
		t.Fatalf("expected reset to record a void event, got %s", kind.EventKind())
	}
	if ActionShort.EventKind() != KindShort {
		t.Fatal("expected short to map to itself")
	}
	if _, err := ParseActionKind("teleported"); err == nil {
		t.Fatal("expected unknown kind error")
	}
	if _, err := ParseActionKind(""); err == nil {
		t.Fatal("expected empty kind error")
	}
}
