package engine_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pickline/internal/engine"
	"pickline/internal/logging"
	"pickline/internal/picking"
	"pickline/internal/services"
	"pickline/internal/testsupport"
)

func TestRegisterActionAllocatesInSnapshotOrder(t *testing.T) {
	h := newHarness(t,
		testsupport.Order("1", "Jones", testsupport.Line("9", 1)),
		testsupport.Order("2", "Smith", testsupport.Line("9", 2)),
	)
	id := h.start(t, "p1", "1", "2")

	h.act(t, id, "9", picking.ActionPicked, "")
	h.act(t, id, "9", picking.ActionShort, "")

	item := h.item(t, "p1", "9")
	if item.Breakdown[0].Counts.Picked != 1 || item.Breakdown[0].Status != picking.ItemFulfilled {
		t.Fatalf("expected first order filled first, got %+v", item.Breakdown[0])
	}
	if item.Breakdown[1].Counts.Short != 1 || item.Breakdown[1].Status != picking.ItemPartial {
		t.Fatalf("expected overflow into second order, got %+v", item.Breakdown[1])
	}
	if item.Status != picking.ItemPartial {
		t.Fatalf("expected merged item partial, got %s", item.Status)
	}
}

func TestRegisterActionNeverExceedsDemand(t *testing.T) {
	h := newHarness(t, testsupport.Order("1", "Jones", testsupport.Line("9", 2)))
	id := h.start(t, "p1", "1")
	ctx := context.Background()

	h.act(t, id, "9", picking.ActionPicked, "")
	h.act(t, id, "9", picking.ActionPicked, "")
	_, err := h.engine.RegisterAction(ctx, picking.Action{SessionID: id, OriginalProductID: "9", Kind: picking.ActionShort})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error past demand, got %v", err)
	}
	item := h.item(t, "p1", "9")
	if item.Counts.Done() != 2 || item.Status != picking.ItemFulfilled {
		t.Fatalf("expected exactly 2 units fulfilled, got %+v", item.Counts)
	}

	if _, err := h.engine.ForceCompleteItem(ctx, id, "9", "lead"); err != nil {
		t.Fatalf("ForceCompleteItem failed: %v", err)
	}
	events, _ := h.engine.SessionLog(ctx, id)
	assignments, _ := h.store.ListAssignments(ctx, id)
	ledger := picking.Replay(events)
	for _, a := range assignments {
		if excess := ledger.PickerExcess(a.ID, a.Order, "9"); excess != 0 {
			t.Fatalf("order %s has %d picker units over demand", a.OrderID, excess)
		}
	}
}

func TestRegisterActionWarnsWhenParallelWritesExceedDemand(t *testing.T) {
	h := newHarness(t,
		testsupport.Order("1", "Jones", testsupport.Line("9", 1)),
		testsupport.Order("2", "Smith", testsupport.Line("9", 1)),
	)
	id := h.start(t, "p1", "1", "2")
	ctx := context.Background()

	logPath := filepath.Join(t.TempDir(), "engine.log")
	logger, err := logging.New(logging.Options{Format: "json", Outputs: []string{logPath}})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	eng := engine.New(h.store, h.orders, nil, logger)

	// Two writers that both saw order 1 with remaining demand.
	assignments, _ := h.store.ListAssignments(ctx, id)
	raced := make([]picking.Event, 2)
	for i := range raced {
		raced[i] = picking.Event{
			SessionID:         id,
			AssignmentID:      assignments[0].ID,
			OrderID:           "1",
			ProductID:         "9",
			OriginalProductID: "9",
			Kind:              picking.KindPicked,
			Source:            picking.SourcePicker,
			Actor:             "p1",
			At:                time.Now(),
		}
	}
	if _, err := h.store.AppendEvents(ctx, "", raced); err != nil {
		t.Fatalf("AppendEvents failed: %v", err)
	}

	if _, err := eng.RegisterAction(ctx, picking.Action{SessionID: id, OriginalProductID: "9", Kind: picking.ActionPicked}); err != nil {
		t.Fatalf("RegisterAction failed: %v", err)
	}
	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(content), `"event_type":"demand_exceeded"`) || !strings.Contains(string(content), `"order_id":"1"`) {
		t.Fatalf("expected demand warning for order 1, got %s", content)
	}
}

func TestRegisterActionValidation(t *testing.T) {
	h := newHarness(t,
		testsupport.Order("1", "Jones", testsupport.Line("9", 2)),
		testsupport.Order("2", "Smith", testsupport.Line("4", 1)),
	)
	id := h.start(t, "p1", "1", "2")
	ctx := context.Background()

	cases := []struct {
		name   string
		action picking.Action
		want   error
	}{
		{"missing session", picking.Action{OriginalProductID: "9", Kind: picking.ActionPicked}, services.ErrValidation},
		{"missing product", picking.Action{SessionID: id, Kind: picking.ActionPicked}, services.ErrValidation},
		{"unknown kind", picking.Action{SessionID: id, OriginalProductID: "9", Kind: "dropped"}, services.ErrValidation},
		{"substitute without product", picking.Action{SessionID: id, OriginalProductID: "9", Kind: picking.ActionSubstituted}, services.ErrValidation},
		{"unknown session", picking.Action{SessionID: "gone", OriginalProductID: "9", Kind: picking.ActionPicked}, services.ErrInvalidSession},
		{"unknown product", picking.Action{SessionID: id, OriginalProductID: "77", Kind: picking.ActionPicked}, services.ErrNotFound},
		{"order without product", picking.Action{SessionID: id, OriginalProductID: "9", Kind: picking.ActionPicked, Payload: picking.ActionPayload{OrderID: "2"}}, services.ErrNotFound},
		{"foreign order", picking.Action{SessionID: id, OriginalProductID: "9", Kind: picking.ActionPicked, Payload: picking.ActionPayload{OrderID: "8"}}, services.ErrValidation},
	}
	for _, tc := range cases {
		if _, err := h.engine.RegisterAction(ctx, tc.action); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestSubstitutionKeepsOriginalProduct(t *testing.T) {
	h := newHarness(t, testsupport.Order("1", "Jones", testsupport.Line("9", 2)))
	id := h.start(t, "p1", "1")
	ctx := context.Background()
	weight := 510

	_, err := h.engine.RegisterAction(ctx, picking.Action{
		SessionID:         id,
		OriginalProductID: "9",
		Kind:              picking.ActionSubstituted,
		Payload: picking.ActionPayload{
			Substitute:  &picking.Substitute{ProductID: "12", Name: "Oat milk", PriceCents: 310},
			WeightGrams: &weight,
			ScannedCode: " 0012 ",
		},
	})
	if err != nil {
		t.Fatalf("RegisterAction failed: %v", err)
	}

	item := h.item(t, "p1", "9")
	if item.Counts.Substituted != 1 || item.Substitute == nil || item.Substitute.ProductID != "12" {
		t.Fatalf("expected active substitute recorded on product 9, got %+v", item)
	}
	events, err := h.engine.SessionLog(ctx, id)
	if err != nil {
		t.Fatalf("SessionLog failed: %v", err)
	}
	evt := events[0]
	if evt.ProductID != "12" || evt.OriginalProductID != "9" || evt.ScannedCode != "0012" || evt.Actor != "p1" {
		t.Fatalf("unexpected ledger row: %+v", evt)
	}
}

func TestResetVoidsOnlyTheTargetProduct(t *testing.T) {
	h := newHarness(t,
		testsupport.Order("1", "Jones", testsupport.Line("9", 2), testsupport.Line("4", 1)),
		testsupport.Order("2", "Smith", testsupport.Line("9", 1)),
	)
	id := h.start(t, "p1", "1", "2")
	ctx := context.Background()

	h.act(t, id, "9", picking.ActionPicked, "")
	h.act(t, id, "9", picking.ActionPicked, "")
	h.act(t, id, "9", picking.ActionShort, "")
	h.act(t, id, "4", picking.ActionPicked, "")

	result := h.act(t, id, "9", picking.ActionReset, "")
	if len(result.EventIDs) != 2 {
		t.Fatalf("expected one void per order containing the product, got %d", len(result.EventIDs))
	}

	item := h.item(t, "p1", "9")
	if item.Counts.Done() != 0 || item.Status != picking.ItemPending {
		t.Fatalf("expected product 9 reset to pending, got %+v", item)
	}
	if other := h.item(t, "p1", "4"); other.Counts.Picked != 1 {
		t.Fatalf("expected product 4 untouched, got %+v", other.Counts)
	}

	events, err := h.engine.SessionLog(ctx, id)
	if err != nil {
		t.Fatalf("SessionLog failed: %v", err)
	}
	if len(events) != 6 {
		t.Fatalf("expected history kept plus two voids, got %d rows", len(events))
	}
	if events[4].Kind != picking.KindVoid || events[5].Kind != picking.KindVoid {
		t.Fatalf("expected trailing void rows, got %s and %s", events[4].Kind, events[5].Kind)
	}

	h.act(t, id, "9", picking.ActionPicked, "")
	if item := h.item(t, "p1", "9"); item.Counts.Picked != 1 {
		t.Fatalf("expected counting to resume after reset, got %+v", item.Counts)
	}
}

func TestDoubleSubmitWithoutKeyCountsTwice(t *testing.T) {
	h := newHarness(t, testsupport.Order("1", "Jones", testsupport.Line("9", 3)))
	id := h.start(t, "p1", "1")

	h.act(t, id, "9", picking.ActionPicked, "")
	h.act(t, id, "9", picking.ActionPicked, "")
	if item := h.item(t, "p1", "9"); item.Counts.Picked != 2 {
		t.Fatalf("expected keyless resubmission to count twice, got %d", item.Counts.Picked)
	}
}

func TestDoubleSubmitWithKeyCountsOnce(t *testing.T) {
	h := newHarness(t, testsupport.Order("1", "Jones", testsupport.Line("9", 1)))
	id := h.start(t, "p1", "1")

	first := h.act(t, id, "9", picking.ActionPicked, "device-key-1")
	second := h.act(t, id, "9", picking.ActionPicked, "device-key-1")
	if first.Duplicate || !second.Duplicate || !second.OK {
		t.Fatalf("expected second submission flagged duplicate, got %+v then %+v", first, second)
	}
	if len(second.EventIDs) != 1 || second.EventIDs[0] != first.EventIDs[0] {
		t.Fatalf("expected duplicate to report original event ids, got %v", second.EventIDs)
	}
	if item := h.item(t, "p1", "9"); item.Counts.Picked != 1 {
		t.Fatalf("expected keyed resubmission to count once, got %d", item.Counts.Picked)
	}
}

func TestValidateManualCode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.store.UpsertBarcode(ctx, "0001234", "SKU-9"); err != nil {
		t.Fatalf("UpsertBarcode failed: %v", err)
	}

	cases := []struct {
		input string
		want  picking.CodeResult
	}{
		{" SKU-9 ", picking.CodeResult{Valid: true, MatchType: picking.MatchExact}},
		{"0001234", picking.CodeResult{Valid: true, MatchType: picking.MatchBarcode}},
		{"9999", picking.CodeResult{}},
	}
	for _, tc := range cases {
		got, err := h.engine.ValidateManualCode(ctx, tc.input, "SKU-9")
		if err != nil {
			t.Fatalf("ValidateManualCode(%q) failed: %v", tc.input, err)
		}
		if got != tc.want {
			t.Fatalf("ValidateManualCode(%q) = %+v, want %+v", tc.input, got, tc.want)
		}
	}
	if _, err := h.engine.ValidateManualCode(ctx, "", "SKU-9"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty input, got %v", err)
	}
}
