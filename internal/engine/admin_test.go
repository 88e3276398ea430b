package engine_test

import (
	"context"
	"errors"
	"testing"

	"pickline/internal/picking"
	"pickline/internal/services"
	"pickline/internal/testsupport"
)

func TestRemoveRestoreRoundTrip(t *testing.T) {
	h := newHarness(t,
		testsupport.Order("1", "Jones", testsupport.Line("9", 2)),
		testsupport.Order("2", "Smith", testsupport.Line("9", 1), testsupport.Line("4", 1)),
	)
	id := h.start(t, "p1", "1", "2")
	ctx := context.Background()

	if err := h.engine.RemoveItem(ctx, id, "9", "lead", "out of stock"); err != nil {
		t.Fatalf("RemoveItem failed: %v", err)
	}
	view, err := h.engine.ActiveSession(ctx, "p1", picking.ViewOptions{})
	if err != nil {
		t.Fatalf("ActiveSession failed: %v", err)
	}
	if _, ok := view.Find("9"); ok {
		t.Fatal("expected removed item hidden by default")
	}
	removed := h.item(t, "p1", "9")
	if !removed.Removed || removed.Required != 0 || removed.Removal == nil || removed.Removal.Reason != "out of stock" {
		t.Fatalf("unexpected removed item: %+v", removed)
	}
	if _, err := h.engine.RegisterAction(ctx, picking.Action{SessionID: id, OriginalProductID: "9", Kind: picking.ActionPicked}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected removed item to accept no units, got %v", err)
	}

	if err := h.engine.RemoveItem(ctx, id, "9", "lead", "again"); err != nil {
		t.Fatalf("expected repeated remove to be a no-op, got %v", err)
	}
	if err := h.engine.RestoreItem(ctx, id, "9", "lead", ""); err != nil {
		t.Fatalf("RestoreItem failed: %v", err)
	}
	restored := h.item(t, "p1", "9")
	if restored.Removed || restored.Required != 3 || restored.Removal != nil {
		t.Fatalf("expected item restored with demand 3, got %+v", restored)
	}

	events, err := h.engine.SessionLog(ctx, id)
	if err != nil {
		t.Fatalf("SessionLog failed: %v", err)
	}
	var kinds []picking.EventKind
	for _, evt := range events {
		kinds = append(kinds, evt.Kind)
	}
	want := []picking.EventKind{picking.KindItemRemoved, picking.KindItemRemoved, picking.KindItemRestored, picking.KindItemRestored}
	if len(kinds) != len(want) {
		t.Fatalf("expected %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, kinds)
		}
	}
	if events[0].Source != picking.SourceAdmin || events[0].Actor != "lead" {
		t.Fatalf("expected admin provenance, got %+v", events[0])
	}
}

func TestRemoveItemUnknownProduct(t *testing.T) {
	h := newHarness(t, testsupport.Order("1", "Jones", testsupport.Line("9", 2)))
	id := h.start(t, "p1", "1")
	if err := h.engine.RemoveItem(context.Background(), id, "77", "lead", ""); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := h.engine.RestoreItem(context.Background(), "missing", "9", "lead", ""); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for unknown session, got %v", err)
	}
}

func TestForceCompleteDistributesPerOrder(t *testing.T) {
	h := newHarness(t,
		testsupport.Order("A", "Jones", testsupport.Line("9", 3)),
		testsupport.Order("B", "Smith", testsupport.Line("9", 1)),
		testsupport.Order("C", "Brown", testsupport.Line("4", 2)),
	)
	id := h.start(t, "p1", "A", "B", "C")
	ctx := context.Background()

	h.act(t, id, "9", picking.ActionPicked, "")

	results, err := h.engine.ForceCompleteItem(ctx, id, "9", "lead")
	if err != nil {
		t.Fatalf("ForceCompleteItem failed: %v", err)
	}
	if len(results) != 2 || results[0].OrderID != "A" || results[0].Inserted != 2 || results[1].OrderID != "B" || results[1].Inserted != 1 {
		t.Fatalf("unexpected distribution: %+v", results)
	}

	events, err := h.engine.SessionLog(ctx, id)
	if err != nil {
		t.Fatalf("SessionLog failed: %v", err)
	}
	perOrder := map[string]int{}
	for _, evt := range events {
		if evt.Source == picking.SourceForceComplete {
			perOrder[evt.OrderID]++
		}
	}
	if perOrder["A"] != 2 || perOrder["B"] != 1 || perOrder["C"] != 0 {
		t.Fatalf("unexpected force-complete rows: %v", perOrder)
	}
	if item := h.item(t, "p1", "9"); item.Status != picking.ItemFulfilled {
		t.Fatalf("expected fulfilled after force complete, got %s", item.Status)
	}

	again, err := h.engine.ForceCompleteItem(ctx, id, "9", "lead")
	if err != nil {
		t.Fatalf("repeat ForceCompleteItem failed: %v", err)
	}
	for _, r := range again {
		if r.Inserted != 0 {
			t.Fatalf("expected nothing inserted on repeat, got %+v", again)
		}
	}
}

func TestAdminEditsClosedAfterAudit(t *testing.T) {
	h := newHarness(t, testsupport.Order("1", "Jones", testsupport.Line("9", 1)))
	id := h.start(t, "p1", "1")
	ctx := context.Background()

	if err := h.engine.CompleteSession(ctx, id, "p1"); err != nil {
		t.Fatalf("CompleteSession failed: %v", err)
	}
	if _, err := h.engine.ForceCompleteItem(ctx, id, "9", "lead"); err != nil {
		t.Fatalf("expected admin edits while pending audit, got %v", err)
	}
	if err := h.engine.RecordAuditOutcome(ctx, id, "completed"); err != nil {
		t.Fatalf("RecordAuditOutcome failed: %v", err)
	}
	if err := h.engine.RemoveItem(ctx, id, "9", "lead", ""); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict after audit, got %v", err)
	}
}
