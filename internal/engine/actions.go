package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"pickline/internal/logging"
	"pickline/internal/picking"
	"pickline/internal/services"
)

// RegisterAction appends a picker action to the ledger. Unit actions are
// allocated to the first order, in snapshot order, that still has demand for
// the product; reset appends one void event per order containing it. A
// repeated idempotency key is a successful no-op.
func (e *Engine) RegisterAction(ctx context.Context, action picking.Action) (picking.ActionResult, error) {
	action.SessionID = strings.TrimSpace(action.SessionID)
	action.OriginalProductID = strings.TrimSpace(action.OriginalProductID)
	action.IdempotencyKey = strings.TrimSpace(action.IdempotencyKey)
	if action.SessionID == "" || action.OriginalProductID == "" {
		return picking.ActionResult{}, services.Wrap(services.ErrValidation, "engine", "register action", "session id and product id are required", nil)
	}
	kind, err := picking.ParseActionKind(string(action.Kind))
	if err != nil {
		return picking.ActionResult{}, services.Wrap(services.ErrValidation, "engine", "register action", "", err)
	}
	ctx = services.WithSessionID(ctx, action.SessionID)
	logger := e.log(ctx).With(
		logging.String(logging.FieldProductID, action.OriginalProductID),
		logging.String("kind", string(kind)),
	)

	if action.IdempotencyKey != "" {
		ids, seen, err := e.store.RecordedEventIDs(ctx, action.IdempotencyKey)
		if err != nil {
			return picking.ActionResult{}, services.Wrap(services.ErrPersistence, "engine", "register action", "lookup idempotency key", err)
		}
		if seen {
			logger.Debug("duplicate action ignored", logging.String(logging.FieldIdempotencyKey, action.IdempotencyKey))
			return picking.ActionResult{OK: true, Duplicate: true, EventIDs: ids}, nil
		}
	}

	session, err := e.store.GetSession(ctx, action.SessionID)
	if err != nil {
		return picking.ActionResult{}, services.Wrap(services.ErrPersistence, "engine", "register action", "load session", err)
	}
	if session == nil {
		return picking.ActionResult{}, services.Wrap(services.ErrInvalidSession, "engine", "register action", "session "+action.SessionID+" does not exist", nil)
	}
	if guard := picking.CanRegisterAction(session.Status); !guard.Allowed {
		return picking.ActionResult{}, services.Wrap(services.ErrInvalidSession, "engine", "register action", "", guard.Error())
	}

	assignments, events, err := e.loadLedger(ctx, action.SessionID, "register action")
	if err != nil {
		return picking.ActionResult{}, err
	}
	candidates, err := candidateAssignments(assignments, action)
	if err != nil {
		return picking.ActionResult{}, err
	}

	actor := strings.TrimSpace(action.Actor)
	if actor == "" {
		actor = session.PickerID
	}
	base := picking.Event{
		SessionID:         action.SessionID,
		ProductID:         action.OriginalProductID,
		OriginalProductID: action.OriginalProductID,
		Kind:              kind.EventKind(),
		Source:            picking.SourcePicker,
		Actor:             actor,
		At:                e.now(),
		WeightGrams:       action.Payload.WeightGrams,
		Reason:            strings.TrimSpace(action.Payload.Reason),
		ScannedCode:       strings.TrimSpace(action.Payload.ScannedCode),
	}

	var pending []picking.Event
	if kind == picking.ActionReset {
		for _, assignment := range candidates {
			evt := base
			evt.AssignmentID = assignment.ID
			evt.OrderID = assignment.OrderID
			pending = append(pending, evt)
		}
	} else {
		if kind == picking.ActionSubstituted {
			sub := action.Payload.Substitute
			if sub == nil || strings.TrimSpace(sub.ProductID) == "" {
				return picking.ActionResult{}, services.Wrap(services.ErrValidation, "engine", "register action", "substituted actions need a substitute product", nil)
			}
			normalized := picking.Substitute{
				ProductID:  strings.TrimSpace(sub.ProductID),
				Name:       strings.TrimSpace(sub.Name),
				PriceCents: sub.PriceCents,
			}
			base.Substitute = &normalized
			base.ProductID = normalized.ProductID
		}
		ledger := picking.Replay(events)
		target := -1
		for i, assignment := range candidates {
			if ledger.Remaining(assignment.ID, assignment.Order, action.OriginalProductID) > 0 {
				target = i
				break
			}
		}
		if target < 0 {
			return picking.ActionResult{}, services.Wrap(services.ErrValidation, "engine", "register action",
				fmt.Sprintf("no remaining demand for product %s", action.OriginalProductID), nil)
		}
		evt := base
		evt.AssignmentID = candidates[target].ID
		evt.OrderID = candidates[target].OrderID
		pending = append(pending, evt)
	}

	result, err := e.store.AppendEvents(ctx, action.IdempotencyKey, pending)
	if err != nil {
		return picking.ActionResult{}, services.Wrap(services.ErrPersistence, "engine", "register action", "append", err)
	}
	logger.Info("action recorded",
		logging.String(logging.FieldEventType, "action_recorded"),
		logging.Int("events", len(result.EventIDs)),
		logging.Bool("duplicate", result.Duplicate),
	)
	if kind != picking.ActionReset && !result.Duplicate {
		e.checkDemand(ctx, logger, action.SessionID, candidates, action.OriginalProductID)
	}
	return picking.ActionResult{OK: true, Duplicate: result.Duplicate, EventIDs: result.EventIDs}, nil
}

// checkDemand warns when concurrent requests pushed picker units past an
// order's demand. Only parallel submissions for the same product can do that.
func (e *Engine) checkDemand(ctx context.Context, logger *slog.Logger, sessionID string, candidates []picking.Assignment, productID string) {
	events, err := e.store.ListEvents(ctx, sessionID)
	if err != nil {
		logger.Debug("demand check skipped", logging.Error(err))
		return
	}
	ledger := picking.Replay(events)
	for _, assignment := range candidates {
		if excess := ledger.PickerExcess(assignment.ID, assignment.Order, productID); excess > 0 {
			logging.WarnWithContext(logger, "picker units exceed order demand", "demand_exceeded",
				logging.String("order_id", assignment.OrderID),
				logging.Int("excess", excess),
				logging.String(logging.FieldErrorHint, "void the product with a reset action and re-scan"),
				logging.String(logging.FieldImpact, "order shows more units than it requested"),
			)
		}
	}
}

// candidateAssignments narrows the session's orders to those that contain
// the product, honoring an explicit order pin.
func candidateAssignments(assignments []picking.Assignment, action picking.Action) ([]picking.Assignment, error) {
	pin := strings.TrimSpace(action.Payload.OrderID)
	pinned := false
	out := make([]picking.Assignment, 0, len(assignments))
	for _, assignment := range assignments {
		if pin != "" {
			if assignment.OrderID != pin {
				continue
			}
			pinned = true
		}
		if assignment.Order.HasProduct(action.OriginalProductID) {
			out = append(out, assignment)
		}
	}
	if pin != "" && !pinned {
		return nil, services.Wrap(services.ErrValidation, "engine", "register action", fmt.Sprintf("order %s is not part of the session", pin), nil)
	}
	if len(out) == 0 {
		return nil, services.Wrap(services.ErrNotFound, "engine", "register action", fmt.Sprintf("product %s is not in the session", action.OriginalProductID), nil)
	}
	return out, nil
}

// ValidateManualCode checks a typed code against the expected SKU, falling
// back to registered barcodes.
func (e *Engine) ValidateManualCode(ctx context.Context, input, expectedSKU string) (picking.CodeResult, error) {
	if strings.TrimSpace(input) == "" || strings.TrimSpace(expectedSKU) == "" {
		return picking.CodeResult{}, services.Wrap(services.ErrValidation, "engine", "validate code", "input code and expected sku are required", nil)
	}
	result, err := picking.MatchManualCode(ctx, input, expectedSKU, e.store)
	if err != nil {
		return picking.CodeResult{}, services.Wrap(services.ErrPersistence, "engine", "validate code", "barcode lookup", err)
	}
	return result, nil
}
