package engine

import (
	"context"
	"fmt"
	"strings"

	"pickline/internal/logging"
	"pickline/internal/notifications"
	"pickline/internal/picking"
	"pickline/internal/services"
)

// RemoveItem soft-deletes a product on every order of the session that
// carries it. Removing an already removed item is a no-op.
func (e *Engine) RemoveItem(ctx context.Context, sessionID, productID, actor, reason string) error {
	return e.toggleRemoval(ctx, "remove item", picking.KindItemRemoved, sessionID, productID, actor, reason)
}

// RestoreItem reverses RemoveItem. Restoring a live item is a no-op.
func (e *Engine) RestoreItem(ctx context.Context, sessionID, productID, actor, reason string) error {
	return e.toggleRemoval(ctx, "restore item", picking.KindItemRestored, sessionID, productID, actor, reason)
}

func (e *Engine) toggleRemoval(ctx context.Context, op string, kind picking.EventKind, sessionID, productID, actor, reason string) error {
	target, err := e.loadAdminTarget(ctx, op, sessionID, productID)
	if err != nil {
		return err
	}
	ctx = services.WithSessionID(ctx, target.session.ID)
	wantRemoved := kind == picking.KindItemRemoved

	var pending []picking.Event
	for _, assignment := range target.assignments {
		if target.ledger.Item(assignment.ID, target.productID).Removed == wantRemoved {
			continue
		}
		pending = append(pending, picking.Event{
			SessionID:         target.session.ID,
			AssignmentID:      assignment.ID,
			OrderID:           assignment.OrderID,
			ProductID:         target.productID,
			OriginalProductID: target.productID,
			Kind:              kind,
			Source:            picking.SourceAdmin,
			Actor:             strings.TrimSpace(actor),
			At:                e.now(),
			Reason:            strings.TrimSpace(reason),
		})
	}
	if len(pending) == 0 {
		e.log(ctx).Debug("admin override already applied", logging.String("kind", string(kind)))
		return nil
	}
	if _, err := e.store.AppendEvents(ctx, "", pending); err != nil {
		return services.Wrap(services.ErrPersistence, "engine", op, "append", err)
	}
	e.log(ctx).Info("admin override recorded",
		logging.String(logging.FieldEventType, string(kind)),
		logging.String("actor", strings.TrimSpace(actor)),
		logging.Int("orders", len(pending)),
	)
	e.notify(ctx, string(kind), func(n notifications.Service) error {
		return n.NotifyItemOverride(ctx, target.session.ID, target.productID, string(kind), actor)
	})
	return nil
}

// ForceCompleteItem fills the outstanding demand for a product order by
// order with admin-sourced picked units. Orders already satisfied get none.
func (e *Engine) ForceCompleteItem(ctx context.Context, sessionID, productID, actor string) ([]picking.ForceCompleted, error) {
	target, err := e.loadAdminTarget(ctx, "force complete", sessionID, productID)
	if err != nil {
		return nil, err
	}
	ctx = services.WithSessionID(ctx, target.session.ID)

	now := e.now()
	results := make([]picking.ForceCompleted, 0, len(target.assignments))
	var pending []picking.Event
	for _, assignment := range target.assignments {
		required := target.ledger.Required(assignment.ID, assignment.Order, target.productID)
		missing := required - target.ledger.Item(assignment.ID, target.productID).Done()
		result := picking.ForceCompleted{OrderID: assignment.OrderID, AssignmentID: assignment.ID}
		for i := 0; i < missing; i++ {
			pending = append(pending, picking.Event{
				SessionID:         target.session.ID,
				AssignmentID:      assignment.ID,
				OrderID:           assignment.OrderID,
				ProductID:         target.productID,
				OriginalProductID: target.productID,
				Kind:              picking.KindPicked,
				Source:            picking.SourceForceComplete,
				Actor:             strings.TrimSpace(actor),
				At:                now,
			})
			result.Inserted++
		}
		results = append(results, result)
	}
	if len(pending) == 0 {
		return results, nil
	}
	if _, err := e.store.AppendEvents(ctx, "", pending); err != nil {
		return nil, services.Wrap(services.ErrPersistence, "engine", "force complete", "append", err)
	}
	e.log(ctx).Info("item force completed",
		logging.String(logging.FieldEventType, "force_complete"),
		logging.Int("units", len(pending)),
	)
	e.notify(ctx, "force_complete", func(n notifications.Service) error {
		return n.NotifyItemOverride(ctx, target.session.ID, target.productID, "force_complete", actor)
	})
	return results, nil
}

type adminTarget struct {
	session     *picking.Session
	productID   string
	assignments []picking.Assignment
	ledger      picking.Ledger
}

// loadAdminTarget resolves the session and the orders carrying productID.
func (e *Engine) loadAdminTarget(ctx context.Context, op, sessionID, productID string) (*adminTarget, error) {
	sessionID = strings.TrimSpace(sessionID)
	productID = strings.TrimSpace(productID)
	if sessionID == "" || productID == "" {
		return nil, services.Wrap(services.ErrValidation, "engine", op, "session id and product id are required", nil)
	}
	session, assignments, events, err := e.loadSession(ctx, sessionID, op)
	if err != nil {
		return nil, err
	}
	if guard := picking.CanAdminEdit(session.Status); !guard.Allowed {
		return nil, services.Wrap(services.ErrConflict, "engine", op, "", guard.Error())
	}
	matching := make([]picking.Assignment, 0, len(assignments))
	for _, assignment := range assignments {
		if assignment.Order.HasProduct(productID) {
			matching = append(matching, assignment)
		}
	}
	if len(matching) == 0 {
		return nil, services.Wrap(services.ErrNotFound, "engine", op, fmt.Sprintf("product %s is not in session %s", productID, sessionID), nil)
	}
	return &adminTarget{
		session:     session,
		productID:   productID,
		assignments: matching,
		ledger:      picking.Replay(events),
	}, nil
}
