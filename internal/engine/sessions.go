package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pickline/internal/logging"
	"pickline/internal/notifications"
	"pickline/internal/picking"
	"pickline/internal/services"
	"pickline/internal/store"
)

// CreateSession freezes the given orders into a new session owned by the
// picker. Every order is fetched before anything is written.
func (e *Engine) CreateSession(ctx context.Context, pickerID string, orderIDs []string) (string, error) {
	pickerID = strings.TrimSpace(pickerID)
	if pickerID == "" {
		return "", services.Wrap(services.ErrValidation, "engine", "create session", "picker id is required", nil)
	}
	ids := dedupe(orderIDs)
	if len(ids) == 0 {
		return "", services.Wrap(services.ErrValidation, "engine", "create session", "at least one order id is required", nil)
	}
	ctx = services.WithPickerID(ctx, pickerID)

	picker, err := e.store.GetPicker(ctx, pickerID)
	if err != nil {
		return "", services.Wrap(services.ErrPersistence, "engine", "create session", "load picker", err)
	}
	if picker == nil {
		return "", services.Wrap(services.ErrNotFound, "engine", "create session", fmt.Sprintf("picker %s", pickerID), nil)
	}
	owned, err := e.store.OwnedSessionID(ctx, pickerID)
	if err != nil {
		return "", services.Wrap(services.ErrPersistence, "engine", "create session", "check ownership", err)
	}
	if owned != "" {
		return "", services.Wrap(services.ErrConflict, "engine", "create session", fmt.Sprintf("picker %s already owns session %s", pickerID, owned), nil)
	}

	snapshot := make([]picking.OrderSnapshot, 0, len(ids))
	for _, orderID := range ids {
		order, err := e.orders.FetchOrder(ctx, orderID)
		if err != nil {
			if errors.Is(err, services.ErrExternalSystem) {
				return "", err
			}
			return "", services.Wrap(services.ErrExternalSystem, "engine", "create session", "fetch order "+orderID, err)
		}
		order.OrderID = orderID
		snapshot = append(snapshot, order)
	}

	now := e.now()
	session := picking.Session{
		ID:        e.newID(),
		PickerID:  pickerID,
		OrderIDs:  ids,
		Snapshot:  snapshot,
		Status:    picking.StatusActive,
		StartedAt: now,
		UpdatedAt: now,
	}
	assignments := make([]picking.Assignment, 0, len(snapshot))
	for _, order := range snapshot {
		assignments = append(assignments, picking.Assignment{
			ID:         e.newID(),
			SessionID:  session.ID,
			OrderID:    order.OrderID,
			PickerName: picker.Name,
			Order:      order,
			Status:     picking.StatusActive,
			StartedAt:  now,
			UpdatedAt:  now,
		})
	}

	if err := e.store.CreateSession(ctx, session, assignments); err != nil {
		if errors.Is(err, store.ErrPickerBusy) {
			return "", services.Wrap(services.ErrConflict, "engine", "create session", "", err)
		}
		return "", services.Wrap(services.ErrPersistence, "engine", "create session", "persist", err)
	}

	ctx = services.WithSessionID(ctx, session.ID)
	e.log(ctx).Info("session created",
		logging.String(logging.FieldEventType, "session_created"),
		logging.Int("orders", len(ids)),
	)
	e.notify(ctx, "session_created", func(n notifications.Service) error {
		return n.NotifySessionCreated(ctx, session.ID, pickerID, len(ids))
	})
	return session.ID, nil
}

// ActiveSession renders the session the picker currently owns.
func (e *Engine) ActiveSession(ctx context.Context, pickerID string, opts picking.ViewOptions) (*picking.SessionView, error) {
	pickerID = strings.TrimSpace(pickerID)
	if pickerID == "" {
		return nil, services.Wrap(services.ErrValidation, "engine", "active session", "picker id is required", nil)
	}
	sessionID, err := e.store.OwnedSessionID(ctx, pickerID)
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "engine", "active session", "lookup ownership", err)
	}
	if sessionID == "" {
		return nil, services.Wrap(services.ErrNotFound, "engine", "active session", fmt.Sprintf("picker %s has no active session", pickerID), nil)
	}
	return e.SessionView(ctx, sessionID, opts)
}

// SessionView renders any session by id, live or closed.
func (e *Engine) SessionView(ctx context.Context, sessionID string, opts picking.ViewOptions) (*picking.SessionView, error) {
	session, assignments, events, err := e.loadSession(ctx, sessionID, "session view")
	if err != nil {
		return nil, err
	}
	view := picking.BuildView(*session, assignments, events, opts)
	return &view, nil
}

// CompleteSession moves an active session into pending_audit and releases
// the picker. Repeating the call after the session already reached
// pending_audit only clears a leftover ownership record.
func (e *Engine) CompleteSession(ctx context.Context, sessionID, pickerID string) error {
	sessionID = strings.TrimSpace(sessionID)
	pickerID = strings.TrimSpace(pickerID)
	if sessionID == "" || pickerID == "" {
		return services.Wrap(services.ErrValidation, "engine", "complete session", "session id and picker id are required", nil)
	}
	ctx = services.WithPickerID(services.WithSessionID(ctx, sessionID), pickerID)

	session, err := e.getSession(ctx, sessionID, "complete session")
	if err != nil {
		return err
	}
	owned, err := e.store.OwnedSessionID(ctx, pickerID)
	if err != nil {
		return services.Wrap(services.ErrPersistence, "engine", "complete session", "lookup ownership", err)
	}
	if session.Status == picking.StatusPendingAudit && session.PickerID == pickerID && owned == sessionID {
		if _, err := e.store.ReleasePicker(ctx, pickerID); err != nil {
			return services.Wrap(services.ErrPersistence, "engine", "complete session", "release picker", err)
		}
		e.log(ctx).Info("released picker of finished session", logging.String(logging.FieldEventType, "session_released"))
		return nil
	}
	guard := picking.CanComplete(picking.CompleteContext{
		Status:         session.Status,
		SessionPicker:  session.PickerID,
		RequestPicker:  pickerID,
		OwnerSessionID: owned,
		SessionID:      sessionID,
	})
	if !guard.Allowed {
		return services.Wrap(services.ErrConflict, "engine", "complete session", "", guard.Error())
	}

	if _, err := e.store.TransitionSession(ctx, sessionID, picking.StatusPendingAudit, e.now()); err != nil {
		return services.Wrap(services.ErrPersistence, "engine", "complete session", "", err)
	}

	e.log(ctx).Info("session finished", logging.String(logging.FieldEventType, "session_finished"))
	e.notify(ctx, "session_finished", func(n notifications.Service) error {
		return n.NotifySessionClosed(ctx, sessionID, pickerID, string(picking.StatusPendingAudit))
	})
	return nil
}

// CancelAssignment abandons the picker's current session. Only an active
// session is cancelled; ownership of anything else is released without a
// status change. A picker that owns nothing gets a no-op.
func (e *Engine) CancelAssignment(ctx context.Context, pickerID string) error {
	pickerID = strings.TrimSpace(pickerID)
	if pickerID == "" {
		return services.Wrap(services.ErrValidation, "engine", "cancel assignment", "picker id is required", nil)
	}
	ctx = services.WithPickerID(ctx, pickerID)

	sessionID, err := e.store.OwnedSessionID(ctx, pickerID)
	if err != nil {
		return services.Wrap(services.ErrPersistence, "engine", "cancel assignment", "lookup ownership", err)
	}
	if sessionID == "" {
		if _, err := e.store.ReleasePicker(ctx, pickerID); err != nil {
			return services.Wrap(services.ErrPersistence, "engine", "cancel assignment", "release picker", err)
		}
		e.log(ctx).Debug("cancel requested without an owned session")
		return nil
	}
	ctx = services.WithSessionID(ctx, sessionID)

	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return services.Wrap(services.ErrPersistence, "engine", "cancel assignment", "load session", err)
	}
	if session == nil || session.Status != picking.StatusActive {
		if _, err := e.store.ReleasePicker(ctx, pickerID); err != nil {
			return services.Wrap(services.ErrPersistence, "engine", "cancel assignment", "release picker", err)
		}
		status := "missing"
		if session != nil {
			status = string(session.Status)
		}
		e.log(ctx).Info("ownership released without cancelling", logging.String("status", status))
		return nil
	}
	if _, err := e.store.TransitionSession(ctx, sessionID, picking.StatusCancelled, e.now()); err != nil {
		return services.Wrap(services.ErrPersistence, "engine", "cancel assignment", "", err)
	}
	e.log(ctx).Info("session cancelled by picker", logging.String(logging.FieldEventType, "session_cancelled"))
	e.notify(ctx, "session_cancelled", func(n notifications.Service) error {
		return n.NotifySessionClosed(ctx, sessionID, pickerID, string(picking.StatusCancelled))
	})
	return nil
}

// CancelSession is the admin cancel by session id, valid while the session
// is active or pending audit.
func (e *Engine) CancelSession(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return services.Wrap(services.ErrValidation, "engine", "cancel session", "session id is required", nil)
	}
	ctx = services.WithSessionID(ctx, sessionID)

	session, err := e.getSession(ctx, sessionID, "cancel session")
	if err != nil {
		return err
	}
	if guard := picking.CanTransition(session.Status, picking.StatusCancelled); !guard.Allowed {
		return services.Wrap(services.ErrConflict, "engine", "cancel session", "", guard.Error())
	}
	if _, err := e.store.TransitionSession(ctx, sessionID, picking.StatusCancelled, e.now()); err != nil {
		return services.Wrap(services.ErrPersistence, "engine", "cancel session", "", err)
	}
	e.log(ctx).Info("session cancelled by admin", logging.String(logging.FieldEventType, "session_cancelled"))
	e.notify(ctx, "session_cancelled", func(n notifications.Service) error {
		return n.NotifySessionClosed(ctx, sessionID, session.PickerID, string(picking.StatusCancelled))
	})
	return nil
}

// RecordAuditOutcome resolves a pending_audit session.
func (e *Engine) RecordAuditOutcome(ctx context.Context, sessionID, outcome string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return services.Wrap(services.ErrValidation, "engine", "audit outcome", "session id is required", nil)
	}
	status, guard := picking.ParseAuditOutcome(outcome)
	if !guard.Allowed {
		return services.Wrap(services.ErrValidation, "engine", "audit outcome", "", guard.Error())
	}
	ctx = services.WithSessionID(ctx, sessionID)

	session, err := e.getSession(ctx, sessionID, "audit outcome")
	if err != nil {
		return err
	}
	if guard := picking.CanTransition(session.Status, status); !guard.Allowed {
		return services.Wrap(services.ErrConflict, "engine", "audit outcome", "", guard.Error())
	}
	if _, err := e.store.TransitionSession(ctx, sessionID, status, e.now()); err != nil {
		return services.Wrap(services.ErrPersistence, "engine", "audit outcome", "", err)
	}
	e.log(ctx).Info("audit outcome recorded",
		logging.String(logging.FieldEventType, "session_audited"),
		logging.String("outcome", string(status)),
	)
	e.notify(ctx, "session_audited", func(n notifications.Service) error {
		return n.NotifySessionClosed(ctx, sessionID, session.PickerID, string(status))
	})
	return nil
}

// SessionLog returns the raw ledger rows of a session in seq order.
func (e *Engine) SessionLog(ctx context.Context, sessionID string) ([]picking.Event, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, services.Wrap(services.ErrValidation, "engine", "session log", "session id is required", nil)
	}
	if _, err := e.getSession(ctx, sessionID, "session log"); err != nil {
		return nil, err
	}
	events, err := e.store.ListEvents(ctx, sessionID)
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "engine", "session log", "list events", err)
	}
	return events, nil
}

// Sessions lists sessions, optionally filtered by status.
func (e *Engine) Sessions(ctx context.Context, statuses ...picking.Status) ([]picking.Session, error) {
	sessions, err := e.store.ListSessions(ctx, statuses...)
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "engine", "list sessions", "", err)
	}
	return sessions, nil
}

func (e *Engine) getSession(ctx context.Context, sessionID, op string) (*picking.Session, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "engine", op, "load session", err)
	}
	if session == nil {
		return nil, services.Wrap(services.ErrNotFound, "engine", op, "session "+sessionID, nil)
	}
	return session, nil
}

func (e *Engine) loadSession(ctx context.Context, sessionID, op string) (*picking.Session, []picking.Assignment, []picking.Event, error) {
	session, err := e.getSession(ctx, sessionID, op)
	if err != nil {
		return nil, nil, nil, err
	}
	assignments, events, err := e.loadLedger(ctx, sessionID, op)
	if err != nil {
		return nil, nil, nil, err
	}
	return session, assignments, events, nil
}

func (e *Engine) loadLedger(ctx context.Context, sessionID, op string) ([]picking.Assignment, []picking.Event, error) {
	assignments, err := e.store.ListAssignments(ctx, sessionID)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrPersistence, "engine", op, "list assignments", err)
	}
	events, err := e.store.ListEvents(ctx, sessionID)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrPersistence, "engine", op, "list events", err)
	}
	return assignments, events, nil
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
