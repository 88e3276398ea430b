package api

import (
	"time"

	"pickline/internal/picking"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// OKResponse acknowledges a write without further payload.
type OKResponse struct {
	OK bool `json:"ok"`
}

// CreateSessionRequest starts a session for a picker.
type CreateSessionRequest struct {
	PickerID string   `json:"pickerId"`
	OrderIDs []string `json:"orderIds"`
}

// CreateSessionResponse returns the new session id.
type CreateSessionResponse struct {
	SessionID string `json:"sessionId"`
}

// CompleteSessionRequest finishes a session into pending audit.
type CompleteSessionRequest struct {
	SessionID string `json:"sessionId"`
	PickerID  string `json:"pickerId"`
}

// CancelAssignmentRequest abandons the picker's current session.
type CancelAssignmentRequest struct {
	PickerID string `json:"pickerId"`
}

// CancelSessionRequest is the admin cancel by session id.
type CancelSessionRequest struct {
	SessionID string `json:"sessionId"`
}

// AuditOutcomeRequest resolves a pending audit.
type AuditOutcomeRequest struct {
	SessionID string `json:"sessionId"`
	Outcome   string `json:"outcome"`
}

// ItemOverrideRequest targets one product of a session for remove, restore
// or force-complete.
type ItemOverrideRequest struct {
	SessionID string `json:"sessionId"`
	ProductID string `json:"productId"`
	Actor     string `json:"actor,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// ForceCompleteResponse reports the units written per order.
type ForceCompleteResponse struct {
	OK       bool                     `json:"ok"`
	Inserted int                      `json:"inserted"`
	Orders   []picking.ForceCompleted `json:"orders"`
}

// CodeValidateRequest checks a manually typed code.
type CodeValidateRequest struct {
	InputCode   string `json:"inputCode"`
	ExpectedSKU string `json:"expectedSku"`
}

// LedgerRow is one ledger event in transport form.
type LedgerRow struct {
	ID                string              `json:"id"`
	Seq               int64               `json:"seq"`
	AssignmentID      string              `json:"assignmentId"`
	OrderID           string              `json:"orderId"`
	ProductID         string              `json:"productId"`
	OriginalProductID string              `json:"originalProductId"`
	Kind              string              `json:"kind"`
	Source            string              `json:"source"`
	Actor             string              `json:"actor,omitempty"`
	At                string              `json:"at"`
	Substitute        *picking.Substitute `json:"substitute,omitempty"`
	WeightGrams       *int                `json:"weightGrams,omitempty"`
	Reason            string              `json:"reason,omitempty"`
	ScannedCode       string              `json:"scannedCode,omitempty"`
	IdempotencyKey    string              `json:"idempotencyKey,omitempty"`
}

// SessionLogResponse wraps a session's ledger in seq order.
type SessionLogResponse struct {
	SessionID string      `json:"sessionId"`
	Events    []LedgerRow `json:"events"`
}

// SessionSummary is one row of the session list.
type SessionSummary struct {
	ID        string   `json:"id"`
	PickerID  string   `json:"pickerId"`
	Status    string   `json:"status"`
	OrderIDs  []string `json:"orderIds"`
	StartedAt string   `json:"startedAt,omitempty"`
	EndedAt   string   `json:"endedAt,omitempty"`
}

// SessionListResponse wraps the session list.
type SessionListResponse struct {
	Sessions []SessionSummary `json:"sessions"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running       bool           `json:"running"`
	PID           int            `json:"pid"`
	DatabasePath  string         `json:"databasePath"`
	LockFilePath  string         `json:"lockFilePath"`
	Notifications bool           `json:"notifications"`
	Sessions      map[string]int `json:"sessions"`
}

// FromEvent converts a ledger event to its API representation.
func FromEvent(evt picking.Event) LedgerRow {
	row := LedgerRow{
		ID:                evt.ID,
		Seq:               evt.Seq,
		AssignmentID:      evt.AssignmentID,
		OrderID:           evt.OrderID,
		ProductID:         evt.ProductID,
		OriginalProductID: evt.OriginalProductID,
		Kind:              string(evt.Kind),
		Source:            string(evt.Source),
		Actor:             evt.Actor,
		Substitute:        evt.Substitute,
		WeightGrams:       evt.WeightGrams,
		Reason:            evt.Reason,
		ScannedCode:       evt.ScannedCode,
		IdempotencyKey:    evt.IdempotencyKey,
	}
	if !evt.At.IsZero() {
		row.At = evt.At.UTC().Format(dateTimeFormat)
	}
	return row
}

// FromEvents converts a slice of ledger events.
func FromEvents(events []picking.Event) []LedgerRow {
	out := make([]LedgerRow, 0, len(events))
	for _, evt := range events {
		out = append(out, FromEvent(evt))
	}
	return out
}

// FromSession converts a session to its list representation.
func FromSession(session picking.Session) SessionSummary {
	summary := SessionSummary{
		ID:       session.ID,
		PickerID: session.PickerID,
		Status:   string(session.Status),
		OrderIDs: append([]string(nil), session.OrderIDs...),
	}
	summary.StartedAt = formatTime(session.StartedAt)
	summary.EndedAt = formatTime(session.EndedAt)
	return summary
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
