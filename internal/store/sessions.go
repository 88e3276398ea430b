package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"pickline/internal/picking"
)

// ErrPickerBusy is returned when a picker already owns a live session.
var ErrPickerBusy = errors.New("picker already owns a session")

const sessionColumns = "id, picker_id, order_ids_json, snapshot_json, status, started_at, ended_at, updated_at"

const assignmentColumns = "id, session_id, order_id, picker_name, order_json, status, started_at, ended_at, updated_at"

// CreateSession writes the session, its assignments, the ownership record and
// the picker's busy flag in one transaction.
func (s *Store) CreateSession(ctx context.Context, session picking.Session, assignments []picking.Assignment) error {
	orderIDs, err := json.Marshal(session.OrderIDs)
	if err != nil {
		return fmt.Errorf("marshal order ids: %w", err)
	}
	snapshot, err := json.Marshal(session.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var owned string
		err := tx.QueryRowContext(ctx, `SELECT session_id FROM session_owners WHERE picker_id = ?`, session.PickerID).Scan(&owned)
		switch {
		case err == nil:
			return fmt.Errorf("%w: %s owns %s", ErrPickerBusy, session.PickerID, owned)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("check ownership: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			session.ID,
			session.PickerID,
			string(orderIDs),
			string(snapshot),
			session.Status,
			formatTime(session.StartedAt),
			nullableTime(session.EndedAt),
			formatTime(session.StartedAt),
		); err != nil {
			return fmt.Errorf("insert session: %w", err)
		}

		for position, assignment := range assignments {
			order, err := json.Marshal(assignment.Order)
			if err != nil {
				return fmt.Errorf("marshal order %s: %w", assignment.OrderID, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO assignments (id, session_id, order_id, position, picker_name, order_json, status, started_at, ended_at, updated_at)
                 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				assignment.ID,
				session.ID,
				assignment.OrderID,
				position,
				nullableString(assignment.PickerName),
				string(order),
				assignment.Status,
				formatTime(assignment.StartedAt),
				nil,
				formatTime(assignment.StartedAt),
			); err != nil {
				return fmt.Errorf("insert assignment %s: %w", assignment.OrderID, err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO session_owners (picker_id, session_id, claimed_at) VALUES (?, ?, ?)`,
			session.PickerID, session.ID, formatTime(session.StartedAt),
		); err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed") {
				return fmt.Errorf("%w: %s", ErrPickerBusy, session.PickerID)
			}
			return fmt.Errorf("claim session: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE pickers SET busy = 1, updated_at = ? WHERE id = ?`,
			formatTime(session.StartedAt), session.PickerID,
		); err != nil {
			return fmt.Errorf("mark picker busy: %w", err)
		}
		return nil
	})
}

// GetSession returns nil when the session does not exist.
func (s *Store) GetSession(ctx context.Context, id string) (*picking.Session, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// ListSessions returns sessions newest first, optionally filtered by status.
func (s *Store) ListSessions(ctx context.Context, statuses ...picking.Status) ([]picking.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY started_at DESC, id`

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []picking.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *session)
	}
	return sessions, rows.Err()
}

// CountSessionsByStatus tallies sessions per lifecycle state.
func (s *Store) CountSessionsByStatus(ctx context.Context) (map[picking.Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM sessions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}
	defer rows.Close()

	counts := make(map[picking.Status]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan session count: %w", err)
		}
		counts[picking.Status(status)] = count
	}
	return counts, rows.Err()
}

// ListAssignments returns a session's assignments in snapshot order.
func (s *Store) ListAssignments(ctx context.Context, sessionID string) ([]picking.Assignment, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+assignmentColumns+` FROM assignments WHERE session_id = ? ORDER BY position`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []picking.Assignment
	for rows.Next() {
		assignment, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		assignments = append(assignments, *assignment)
	}
	return assignments, rows.Err()
}

// UpdateSessionStatus moves only the session row to status, stamping
// ended_at for terminal and pending_audit states. Lifecycle changes go
// through TransitionSession.
func (s *Store) UpdateSessionStatus(ctx context.Context, id string, status picking.Status, at time.Time) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE sessions SET status = ?, ended_at = COALESCE(?, ended_at), updated_at = ? WHERE id = ?`,
		status, endedAt(status, at), formatTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update session status: session %s not found", id)
	}
	return nil
}

// TransitionSession moves a session and its assignments to status and, for
// any status other than active, drops the ownership record in the same
// transaction. It returns the picker that was released, or "".
func (s *Store) TransitionSession(ctx context.Context, sessionID string, status picking.Status, at time.Time) (string, error) {
	var released string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		released = ""
		res, err := tx.ExecContext(ctx,
			`UPDATE sessions SET status = ?, ended_at = COALESCE(?, ended_at), updated_at = ? WHERE id = ?`,
			status, endedAt(status, at), formatTime(at), sessionID,
		)
		if err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("session %s not found", sessionID)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE assignments SET status = ?, ended_at = COALESCE(?, ended_at), updated_at = ? WHERE session_id = ?`,
			status, endedAt(status, at), formatTime(at), sessionID,
		); err != nil {
			return fmt.Errorf("update assignments: %w", err)
		}
		if status == picking.StatusActive {
			return nil
		}
		err = tx.QueryRowContext(ctx, `SELECT picker_id FROM session_owners WHERE session_id = ?`, sessionID).Scan(&released)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("lookup ownership: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM session_owners WHERE session_id = ?`, sessionID); err != nil {
			return fmt.Errorf("delete ownership: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE pickers SET busy = 0, updated_at = ? WHERE id = ?`, formatTime(at), released,
		); err != nil {
			return fmt.Errorf("mark picker available: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("transition session to %s: %w", status, err)
	}
	return released, nil
}

// OwnedSessionID returns the session a picker currently owns, or "".
func (s *Store) OwnedSessionID(ctx context.Context, pickerID string) (string, error) {
	var sessionID string
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT session_id FROM session_owners WHERE picker_id = ?`, pickerID,
	).Scan(&sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup owned session: %w", err)
	}
	return sessionID, nil
}

// ReleasePicker drops the picker's ownership record and marks the picker
// available. It returns the released session id, or "" when the picker owned
// nothing; the picker is marked available either way.
func (s *Store) ReleasePicker(ctx context.Context, pickerID string) (string, error) {
	var released string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		released = ""
		err := tx.QueryRowContext(ctx, `SELECT session_id FROM session_owners WHERE picker_id = ?`, pickerID).Scan(&released)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("lookup ownership: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM session_owners WHERE picker_id = ?`, pickerID); err != nil {
			return fmt.Errorf("delete ownership: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE pickers SET busy = 0, updated_at = ? WHERE id = ?`, formatTime(time.Now()), pickerID,
		); err != nil {
			return fmt.Errorf("mark picker available: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("release picker: %w", err)
	}
	return released, nil
}

func endedAt(status picking.Status, at time.Time) any {
	if status == picking.StatusActive {
		return nil
	}
	return nullableTime(at)
}

func scanSession(scanner rowScanner) (*picking.Session, error) {
	var (
		session    picking.Session
		orderIDs   string
		snapshot   string
		status     string
		startedRaw string
		endedRaw   sql.NullString
		updatedRaw sql.NullString
	)
	if err := scanner.Scan(
		&session.ID,
		&session.PickerID,
		&orderIDs,
		&snapshot,
		&status,
		&startedRaw,
		&endedRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(orderIDs), &session.OrderIDs); err != nil {
		return nil, fmt.Errorf("decode order ids: %w", err)
	}
	if err := json.Unmarshal([]byte(snapshot), &session.Snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	session.Status = picking.Status(status)
	if started, err := parseTimeString(startedRaw); err == nil {
		session.StartedAt = started
	}
	session.EndedAt = parseNullTime(endedRaw)
	session.UpdatedAt = parseNullTime(updatedRaw)
	return &session, nil
}

func scanAssignment(scanner rowScanner) (*picking.Assignment, error) {
	var (
		assignment picking.Assignment
		pickerName sql.NullString
		order      string
		status     string
		startedRaw string
		endedRaw   sql.NullString
		updatedRaw sql.NullString
	)
	if err := scanner.Scan(
		&assignment.ID,
		&assignment.SessionID,
		&assignment.OrderID,
		&pickerName,
		&order,
		&status,
		&startedRaw,
		&endedRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(order), &assignment.Order); err != nil {
		return nil, fmt.Errorf("decode order snapshot: %w", err)
	}
	assignment.PickerName = pickerName.String
	assignment.Status = picking.Status(status)
	if started, err := parseTimeString(startedRaw); err == nil {
		assignment.StartedAt = started
	}
	assignment.EndedAt = parseNullTime(endedRaw)
	assignment.UpdatedAt = parseNullTime(updatedRaw)
	return &assignment, nil
}
