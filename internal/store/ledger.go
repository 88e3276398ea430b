package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pickline/internal/picking"
)

const eventColumns = "seq, id, session_id, assignment_id, order_id, product_id, original_product_id, kind, source, actor, created_at, substitute_id, substitute_name, substitute_price_cents, weight_grams, reason, scanned_code, idempotency_key"

// AppendResult reports the outcome of a ledger append.
type AppendResult struct {
	// EventIDs lists the rows written, or the rows the earlier request with
	// the same idempotency key wrote.
	EventIDs  []string
	Duplicate bool
}

// AppendEvents writes events in one transaction. When idempotencyKey is set
// and was already recorded, nothing is written and the earlier event ids are
// returned with Duplicate set.
func (s *Store) AppendEvents(ctx context.Context, idempotencyKey string, events []picking.Event) (AppendResult, error) {
	if len(events) == 0 {
		return AppendResult{}, errors.New("append events: nothing to append")
	}
	ids := make([]string, len(events))
	for i := range events {
		if events[i].ID == "" {
			events[i].ID = uuid.NewString()
		}
		if events[i].At.IsZero() {
			events[i].At = time.Now().UTC()
		}
		if idempotencyKey != "" {
			events[i].IdempotencyKey = idempotencyKey
		}
		ids[i] = events[i].ID
	}

	var result AppendResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result = AppendResult{}
		if idempotencyKey != "" {
			encoded, err := json.Marshal(ids)
			if err != nil {
				return fmt.Errorf("marshal event ids: %w", err)
			}
			res, err := tx.ExecContext(ctx,
				`INSERT INTO idempotency_keys (key, session_id, event_ids_json, created_at) VALUES (?, ?, ?, ?)
                 ON CONFLICT(key) DO NOTHING`,
				idempotencyKey, events[0].SessionID, string(encoded), formatTime(time.Now()),
			)
			if err != nil {
				return fmt.Errorf("record idempotency key: %w", err)
			}
			if n, err := res.RowsAffected(); err == nil && n == 0 {
				var stored string
				if err := tx.QueryRowContext(ctx,
					`SELECT event_ids_json FROM idempotency_keys WHERE key = ?`, idempotencyKey,
				).Scan(&stored); err != nil {
					return fmt.Errorf("load idempotency key: %w", err)
				}
				if err := json.Unmarshal([]byte(stored), &result.EventIDs); err != nil {
					return fmt.Errorf("decode stored event ids: %w", err)
				}
				result.Duplicate = true
				return nil
			}
		}

		for i := range events {
			if err := insertEvent(ctx, tx, &events[i]); err != nil {
				return err
			}
		}
		result.EventIDs = ids
		return nil
	})
	if err != nil {
		return AppendResult{}, fmt.Errorf("append events: %w", err)
	}
	return result, nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, evt *picking.Event) error {
	var (
		subID    any
		subName  any
		subPrice any
	)
	if evt.Substitute != nil {
		subID = nullableString(evt.Substitute.ProductID)
		subName = nullableString(evt.Substitute.Name)
		subPrice = evt.Substitute.PriceCents
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_events (
            id, session_id, assignment_id, order_id, product_id, original_product_id,
            kind, source, actor, created_at, substitute_id, substitute_name,
            substitute_price_cents, weight_grams, reason, scanned_code, idempotency_key
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		evt.ID,
		evt.SessionID,
		evt.AssignmentID,
		evt.OrderID,
		evt.ProductID,
		evt.OriginalProductID,
		evt.Kind,
		evt.Source,
		nullableString(evt.Actor),
		formatTime(evt.At),
		subID,
		subName,
		subPrice,
		nullableInt(evt.WeightGrams),
		nullableString(evt.Reason),
		nullableString(evt.ScannedCode),
		nullableString(evt.IdempotencyKey),
	)
	if err != nil {
		return fmt.Errorf("insert %s event: %w", evt.Kind, err)
	}
	if seq, err := res.LastInsertId(); err == nil {
		evt.Seq = seq
	}
	return nil
}

// ListEvents returns a session's ledger in seq order.
func (s *Store) ListEvents(ctx context.Context, sessionID string) ([]picking.Event, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+eventColumns+` FROM ledger_events WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []picking.Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *evt)
	}
	return events, rows.Err()
}

func scanEvent(scanner rowScanner) (*picking.Event, error) {
	var (
		evt        picking.Event
		kind       string
		source     string
		actor      sql.NullString
		createdRaw string
		subID      sql.NullString
		subName    sql.NullString
		subPrice   sql.NullInt64
		weight     sql.NullInt64
		reason     sql.NullString
		scanned    sql.NullString
		key        sql.NullString
	)
	if err := scanner.Scan(
		&evt.Seq,
		&evt.ID,
		&evt.SessionID,
		&evt.AssignmentID,
		&evt.OrderID,
		&evt.ProductID,
		&evt.OriginalProductID,
		&kind,
		&source,
		&actor,
		&createdRaw,
		&subID,
		&subName,
		&subPrice,
		&weight,
		&reason,
		&scanned,
		&key,
	); err != nil {
		return nil, err
	}
	evt.Kind = picking.EventKind(kind)
	evt.Source = picking.Source(source)
	evt.Actor = actor.String
	if created, err := parseTimeString(createdRaw); err == nil {
		evt.At = created
	}
	if subID.Valid || subName.Valid {
		evt.Substitute = &picking.Substitute{
			ProductID:  subID.String,
			Name:       subName.String,
			PriceCents: subPrice.Int64,
		}
	}
	if weight.Valid {
		grams := int(weight.Int64)
		evt.WeightGrams = &grams
	}
	evt.Reason = reason.String
	evt.ScannedCode = scanned.String
	evt.IdempotencyKey = key.String
	return &evt, nil
}

// RecordedEventIDs returns the event ids written under an idempotency key and
// whether the key has been seen.
func (s *Store) RecordedEventIDs(ctx context.Context, idempotencyKey string) ([]string, bool, error) {
	var stored string
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT event_ids_json FROM idempotency_keys WHERE key = ?`, idempotencyKey,
	).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup idempotency key: %w", err)
	}
	var ids []string
	if err := json.Unmarshal([]byte(stored), &ids); err != nil {
		return nil, false, fmt.Errorf("decode stored event ids: %w", err)
	}
	return ids, true, nil
}
