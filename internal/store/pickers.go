package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"pickline/internal/picking"
)

// UpsertPicker registers a picker or renames an existing one. The busy flag
// is owned by session creation and release and is never touched here.
func (s *Store) UpsertPicker(ctx context.Context, id, name string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("picker id is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = id
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO pickers (id, name, busy, updated_at) VALUES (?, ?, 0, ?)
         ON CONFLICT(id) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at`,
		id, name, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("upsert picker: %w", err)
	}
	return nil
}

// GetPicker returns nil when the picker does not exist.
func (s *Store) GetPicker(ctx context.Context, id string) (*picking.Picker, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT id, name, busy, updated_at FROM pickers WHERE id = ?`, id)
	picker, err := scanPicker(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get picker: %w", err)
	}
	return picker, nil
}

// ListPickers returns every registered picker ordered by id.
func (s *Store) ListPickers(ctx context.Context) ([]picking.Picker, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT id, name, busy, updated_at FROM pickers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list pickers: %w", err)
	}
	defer rows.Close()

	var pickers []picking.Picker
	for rows.Next() {
		picker, err := scanPicker(rows)
		if err != nil {
			return nil, fmt.Errorf("scan picker: %w", err)
		}
		pickers = append(pickers, *picker)
	}
	return pickers, rows.Err()
}

func scanPicker(scanner rowScanner) (*picking.Picker, error) {
	var (
		picker     picking.Picker
		busy       int
		updatedRaw sql.NullString
	)
	if err := scanner.Scan(&picker.ID, &picker.Name, &busy, &updatedRaw); err != nil {
		return nil, err
	}
	picker.Busy = busy != 0
	picker.UpdatedAt = parseNullTime(updatedRaw)
	return &picker, nil
}
