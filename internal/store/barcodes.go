package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// UpsertBarcode registers a secondary code for a SKU.
func (s *Store) UpsertBarcode(ctx context.Context, code, sku string) error {
	code = strings.TrimSpace(code)
	sku = strings.TrimSpace(sku)
	if code == "" || sku == "" {
		return errors.New("barcode code and sku are required")
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO barcodes (code, sku, created_at) VALUES (?, ?, ?) ON CONFLICT(code, sku) DO NOTHING`,
		code, sku, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("upsert barcode: %w", err)
	}
	return nil
}

// BarcodeMatches reports whether code is registered for sku.
func (s *Store) BarcodeMatches(ctx context.Context, code, sku string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT COUNT(1) FROM barcodes WHERE code = ? AND sku = ?`, code, sku,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("lookup barcode: %w", err)
	}
	return count > 0, nil
}
