// Package store persists the server side of Pickline in SQLite: pickers,
// sessions with their frozen snapshots, per-order assignments, the picker
// ownership record, the append-only action ledger, idempotency keys and the
// secondary barcode table.
//
// Ledger rows are never updated or deleted. Every correction is a new event
// and readers replay the ledger through the picking package.
package store
