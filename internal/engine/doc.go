// Package engine implements the picking session lifecycle, the action
// ledger write path and the admin override path on top of the store.
//
// Every read re-derives item state by replaying the ledger against the
// session's frozen snapshot; nothing derived is persisted. Writes append
// ledger events or move lifecycle state, and are guarded by the pure rules
// in package picking.
package engine
