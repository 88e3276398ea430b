// Package picking holds the pure rules of a picking session: the frozen
// snapshot types, the ledger event vocabulary, replay of events into derived
// item state, cross-order grouping, and lifecycle guards.
//
// Nothing here touches storage or the network. The engine package loads rows,
// calls Replay and MergeItems, and persists whatever the guards allow.
package picking
