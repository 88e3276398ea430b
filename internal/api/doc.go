// Package api defines the wire-format types of the Pickline HTTP API and a
// client for it. The daemon serves these shapes and both the operator CLI and
// the device agent consume them through Client.
//
// # Key Types
//
// Request/response DTOs for every endpoint; session views and actions reuse
// the JSON shapes declared in package picking so a device can queue an action
// verbatim.
//
// LedgerRow: transport representation of one ledger event.
//
// Error: a non-2xx response. Error values satisfy errors.Is against the
// sentinels in package services, keyed by the "code" field of the body.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds.
package api
