// Package daemon coordinates the long-running picklined process.
//
// It wires configuration, the session store and the engine into a single
// lifecycle with flock-based locking to prevent two daemons sharing a data
// directory, and serves the JSON HTTP API consumed by picker devices and the
// operator CLI. Error responses carry the wire code from package services so
// clients can classify failures without parsing messages.
//
// Keep orchestration here: session rules live in package engine and package
// picking, while the daemon focuses on startup, shutdown and transport.
package daemon
