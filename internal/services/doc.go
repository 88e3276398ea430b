// Package services defines shared utilities consumed by the engine, the HTTP
// daemon and the device-side offline agent.
//
// Key responsibilities:
//   - Context helpers that stamp session IDs, picker IDs, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper, and the single mapping from
//     those markers to HTTP status codes and wire error codes.
//
// Use these helpers when adding new operations so error classification stays
// uniform between the server and the clients that decode its responses.
package services
