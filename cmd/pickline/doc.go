// Package main hosts the pickline CLI entrypoint and command graph.
//
// Operator commands (session, admin, code, status) call the picklined HTTP
// API. Device commands drive the local offline queue and its drain agent;
// they work without the server and only need it to deliver queued actions.
package main
