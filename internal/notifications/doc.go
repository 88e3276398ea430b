// Package notifications delivers session and device events via ntfy.
//
// The default implementation publishes to the topic configured in
// config.toml and degrades to a no-op when notifications are disabled.
// Notifications feed dashboards only; nothing derives state from them.
package notifications
