// Package config loads, normalizes, and validates Pickline configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// PICKLINE_API_TOKEN and PICKLINE_ORDERS_API_KEY. The same file drives both the
// picklined daemon and the device-side pickline CLI; daemon-only requirements
// are checked by ValidateServer.
package config
