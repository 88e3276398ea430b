// Package orders fetches order-of-record data used to freeze a session
// snapshot. Orders are read once at session creation and never again.
package orders
