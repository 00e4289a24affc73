// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Owns exactly one WebSocket transport at a time
//   - Requests a fresh token from the credential provider on every attempt
//   - Sends a {"type":"ping"} keepalive frame every 30 seconds while open
//   - Reconnects after unexpected closure with capped exponential backoff
//   - Routes inbound events to named handlers and an optional wildcard
//
// Explicit Disconnect always wins over automatic recovery: once called, no
// pending or future retry fires until Connect is called again.
package connection
