// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Connection status and reconnect activity
//   - Inbound event rates by event name, discarded frames by reason
//   - Keepalive pings and dropped sends
//   - Archive writer flushes and errors
package metrics
