// Package archive persists received events to PostgreSQL.
//
// The Writer is fed from the connection's wildcard handler and never blocks
// it: events are buffered, batched, and inserted with pgx.Batch when the
// batch fills or the flush interval elapses. A full buffer drops events and
// counts them.
package archive
