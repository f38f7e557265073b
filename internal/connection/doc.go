// Package connection wraps the TCP streams of brokers and markets.
//
// A Conn:
//   - Carries a session UUID used only for tracing in logs and events
//   - Reads newline-terminated lines from its single reader goroutine
//   - Serializes writes from any number of goroutines, each bounded by a write deadline
//   - Closes idempotently; sends after Close fail fast with ErrAlreadyClosed
package connection
