// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Routed messages by outcome and reject reason
//   - Active sessions and session lifecycle events per role
//   - Pending (queued for replay) message count
//   - Pipeline latency by terminating stage
//   - Journal rows written, conflicted and dropped
package metrics
