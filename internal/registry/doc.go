// Package registry holds the router's routing tables.
//
// One mutex guards every shared map:
//   - broker table: identity → live broker connection
//   - market table: identity → live market connection
//   - pending queues: identity → messages awaiting that identity's return
//   - replay marks: identities whose pending queue is being replayed
//
// Entries are replaced on reconnection and never removed when a stream ends,
// so a stale entry keeps its identity reserved until it is superseded.
package registry
