// Package monitor serves the router's operational HTTP endpoints: health,
// the live routing table, Prometheus metrics and a websocket stream of
// routing events.
package monitor
