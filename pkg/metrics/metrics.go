// Package metrics implements the event-sourced counters pipeline: relay
// tasks and the acceptor produce MetricEvents, a single MetricsAggregator
// folds them into a MetricsSnapshot and publishes it to any number of
// readers without blocking on them.
package metrics

import "fmt"

// EventKind identifies the shape of a MetricEvent.
type EventKind int

const (
	// ConnectionOpened is emitted once a client connection has been
	// accepted and its upstream dial succeeded.
	ConnectionOpened EventKind = iota
	// ConnectionClosed is emitted exactly once per connection, by the
	// upstream-direction RelayTask, as soon as its own loop exits; it
	// does not wait for the sibling's loop.
	ConnectionClosed
	// BytesUpstream is emitted by the client->upstream RelayTask after
	// every successful read, before those bytes are written upstream.
	BytesUpstream
	// BytesDownstream is emitted by the upstream->client RelayTask after
	// every successful read, before those bytes are written to the client.
	BytesDownstream
)

// MetricEvent is produced by relays and the connection supervisor and
// consumed exactly once by the MetricsAggregator.
type MetricEvent struct {
	Kind EventKind
	Addr string // peer address the event pertains to
	N    uint64 // byte count, only meaningful for the Bytes* kinds
}

// Snapshot is an immutable value describing the aggregator's counters at
// one instant. Readers always observe the most recently published value.
type Snapshot struct {
	ActiveConnections uint64 `json:"active_connections"`
	TotalConnections  uint64 `json:"total_connections"`
	BytesUpstream     uint64 `json:"bytes_upstream"`
	BytesDownstream   uint64 `json:"bytes_downstream"`
}

// PlainText renders the snapshot as the four-line plain-text wire format
// mandated by spec.md §4.5.
func (s Snapshot) PlainText() string {
	return fmt.Sprintf(
		"connections_active %d\nconnections_total %d\nbytes_upstream %d\nbytes_downstream %d\n",
		s.ActiveConnections, s.TotalConnections, s.BytesUpstream, s.BytesDownstream,
	)
}

// formatBytes renders n as a human-readable byte size for the periodic
// log summary only; the wire formats (PlainText, JSON) always use exact
// decimal integers.
func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for n/div >= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// logSummary renders the snapshot the way the aggregator's periodic log
// tick prints it: human-readable byte sizes, never the wire format.
func (s Snapshot) logSummary() string {
	return fmt.Sprintf(
		"active=%d total=%d upstream=%s downstream=%s",
		s.ActiveConnections, s.TotalConnections,
		formatBytes(s.BytesUpstream), formatBytes(s.BytesDownstream),
	)
}
