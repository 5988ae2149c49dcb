package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for relay connection spans, following OpenTelemetry
// semantic conventions where one exists (net.peer.address).
const (
	AttrConnID        = "relay.connection.id"
	AttrPeerAddress   = "net.peer.address"
	AttrTargetAddress = "relay.target.address"
	AttrDirection     = "relay.direction"
	AttrBytes         = "relay.bytes"
)

// Span and event names.
const (
	SpanConnection       = "relay.connection"
	EventBytesTransferred = "relay.bytes_transferred"
)

// ConnID returns an attribute identifying a relayed connection.
func ConnID(id string) attribute.KeyValue {
	return attribute.String(AttrConnID, id)
}

// PeerAddress returns an attribute for the client's remote address.
func PeerAddress(addr string) attribute.KeyValue {
	return attribute.String(AttrPeerAddress, addr)
}

// TargetAddress returns an attribute for the dialed upstream address.
func TargetAddress(addr string) attribute.KeyValue {
	return attribute.String(AttrTargetAddress, addr)
}

// Direction returns an attribute for which half of the connection a span
// or event describes ("upstream" or "downstream").
func Direction(direction string) attribute.KeyValue {
	return attribute.String(AttrDirection, direction)
}

// Bytes returns an attribute for a byte count.
func Bytes(n uint64) attribute.KeyValue {
	return attribute.Int64(AttrBytes, int64(n))
}

// StartConnectionSpan starts the root span for one relayed connection's
// lifetime, tagged with the connection id, peer address, and target
// address.
func StartConnectionSpan(ctx context.Context, connID, peerAddr, targetAddr string) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanConnection, trace.WithAttributes(
		ConnID(connID),
		PeerAddress(peerAddr),
		TargetAddress(targetAddr),
	))
}
