package fedwire

import (
	"bytes"
	"io"
)

// RouteRequest asks the receiving node to compute a path from itself to the
// given destination using the requester's priority weights. The receiver
// answers with a RouteResponse carrying the same RequestID.
type RouteRequest struct {
	// RequestID correlates the eventual response with this request.
	RequestID string

	// Destination is the node id the path should terminate at.
	Destination string

	// PriorityLatency, PriorityAnonymity, PriorityCost and
	// PriorityReliability are the requester's priority weights. The
	// receiver normalizes them before scoring.
	PriorityLatency     float64
	PriorityAnonymity   float64
	PriorityCost        float64
	PriorityReliability float64

	// MaxHops caps the path length the receiver may return. Zero means
	// the receiver's default hop budget.
	MaxHops uint8
}

// A compile time check to ensure RouteRequest implements the fedwire.Message
// interface.
var _ Message = (*RouteRequest)(nil)

// Decode deserializes a serialized RouteRequest message stored in the passed
// io.Reader observing the specified protocol version.
//
// This is part of the fedwire.Message interface.
func (m *RouteRequest) Decode(r io.Reader, pver uint32) error {
	return ReadElements(r,
		&m.RequestID,
		&m.Destination,
		&m.PriorityLatency,
		&m.PriorityAnonymity,
		&m.PriorityCost,
		&m.PriorityReliability,
		&m.MaxHops,
	)
}

// Encode serializes the target RouteRequest into the passed io.Writer
// observing the protocol version specified.
//
// This is part of the fedwire.Message interface.
func (m *RouteRequest) Encode(w *bytes.Buffer, pver uint32) error {
	return WriteElements(w,
		m.RequestID,
		m.Destination,
		m.PriorityLatency,
		m.PriorityAnonymity,
		m.PriorityCost,
		m.PriorityReliability,
		m.MaxHops,
	)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the fedwire.Message interface.
func (m *RouteRequest) MsgType() MessageType {
	return MsgRouteRequest
}
