package fedwire

import (
	"bytes"
	"io"
)

// RouteResponse answers a RouteRequest. An unreachable destination is a
// valid response with Success set to false, not a connection error.
type RouteResponse struct {
	// RequestID echoes the identifier from the originating RouteRequest.
	RequestID string

	// Path is the computed node sequence, starting at the responder.
	// Empty when Success is false.
	Path []string

	// TotalLatencyMs is the sum of mean latencies along the path.
	TotalLatencyMs float64

	// Stability is the path's stability score in [0, 1].
	Stability float64

	// Cost is the total cost along the path.
	Cost float64

	// Success reports whether a usable path was found.
	Success bool

	// Error explains why no path was produced. Empty when Success is
	// true.
	Error string
}

// A compile time check to ensure RouteResponse implements the fedwire.Message
// interface.
var _ Message = (*RouteResponse)(nil)

// Decode deserializes a serialized RouteResponse message stored in the
// passed io.Reader observing the specified protocol version.
//
// This is part of the fedwire.Message interface.
func (m *RouteResponse) Decode(r io.Reader, pver uint32) error {
	return ReadElements(r,
		&m.RequestID,
		&m.Path,
		&m.TotalLatencyMs,
		&m.Stability,
		&m.Cost,
		&m.Success,
		&m.Error,
	)
}

// Encode serializes the target RouteResponse into the passed io.Writer
// observing the protocol version specified.
//
// This is part of the fedwire.Message interface.
func (m *RouteResponse) Encode(w *bytes.Buffer, pver uint32) error {
	return WriteElements(w,
		m.RequestID,
		m.Path,
		m.TotalLatencyMs,
		m.Stability,
		m.Cost,
		m.Success,
		m.Error,
	)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the fedwire.Message interface.
func (m *RouteResponse) MsgType() MessageType {
	return MsgRouteResponse
}
