package fedwire

import (
	"bytes"
	"io"
)

// Heartbeat is sent on a fixed interval to every active peer to signal
// liveness. It carries the sender's self-reported uptime and load so peers
// can weigh each other without an extra probe round trip.
type Heartbeat struct {
	// NodeID is the identifier of the sending node.
	NodeID string

	// Timestamp is the sender's clock at send time, in unix milliseconds.
	Timestamp int64

	// UptimeSeconds is how long the sending node has been running.
	UptimeSeconds uint64

	// LoadFactor is the sender's active peer count divided by its maximum
	// peer count, in [0, 1].
	LoadFactor float64
}

// A compile time check to ensure Heartbeat implements the fedwire.Message
// interface.
var _ Message = (*Heartbeat)(nil)

// Decode deserializes a serialized Heartbeat message stored in the passed
// io.Reader observing the specified protocol version.
//
// This is part of the fedwire.Message interface.
func (h *Heartbeat) Decode(r io.Reader, pver uint32) error {
	return ReadElements(r,
		&h.NodeID,
		&h.Timestamp,
		&h.UptimeSeconds,
		&h.LoadFactor,
	)
}

// Encode serializes the target Heartbeat into the passed io.Writer observing
// the protocol version specified.
//
// This is part of the fedwire.Message interface.
func (h *Heartbeat) Encode(w *bytes.Buffer, pver uint32) error {
	return WriteElements(w,
		h.NodeID,
		h.Timestamp,
		h.UptimeSeconds,
		h.LoadFactor,
	)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the fedwire.Message interface.
func (h *Heartbeat) MsgType() MessageType {
	return MsgHeartbeat
}
