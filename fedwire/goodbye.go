package fedwire

import (
	"bytes"
	"io"
)

// Goodbye announces an orderly departure. The receiver removes the sender's
// session without applying a trust penalty, in contrast to an unexpected
// read failure.
type Goodbye struct {
	// NodeID is the identifier of the departing node.
	NodeID string

	// Reason is a human readable explanation for the departure.
	Reason string
}

// A compile time check to ensure Goodbye implements the fedwire.Message
// interface.
var _ Message = (*Goodbye)(nil)

// Decode deserializes a serialized Goodbye message stored in the passed
// io.Reader observing the specified protocol version.
//
// This is part of the fedwire.Message interface.
func (g *Goodbye) Decode(r io.Reader, pver uint32) error {
	return ReadElements(r,
		&g.NodeID,
		&g.Reason,
	)
}

// Encode serializes the target Goodbye into the passed io.Writer observing
// the protocol version specified.
//
// This is part of the fedwire.Message interface.
func (g *Goodbye) Encode(w *bytes.Buffer, pver uint32) error {
	return WriteElements(w,
		g.NodeID,
		g.Reason,
	)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the fedwire.Message interface.
func (g *Goodbye) MsgType() MessageType {
	return MsgGoodbye
}
