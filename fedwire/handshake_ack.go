package fedwire

import (
	"bytes"
	"io"
)

// HandshakeAck is the acceptor's reply to a Handshake. If Accepted is false
// the RejectionReason states why and the connection is closed immediately
// afterwards; otherwise the ack carries a freshly generated session id and
// the dialer's address as observed from the acceptor's side.
type HandshakeAck struct {
	// NodeID is the identifier of the accepting node.
	NodeID string

	// Accepted reports whether the handshake was admitted.
	Accepted bool

	// RejectionReason states why the handshake was refused. Empty when
	// Accepted is true.
	RejectionReason string

	// SessionID is the session identifier assigned by the acceptor. Empty
	// when the handshake was rejected.
	SessionID string

	// ObservedAddr is the dialer's remote address as seen by the
	// acceptor, which lets nodes behind NAT learn their public endpoint.
	ObservedAddr string
}

// A compile time check to ensure HandshakeAck implements the fedwire.Message
// interface.
var _ Message = (*HandshakeAck)(nil)

// Decode deserializes a serialized HandshakeAck message stored in the passed
// io.Reader observing the specified protocol version.
//
// This is part of the fedwire.Message interface.
func (a *HandshakeAck) Decode(r io.Reader, pver uint32) error {
	return ReadElements(r,
		&a.NodeID,
		&a.Accepted,
		&a.RejectionReason,
		&a.SessionID,
		&a.ObservedAddr,
	)
}

// Encode serializes the target HandshakeAck into the passed io.Writer
// observing the protocol version specified.
//
// This is part of the fedwire.Message interface.
func (a *HandshakeAck) Encode(w *bytes.Buffer, pver uint32) error {
	return WriteElements(w,
		a.NodeID,
		a.Accepted,
		a.RejectionReason,
		a.SessionID,
		a.ObservedAddr,
	)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the fedwire.Message interface.
func (a *HandshakeAck) MsgType() MessageType {
	return MsgHandshakeAck
}
