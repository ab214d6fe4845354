package fedwire

import (
	"bytes"
	"io"
)

// Handshake is the first message that MUST be sent on every new connection.
// It announces the dialing node's identity and protocol version so the
// accepting side can decide whether to admit the peer. Any other message
// arriving first on a fresh connection is a protocol violation.
type Handshake struct {
	// NodeID is the announced identifier of the dialing node.
	NodeID string

	// ProtocolVersion is the wire protocol version the dialer speaks. A
	// mismatch causes the acceptor to reply with a rejecting ack.
	ProtocolVersion uint32

	// PublicKey is the dialer's advertised public key. The cryptographic
	// channel itself is established by an outer layer; the key is carried
	// here so higher layers can associate it with the node id.
	PublicKey string

	// PeerCount is the number of peers the dialer is currently connected
	// to, used as a coarse load hint.
	PeerCount uint32

	// Timestamp is the dialer's clock at send time, in unix milliseconds.
	Timestamp int64
}

// NewHandshake returns a new Handshake message for the given local identity.
func NewHandshake(nodeID, publicKey string, peerCount uint32,
	timestamp int64) *Handshake {

	return &Handshake{
		NodeID:          nodeID,
		ProtocolVersion: ProtocolVersion,
		PublicKey:       publicKey,
		PeerCount:       peerCount,
		Timestamp:       timestamp,
	}
}

// A compile time check to ensure Handshake implements the fedwire.Message
// interface.
var _ Message = (*Handshake)(nil)

// Decode deserializes a serialized Handshake message stored in the passed
// io.Reader observing the specified protocol version.
//
// This is part of the fedwire.Message interface.
func (h *Handshake) Decode(r io.Reader, pver uint32) error {
	return ReadElements(r,
		&h.NodeID,
		&h.ProtocolVersion,
		&h.PublicKey,
		&h.PeerCount,
		&h.Timestamp,
	)
}

// Encode serializes the target Handshake into the passed io.Writer observing
// the protocol version specified.
//
// This is part of the fedwire.Message interface.
func (h *Handshake) Encode(w *bytes.Buffer, pver uint32) error {
	return WriteElements(w,
		h.NodeID,
		h.ProtocolVersion,
		h.PublicKey,
		h.PeerCount,
		h.Timestamp,
	)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the fedwire.Message interface.
func (h *Handshake) MsgType() MessageType {
	return MsgHandshake
}
