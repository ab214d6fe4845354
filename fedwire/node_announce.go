package fedwire

import (
	"bytes"
	"io"
)

// NodeAnnounce advertises a node's existence and capabilities to its peers.
// Receivers record the announcement in their known-node registry; it does
// not by itself establish a connection or any trust.
type NodeAnnounce struct {
	// NodeID is the identifier of the announced node.
	NodeID string

	// Address is the announced node's reachable listen address.
	Address string

	// PublicKey is the announced node's public key.
	PublicKey string

	// TrustWeight is the announcer's own trust estimate for the node.
	// Receivers treat it as a hint, never as authoritative.
	TrustWeight float64

	// Relay reports whether the node is willing to forward traffic.
	Relay bool

	// MaxBandwidthMbps is the node's advertised bandwidth capacity.
	MaxBandwidthMbps uint32
}

// A compile time check to ensure NodeAnnounce implements the fedwire.Message
// interface.
var _ Message = (*NodeAnnounce)(nil)

// Decode deserializes a serialized NodeAnnounce message stored in the passed
// io.Reader observing the specified protocol version.
//
// This is part of the fedwire.Message interface.
func (n *NodeAnnounce) Decode(r io.Reader, pver uint32) error {
	return ReadElements(r,
		&n.NodeID,
		&n.Address,
		&n.PublicKey,
		&n.TrustWeight,
		&n.Relay,
		&n.MaxBandwidthMbps,
	)
}

// Encode serializes the target NodeAnnounce into the passed io.Writer
// observing the protocol version specified.
//
// This is part of the fedwire.Message interface.
func (n *NodeAnnounce) Encode(w *bytes.Buffer, pver uint32) error {
	return WriteElements(w,
		n.NodeID,
		n.Address,
		n.PublicKey,
		n.TrustWeight,
		n.Relay,
		n.MaxBandwidthMbps,
	)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the fedwire.Message interface.
func (n *NodeAnnounce) MsgType() MessageType {
	return MsgNodeAnnounce
}
