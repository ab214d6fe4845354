package fedwire

import (
	"bytes"
	"io"
)

// TensorRecord is the wire representation of one directed link-quality
// tensor. Receivers merge records into their local link table, with the
// highest Version for an edge always winning regardless of arrival order.
type TensorRecord struct {
	// FromNode and ToNode identify the directed edge being described.
	FromNode string
	ToNode   string

	// LatencyMeanMs and LatencyStdDevMs describe the measured latency
	// distribution of the link, in milliseconds.
	LatencyMeanMs   float64
	LatencyStdDevMs float64

	// JitterMs is the measured jitter in milliseconds.
	JitterMs float64

	// BandwidthMbps is the measured bandwidth in megabits per second.
	BandwidthMbps float64

	// Reliability is the observed delivery rate in [0, 1].
	Reliability float64

	// Cost is the abstract energy/monetary cost of using the link.
	Cost float64

	// Version is the reporter's monotonically increasing counter for this
	// edge. Higher versions supersede lower ones.
	Version uint64
}

// encode serializes a single tensor record into the passed buffer.
func (t *TensorRecord) encode(w *bytes.Buffer) error {
	return WriteElements(w,
		t.FromNode,
		t.ToNode,
		t.LatencyMeanMs,
		t.LatencyStdDevMs,
		t.JitterMs,
		t.BandwidthMbps,
		t.Reliability,
		t.Cost,
		t.Version,
	)
}

// decode deserializes a single tensor record from the passed reader.
func (t *TensorRecord) decode(r io.Reader) error {
	return ReadElements(r,
		&t.FromNode,
		&t.ToNode,
		&t.LatencyMeanMs,
		&t.LatencyStdDevMs,
		&t.JitterMs,
		&t.BandwidthMbps,
		&t.Reliability,
		&t.Cost,
		&t.Version,
	)
}

// LinkUpdate carries a batch of link-quality tensors measured or relayed by
// the reporting node. It is the sole way link measurements propagate through
// the federation.
type LinkUpdate struct {
	// Reporter is the identifier of the node that produced this batch.
	Reporter string

	// Tensors is the batch of directed edge measurements.
	Tensors []TensorRecord
}

// A compile time check to ensure LinkUpdate implements the fedwire.Message
// interface.
var _ Message = (*LinkUpdate)(nil)

// Decode deserializes a serialized LinkUpdate message stored in the passed
// io.Reader observing the specified protocol version.
//
// This is part of the fedwire.Message interface.
func (l *LinkUpdate) Decode(r io.Reader, pver uint32) error {
	return ReadElements(r,
		&l.Reporter,
		&l.Tensors,
	)
}

// Encode serializes the target LinkUpdate into the passed io.Writer
// observing the protocol version specified.
//
// This is part of the fedwire.Message interface.
func (l *LinkUpdate) Encode(w *bytes.Buffer, pver uint32) error {
	return WriteElements(w,
		l.Reporter,
		l.Tensors,
	)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the fedwire.Message interface.
func (l *LinkUpdate) MsgType() MessageType {
	return MsgLinkUpdate
}
