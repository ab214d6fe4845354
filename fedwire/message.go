package fedwire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// MessageType is the unique 2 byte big-endian integer that indicates the type
// of message on the wire. All messages have a very simple header which
// consists simply of 2-byte message type. The length of the full message is
// carried by the frame layer, so no per-message length field is needed.
type MessageType uint16

// The currently defined message types within this version of the federation
// protocol.
const (
	MsgHandshake     MessageType = 16
	MsgHandshakeAck  MessageType = 17
	MsgHeartbeat     MessageType = 18
	MsgLinkUpdate    MessageType = 19
	MsgGoodbye       MessageType = 20
	MsgNodeAnnounce  MessageType = 21
	MsgRouteRequest  MessageType = 22
	MsgRouteResponse MessageType = 23
)

// String returns the string representation of the message type.
func (t MessageType) String() string {
	switch t {
	case MsgHandshake:
		return "Handshake"
	case MsgHandshakeAck:
		return "HandshakeAck"
	case MsgHeartbeat:
		return "Heartbeat"
	case MsgLinkUpdate:
		return "LinkUpdate"
	case MsgGoodbye:
		return "Goodbye"
	case MsgNodeAnnounce:
		return "NodeAnnounce"
	case MsgRouteRequest:
		return "RouteRequest"
	case MsgRouteResponse:
		return "RouteResponse"
	default:
		return "<unknown>"
	}
}

// UnknownMessage is an implementation of the error interface that allows the
// creation of an error in response to an unknown message.
type UnknownMessage struct {
	messageType MessageType
}

// Error returns a human readable string describing the error.
//
// This is part of the error interface.
func (u *UnknownMessage) Error() string {
	return fmt.Sprintf("unable to parse message of unknown type: %v",
		u.messageType)
}

// Serializable is an interface which defines a federation wire serializable
// object.
type Serializable interface {
	// Decode reads the bytes stream and converts it to the object.
	Decode(io.Reader, uint32) error

	// Encode converts object to the bytes stream and write it into the
	// write buffer.
	Encode(*bytes.Buffer, uint32) error
}

// Message is an interface that defines a federation wire protocol message.
// The interface is general in order to allow implementing types full control
// over the representation of their data.
type Message interface {
	Serializable
	MsgType() MessageType
}

// makeEmptyMessage creates a new empty message of the proper concrete type
// based on the passed message type.
func makeEmptyMessage(msgType MessageType) (Message, error) {
	var msg Message

	switch msgType {
	case MsgHandshake:
		msg = &Handshake{}
	case MsgHandshakeAck:
		msg = &HandshakeAck{}
	case MsgHeartbeat:
		msg = &Heartbeat{}
	case MsgLinkUpdate:
		msg = &LinkUpdate{}
	case MsgGoodbye:
		msg = &Goodbye{}
	case MsgNodeAnnounce:
		msg = &NodeAnnounce{}
	case MsgRouteRequest:
		msg = &RouteRequest{}
	case MsgRouteResponse:
		msg = &RouteResponse{}
	default:
		return nil, &UnknownMessage{msgType}
	}

	return msg, nil
}

// WriteMessage writes a federation Message to a buffer including the two byte
// message type header and returns the number of bytes written. If any error
// is encountered, the buffer is reset to its original state since we don't
// want any broken bytes left: either all or none of the message bytes will be
// written to the buffer.
//
// NOTE: this method is not concurrent safe.
func WriteMessage(buf *bytes.Buffer, msg Message, pver uint32) (int, error) {
	// Record the size of the bytes already written in buffer.
	oldByteSize := buf.Len()

	// cleanBrokenBytes is a helper closure that helps reset the buffer to
	// its original state. It truncates all the bytes written in current
	// scope.
	var cleanBrokenBytes = func(b *bytes.Buffer) int {
		b.Truncate(oldByteSize)
		return 0
	}

	// Write the message type.
	var mType [2]byte
	binary.BigEndian.PutUint16(mType[:], uint16(msg.MsgType()))
	if _, err := buf.Write(mType[:]); err != nil {
		return cleanBrokenBytes(buf), fmt.Errorf("failed to write "+
			"message type, got %w", err)
	}

	// Use the write buffer to encode our message.
	if err := msg.Encode(buf, pver); err != nil {
		return cleanBrokenBytes(buf), fmt.Errorf("failed to encode "+
			"message to buffer, got %w", err)
	}

	// Enforce the maximum overall message payload so that the result is
	// guaranteed to fit into a single frame.
	lenp := buf.Len() - oldByteSize
	if lenp > MaxFramePayload {
		return cleanBrokenBytes(buf), &ErrFrameTooLarge{Size: lenp}
	}

	return buf.Len() - oldByteSize, nil
}

// ReadMessage reads, validates, and parses the next federation message from r
// for the provided protocol version.
func ReadMessage(r io.Reader, pver uint32) (Message, error) {
	// First, we'll read out the first two bytes of the message so we can
	// create the proper empty message.
	var mType [2]byte
	if _, err := io.ReadFull(r, mType[:]); err != nil {
		return nil, err
	}

	msgType := MessageType(binary.BigEndian.Uint16(mType[:]))

	// Now that we know the target message type, we can create the proper
	// empty message type and decode the message into it.
	msg, err := makeEmptyMessage(msgType)
	if err != nil {
		return nil, err
	}
	if err := msg.Decode(r, pver); err != nil {
		return nil, err
	}

	return msg, nil
}
