package fedwire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// FrameHeaderSize is the size of the length prefix that precedes every
	// message on the wire.
	FrameHeaderSize = 4

	// MaxFramePayload is the largest payload a single frame is allowed to
	// carry. A declared length above this value is a hard protocol error
	// on both the read and the write path, and is rejected before any
	// payload sized allocation takes place.
	MaxFramePayload = 4 * 1024 * 1024
)

// ErrFrameTooLarge is returned when a frame declares, or would declare, a
// payload length exceeding MaxFramePayload.
type ErrFrameTooLarge struct {
	// Size is the offending payload size in bytes.
	Size int
}

// Error returns a human readable string describing the error.
//
// This is part of the error interface.
func (e *ErrFrameTooLarge) Error() string {
	return fmt.Sprintf("frame payload of %d bytes exceeds maximum of %d "+
		"bytes", e.Size, MaxFramePayload)
}

// WriteFrame writes the payload preceded by its 4-byte big-endian length to
// w. The header and payload are written with a single Write call so that a
// caller holding the stream's write lock emits the frame atomically.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFramePayload {
		return &ErrFrameTooLarge{Size: len(payload)}
	}

	frame := make([]byte, FrameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(frame[:FrameHeaderSize], uint32(len(payload)))
	copy(frame[FrameHeaderSize:], payload)

	_, err := w.Write(frame)
	return err
}

// ReadFrame reads a single length prefixed frame from r and returns its
// payload. The declared length is bound checked against MaxFramePayload
// before the payload is read, so a malicious peer cannot force an unbounded
// allocation.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [FrameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > MaxFramePayload {
		return nil, &ErrFrameTooLarge{Size: int(length)}
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}

	return payload, nil
}

// WriteMessageFrame encodes msg and writes it to w as a single frame,
// returning the number of payload bytes written.
func WriteMessageFrame(w io.Writer, msg Message, pver uint32) (int, error) {
	var buf bytes.Buffer
	n, err := WriteMessage(&buf, msg, pver)
	if err != nil {
		return 0, err
	}

	if err := WriteFrame(w, buf.Bytes()); err != nil {
		return 0, err
	}

	return n, nil
}

// ReadMessageFrame reads a single frame from r and decodes the message it
// carries.
func ReadMessageFrame(r io.Reader, pver uint32) (Message, error) {
	payload, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}

	return ReadMessage(bytes.NewReader(payload), pver)
}
