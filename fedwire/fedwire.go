package fedwire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// ProtocolVersion is the federation wire protocol version spoken by this
// build. Peers announcing a different version are rejected during the
// handshake.
const ProtocolVersion uint32 = 1

// MaxSliceLength is the maximum allowed length for any length-prefixed
// string or slice carried in a wire message.
const MaxSliceLength = 65535

// WriteElement writes the big endian representation of a single element to
// the passed buffer. Strings and slices are length prefixed with a 16-bit
// count, floats are encoded as their IEEE 754 bit pattern.
func WriteElement(w *bytes.Buffer, element interface{}) error {
	switch e := element.(type) {
	case uint8:
		var b [1]byte
		b[0] = e
		if _, err := w.Write(b[:]); err != nil {
			return err
		}

	case uint16:
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], e)
		if _, err := w.Write(b[:]); err != nil {
			return err
		}

	case uint32:
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], e)
		if _, err := w.Write(b[:]); err != nil {
			return err
		}

	case uint64:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], e)
		if _, err := w.Write(b[:]); err != nil {
			return err
		}

	case int64:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(e))
		if _, err := w.Write(b[:]); err != nil {
			return err
		}

	case float64:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], math.Float64bits(e))
		if _, err := w.Write(b[:]); err != nil {
			return err
		}

	case bool:
		var b [1]byte
		if e {
			b[0] = 1
		}
		if _, err := w.Write(b[:]); err != nil {
			return err
		}

	case string:
		if len(e) > MaxSliceLength {
			return fmt.Errorf("string length %v exceeds maximum "+
				"of %v", len(e), MaxSliceLength)
		}
		if err := WriteElement(w, uint16(len(e))); err != nil {
			return err
		}
		if _, err := w.WriteString(e); err != nil {
			return err
		}

	case []string:
		if len(e) > MaxSliceLength {
			return fmt.Errorf("slice length %v exceeds maximum "+
				"of %v", len(e), MaxSliceLength)
		}
		if err := WriteElement(w, uint16(len(e))); err != nil {
			return err
		}
		for _, s := range e {
			if err := WriteElement(w, s); err != nil {
				return err
			}
		}

	case []TensorRecord:
		if len(e) > MaxSliceLength {
			return fmt.Errorf("slice length %v exceeds maximum "+
				"of %v", len(e), MaxSliceLength)
		}
		if err := WriteElement(w, uint16(len(e))); err != nil {
			return err
		}
		for i := range e {
			if err := e[i].encode(w); err != nil {
				return err
			}
		}

	default:
		return fmt.Errorf("unknown type in WriteElement: %T", e)
	}

	return nil
}

// WriteElements writes each element in the elements slice to the passed
// buffer using WriteElement.
func WriteElements(w *bytes.Buffer, elements ...interface{}) error {
	for _, element := range elements {
		if err := WriteElement(w, element); err != nil {
			return err
		}
	}

	return nil
}

// ReadElement reads the next sequence of bytes from r using big endian and
// attempts to decode it into the passed element pointer.
func ReadElement(r io.Reader, element interface{}) error {
	switch e := element.(type) {
	case *uint8:
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = b[0]

	case *uint16:
		var b [2]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = binary.BigEndian.Uint16(b[:])

	case *uint32:
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = binary.BigEndian.Uint32(b[:])

	case *uint64:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = binary.BigEndian.Uint64(b[:])

	case *int64:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = int64(binary.BigEndian.Uint64(b[:]))

	case *float64:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = math.Float64frombits(binary.BigEndian.Uint64(b[:]))

	case *bool:
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = b[0] != 0

	case *string:
		var length uint16
		if err := ReadElement(r, &length); err != nil {
			return err
		}
		buf := make([]byte, length)
		if _, err := io.ReadFull(r, buf); err != nil {
			return err
		}
		*e = string(buf)

	case *[]string:
		var count uint16
		if err := ReadElement(r, &count); err != nil {
			return err
		}
		out := make([]string, count)
		for i := range out {
			if err := ReadElement(r, &out[i]); err != nil {
				return err
			}
		}
		*e = out

	case *[]TensorRecord:
		var count uint16
		if err := ReadElement(r, &count); err != nil {
			return err
		}
		out := make([]TensorRecord, count)
		for i := range out {
			if err := out[i].decode(r); err != nil {
				return err
			}
		}
		*e = out

	default:
		return fmt.Errorf("unknown type in ReadElement: %T", e)
	}

	return nil
}

// ReadElements deserializes a variable number of elements into the passed
// element pointers from the passed io.Reader.
func ReadElements(r io.Reader, elements ...interface{}) error {
	for _, element := range elements {
		if err := ReadElement(r, element); err != nil {
			return err
		}
	}

	return nil
}
