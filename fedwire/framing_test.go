package fedwire

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// trackingReader counts the bytes handed out so tests can assert that the
// payload of an oversized frame is never read.
type trackingReader struct {
	r         *bytes.Reader
	bytesRead int
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	t.bytesRead += n
	return n, err
}

// TestFrameRoundTrip asserts that a frame written with WriteFrame is read
// back byte for byte by ReadFrame.
func TestFrameRoundTrip(t *testing.T) {
	t.Parallel()

	payload := []byte("link quality report for edge alpha->beta")

	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, payload))

	// The header must carry the exact payload length.
	require.Equal(t, FrameHeaderSize+len(payload), buf.Len())

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

// TestReadFrameRejectsOversize asserts that a frame declaring a payload
// larger than MaxFramePayload is rejected before a single payload byte is
// read.
func TestReadFrameRejectsOversize(t *testing.T) {
	t.Parallel()

	var header [FrameHeaderSize]byte
	binary.BigEndian.PutUint32(header[:], MaxFramePayload+1)

	// The reader holds the poisoned header plus some trailing bytes that
	// must never be touched.
	tr := &trackingReader{
		r: bytes.NewReader(append(header[:], make([]byte, 128)...)),
	}

	_, err := ReadFrame(tr)

	var frameErr *ErrFrameTooLarge
	require.ErrorAs(t, err, &frameErr)
	require.Equal(t, MaxFramePayload+1, frameErr.Size)

	// Only the header may have been consumed.
	require.Equal(t, FrameHeaderSize, tr.bytesRead)
}

// TestWriteFrameRejectsOversize asserts the write path enforces the same
// hard maximum as the read path.
func TestWriteFrameRejectsOversize(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := WriteFrame(&buf, make([]byte, MaxFramePayload+1))

	var frameErr *ErrFrameTooLarge
	require.ErrorAs(t, err, &frameErr)

	// Nothing may have been written for the rejected frame.
	require.Zero(t, buf.Len())
}

// TestMessageFrameRoundTrip exercises the full serialize, frame, deframe,
// deserialize cycle through WriteMessageFrame and ReadMessageFrame.
func TestMessageFrameRoundTrip(t *testing.T) {
	t.Parallel()

	msg := &Heartbeat{
		NodeID:        "nexus-core-01",
		Timestamp:     1700000000123,
		UptimeSeconds: 86400,
		LoadFactor:    0.42,
	}

	var buf bytes.Buffer
	_, err := WriteMessageFrame(&buf, msg, ProtocolVersion)
	require.NoError(t, err)

	got, err := ReadMessageFrame(&buf, ProtocolVersion)
	require.NoError(t, err)
	require.Equal(t, msg, got)
}
