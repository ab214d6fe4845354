// Package peer implements the federation peer session: a handshake state
// machine wrapped around one duplex stream, plus the framed send/receive
// primitives the node's dispatch loops are built on.
package peer

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lightningnetwork/lnd/clock"

	"github.com/nexusfed/fedd/fedwire"
)

// State describes where a session is in its lifecycle.
type State uint8

const (
	// StateConnecting is the initial state of an outbound session before
	// the handshake has been sent.
	StateConnecting State = iota

	// StateHandshaking means the handshake exchange is in flight.
	StateHandshaking

	// StateActive means the handshake completed and the session carries
	// traffic.
	StateActive

	// StateClosing means an orderly shutdown is underway.
	StateClosing

	// StateFailed means the session terminated with an error. The reason
	// is available via FailReason.
	StateFailed
)

// String returns a human readable identifier for the state.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateHandshaking:
		return "Handshaking"
	case StateActive:
		return "Active"
	case StateClosing:
		return "Closing"
	case StateFailed:
		return "Failed"
	default:
		return "<unknown>"
	}
}

// Session represents one live transport connection to a remote node. There
// is exactly one session per remote node id at a time; a newer session for
// the same id replaces the older one at the registry level.
//
// The underlying stream is shared between a send path and a receive path.
// Writes acquire an exclusive lock for the duration of one frame so
// concurrent senders (heartbeat loop, broadcast loop, dispatch replies) can
// never interleave frame bytes.
type Session struct {
	conn net.Conn

	clk clock.Clock

	// mtx guards the mutable identity and state fields below.
	mtx sync.RWMutex

	nodeID     string
	sessionID  string
	state      State
	failReason string

	connectedAt   time.Time
	lastHeartbeat time.Time

	// writeMtx serializes frame writes to the stream.
	writeMtx sync.Mutex

	// readMtx serializes frame reads from the stream.
	readMtx sync.Mutex

	framesSent atomic.Uint64
	framesRecv atomic.Uint64
}

// NewSession wraps an established transport connection. The session starts
// in the Connecting state; it only becomes Active through a completed
// handshake.
func NewSession(conn net.Conn, clk clock.Clock) *Session {
	return &Session{
		conn:        conn,
		clk:         clk,
		state:       StateConnecting,
		connectedAt: clk.Now(),
	}
}

// SendMessage serializes msg, frames it, and writes it to the stream as one
// atomic unit under the session's write lock. An oversized message is
// rejected before any bytes hit the wire.
func (s *Session) SendMessage(msg fedwire.Message) error {
	s.writeMtx.Lock()
	defer s.writeMtx.Unlock()

	_, err := fedwire.WriteMessageFrame(
		s.conn, msg, fedwire.ProtocolVersion,
	)
	if err != nil {
		return fmt.Errorf("unable to send %v to %v: %w",
			msg.MsgType(), s.RemoteAddr(), err)
	}

	s.framesSent.Add(1)

	return nil
}

// ReadMessage reads the next frame from the stream, bound checks its
// declared length, and decodes the carried message. Malformed or oversized
// input returns an error; it never panics.
func (s *Session) ReadMessage() (fedwire.Message, error) {
	s.readMtx.Lock()
	defer s.readMtx.Unlock()

	msg, err := fedwire.ReadMessageFrame(s.conn, fedwire.ProtocolVersion)
	if err != nil {
		return nil, err
	}

	s.framesRecv.Add(1)

	return msg, nil
}

// Close tears down the underlying transport. It is safe to call multiple
// times and from any state.
func (s *Session) Close() error {
	s.mtx.Lock()
	if s.state != StateFailed {
		s.state = StateClosing
	}
	s.mtx.Unlock()

	return s.conn.Close()
}

// NodeID returns the remote node's identifier. It is empty until the
// handshake completes.
func (s *Session) NodeID() string {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	return s.nodeID
}

// SessionID returns the identifier assigned to this session during the
// handshake.
func (s *Session) SessionID() string {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	return s.sessionID
}

// RemoteAddr returns the remote end of the underlying transport.
func (s *Session) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	return s.state
}

// FailReason returns the reason recorded when the session entered the
// Failed state.
func (s *Session) FailReason() string {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	return s.failReason
}

// fail transitions the session into the Failed state, recording the first
// reason supplied.
func (s *Session) fail(reason string) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.state == StateFailed {
		return
	}

	s.state = StateFailed
	s.failReason = reason
}

// setState transitions the session to the given state.
func (s *Session) setState(state State) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.state = state
}

// MarkHeartbeat records that the remote node signalled liveness.
func (s *Session) MarkHeartbeat() {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.lastHeartbeat = s.clk.Now()
}

// LastHeartbeat returns when the remote node last signalled liveness. The
// zero time means no heartbeat has been seen yet.
func (s *Session) LastHeartbeat() time.Time {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	return s.lastHeartbeat
}

// ConnectedAt returns when the underlying transport was established.
func (s *Session) ConnectedAt() time.Time {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	return s.connectedAt
}

// Uptime returns how long the session has been established.
func (s *Session) Uptime() time.Duration {
	return s.clk.Now().Sub(s.ConnectedAt())
}

// FramesSent returns the number of frames written to the stream.
func (s *Session) FramesSent() uint64 {
	return s.framesSent.Load()
}

// FramesReceived returns the number of frames read from the stream.
func (s *Session) FramesReceived() uint64 {
	return s.framesRecv.Load()
}
