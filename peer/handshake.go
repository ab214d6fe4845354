package peer

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/nexusfed/fedd/fedwire"
)

// DefaultHandshakeTimeout bounds how long either side of a handshake waits
// for the other's frame before abandoning the connection.
const DefaultHandshakeTimeout = 10 * time.Second

var (
	// ErrHandshakeTimeout is returned when the remote side did not
	// produce its handshake frame within the configured timeout.
	ErrHandshakeTimeout = errors.New("handshake timed out")

	// ErrNotHandshake is returned when the very first frame on a new
	// inbound connection is not a Handshake message.
	ErrNotHandshake = errors.New("first frame was not a handshake")

	// ErrUnexpectedAck is returned when an outbound handshake receives
	// something other than a HandshakeAck in reply.
	ErrUnexpectedAck = errors.New("expected handshake ack")

	// ErrVersionMismatch is returned by the accepting side when the
	// dialer announced an incompatible protocol version.
	ErrVersionMismatch = errors.New("incompatible protocol version")
)

// HandshakeRejectedError is returned by the dialing side when the remote
// node refused the handshake.
type HandshakeRejectedError struct {
	// Reason is the rejection reason announced by the remote node.
	Reason string
}

// Error returns a human readable string describing the error.
//
// This is part of the error interface.
func (e *HandshakeRejectedError) Error() string {
	return fmt.Sprintf("handshake rejected: %v", e.Reason)
}

// HandshakeConfig carries the local identity and policy needed to complete
// a handshake on either side of a connection.
type HandshakeConfig struct {
	// NodeID is the local node's identifier, announced to the remote.
	NodeID string

	// PublicKey is the local node's advertised public key.
	PublicKey string

	// Timeout bounds the wait for the remote side's handshake frame.
	Timeout time.Duration

	// PeerCount reports how many peers the local node currently has, sent
	// as a load hint in the Handshake message.
	PeerCount func() uint32

	// NewSessionID mints a fresh session id for an accepted inbound
	// handshake.
	NewSessionID func() string
}

// timeout returns the configured timeout, or the default if unset.
func (c *HandshakeConfig) timeout() time.Duration {
	if c.Timeout == 0 {
		return DefaultHandshakeTimeout
	}

	return c.Timeout
}

// Initiate runs the outbound half of the handshake: send our Handshake,
// await the ack within the timeout, and activate the session on acceptance.
// On failure the session is marked Failed with the reason and the caller is
// expected to tear down the connection.
func (s *Session) Initiate(cfg *HandshakeConfig) error {
	s.setState(StateHandshaking)

	hs := fedwire.NewHandshake(
		cfg.NodeID, cfg.PublicKey, cfg.PeerCount(),
		s.clk.Now().UnixMilli(),
	)
	if err := s.SendMessage(hs); err != nil {
		s.fail(err.Error())
		return err
	}

	msg, err := s.readWithTimeout(cfg.timeout())
	if err != nil {
		s.fail(err.Error())
		return err
	}

	ack, ok := msg.(*fedwire.HandshakeAck)
	if !ok {
		s.fail(ErrUnexpectedAck.Error())
		return fmt.Errorf("%w, got %v", ErrUnexpectedAck,
			msg.MsgType())
	}

	if !ack.Accepted {
		err := &HandshakeRejectedError{Reason: ack.RejectionReason}
		s.fail(err.Error())
		return err
	}

	s.mtx.Lock()
	s.nodeID = ack.NodeID
	s.sessionID = ack.SessionID
	s.state = StateActive
	s.mtx.Unlock()

	log.Debugf("Handshake with %v complete, session=%v observed_addr=%v",
		ack.NodeID, ack.SessionID, ack.ObservedAddr)

	return nil
}

// Accept runs the inbound half of the handshake: the very first frame on
// the connection must be a Handshake, the protocol versions must match, and
// on success an accepting ack with a fresh session id is returned to the
// dialer. A rejecting ack is sent before failing on a version mismatch.
func (s *Session) Accept(cfg *HandshakeConfig) error {
	s.setState(StateHandshaking)

	msg, err := s.readWithTimeout(cfg.timeout())
	if err != nil {
		s.fail(err.Error())
		return err
	}

	hs, ok := msg.(*fedwire.Handshake)
	if !ok {
		s.fail(ErrNotHandshake.Error())
		return fmt.Errorf("%w, got %v", ErrNotHandshake, msg.MsgType())
	}

	if hs.ProtocolVersion != fedwire.ProtocolVersion {
		reject := &fedwire.HandshakeAck{
			NodeID:   cfg.NodeID,
			Accepted: false,
			RejectionReason: fmt.Sprintf(
				"incompatible protocol: %d",
				hs.ProtocolVersion,
			),
		}

		// Best effort: the dialer deserves to know why it is being
		// dropped, but a write failure here changes nothing.
		if err := s.SendMessage(reject); err != nil {
			log.Debugf("Unable to send rejecting ack to %v: %v",
				s.RemoteAddr(), err)
		}

		s.fail(ErrVersionMismatch.Error())
		return fmt.Errorf("%w: %d", ErrVersionMismatch,
			hs.ProtocolVersion)
	}

	sessionID := cfg.NewSessionID()
	ack := &fedwire.HandshakeAck{
		NodeID:       cfg.NodeID,
		Accepted:     true,
		SessionID:    sessionID,
		ObservedAddr: s.RemoteAddr().String(),
	}
	if err := s.SendMessage(ack); err != nil {
		s.fail(err.Error())
		return err
	}

	s.mtx.Lock()
	s.nodeID = hs.NodeID
	s.sessionID = sessionID
	s.state = StateActive
	s.mtx.Unlock()

	log.Debugf("Accepted handshake from %v (%v), session=%v",
		hs.NodeID, s.RemoteAddr(), sessionID)

	return nil
}

// readWithTimeout reads a single message with a read deadline applied to the
// underlying transport, translating deadline expiry into
// ErrHandshakeTimeout.
func (s *Session) readWithTimeout(timeout time.Duration) (fedwire.Message,
	error) {

	if err := s.conn.SetReadDeadline(s.clk.Now().Add(timeout)); err != nil {
		return nil, err
	}

	msg, err := s.ReadMessage()

	// Clear the deadline for the dispatch loop that follows; the reset
	// can only fail on a dead connection, which the read error already
	// reflects.
	_ = s.conn.SetReadDeadline(time.Time{})

	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, ErrHandshakeTimeout
		}

		return nil, err
	}

	return msg, nil
}
