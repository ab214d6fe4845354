package fedd

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"

	"github.com/nexusfed/fedd/fedwire"
	"github.com/nexusfed/fedd/linkstate"
	"github.com/nexusfed/fedd/peer"
	"github.com/nexusfed/fedd/routing"
)

func makeTensor(from, to string, latencyMs, bandwidth float64) linkstate.Tensor {
	return linkstate.Tensor{
		From:        from,
		To:          to,
		Latency:     linkstate.LatencyDist{Mean: latencyMs, StdDev: 1},
		Jitter:      0.5,
		Bandwidth:   bandwidth,
		Reliability: 0.99,
		Cost:        1,
		Version:     1,
	}
}

func newTestServer(t *testing.T, nodeID string) *Server {
	t.Helper()

	cfg := DefaultConfig()
	cfg.NodeID = nodeID
	cfg.PublicKey = "pubkey_" + nodeID
	cfg.ListenAddr = "127.0.0.1:0"

	server, err := NewServer(&cfg)
	require.NoError(t, err)
	require.NoError(t, server.Start())
	t.Cleanup(func() {
		require.NoError(t, server.Stop())
	})

	return server
}

// dialSession connects a bare client session to the server, completing the
// handshake so wire messages can be exchanged directly.
func dialSession(t *testing.T, server *Server, nodeID string) *peer.Session {
	t.Helper()

	conn, err := net.Dial("tcp", server.ListenAddr().String())
	require.NoError(t, err)
	t.Cleanup(func() {
		conn.Close()
	})

	sess := peer.NewSession(conn, clock.NewDefaultClock())
	err = sess.Initiate(&peer.HandshakeConfig{
		NodeID:    nodeID,
		PublicKey: "pubkey_" + nodeID,
		PeerCount: func() uint32 { return 0 },
		NewSessionID: func() string {
			return "client-session-" + nodeID
		},
	})
	require.NoError(t, err)

	return sess
}

func TestServerConnectPeer(t *testing.T) {
	alpha := newTestServer(t, "alpha")
	beta := newTestServer(t, "beta")

	nodeID, err := alpha.ConnectPeer(
		context.Background(), beta.ListenAddr().String(),
	)
	require.NoError(t, err)
	require.Equal(t, "beta", nodeID)

	require.Eventually(t, func() bool {
		return alpha.NumPeers() == 1 && beta.NumPeers() == 1
	}, 3*time.Second, 25*time.Millisecond)

	status := alpha.Status()
	require.Equal(t, "alpha", status.NodeID)
	require.Equal(t, []string{"beta"}, status.Peers)
}

// TestServerLinkUpdateDispatch asserts tensors received from a peer are
// merged into the shared link table.
func TestServerLinkUpdateDispatch(t *testing.T) {
	alpha := newTestServer(t, "alpha")
	sess := dialSession(t, alpha, "beta")

	update := &fedwire.LinkUpdate{
		Reporter: "beta",
		Tensors: []fedwire.TensorRecord{{
			FromNode:      "beta",
			ToNode:        "gamma",
			LatencyMeanMs: 12,
			BandwidthMbps: 80,
			Reliability:   0.98,
			Cost:          1,
			Version:       1,
		}, {
			FromNode:      "gamma",
			ToNode:        "delta",
			LatencyMeanMs: 20,
			BandwidthMbps: 40,
			Reliability:   0.9,
			Cost:          2,
			Version:       1,
		}},
	}
	require.NoError(t, sess.SendMessage(update))

	require.Eventually(t, func() bool {
		return alpha.Status().LinkCount == 2
	}, 3*time.Second, 25*time.Millisecond)

	// A replay with the same versions must not change anything.
	require.NoError(t, sess.SendMessage(update))
	require.Eventually(t, func() bool {
		return alpha.Status().FramesProcessed >= 2
	}, 3*time.Second, 25*time.Millisecond)
	require.Equal(t, 2, alpha.Status().LinkCount)
}

// TestServerRouteRequest asserts a peer can ask the node to compute a path
// and gets the decision back in band.
func TestServerRouteRequest(t *testing.T) {
	alpha := newTestServer(t, "alpha")
	sess := dialSession(t, alpha, "beta")

	// Teach alpha a two-hop topology rooted at itself.
	require.NoError(t, sess.SendMessage(&fedwire.LinkUpdate{
		Reporter: "beta",
		Tensors: []fedwire.TensorRecord{{
			FromNode:      "alpha",
			ToNode:        "beta",
			LatencyMeanMs: 10,
			BandwidthMbps: 100,
			Reliability:   0.99,
			Cost:          1,
			Version:       1,
		}, {
			FromNode:      "beta",
			ToNode:        "gamma",
			LatencyMeanMs: 10,
			BandwidthMbps: 100,
			Reliability:   0.99,
			Cost:          1,
			Version:       1,
		}},
	}))

	require.Eventually(t, func() bool {
		return alpha.Status().LinkCount == 2
	}, 3*time.Second, 25*time.Millisecond)

	require.NoError(t, sess.SendMessage(&fedwire.RouteRequest{
		RequestID:           "req-1",
		Destination:         "gamma",
		PriorityLatency:     0.3,
		PriorityAnonymity:   0.2,
		PriorityCost:        0.2,
		PriorityReliability: 0.3,
	}))

	msg, err := sess.ReadMessage()
	require.NoError(t, err)

	resp, ok := msg.(*fedwire.RouteResponse)
	require.True(t, ok)
	require.Equal(t, "req-1", resp.RequestID)
	require.True(t, resp.Success)
	require.Equal(t, []string{"alpha", "beta", "gamma"}, resp.Path)
	require.Equal(t, 20.0, resp.TotalLatencyMs)
}

// TestServerRouteRequestUnreachable asserts an unreachable destination is
// answered with an unsuccessful response rather than silence.
func TestServerRouteRequestUnreachable(t *testing.T) {
	alpha := newTestServer(t, "alpha")
	sess := dialSession(t, alpha, "beta")

	require.NoError(t, sess.SendMessage(&fedwire.RouteRequest{
		RequestID:   "req-2",
		Destination: "nowhere",
	}))

	msg, err := sess.ReadMessage()
	require.NoError(t, err)

	resp, ok := msg.(*fedwire.RouteResponse)
	require.True(t, ok)
	require.Equal(t, "req-2", resp.RequestID)
	require.False(t, resp.Success)
	require.Empty(t, resp.Path)
	require.NotEmpty(t, resp.Error)
}

// TestServerSessionReplacementKeepsTrust asserts that a fresh connection
// from an already connected node replaces the old session without costing
// the node any trust: only genuine transport failures are penalty events.
func TestServerSessionReplacementKeepsTrust(t *testing.T) {
	alpha := newTestServer(t, "alpha")

	currentSession := func() *peer.Session {
		alpha.mtx.RLock()
		defer alpha.mtx.RUnlock()

		return alpha.sessions["beta"]
	}

	var prev *peer.Session
	for i := 0; i < 4; i++ {
		dialSession(t, alpha, "beta")

		// Wait for the new session to take over the registry slot.
		require.Eventually(t, func() bool {
			cur := currentSession()
			return cur != nil && cur != prev
		}, 3*time.Second, 25*time.Millisecond)
		prev = currentSession()
	}

	require.Equal(t, 1, alpha.NumPeers())

	// The replaced sessions' reader loops wind down asynchronously; none
	// of them may register a penalty against the reconnecting node.
	require.Never(t, func() bool {
		return alpha.trust.Trust("beta") < linkstate.DefaultNeutralTrust
	}, 500*time.Millisecond, 25*time.Millisecond)
}

// TestServerBroadcastSurvivesDeadSession asserts a send failure to one peer
// does not abort the fanout to the remaining peers.
func TestServerBroadcastSurvivesDeadSession(t *testing.T) {
	alpha := newTestServer(t, "alpha")
	live := dialSession(t, alpha, "beta")

	require.Eventually(t, func() bool {
		return alpha.NumPeers() == 1
	}, 3*time.Second, 25*time.Millisecond)

	// Register a session whose transport is already gone.
	deadConn, otherEnd := net.Pipe()
	require.NoError(t, otherEnd.Close())
	require.NoError(t, deadConn.Close())

	alpha.mtx.Lock()
	alpha.sessions["dead"] = peer.NewSession(
		deadConn, clock.NewDefaultClock(),
	)
	alpha.mtx.Unlock()

	sent := alpha.broadcast(&fedwire.Heartbeat{NodeID: "alpha"})
	require.Equal(t, 1, sent)

	// The live peer still receives the frame.
	msg, err := live.ReadMessage()
	require.NoError(t, err)
	require.IsType(t, &fedwire.Heartbeat{}, msg)
}

// brokenListener always fails to accept, counting the attempts.
type brokenListener struct {
	accepts atomic.Int32
}

func (l *brokenListener) Accept() (net.Conn, error) {
	l.accepts.Add(1)
	return nil, errors.New("accept failure")
}

func (l *brokenListener) Close() error { return nil }

func (l *brokenListener) Addr() net.Addr { return &net.TCPAddr{} }

// TestServerAcceptLoopBackoff asserts the accept loop does not spin hot on
// a persistently failing listener.
func TestServerAcceptLoopBackoff(t *testing.T) {
	t.Parallel()

	listener := &brokenListener{}
	server := &Server{
		listener: listener,
		quit:     make(chan struct{}),
	}

	server.wg.Add(1)
	go server.acceptLoop()

	time.Sleep(350 * time.Millisecond)
	close(server.quit)
	server.wg.Wait()

	// With the retry delay in place, 350ms allows only a handful of
	// attempts. A busy loop would record thousands.
	attempts := listener.accepts.Load()
	require.GreaterOrEqual(t, attempts, int32(1))
	require.LessOrEqual(t, attempts, int32(10))
}

func TestServerGoodbyeRemovesSession(t *testing.T) {
	alpha := newTestServer(t, "alpha")
	sess := dialSession(t, alpha, "beta")

	require.Eventually(t, func() bool {
		return alpha.NumPeers() == 1
	}, 3*time.Second, 25*time.Millisecond)

	require.NoError(t, sess.SendMessage(&fedwire.Goodbye{
		NodeID: "beta",
		Reason: "done",
	}))

	require.Eventually(t, func() bool {
		return alpha.NumPeers() == 0
	}, 3*time.Second, 25*time.Millisecond)
}

// TestServerQueryRouteLocal exercises the local routing query path end to
// end: reported links feed candidate enumeration and the router decision.
func TestServerQueryRouteLocal(t *testing.T) {
	alpha := newTestServer(t, "alpha")

	require.True(t, alpha.ReportLink(makeTensor("alpha", "beta", 10, 100)))
	require.True(t, alpha.ReportLink(makeTensor("beta", "gamma", 10, 100)))
	require.True(t, alpha.ReportLink(makeTensor("alpha", "gamma", 30, 50)))

	decision := alpha.QueryRoute("gamma", routing.Balanced())
	require.True(t, decision.Chosen.IsSome())

	chosen := decision.Chosen.UnwrapOrFail(t)
	require.Equal(t, []string{"alpha", "beta", "gamma"}, chosen.Path)
	require.False(t, decision.ShouldSwitch)
}
