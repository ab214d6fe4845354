package fedd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"

	"github.com/nexusfed/fedd/fedwire"
	"github.com/nexusfed/fedd/linkstate"
	"github.com/nexusfed/fedd/peer"
	"github.com/nexusfed/fedd/routing"
)

// ErrServerShuttingDown is returned for operations that cannot be served
// because the daemon is winding down.
var ErrServerShuttingDown = errors.New("server shutting down")

// ErrMaxPeersReached is returned when a new session would exceed the
// configured peer limit.
var ErrMaxPeersReached = errors.New("maximum peer count reached")

// acceptRetryDelay is how long the accept loop waits after a listener error
// before trying again, so a persistent error cannot spin the loop hot.
const acceptRetryDelay = 100 * time.Millisecond

// KnownNode is the passive record kept for every node that has announced
// itself through the federation, whether or not a session to it exists.
type KnownNode struct {
	NodeID           string
	Address          string
	PublicKey        string
	TrustWeight      float64
	Relay            bool
	MaxBandwidthMbps uint32
	LastSeen         time.Time
}

// Status is a point-in-time summary of the daemon's state.
type Status struct {
	NodeID          string
	ListenAddr      string
	Peers           []string
	KnownNodes      int
	LinkCount       int
	FramesProcessed uint64
	Uptime          time.Duration
	TrustSummary    string
}

// Server is the federation node: it owns the listener, the per-peer
// sessions, the shared link-quality table, the trust registry, and the
// adaptive router, and runs the daemon's background loops.
type Server struct {
	started atomic.Bool
	stopped atomic.Bool

	cfg *Config
	clk clock.Clock

	listener net.Listener

	// mtx guards sessions and knownNodes. It is never held across
	// network I/O.
	mtx        sync.RWMutex
	sessions   map[string]*peer.Session
	knownNodes map[string]KnownNode

	links  *linkstate.Table
	trust  *linkstate.TrustRegistry
	router *routing.Router

	framesProcessed atomic.Uint64
	startTime       time.Time

	heartbeatTicker ticker.Ticker
	linkTicker      ticker.Ticker
	announceTicker  ticker.Ticker
	auditTicker     ticker.Ticker
	statusTicker    ticker.Ticker

	wg   sync.WaitGroup
	quit chan struct{}
}

// NewServer creates a Server from the given configuration. Start must be
// called before the node joins the federation.
func NewServer(cfg *Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clk := clock.NewDefaultClock()

	return &Server{
		cfg:        cfg,
		clk:        clk,
		sessions:   make(map[string]*peer.Session),
		knownNodes: make(map[string]KnownNode),
		links:      linkstate.NewTable(),
		trust:      linkstate.NewTrustRegistry(),
		router: routing.NewRouter(routing.Config{
			Clock: clk,
		}),
		heartbeatTicker: ticker.New(cfg.HeartbeatInterval),
		linkTicker:      ticker.New(cfg.LinkBroadcastInterval),
		announceTicker:  ticker.New(cfg.AnnounceInterval),
		auditTicker:     ticker.New(cfg.RouteAuditInterval),
		statusTicker:    ticker.New(cfg.StatusInterval),
		quit:            make(chan struct{}),
	}, nil
}

// Start binds the listener, launches the background loops, and dials the
// configured seed nodes.
func (s *Server) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("server already started")
	}

	listener, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("unable to listen on %v: %w",
			s.cfg.ListenAddr, err)
	}
	s.listener = listener
	s.startTime = s.clk.Now()

	log.Infof("Federation node %v listening on %v", s.cfg.NodeID,
		listener.Addr())

	s.wg.Add(6)
	go s.acceptLoop()
	go s.heartbeatLoop()
	go s.linkBroadcastLoop()
	go s.announceLoop()
	go s.routeAuditLoop()
	go s.statusLoop()

	if seeds := s.cfg.SeedNodes(); len(seeds) > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()

			connected := s.bootstrap(context.Background(), seeds)
			log.Infof("Bootstrap finished: %d/%d seeds connected",
				connected, len(seeds))
		}()
	}

	return nil
}

// Stop sends a goodbye to every peer, tears down all sessions, and waits for
// the background loops to exit.
func (s *Server) Stop() error {
	if !s.stopped.CompareAndSwap(false, true) {
		return nil
	}

	log.Infof("Federation node %v shutting down", s.cfg.NodeID)

	close(s.quit)
	if s.listener != nil {
		_ = s.listener.Close()
	}

	goodbye := &fedwire.Goodbye{
		NodeID: s.cfg.NodeID,
		Reason: "shutting down",
	}
	for _, sess := range s.activeSessions() {
		_ = sess.SendMessage(goodbye)
		_ = sess.Close()
	}

	// Each background loop stops its own ticker on the way out.
	s.wg.Wait()

	return nil
}

// ListenAddr returns the bound listener address. Only valid after Start.
func (s *Server) ListenAddr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// handshakeConfig builds the handshake parameters shared by inbound and
// outbound sessions.
func (s *Server) handshakeConfig() *peer.HandshakeConfig {
	return &peer.HandshakeConfig{
		NodeID:    s.cfg.NodeID,
		PublicKey: s.cfg.PublicKey,
		Timeout:   s.cfg.HandshakeTimeout,
		PeerCount: func() uint32 {
			return uint32(s.NumPeers())
		},
		NewSessionID: uuid.NewString,
	}
}

// acceptLoop accepts inbound connections until the listener is closed. Each
// connection gets its own goroutine for the handshake and reader.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
			}

			log.Errorf("Accept failed: %v", err)

			select {
			case <-time.After(acceptRetryDelay):
			case <-s.quit:
				return
			}
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleInbound(conn)
		}()
	}
}

// handleInbound runs the accepting half of the handshake and, on success,
// the reader loop for the new session.
func (s *Server) handleInbound(conn net.Conn) {
	sess := peer.NewSession(conn, s.clk)

	if err := sess.Accept(s.handshakeConfig()); err != nil {
		log.Warnf("Inbound handshake with %v failed: %v",
			conn.RemoteAddr(), err)
		_ = sess.Close()
		return
	}

	if err := s.addSession(sess); err != nil {
		log.Warnf("Rejecting session with %v: %v", sess.NodeID(), err)
		_ = sess.Close()
		return
	}

	log.Infof("Peer %v connected from %v (session %v)", sess.NodeID(),
		conn.RemoteAddr(), sess.SessionID())

	s.readHandler(sess)
}

// ConnectPeer dials the given address, runs the initiating half of the
// handshake, and registers the session. It returns the remote node id. The
// reader loop runs in its own goroutine.
func (s *Server) ConnectPeer(ctx context.Context, address string) (string,
	error) {

	select {
	case <-s.quit:
		return "", ErrServerShuttingDown
	default:
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return "", fmt.Errorf("unable to dial %v: %w", address, err)
	}

	sess := peer.NewSession(conn, s.clk)
	if err := sess.Initiate(s.handshakeConfig()); err != nil {
		_ = sess.Close()
		return "", fmt.Errorf("handshake with %v failed: %w", address,
			err)
	}

	if err := s.addSession(sess); err != nil {
		_ = sess.Close()
		return "", err
	}

	log.Infof("Connected to peer %v at %v (session %v)", sess.NodeID(),
		address, sess.SessionID())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.readHandler(sess)
	}()

	return sess.NodeID(), nil
}

// addSession registers an active session. A fresh session for a node id
// replaces any existing one, which is closed.
func (s *Server) addSession(sess *peer.Session) error {
	s.mtx.Lock()
	old, exists := s.sessions[sess.NodeID()]
	if !exists && len(s.sessions) >= s.cfg.MaxPeers {
		s.mtx.Unlock()
		return ErrMaxPeersReached
	}
	s.sessions[sess.NodeID()] = sess
	s.mtx.Unlock()

	if exists {
		log.Debugf("Replacing existing session %v for peer %v",
			old.SessionID(), sess.NodeID())
		_ = old.Close()
	}

	return nil
}

// removeSession drops the session for a node id, optionally penalizing the
// node's trust for an unclean disconnect. The registered session is only
// removed if it is still the given one.
func (s *Server) removeSession(sess *peer.Session, penalize bool) {
	nodeID := sess.NodeID()

	s.mtx.Lock()
	if current, ok := s.sessions[nodeID]; ok && current == sess {
		delete(s.sessions, nodeID)
	}
	s.mtx.Unlock()

	_ = sess.Close()

	if penalize {
		s.trust.PenalizeUnreachable(nodeID)
		log.Debugf("Penalized trust of %v: now %.2f", nodeID,
			s.trust.Trust(nodeID))
	}
}

// activeSessions returns a snapshot of the current sessions.
func (s *Server) activeSessions() []*peer.Session {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	sessions := make([]*peer.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}

	return sessions
}

// NumPeers returns the number of active sessions.
func (s *Server) NumPeers() int {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	return len(s.sessions)
}

// readHandler reads frames from the session until it fails or the peer says
// goodbye, dispatching each message by its concrete type. A read failure
// penalizes the peer's trust before the session is removed; a clean goodbye
// does not.
func (s *Server) readHandler(sess *peer.Session) {
	for {
		select {
		case <-s.quit:
			s.removeSession(sess, false)
			return
		default:
		}

		msg, err := sess.ReadMessage()
		if err != nil {
			select {
			case <-s.quit:
				s.removeSession(sess, false)
			default:
				// A session we closed deliberately, such as
				// one replaced by a fresh connection from the
				// same node, is not a transport failure and
				// must not cost the peer any trust.
				if sess.State() == peer.StateClosing {
					log.Debugf("Session %v for peer %v "+
						"closed", sess.SessionID(),
						sess.NodeID())
					s.removeSession(sess, false)
					return
				}

				log.Warnf("Read from peer %v failed: %v",
					sess.NodeID(), err)
				s.removeSession(sess, true)
			}
			return
		}

		s.framesProcessed.Add(1)

		switch m := msg.(type) {
		case *fedwire.Heartbeat:
			s.handleHeartbeat(sess, m)

		case *fedwire.LinkUpdate:
			s.handleLinkUpdate(m)

		case *fedwire.NodeAnnounce:
			s.handleNodeAnnounce(m)

		case *fedwire.RouteRequest:
			s.handleRouteRequest(sess, m)

		case *fedwire.RouteResponse:
			log.Debugf("Route response %v from %v: success=%v "+
				"path=%v", m.RequestID, sess.NodeID(),
				m.Success, m.Path)

		case *fedwire.Goodbye:
			log.Infof("Peer %v said goodbye: %v", m.NodeID,
				m.Reason)
			s.removeSession(sess, false)
			return

		// A handshake message after the handshake has completed is a
		// protocol violation.
		case *fedwire.Handshake, *fedwire.HandshakeAck:
			log.Warnf("Unexpected %v from established peer %v",
				msg.MsgType(), sess.NodeID())
			s.removeSession(sess, true)
			return

		default:
			log.Warnf("Unhandled message type %v from peer %v",
				msg.MsgType(), sess.NodeID())
		}
	}
}

func (s *Server) handleHeartbeat(sess *peer.Session, hb *fedwire.Heartbeat) {
	sess.MarkHeartbeat()
	log.Debugf("Heartbeat from %v: uptime=%ds load=%.2f", hb.NodeID,
		hb.UptimeSeconds, hb.LoadFactor)
}

// handleLinkUpdate merges the reported tensors into the shared table. Stale
// versions are discarded per tensor, so updates from different peers can be
// applied in any order.
func (s *Server) handleLinkUpdate(update *fedwire.LinkUpdate) {
	now := s.clk.Now()

	var applied int
	for _, record := range update.Tensors {
		if s.links.Update(tensorFromRecord(record, now)) {
			applied++
		}
	}

	log.Debugf("Link update from %v: %d/%d tensors applied",
		update.Reporter, applied, len(update.Tensors))
	log.Tracef("Link update contents: %v", newLogClosure(func() string {
		return spew.Sdump(update.Tensors)
	}))
}

func (s *Server) handleNodeAnnounce(ann *fedwire.NodeAnnounce) {
	s.mtx.Lock()
	s.knownNodes[ann.NodeID] = KnownNode{
		NodeID:           ann.NodeID,
		Address:          ann.Address,
		PublicKey:        ann.PublicKey,
		TrustWeight:      ann.TrustWeight,
		Relay:            ann.Relay,
		MaxBandwidthMbps: ann.MaxBandwidthMbps,
		LastSeen:         s.clk.Now(),
	}
	total := len(s.knownNodes)
	s.mtx.Unlock()

	log.Debugf("Node announce from %v (%v), %d nodes known", ann.NodeID,
		ann.Address, total)
}

// handleRouteRequest computes a route on behalf of a peer and replies with
// the outcome. An unreachable destination is reported as an unsuccessful
// response, not a dropped request.
func (s *Server) handleRouteRequest(sess *peer.Session,
	req *fedwire.RouteRequest) {

	priorities := routing.Priorities{
		Latency:     req.PriorityLatency,
		Anonymity:   req.PriorityAnonymity,
		Cost:        req.PriorityCost,
		Reliability: req.PriorityReliability,
	}

	maxHops := int(req.MaxHops)
	if maxHops <= 0 || maxHops > s.cfg.MaxRouteHops {
		maxHops = s.cfg.MaxRouteHops
	}

	decision := s.queryRoute(req.Destination, priorities, maxHops)

	resp := &fedwire.RouteResponse{
		RequestID: req.RequestID,
	}
	decision.Chosen.WhenSome(func(route routing.RouteCandidate) {
		resp.Path = route.Path
		resp.TotalLatencyMs = route.TotalLatencyMs
		resp.Stability = route.StabilityScore
		resp.Cost = route.TotalCost
		resp.Success = true
	})
	if !resp.Success {
		resp.Error = decision.Reason
	}

	if err := sess.SendMessage(resp); err != nil {
		log.Warnf("Unable to answer route request %v from %v: %v",
			req.RequestID, sess.NodeID(), err)
	}
}

// QueryRoute computes a routing decision from this node to the destination
// under the given priorities.
func (s *Server) QueryRoute(destination string,
	priorities routing.Priorities) routing.Decision {

	return s.queryRoute(destination, priorities, s.cfg.MaxRouteHops)
}

func (s *Server) queryRoute(destination string,
	priorities routing.Priorities, maxHops int) routing.Decision {

	candidates := routing.BuildCandidates(
		s.links, s.trust, s.cfg.NodeID, destination, maxHops,
		s.clk.Now(),
	)

	return s.router.SelectRoute(destination, candidates, priorities)
}

// broadcast sends the message to every active session and returns how many
// sends succeeded. Per-peer failures are logged and do not stop the fanout.
func (s *Server) broadcast(msg fedwire.Message) int {
	var sent int
	for _, sess := range s.activeSessions() {
		if err := sess.SendMessage(msg); err != nil {
			log.Debugf("Broadcast of %v to %v failed: %v",
				msg.MsgType(), sess.NodeID(), err)
			continue
		}
		sent++
	}

	return sent
}

// heartbeatLoop periodically sends a heartbeat to every active peer.
func (s *Server) heartbeatLoop() {
	defer s.wg.Done()

	s.heartbeatTicker.Resume()
	defer s.heartbeatTicker.Stop()

	for {
		select {
		case <-s.heartbeatTicker.Ticks():
			now := s.clk.Now()
			hb := &fedwire.Heartbeat{
				NodeID:        s.cfg.NodeID,
				Timestamp:     now.Unix(),
				UptimeSeconds: uint64(now.Sub(s.startTime).Seconds()),
				LoadFactor: float64(s.NumPeers()) /
					float64(s.cfg.MaxPeers),
			}
			sent := s.broadcast(hb)
			log.Tracef("Heartbeat sent to %d peers", sent)

		case <-s.quit:
			return
		}
	}
}

// linkBroadcastLoop periodically sends the local link-quality table to
// every peer. An empty table skips the tick.
func (s *Server) linkBroadcastLoop() {
	defer s.wg.Done()

	s.linkTicker.Resume()
	defer s.linkTicker.Stop()

	for {
		select {
		case <-s.linkTicker.Ticks():
			tensors := s.links.Snapshot()
			if len(tensors) == 0 {
				continue
			}

			records := make(
				[]fedwire.TensorRecord, 0, len(tensors),
			)
			for _, tensor := range tensors {
				records = append(
					records, recordFromTensor(tensor),
				)
			}

			sent := s.broadcast(&fedwire.LinkUpdate{
				Reporter: s.cfg.NodeID,
				Tensors:  records,
			})
			log.Debugf("Link broadcast: %d tensors to %d peers",
				len(tensors), sent)

		case <-s.quit:
			return
		}
	}
}

// announceLoop periodically advertises this node to its peers.
func (s *Server) announceLoop() {
	defer s.wg.Done()

	s.announceTicker.Resume()
	defer s.announceTicker.Stop()

	for {
		select {
		case <-s.announceTicker.Ticks():
			ann := &fedwire.NodeAnnounce{
				NodeID:           s.cfg.NodeID,
				Address:          s.cfg.ExternalAddr,
				PublicKey:        s.cfg.PublicKey,
				TrustWeight:      1.0,
				Relay:            true,
				MaxBandwidthMbps: 100,
			}
			sent := s.broadcast(ann)
			log.Debugf("Node announce sent to %d peers", sent)

		case <-s.quit:
			return
		}
	}
}

// routeAuditLoop periodically flags destinations whose cached route has
// drifted above the instability threshold.
func (s *Server) routeAuditLoop() {
	defer s.wg.Done()

	s.auditTicker.Resume()
	defer s.auditTicker.Stop()

	for {
		select {
		case <-s.auditTicker.Ticks():
			unstable := s.router.AuditActiveRoutes()
			if len(unstable) > 0 {
				log.Warnf("Unstable routes detected: %v",
					unstable)
			}

		case <-s.quit:
			return
		}
	}
}

// statusLoop periodically logs a status summary.
func (s *Server) statusLoop() {
	defer s.wg.Done()

	s.statusTicker.Resume()
	defer s.statusTicker.Stop()

	for {
		select {
		case <-s.statusTicker.Ticks():
			status := s.Status()
			log.Infof("Status: peers=%d known=%d links=%d "+
				"frames=%d uptime=%v trust=[%s]",
				len(status.Peers), status.KnownNodes,
				status.LinkCount, status.FramesProcessed,
				status.Uptime.Round(time.Second),
				status.TrustSummary)

		case <-s.quit:
			return
		}
	}
}

// Status returns a point-in-time summary of the daemon's state.
func (s *Server) Status() Status {
	s.mtx.RLock()
	peers := make([]string, 0, len(s.sessions))
	for nodeID := range s.sessions {
		peers = append(peers, nodeID)
	}
	known := len(s.knownNodes)
	s.mtx.RUnlock()

	var uptime time.Duration
	if !s.startTime.IsZero() {
		uptime = s.clk.Now().Sub(s.startTime)
	}

	var listenAddr string
	if addr := s.ListenAddr(); addr != nil {
		listenAddr = addr.String()
	}

	return Status{
		NodeID:          s.cfg.NodeID,
		ListenAddr:      listenAddr,
		Peers:           peers,
		KnownNodes:      known,
		LinkCount:       s.links.Len(),
		FramesProcessed: s.framesProcessed.Load(),
		Uptime:          uptime,
		TrustSummary:    s.trust.Summary(),
	}
}

// KnownNodeList returns a snapshot of every node that has announced itself.
func (s *Server) KnownNodeList() []KnownNode {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	nodes := make([]KnownNode, 0, len(s.knownNodes))
	for _, node := range s.knownNodes {
		nodes = append(nodes, node)
	}

	return nodes
}

// ReportLink records a locally measured link tensor and makes it eligible
// for the next broadcast.
func (s *Server) ReportLink(tensor linkstate.Tensor) bool {
	tensor.UpdatedAt = s.clk.Now()
	return s.links.Update(tensor)
}

func tensorFromRecord(record fedwire.TensorRecord,
	now time.Time) linkstate.Tensor {

	return linkstate.Tensor{
		From: record.FromNode,
		To:   record.ToNode,
		Latency: linkstate.LatencyDist{
			Mean:   record.LatencyMeanMs,
			StdDev: record.LatencyStdDevMs,
		},
		Jitter:      record.JitterMs,
		Bandwidth:   record.BandwidthMbps,
		Reliability: record.Reliability,
		Cost:        record.Cost,
		Version:     record.Version,
		UpdatedAt:   now,
	}
}

func recordFromTensor(tensor linkstate.Tensor) fedwire.TensorRecord {
	return fedwire.TensorRecord{
		FromNode:        tensor.From,
		ToNode:          tensor.To,
		LatencyMeanMs:   tensor.Latency.Mean,
		LatencyStdDevMs: tensor.Latency.StdDev,
		JitterMs:        tensor.Jitter,
		BandwidthMbps:   tensor.Bandwidth,
		Reliability:     tensor.Reliability,
		Cost:            tensor.Cost,
		Version:         tensor.Version,
	}
}
