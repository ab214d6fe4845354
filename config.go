package fedd

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nexusfed/fedd/peer"
	"github.com/nexusfed/fedd/routing"
)

const (
	// DefaultListenAddr is the address the daemon listens on when none
	// is configured.
	DefaultListenAddr = "0.0.0.0:7777"

	// DefaultMaxPeers caps the number of concurrently active sessions
	// and scales the load factor reported in heartbeats.
	DefaultMaxPeers = 50

	// DefaultHeartbeatInterval is how often a heartbeat is sent to
	// every active peer.
	DefaultHeartbeatInterval = 30 * time.Second

	// DefaultLinkBroadcastInterval is how often the local link-quality
	// table is broadcast to all peers.
	DefaultLinkBroadcastInterval = 15 * time.Second

	// DefaultAnnounceInterval is how often the node advertises itself
	// to its peers.
	DefaultAnnounceInterval = 60 * time.Second

	// DefaultRouteAuditInterval is how often cached routes are audited
	// for instability.
	DefaultRouteAuditInterval = 30 * time.Second

	// DefaultStatusInterval is how often a status summary is logged.
	DefaultStatusInterval = 10 * time.Second

	// DefaultSeedDialTimeout bounds each bootstrap connection attempt.
	DefaultSeedDialTimeout = 5 * time.Second

	// DefaultDebugLevel is the daemon's default logging verbosity.
	DefaultDebugLevel = "info"
)

// Config holds the daemon's tunable parameters. The struct tags make it
// parseable straight from the command line via go-flags.
type Config struct {
	NodeID string `long:"nodeid" description:"Identity of this node within the federation. Generated at startup when empty."`

	PublicKey string `long:"pubkey" description:"Public key advertised during the handshake."`

	ListenAddr string `long:"listen" description:"Address to listen on for inbound federation connections."`

	ExternalAddr string `long:"externaladdr" description:"Address advertised to peers in node announcements. Defaults to the listen address."`

	MaxPeers int `long:"maxpeers" description:"Maximum number of concurrently active peer sessions."`

	Seeds []string `long:"seed" description:"Seed node to bootstrap from, formatted as address,node_id[,region]. May be specified multiple times."`

	MaxRouteHops int `long:"maxroutehops" description:"Maximum number of hops considered during route enumeration."`

	HandshakeTimeout time.Duration `long:"handshaketimeout" description:"Maximum time allowed for a handshake to complete."`

	HeartbeatInterval time.Duration `long:"heartbeatinterval" description:"Interval between heartbeats sent to active peers."`

	LinkBroadcastInterval time.Duration `long:"linkbroadcastinterval" description:"Interval between link-quality table broadcasts."`

	AnnounceInterval time.Duration `long:"announceinterval" description:"Interval between node announcements."`

	RouteAuditInterval time.Duration `long:"routeauditinterval" description:"Interval between audits of cached routes."`

	StatusInterval time.Duration `long:"statusinterval" description:"Interval between status log lines."`

	SeedDialTimeout time.Duration `long:"seeddialtimeout" description:"Timeout for each bootstrap connection attempt."`

	DebugLevel string `long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical}."`
}

// DefaultConfig returns the daemon's default configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:            DefaultListenAddr,
		MaxPeers:              DefaultMaxPeers,
		MaxRouteHops:          routing.DefaultMaxHops,
		HandshakeTimeout:      peer.DefaultHandshakeTimeout,
		HeartbeatInterval:     DefaultHeartbeatInterval,
		LinkBroadcastInterval: DefaultLinkBroadcastInterval,
		AnnounceInterval:      DefaultAnnounceInterval,
		RouteAuditInterval:    DefaultRouteAuditInterval,
		StatusInterval:        DefaultStatusInterval,
		SeedDialTimeout:       DefaultSeedDialTimeout,
		DebugLevel:            DefaultDebugLevel,
	}
}

// Validate fills derived defaults and rejects configurations the daemon
// cannot run with.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		c.NodeID = fmt.Sprintf("node-%s", uuid.NewString()[:8])
		log.Infof("No node id configured, generated %v", c.NodeID)
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.ExternalAddr == "" {
		c.ExternalAddr = c.ListenAddr
	}
	if c.MaxPeers <= 0 {
		return fmt.Errorf("maxpeers must be positive, got %d",
			c.MaxPeers)
	}
	if c.MaxRouteHops <= 0 {
		return fmt.Errorf("maxroutehops must be positive, got %d",
			c.MaxRouteHops)
	}

	for _, seed := range c.Seeds {
		if _, err := parseSeed(seed); err != nil {
			return fmt.Errorf("invalid seed %q: %w", seed, err)
		}
	}

	return nil
}

// SeedNodes returns the parsed seed list. Validate must have accepted the
// configuration first.
func (c *Config) SeedNodes() []SeedNode {
	seeds := make([]SeedNode, 0, len(c.Seeds))
	for _, raw := range c.Seeds {
		seed, err := parseSeed(raw)
		if err != nil {
			continue
		}
		seeds = append(seeds, seed)
	}

	return seeds
}
