package fedd

import (
	"context"
	"fmt"
	"strings"

	"github.com/nexusfed/fedd/linkstate"
)

// SeedNode is a well-known node used to join the federation.
type SeedNode struct {
	// Address is the host:port the seed listens on.
	Address string

	// NodeID is the seed's expected identity.
	NodeID string

	// Region is an optional operator-facing label.
	Region string
}

func (s SeedNode) String() string {
	if s.Region == "" {
		return fmt.Sprintf("%s@%s", s.NodeID, s.Address)
	}

	return fmt.Sprintf("%s@%s (%s)", s.NodeID, s.Address, s.Region)
}

// parseSeed parses the "address,node_id[,region]" flag format.
func parseSeed(raw string) (SeedNode, error) {
	parts := strings.Split(raw, ",")
	if len(parts) < 2 || len(parts) > 3 {
		return SeedNode{}, fmt.Errorf("expected " +
			"address,node_id[,region]")
	}

	seed := SeedNode{
		Address: strings.TrimSpace(parts[0]),
		NodeID:  strings.TrimSpace(parts[1]),
	}
	if len(parts) == 3 {
		seed.Region = strings.TrimSpace(parts[2])
	}

	if seed.Address == "" {
		return SeedNode{}, fmt.Errorf("empty address")
	}
	if seed.NodeID == "" {
		return SeedNode{}, fmt.Errorf("empty node id")
	}

	return seed, nil
}

// bootstrap dials every configured seed and returns the number of sessions
// successfully established. Seeds whose identity has already fallen below
// the quarantine floor are skipped. Failures are logged and never abort the
// remaining attempts.
func (s *Server) bootstrap(ctx context.Context, seeds []SeedNode) int {
	var connected int
	for _, seed := range seeds {
		select {
		case <-s.quit:
			return connected
		default:
		}

		if s.trust.Trust(seed.NodeID) < linkstate.DefaultQuarantineFloor {
			log.Warnf("Skipping quarantined seed %v", seed)
			continue
		}

		log.Infof("Bootstrap: connecting to seed %v", seed)

		dialCtx, cancel := context.WithTimeout(
			ctx, s.cfg.SeedDialTimeout,
		)
		nodeID, err := s.ConnectPeer(dialCtx, seed.Address)
		cancel()
		if err != nil {
			log.Warnf("Bootstrap: seed %v unreachable: %v", seed,
				err)
			continue
		}

		log.Infof("Bootstrap: connected to seed %v as %v", seed,
			nodeID)
		connected++
	}

	return connected
}
