package linkstate

import (
	"fmt"
	"sync"
)

const (
	// DefaultNeutralTrust is the score assigned to nodes that have no
	// recorded trust history.
	DefaultNeutralTrust = 0.5

	// DefaultTrustFloor is the lowest score any penalty can push a node
	// to. Keeping a nonzero floor lets a node eventually redeem itself
	// through a higher layer's explicit adjustment.
	DefaultTrustFloor = 0.05

	// DefaultUnreachablePenalty is the multiplicative decay applied to a
	// node's score when a connection to it fails.
	DefaultUnreachablePenalty = 0.7

	// DefaultQuarantineFloor is the minimum trust a node needs to appear
	// in any candidate path or be dialed by the bootstrapper.
	DefaultQuarantineFloor = 0.2
)

// TrustRegistry maps node identifiers to a trust score in [0, 1]. Scores
// only ever decrease, via explicit penalty events; raising a score again is
// the prerogative of whatever layer owns reputation, not this registry.
//
// The registry is read by the transport to gate reconnection attempts and by
// routing to prune and discount paths through low-trust nodes.
type TrustRegistry struct {
	mtx sync.RWMutex

	scores map[string]float64

	// neutral, floor and penalty are the tunable decay parameters, fixed
	// at construction.
	neutral float64
	floor   float64
	penalty float64
}

// NewTrustRegistry returns a registry using the default neutral score,
// floor and unreachable penalty.
func NewTrustRegistry() *TrustRegistry {
	return &TrustRegistry{
		scores:  make(map[string]float64),
		neutral: DefaultNeutralTrust,
		floor:   DefaultTrustFloor,
		penalty: DefaultUnreachablePenalty,
	}
}

// Trust returns the node's trust score, or the neutral default if the node
// has no recorded history.
func (r *TrustRegistry) Trust(node string) float64 {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	if score, ok := r.scores[node]; ok {
		return score
	}

	return r.neutral
}

// PenalizeUnreachable lowers the node's trust after a connection failure.
// The decay is multiplicative and bounded by the floor, so repeated calls
// for a flapping peer converge instead of driving the score to zero.
func (r *TrustRegistry) PenalizeUnreachable(node string) {
	r.ApplyPenalty(node, r.penalty)
}

// ApplyPenalty multiplies the node's score by the given factor, clamped to
// [0, 1], bounded below by the floor. This is the entry point for external
// penalty signals such as a blacklist subsystem; factors above 1 are
// rejected because scores must never increase through this path.
func (r *TrustRegistry) ApplyPenalty(node string, factor float64) {
	if factor < 0 || factor >= 1 {
		return
	}

	r.mtx.Lock()
	defer r.mtx.Unlock()

	score, ok := r.scores[node]
	if !ok {
		score = r.neutral
	}

	score *= factor
	if score < r.floor {
		score = r.floor
	}

	r.scores[node] = score
}

// Len returns the number of nodes with recorded trust history.
func (r *TrustRegistry) Len() int {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	return len(r.scores)
}

// Summary returns a human readable aggregate of the registry for status
// reporting.
func (r *TrustRegistry) Summary() string {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	if len(r.scores) == 0 {
		return "no trust history recorded"
	}

	var (
		sum         float64
		min         = 1.0
		quarantined int
	)
	for _, score := range r.scores {
		sum += score
		if score < min {
			min = score
		}
		if score < DefaultQuarantineFloor {
			quarantined++
		}
	}

	return fmt.Sprintf("%d nodes tracked, avg=%.2f min=%.2f "+
		"quarantined=%d", len(r.scores), sum/float64(len(r.scores)),
		min, quarantined)
}
