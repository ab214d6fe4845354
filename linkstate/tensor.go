// Package linkstate models the measured quality of directed links between
// federation nodes: the per-edge quality tensors, the shared link table they
// are merged into, the per-node trust registry, and the stability/entropy
// function used by both transport health checks and routing.
package linkstate

import (
	"fmt"
	"time"
)

// LatencyDist summarizes the measured latency distribution of a link in
// milliseconds.
type LatencyDist struct {
	// Mean is the mean observed latency.
	Mean float64

	// StdDev is the standard deviation of the observed latency.
	StdDev float64
}

// Edge identifies one directed link between two nodes.
type Edge struct {
	// From is the node the link originates at.
	From string

	// To is the node the link terminates at.
	To string
}

// String returns a human readable representation of the edge.
func (e Edge) String() string {
	return fmt.Sprintf("%s->%s", e.From, e.To)
}

// Tensor is the measured statistical profile of one directed link. Exactly
// one tensor per ordered (from, to) pair is authoritative at a time; a
// higher Version always supersedes a lower one.
type Tensor struct {
	// From and To identify the directed edge.
	From string
	To   string

	// Latency is the link's measured latency distribution.
	Latency LatencyDist

	// Jitter is the measured jitter in milliseconds.
	Jitter float64

	// Bandwidth is the measured bandwidth in megabits per second.
	Bandwidth float64

	// Reliability is the observed delivery rate in [0, 1].
	Reliability float64

	// Cost is the abstract energy/monetary cost of using the link.
	Cost float64

	// Version is the monotonically increasing report counter for this
	// edge.
	Version uint64

	// UpdatedAt is when this tensor was last merged into the table.
	UpdatedAt time.Time
}

// Edge returns the directed edge this tensor describes.
func (t *Tensor) Edge() Edge {
	return Edge{From: t.From, To: t.To}
}
