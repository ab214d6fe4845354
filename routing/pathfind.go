package routing

import (
	"math"
	"time"

	"github.com/nexusfed/fedd/linkstate"
)

// DefaultMaxHops bounds the depth-first path search. Paths longer than this
// are abandoned before the search recurses any further, so the enumeration
// cost stays bounded even on dense link tables.
const DefaultMaxHops = 5

// LinkSource exposes the directed link-quality tensors the candidate builder
// walks. *linkstate.Table satisfies this.
type LinkSource interface {
	// OutEdges returns the known tensors originating at the given node.
	OutEdges(node string) []linkstate.Tensor
}

// TrustSource reports the current trust weight of a node.
// *linkstate.TrustRegistry satisfies this.
type TrustSource interface {
	Trust(node string) float64
}

// RouteCandidate is one enumerated simple path from source to destination
// together with its aggregated metrics. Candidates are request scoped: they
// are rebuilt from the live link table on every routing query and never
// persisted.
type RouteCandidate struct {
	// Path is the ordered node sequence, source first, destination last.
	Path []string

	// Tensors holds the link tensor traversed by each hop, so
	// len(Tensors) == len(Path)-1.
	Tensors []linkstate.Tensor

	// TotalLatencyMs is the sum of latency means across all hops.
	TotalLatencyMs float64

	// BottleneckBandwidthMbps is the minimum bandwidth across all hops.
	BottleneckBandwidthMbps float64

	// TotalCost is the sum of relay costs across all hops.
	TotalCost float64

	// MinTrust is the lowest trust weight of any node on the path past
	// the source.
	MinTrust float64

	// StabilityScore and Entropy summarize how predictable the path's
	// latency behavior is. See linkstate.PathStability.
	StabilityScore float64
	Entropy        float64

	// RawScore and Probability are filled in by the router during
	// selection and are zero on a freshly built candidate.
	RawScore    float64
	Probability float64
}

// Hops returns the number of links the candidate traverses.
func (c *RouteCandidate) Hops() int {
	return len(c.Tensors)
}

func newRouteCandidate(nodes []string, tensors []linkstate.Tensor,
	minTrust float64, now time.Time) RouteCandidate {

	// The search mutates its working slices in place, so the candidate
	// needs its own copies.
	path := make([]string, len(nodes))
	copy(path, nodes)
	hops := make([]linkstate.Tensor, len(tensors))
	copy(hops, tensors)

	var totalLatency, totalCost float64
	bottleneck := math.Inf(1)
	for _, tensor := range hops {
		totalLatency += tensor.Latency.Mean
		totalCost += tensor.Cost
		if tensor.Bandwidth < bottleneck {
			bottleneck = tensor.Bandwidth
		}
	}
	if math.IsInf(bottleneck, 1) {
		bottleneck = 0
	}

	health := linkstate.PathStability(hops, now)

	return RouteCandidate{
		Path:                    path,
		Tensors:                 hops,
		TotalLatencyMs:          totalLatency,
		BottleneckBandwidthMbps: bottleneck,
		TotalCost:               totalCost,
		MinTrust:                minTrust,
		StabilityScore:          health.Score,
		Entropy:                 health.Entropy,
	}
}

// pathSearch carries the mutable state of one depth-first enumeration.
type pathSearch struct {
	links       LinkSource
	trust       TrustSource
	destination string
	maxHops     int
	now         time.Time

	visited map[string]struct{}
	nodes   []string
	tensors []linkstate.Tensor
	out     []RouteCandidate
}

// BuildCandidates enumerates every simple path from source to destination
// within the hop budget, skipping any hop into a node whose trust is below
// the quarantine floor. A source equal to the destination, or a node with no
// outgoing edges, yields zero candidates rather than an error.
func BuildCandidates(links LinkSource, trust TrustSource, source,
	destination string, maxHops int, now time.Time) []RouteCandidate {

	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}

	s := &pathSearch{
		links:       links,
		trust:       trust,
		destination: destination,
		maxHops:     maxHops,
		now:         now,
		visited:     make(map[string]struct{}),
		nodes:       []string{source},
	}
	s.walk(source, 1.0)

	return s.out
}

func (s *pathSearch) walk(current string, minTrust float64) {
	if len(s.nodes) > s.maxHops+1 {
		return
	}

	// A completed path needs at least one hop, which also rules out the
	// degenerate source == destination query.
	if current == s.destination && len(s.tensors) > 0 {
		s.out = append(s.out, newRouteCandidate(
			s.nodes, s.tensors, minTrust, s.now,
		))
		return
	}

	s.visited[current] = struct{}{}
	defer delete(s.visited, current)

	for _, tensor := range s.links.OutEdges(current) {
		if _, ok := s.visited[tensor.To]; ok {
			continue
		}

		hopTrust := s.trust.Trust(tensor.To)
		if hopTrust < linkstate.DefaultQuarantineFloor {
			log.Tracef("Skipping quarantined hop %v "+
				"(trust=%.2f)", tensor.To, hopTrust)
			continue
		}

		s.nodes = append(s.nodes, tensor.To)
		s.tensors = append(s.tensors, tensor)

		s.walk(tensor.To, math.Min(minTrust, hopTrust))

		s.nodes = s.nodes[:len(s.nodes)-1]
		s.tensors = s.tensors[:len(s.tensors)-1]
	}
}
