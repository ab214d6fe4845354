package routing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nexusfed/fedd/linkstate"
)

// testNow pins the clock so freshly inserted tensors never look stale.
var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func addLink(t *testing.T, table *linkstate.Table, from, to string,
	latencyMs, bandwidth, cost float64) {

	t.Helper()

	ok := table.Update(linkstate.Tensor{
		From:        from,
		To:          to,
		Latency:     linkstate.LatencyDist{Mean: latencyMs, StdDev: 1},
		Jitter:      0.5,
		Bandwidth:   bandwidth,
		Reliability: 0.99,
		Cost:        cost,
		Version:     1,
		UpdatedAt:   testNow,
	})
	require.True(t, ok)
}

// diamondTable builds a small graph with a two-hop and a direct path from a
// to c.
func diamondTable(t *testing.T) *linkstate.Table {
	t.Helper()

	table := linkstate.NewTable()
	addLink(t, table, "a", "b", 10, 100, 1)
	addLink(t, table, "b", "c", 10, 100, 1)
	addLink(t, table, "a", "c", 30, 50, 1)

	return table
}

func TestBuildCandidatesEnumeratesSimplePaths(t *testing.T) {
	t.Parallel()

	table := diamondTable(t)
	trust := linkstate.NewTrustRegistry()

	candidates := BuildCandidates(
		table, trust, "a", "c", DefaultMaxHops, testNow,
	)
	require.Len(t, candidates, 2)

	byHops := make(map[int]RouteCandidate)
	for _, c := range candidates {
		byHops[c.Hops()] = c
	}

	twoHop := byHops[2]
	require.Equal(t, []string{"a", "b", "c"}, twoHop.Path)
	require.Equal(t, 20.0, twoHop.TotalLatencyMs)
	require.Equal(t, 100.0, twoHop.BottleneckBandwidthMbps)
	require.Equal(t, 2.0, twoHop.TotalCost)

	direct := byHops[1]
	require.Equal(t, []string{"a", "c"}, direct.Path)
	require.Equal(t, 30.0, direct.TotalLatencyMs)
	require.Equal(t, 50.0, direct.BottleneckBandwidthMbps)
	require.Equal(t, 1.0, direct.TotalCost)
}

// TestBuildCandidatesQuarantineFloor asserts no candidate ever traverses a
// node whose trust sits below the quarantine floor.
func TestBuildCandidatesQuarantineFloor(t *testing.T) {
	t.Parallel()

	table := diamondTable(t)
	trust := linkstate.NewTrustRegistry()

	// Drive b's trust to 0.15, below the 0.2 quarantine floor.
	trust.ApplyPenalty("b", 0.3)
	require.Less(t, trust.Trust("b"), linkstate.DefaultQuarantineFloor)

	candidates := BuildCandidates(
		table, trust, "a", "c", DefaultMaxHops, testNow,
	)
	require.Len(t, candidates, 1)
	require.Equal(t, []string{"a", "c"}, candidates[0].Path)
}

func TestBuildCandidatesHopBudget(t *testing.T) {
	t.Parallel()

	table := linkstate.NewTable()
	addLink(t, table, "a", "b", 10, 100, 1)
	addLink(t, table, "b", "c", 10, 100, 1)
	addLink(t, table, "c", "d", 10, 100, 1)
	trust := linkstate.NewTrustRegistry()

	// Reaching d needs three hops, so a budget of two finds nothing.
	candidates := BuildCandidates(table, trust, "a", "d", 2, testNow)
	require.Empty(t, candidates)

	candidates = BuildCandidates(table, trust, "a", "d", 3, testNow)
	require.Len(t, candidates, 1)
	require.Equal(t, []string{"a", "b", "c", "d"}, candidates[0].Path)
}

func TestBuildCandidatesDegenerateQueries(t *testing.T) {
	t.Parallel()

	table := diamondTable(t)
	trust := linkstate.NewTrustRegistry()

	// Source equals destination.
	require.Empty(t, BuildCandidates(
		table, trust, "a", "a", DefaultMaxHops, testNow,
	))

	// Destination with no path to it.
	require.Empty(t, BuildCandidates(
		table, trust, "a", "z", DefaultMaxHops, testNow,
	))

	// Source with no outgoing edges.
	require.Empty(t, BuildCandidates(
		table, trust, "c", "a", DefaultMaxHops, testNow,
	))
}

// TestBuildCandidatesMinTrust asserts the candidate records the weakest
// trust of any node past the source.
func TestBuildCandidatesMinTrust(t *testing.T) {
	t.Parallel()

	table := diamondTable(t)
	trust := linkstate.NewTrustRegistry()

	// 0.5 * 0.7 = 0.35, above the floor but below c's neutral 0.5.
	trust.ApplyPenalty("b", 0.7)

	candidates := BuildCandidates(
		table, trust, "a", "c", DefaultMaxHops, testNow,
	)
	require.Len(t, candidates, 2)

	for _, c := range candidates {
		switch len(c.Path) {
		case 3:
			require.InDelta(t, 0.35, c.MinTrust, 1e-9)
		case 2:
			require.InDelta(t, linkstate.DefaultNeutralTrust,
				c.MinTrust, 1e-9)
		}
	}
}
