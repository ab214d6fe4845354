package linkstate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestTrustDefaultNeutral asserts unknown nodes get the neutral score.
func TestTrustDefaultNeutral(t *testing.T) {
	t.Parallel()

	registry := NewTrustRegistry()
	require.Equal(t, DefaultNeutralTrust, registry.Trust("stranger"))
	require.Zero(t, registry.Len())
}

// TestTrustPenaltyDecays asserts each unreachable penalty lowers the score
// and that repeated penalties are bounded by the floor instead of reaching
// zero.
func TestTrustPenaltyDecays(t *testing.T) {
	t.Parallel()

	registry := NewTrustRegistry()

	registry.PenalizeUnreachable("flappy")
	first := registry.Trust("flappy")
	require.Less(t, first, DefaultNeutralTrust)

	registry.PenalizeUnreachable("flappy")
	second := registry.Trust("flappy")
	require.Less(t, second, first)

	// Hammer the node; the score must converge to the floor, not zero.
	for i := 0; i < 100; i++ {
		registry.PenalizeUnreachable("flappy")
	}
	require.Equal(t, DefaultTrustFloor, registry.Trust("flappy"))
}

// TestTrustPenaltyNeverIncreases asserts the external penalty entry point
// rejects factors that would raise a score.
func TestTrustPenaltyNeverIncreases(t *testing.T) {
	t.Parallel()

	registry := NewTrustRegistry()
	registry.ApplyPenalty("peer", 0.5)
	score := registry.Trust("peer")

	registry.ApplyPenalty("peer", 1.5)
	require.Equal(t, score, registry.Trust("peer"))

	registry.ApplyPenalty("peer", -1)
	require.Equal(t, score, registry.Trust("peer"))
}

// TestTrustSummary asserts the status summary reflects tracked and
// quarantined nodes.
func TestTrustSummary(t *testing.T) {
	t.Parallel()

	registry := NewTrustRegistry()
	require.Equal(t, "no trust history recorded", registry.Summary())

	registry.ApplyPenalty("bad", 0.1)
	registry.ApplyPenalty("meh", 0.9)

	require.Equal(t, 2, registry.Len())
	require.Contains(t, registry.Summary(), "2 nodes tracked")
	require.Contains(t, registry.Summary(), "quarantined=1")
}
