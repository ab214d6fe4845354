package linkstate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func makeTensor(from, to string, version uint64, latency float64) Tensor {
	return Tensor{
		From:        from,
		To:          to,
		Latency:     LatencyDist{Mean: latency, StdDev: 1},
		Bandwidth:   100,
		Reliability: 0.99,
		Cost:        1,
		Version:     version,
		UpdatedAt:   time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

// TestTableVersionWins asserts that for any arrival order of updates to the
// same edge, the table converges to the tensor with the highest version.
func TestTableVersionWins(t *testing.T) {
	t.Parallel()

	orders := [][]uint64{
		{1, 2, 3},
		{3, 2, 1},
		{2, 3, 1},
		{3, 1, 2},
		{1, 3, 2},
		{2, 1, 3},
	}

	for _, order := range orders {
		table := NewTable()
		for _, version := range order {
			// Encode the version in the latency so we can tell
			// which tensor won.
			table.Update(makeTensor("a", "b", version,
				float64(version)*10))
		}

		got, ok := table.Get("a", "b")
		require.True(t, ok)
		require.EqualValues(t, 3, got.Version)
		require.Equal(t, 30.0, got.Latency.Mean)

		// The three updates all target one edge.
		require.Equal(t, 1, table.Len())
	}
}

// TestTableEqualVersionIgnored asserts a replayed report with the same
// version does not overwrite the authoritative tensor.
func TestTableEqualVersionIgnored(t *testing.T) {
	t.Parallel()

	table := NewTable()
	require.True(t, table.Update(makeTensor("a", "b", 5, 10)))

	replay := makeTensor("a", "b", 5, 99)
	require.False(t, table.Update(replay))

	got, _ := table.Get("a", "b")
	require.Equal(t, 10.0, got.Latency.Mean)
}

// TestTableOutEdges asserts out-edge lookups only return edges originating
// at the queried node.
func TestTableOutEdges(t *testing.T) {
	t.Parallel()

	table := NewTable()
	table.Update(makeTensor("a", "b", 1, 10))
	table.Update(makeTensor("a", "c", 1, 20))
	table.Update(makeTensor("b", "c", 1, 30))

	require.Len(t, table.OutEdges("a"), 2)
	require.Len(t, table.OutEdges("b"), 1)
	require.Nil(t, table.OutEdges("zz"))
	require.Equal(t, 3, table.Len())
	require.Len(t, table.Snapshot(), 3)
}

// TestTableDirectedEdges asserts the two directions of a node pair are
// independent entries.
func TestTableDirectedEdges(t *testing.T) {
	t.Parallel()

	table := NewTable()
	table.Update(makeTensor("a", "b", 1, 10))
	table.Update(makeTensor("b", "a", 7, 50))

	forward, ok := table.Get("a", "b")
	require.True(t, ok)
	require.EqualValues(t, 1, forward.Version)

	reverse, ok := table.Get("b", "a")
	require.True(t, ok)
	require.EqualValues(t, 7, reverse.Version)
}
