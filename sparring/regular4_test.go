package sparring

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegular4RejectsTinyFields(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for n := 0; n < 5; n++ {
		_, err := Regular4(n, rng)
		require.ErrorIs(t, err, ErrTooFewNodes, "n=%d", n)
	}
}

func TestRegular4Properties(t *testing.T) {
	for n := 5; n <= 120; n++ {
		n := n
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			rng := rand.New(rand.NewSource(int64(n)))
			edges, err := Regular4(n, rng)
			require.NoError(t, err)
			require.Len(t, edges, 2*n, "a 4-regular graph has 2n edges")

			degree := make([]int, n)
			below := make([]bool, n)
			above := make([]bool, n)
			seen := make(map[Edge]bool)
			for _, e := range edges {
				require.NotEqual(t, e.U, e.V, "self loop")
				require.False(t, seen[e], "duplicate edge %v", e)
				seen[e] = true
				require.Less(t, e.V-e.U, 5, "edge %v spans more than 4", e)
				require.GreaterOrEqual(t, e.U, 0)
				require.Less(t, e.V, n)

				degree[e.U]++
				degree[e.V]++
				above[e.U] = true
				below[e.V] = true
			}
			for i := 0; i < n; i++ {
				assert.Equal(t, 4, degree[i], "node %d degree", i)
			}
			for i := 1; i < n-1; i++ {
				assert.True(t, below[i], "interior node %d has no smaller neighbor", i)
				assert.True(t, above[i], "interior node %d has no larger neighbor", i)
			}
		})
	}
}

func TestRegular4IsDeterministicPerSeed(t *testing.T) {
	a, err := Regular4(50, rand.New(rand.NewSource(7)))
	require.NoError(t, err)
	b, err := Regular4(50, rand.New(rand.NewSource(7)))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRoundRobin(t *testing.T) {
	edges := RoundRobin(4)
	assert.Len(t, edges, 6)

	edges = RoundRobin(2)
	assert.Equal(t, []Edge{{U: 0, V: 1}}, edges)
}

func TestFlipAndShuffleKeepsPairs(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	edges, err := Regular4(20, rng)
	require.NoError(t, err)

	pairs := make(map[Edge]int)
	for _, e := range edges {
		pairs[normalize(e)]++
	}

	FlipAndShuffle(edges, rng)
	for _, e := range edges {
		pairs[normalize(e)]--
	}
	for e, count := range pairs {
		assert.Zero(t, count, "edge %v gained or lost", e)
	}
}

func normalize(e Edge) Edge {
	if e.U > e.V {
		return Edge{U: e.V, V: e.U}
	}
	return e
}
