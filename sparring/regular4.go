package sparring

import (
	"errors"
	"math/rand"
	"sort"
)

// ErrTooFewNodes is returned when a 4-regular graph cannot exist.
var ErrTooFewNodes = errors.New("a 4-regular sparring graph needs at least 5 nodes")

// blockEdges holds, for each supported block size, a hand-picked 4-regular
// edge list on relative node indices. Each table keeps every edge within a
// span of 4 and gives every interior node a neighbor on both sides, so the
// spliced global graph inherits those properties.
var blockEdges = map[int][]Edge{
	5: {
		{0, 1}, {0, 2}, {0, 3}, {0, 4}, {1, 2},
		{1, 3}, {1, 4}, {2, 3}, {2, 4}, {3, 4},
	},
	6: {
		{0, 1}, {0, 2}, {0, 3}, {0, 4}, {1, 2}, {1, 3},
		{1, 5}, {2, 4}, {2, 5}, {3, 4}, {3, 5}, {4, 5},
	},
	7: {
		{0, 1}, {0, 2}, {0, 3}, {0, 4}, {1, 2}, {1, 3}, {1, 5},
		{2, 4}, {2, 6}, {3, 5}, {3, 6}, {4, 5}, {4, 6}, {5, 6},
	},
	8: {
		{0, 1}, {0, 2}, {0, 3}, {0, 4}, {1, 2}, {1, 3}, {1, 5}, {2, 4},
		{2, 5}, {3, 6}, {3, 7}, {4, 6}, {4, 7}, {5, 6}, {5, 7}, {6, 7},
	},
	9: {
		{0, 1}, {0, 2}, {0, 3}, {0, 4}, {1, 2}, {1, 3}, {1, 5}, {2, 4}, {2, 5},
		{3, 6}, {3, 7}, {4, 6}, {4, 8}, {5, 7}, {5, 8}, {6, 7}, {6, 8}, {7, 8},
	},
}

// smallPartitions maps every residue below 25 to a fixed block-size
// sequence; sizes 5 and 6 alone cannot cover the awkward small cases, so
// the table leans on the 7, 8 and 9 blocks where it must.
var smallPartitions = map[int][]int{
	5:  {5},
	6:  {6},
	7:  {7},
	8:  {8},
	9:  {9},
	10: {5, 5},
	11: {5, 6},
	12: {6, 6},
	13: {6, 7},
	14: {7, 7},
	15: {5, 5, 5},
	16: {5, 5, 6},
	17: {5, 6, 6},
	18: {6, 6, 6},
	19: {6, 6, 7},
	20: {5, 5, 5, 5},
	21: {5, 5, 5, 6},
	22: {5, 5, 6, 6},
	23: {5, 6, 6, 6},
	24: {6, 6, 6, 6},
}

// partition splits n into an ordered sequence of block sizes: random draws
// from {5, 6} while n stays large, then the fixed table for the residue.
// The final order is shuffled.
func partition(n int, rng *rand.Rand) []int {
	var sizes []int
	for n >= 25 {
		m := 5 + rng.Intn(2)
		sizes = append(sizes, m)
		n -= m
	}
	sizes = append(sizes, smallPartitions[n]...)
	rng.Shuffle(len(sizes), func(i, j int) {
		sizes[i], sizes[j] = sizes[j], sizes[i]
	})
	return sizes
}

// Regular4 produces an undirected 4-regular graph on nodes 0..n-1 in which
// every edge spans at most 4 indices and every interior node has at least
// one neighbor below it and one above it. Blocks of hard-coded graphs are
// laid side by side, then each boundary is spliced with a degree-preserving
// edge swap that crosses it.
func Regular4(n int, rng *rand.Rand) ([]Edge, error) {
	if n < 5 {
		return nil, ErrTooFewNodes
	}

	sizes := partition(n, rng)

	adj := make(map[int]map[int]bool, n)
	addEdge := func(u, v int) {
		if adj[u] == nil {
			adj[u] = make(map[int]bool)
		}
		if adj[v] == nil {
			adj[v] = make(map[int]bool)
		}
		adj[u][v] = true
		adj[v][u] = true
	}
	removeEdge := func(u, v int) {
		delete(adj[u], v)
		delete(adj[v], u)
	}

	offset := 0
	starts := make([]int, len(sizes))
	for i, m := range sizes {
		starts[i] = offset
		for _, e := range blockEdges[m] {
			addEdge(offset+e.U, offset+e.V)
		}
		offset += m
	}

	// Splice each block boundary: A is the last node of the left block, B
	// the first of the right. Swapping (A,C),(B,D) for (B,C),(A,D) keeps
	// all degrees and threads the chain of blocks together.
	for i := 1; i < len(sizes); i++ {
		a := starts[i] - 1
		b := starts[i]

		c := pickNeighbor(adj[a], rng, false)
		d := pickNeighbor(adj[b], rng, true)

		removeEdge(a, c)
		removeEdge(b, d)
		addEdge(b, c)
		addEdge(a, d)
	}

	edges := make([]Edge, 0, 2*n)
	for u, nbrs := range adj {
		for v := range nbrs {
			if u < v {
				edges = append(edges, Edge{U: u, V: v})
			}
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].U != edges[j].U {
			return edges[i].U < edges[j].U
		}
		return edges[i].V < edges[j].V
	})
	return edges, nil
}

// pickNeighbor draws a random neighbor, excluding the largest when
// dropLargest is set and the smallest otherwise. The excluded extreme is
// the edge that keeps the boundary node connected to its own side.
func pickNeighbor(nbrs map[int]bool, rng *rand.Rand, dropLargest bool) int {
	ids := make([]int, 0, len(nbrs))
	for v := range nbrs {
		ids = append(ids, v)
	}
	sort.Ints(ids)
	if dropLargest {
		ids = ids[:len(ids)-1]
	} else {
		ids = ids[1:]
	}
	return ids[rng.Intn(len(ids))]
}
