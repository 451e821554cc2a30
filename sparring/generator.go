// Package sparring builds the pairing graphs used for periodic
// auto-scrimmages: a complete graph for tiny fields and a spliced
// 4-regular graph for everything else.
package sparring

import "math/rand"

// Edge is one undirected pairing between node indices.
type Edge struct {
	U, V int
}

// RoundRobin returns the complete graph on n nodes.
func RoundRobin(n int) []Edge {
	edges := make([]Edge, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			edges = append(edges, Edge{U: i, V: j})
		}
	}
	return edges
}

// FlipAndShuffle randomizes edge direction (color fairness) and edge order
// (queue-priority fairness) in place.
func FlipAndShuffle(edges []Edge, rng *rand.Rand) {
	for i := range edges {
		if rng.Intn(2) == 1 {
			edges[i].U, edges[i].V = edges[i].V, edges[i].U
		}
	}
	rng.Shuffle(len(edges), func(i, j int) {
		edges[i], edges[j] = edges[j], edges[i]
	})
}
