// Package testutil provides testing utilities for treepool.
//
// This package is intended for use in tests and benchmarks only.
// It provides a seeded, thread-safe random source for randomized
// edit sequences.
//
//	rng := testutil.NewRNG(seed)
//	op := rng.Pick([]int{4, 2, 1})     // weighted choice
//	n := nodes[rng.Zipf(len(nodes), 1.1)] // skewed toward a few hot nodes
//	rng.FillBytes(n.Payload())
package testutil
