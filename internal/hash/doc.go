// Package hash computes structural digests of trees.
//
// # Fingerprints
//
// A fingerprint is the BLAKE3-256 digest of the pre-order sequence of
// (type tag, child count, payload) of every node in a subtree. Identifiers,
// retain counts and buffer offsets are not part of the input, so a subtree
// keeps its fingerprint when it is moved, and a deep copy has the same
// fingerprint as its source.
//
// # Usage
//
//	h := hash.NewTreeHasher()
//	h.WriteNode(tag, children, payload) // once per node, in pre-order
//	fp := h.Sum()
//
// Each node is framed with its payload length, so two different sequences
// never produce the same input stream.
package hash
