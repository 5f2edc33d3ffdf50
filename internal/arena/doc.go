// Package arena provides the fixed-capacity tree arena.
//
// All trees of one execution context live in a single contiguous buffer, laid
// out in depth-first pre-order. A node is a variable-size record (a 16-byte
// header followed by its payload); its descendants are exactly the bytes that
// follow its record up to its next sibling. Structure is implicit: there are
// no child or parent pointers, only layout.
//
// # Layout
//
//	┌──────┬──────┬──────┬──────┬──────┬───────────────┬──────────────┐
//	│  A   │  B   │  D   │  C   │  X   │  ...          │  free        │
//	└──────┴──────┴──────┴──────┴──────┴───────────────┴──────────────┘
//	  A(B(D), C)                X       trash end ─────┘
//
// # Structural primitive
//
// Move relocates the span of a node (record plus subtree) in front of
// another position by rotating the bytes in between. Every higher-level edit
// (add, remove, replace, swap) is a sequence of moves plus retain/release
// bookkeeping. Identifiers are stable across moves: the arena keeps an
// identifier-to-offset table that is refreshed for every record inside the
// rotated window.
//
// # Reclamation
//
// Reclamation is eager. When Release drops a retain count to zero, the node
// is parked at the trash end, its children are detached and released one by
// one, and its record is removed by closing the gap.
//
// # Capacity
//
// The buffer is allocated once (on the Go heap or, with WithOffHeap, as an
// anonymous mapping) and never grows. Allocate and DeepCopy fail with
// ErrCapacityExhausted when the trailing space or the identifier space is
// insufficient; nothing is modified on failure.
//
// # Concurrency
//
// An Arena is owned by one execution context and is not safe for concurrent
// use.
package arena
