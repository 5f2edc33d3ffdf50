// Package mmap provides anonymous memory mappings for off-heap arena buffers.
//
// # Overview
//
// A tree arena owns one fixed-size buffer for its whole lifetime. Mapping that
// buffer anonymously keeps it outside the Go heap: the garbage collector never
// scans it and the process footprint does not grow after the arena is created.
//
// # Usage
//
//	m, err := mmap.MapAnon(64 * 1024)
//	if err != nil { ... }
//	defer m.Close()
//
//	buf := m.Bytes() // zero-filled, read-write
//
//	// Provide kernel hints for access patterns
//	m.Advise(mmap.AccessSequential)
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2) with MAP_ANON|MAP_PRIVATE, madvise(2) for hints
//   - Windows: VirtualAlloc/VirtualFree (Advise is a no-op)
//
// # Thread Safety
//
// Close is idempotent and protected by atomic operations. Callers must ensure
// no goroutine touches Bytes() after Close() returns.
package mmap
