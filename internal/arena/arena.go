package arena

import (
	"errors"
	"fmt"
	"slices"

	"github.com/hupe1980/treepool/internal/conv"
	"github.com/hupe1980/treepool/internal/mmap"
)

var (
	// ErrCapacityExhausted is returned when an allocation or deep copy does not fit.
	ErrCapacityExhausted = errors.New("arena: capacity exhausted")
	// ErrInvalidIdentifier is returned when an identifier does not name a live record.
	ErrInvalidIdentifier = errors.New("arena: invalid identifier")
	// ErrInvalidDestination is returned when a move targets a position inside the moved subtree
	// or outside the used region.
	ErrInvalidDestination = errors.New("arena: invalid move destination")
	// ErrRetainUnderflow is the panic value (wrapped) when a release has no matching retain.
	ErrRetainUnderflow = errors.New("arena: retain count underflow")
	// ErrHasChildren is returned when a record that must be childless still has children.
	ErrHasChildren = errors.New("arena: record has children")
	// ErrInvalidCapacity is returned by New for unusable capacities.
	ErrInvalidCapacity = errors.New("arena: invalid capacity")
	// ErrCorrupt is returned by Check when the layout violates an invariant.
	ErrCorrupt = errors.New("arena: layout corrupted")
)

// CapacityError describes an allocation the arena could not satisfy.
type CapacityError struct {
	Requested   int  // bytes (or identifiers when Identifiers is set)
	Available   int  // bytes (or identifiers when Identifiers is set)
	Identifiers bool // the identifier space, not the buffer, ran out
}

func (e *CapacityError) Error() string {
	if e.Identifiers {
		return fmt.Sprintf("arena: capacity exhausted: %d identifiers requested, %d free", e.Requested, e.Available)
	}
	return fmt.Sprintf("arena: capacity exhausted: %d bytes requested, %d free", e.Requested, e.Available)
}

func (e *CapacityError) Unwrap() error { return ErrCapacityExhausted }

// Stats tracks arena usage.
type Stats struct {
	Capacity          int    // bytes available to ordinary allocations
	Reserve           int    // bytes beyond Capacity held back for failure records
	BytesUsed         int    // bytes in [0, TrashEnd), at most Capacity+Reserve
	PeakBytesUsed     int    // high-water mark of BytesUsed
	LiveNodes         int    // live records
	MaxIdentifiers    int    // size of the identifier space
	Allocations       uint64 // records created by Allocate/AllocateAs/DeepCopy
	FailedAllocations uint64 // Allocate/DeepCopy calls rejected for capacity
	Moves             uint64 // Move calls that relocated bytes
	BytesMoved        uint64 // bytes rotated by Move
	Destroyed         uint64 // records reclaimed
}

// Option configures an Arena.
type Option func(*options)

type options struct {
	maxIdentifiers int
	offHeap        bool
	reserve        int
}

// WithMaxIdentifiers bounds the number of simultaneously live records.
// The default is (capacity + reserve) / HeaderSize, the most records the buffer can hold.
func WithMaxIdentifiers(n int) Option {
	return func(o *options) {
		o.maxIdentifiers = n
	}
}

// WithReserve appends bytes to the buffer that only AllocateReserved and
// AllocateAs may use. Ordinary allocations and deep copies stop at the
// capacity, so a spent reserve refills as soon as usage drops below it.
func WithReserve(bytes int) Option {
	return func(o *options) {
		o.reserve = bytes
	}
}

// WithOffHeap backs the buffer with an anonymous mapping instead of the Go heap.
func WithOffHeap(enabled bool) Option {
	return func(o *options) {
		o.offHeap = enabled
	}
}

// Arena is a fixed-capacity buffer holding node records in depth-first
// pre-order. The bytes following a record, up to its next sibling, are
// exactly its descendants. Live data occupies [0, cursor).
//
// Arena is not safe for concurrent use.
type Arena struct {
	buf     []byte
	cursor  int
	offsets []int32 // identifier -> offset, -1 when not live
	parents []int32 // identifier -> parent identifier, -1 for roots
	ids     *idAllocator
	live    int
	mapping *mmap.Mapping
	stats   Stats
}

// New creates an arena with a buffer of capacity bytes. The buffer never grows.
func New(capacity int, opts ...Option) (*Arena, error) {
	capacity &^= RecordAlignment - 1
	if capacity < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is smaller than one record", ErrInvalidCapacity, capacity)
	}
	if _, err := conv.IntToInt32(capacity); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCapacity, err)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.reserve < 0 {
		return nil, fmt.Errorf("%w: negative reserve %d", ErrInvalidCapacity, o.reserve)
	}
	reserve := (o.reserve + RecordAlignment - 1) &^ (RecordAlignment - 1)
	size := capacity + reserve
	if _, err := conv.IntToInt32(size); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCapacity, err)
	}
	if o.maxIdentifiers <= 0 {
		o.maxIdentifiers = size / HeaderSize
	}
	if _, err := conv.IntToInt32(o.maxIdentifiers); err != nil {
		return nil, fmt.Errorf("arena: identifier space: %w", err)
	}
	maxIDs, err := conv.IntToUint64(o.maxIdentifiers)
	if err != nil {
		return nil, err
	}

	a := &Arena{
		offsets: make([]int32, o.maxIdentifiers),
		parents: make([]int32, o.maxIdentifiers),
		ids:     newIDAllocator(maxIDs),
	}
	for i := range a.offsets {
		a.offsets[i] = -1
		a.parents[i] = -1
	}

	if o.offHeap {
		m, err := mmap.MapAnon(size)
		if err != nil {
			return nil, fmt.Errorf("failed to map anonymous memory for arena: %w", err)
		}
		_ = m.Advise(mmap.AccessWillNeed)
		a.mapping = m
		a.buf = m.Bytes()
	} else {
		a.buf = make([]byte, size)
	}

	a.stats.Capacity = capacity
	a.stats.Reserve = reserve
	a.stats.MaxIdentifiers = o.maxIdentifiers
	return a, nil
}

// Close releases the buffer. The arena must not be used afterwards.
func (a *Arena) Close() error {
	a.buf = nil
	a.cursor = 0
	if a.mapping != nil {
		err := a.mapping.Close()
		a.mapping = nil
		return err
	}
	return nil
}

// Capacity returns the bytes available to ordinary allocations.
func (a *Arena) Capacity() int { return a.stats.Capacity }

// Reserve returns the bytes beyond Capacity held back for failure records.
func (a *Arena) Reserve() int { return a.stats.Reserve }

// TrashEnd returns the logical end of the used region. Subtrees are parked
// here right before they are released.
func (a *Arena) TrashEnd() int { return a.cursor }

// Live returns the number of live records.
func (a *Arena) Live() int { return a.live }

// Has reports whether id names a live record.
func (a *Arena) Has(id int) bool {
	return id >= 0 && id < len(a.offsets) && a.offsets[id] >= 0
}

func (a *Arena) offset(id int) (int, error) {
	if !a.Has(id) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidIdentifier, id)
	}
	return int(a.offsets[id]), nil
}

func (a *Arena) record(off int) Record {
	return Record{buf: a.buf[off : off+readSize(a.buf, off)], off: off}
}

// RecordAt returns the record of the live node id.
func (a *Arena) RecordAt(id int) (Record, error) {
	off, err := a.offset(id)
	if err != nil {
		return Record{}, err
	}
	return a.record(off), nil
}

// Allocate appends a childless record with a zeroed payload at the trash end.
// The new record has retain count 1, owned by the caller.
func (a *Arena) Allocate(tag uint16, payloadSize int) (int, error) {
	id, ok := a.ids.take()
	if !ok {
		a.stats.FailedAllocations++
		return -1, &CapacityError{Requested: 1, Available: 0, Identifiers: true}
	}
	if err := a.place(id, tag, payloadSize, a.stats.Capacity); err != nil {
		a.ids.put(id)
		return -1, err
	}
	return id, nil
}

// AllocateReserved is Allocate with access to the reserve.
func (a *Arena) AllocateReserved(tag uint16, payloadSize int) (int, error) {
	id, ok := a.ids.take()
	if !ok {
		a.stats.FailedAllocations++
		return -1, &CapacityError{Requested: 1, Available: 0, Identifiers: true}
	}
	if err := a.place(id, tag, payloadSize, len(a.buf)); err != nil {
		a.ids.put(id)
		return -1, err
	}
	return id, nil
}

// AllocateAs is AllocateReserved under an identifier reserved by Reclaim.
func (a *Arena) AllocateAs(id int, tag uint16, payloadSize int) error {
	if id < 0 || id >= len(a.offsets) || a.offsets[id] >= 0 || a.ids.isFree(id) {
		return fmt.Errorf("%w: %d is not reserved", ErrInvalidIdentifier, id)
	}
	return a.place(id, tag, payloadSize, len(a.buf))
}

// free returns the bytes left below limit.
func (a *Arena) free(limit int) int {
	return max(limit-a.cursor, 0)
}

func (a *Arena) place(id int, tag uint16, payloadSize, limit int) error {
	if payloadSize < 0 {
		return fmt.Errorf("arena: negative payload size %d", payloadSize)
	}
	size := RecordSize(payloadSize)
	if free := a.free(limit); size > free {
		a.stats.FailedAllocations++
		return &CapacityError{Requested: size, Available: free}
	}
	size32, err := conv.IntToUint32(size)
	if err != nil {
		return err
	}

	off := a.cursor
	writeHeader(a.buf, off, int32(id), size32, tag) //nolint:gosec // id < maxIdentifiers <= MaxInt32
	clear(a.buf[off+HeaderSize : off+size])
	a.offsets[id] = int32(off) //nolint:gosec // off < capacity <= MaxInt32
	a.parents[id] = -1
	a.cursor += size
	a.live++
	a.stats.Allocations++
	a.notePeak()
	return nil
}

// Move relocates the span of id (record plus its whole subtree) so that it
// immediately precedes the byte that was at dst. Identifiers, retain counts
// and the byte order inside the span are preserved. dst must be a record
// boundary in [0, TrashEnd]. Move returns the number of bytes rotated.
func (a *Arena) Move(id, dst int) (int, error) {
	src, err := a.offset(id)
	if err != nil {
		return 0, err
	}
	if dst < 0 || dst > a.cursor {
		return 0, fmt.Errorf("%w: %d outside [0, %d]", ErrInvalidDestination, dst, a.cursor)
	}
	end := a.subtreeEnd(src)

	var lo, hi int
	switch {
	case dst == src || dst == end:
		return 0, nil
	case dst > src && dst < end:
		return 0, fmt.Errorf("%w: %d lies inside subtree [%d, %d)", ErrInvalidDestination, dst, src, end)
	case dst > end:
		lo, hi = src, dst
		rotate(a.buf[lo:hi], end-src)
	default:
		lo, hi = dst, end
		rotate(a.buf[lo:hi], src-dst)
	}
	a.reindex(lo, hi)

	moved := hi - lo
	a.stats.Moves++
	a.stats.BytesMoved += uint64(moved) //nolint:gosec // moved > 0
	return moved, nil
}

// rotate rotates b left by k bytes in place.
func rotate(b []byte, k int) {
	slices.Reverse(b[:k])
	slices.Reverse(b[k:])
	slices.Reverse(b)
}

// reindex refreshes the identifier table for every record in [lo, hi).
func (a *Arena) reindex(lo, hi int) {
	for off := lo; off < hi; off += readSize(a.buf, off) {
		a.offsets[readID(a.buf, off)] = int32(off) //nolint:gosec // off < capacity <= MaxInt32
	}
}

// Attach moves the parentless child into the index-th child slot of parent
// and counts it as a child there. It returns the number of bytes rotated.
// Retain counts are left to the caller.
func (a *Arena) Attach(parent, child, index int) (int, error) {
	if !a.Has(child) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidIdentifier, child)
	}
	if p := a.parents[child]; p >= 0 {
		return 0, fmt.Errorf("%w: %d is already a child of %d", ErrInvalidDestination, child, p)
	}
	if inside, err := a.Contains(child, parent); err != nil || inside {
		if err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %d is an ancestor of %d", ErrInvalidDestination, child, parent)
	}
	n, err := a.ChildCount(parent)
	if err != nil {
		return 0, err
	}
	n16, err := conv.IntToUint16(n + 1)
	if err != nil {
		return 0, err
	}
	dst, err := a.ChildOffset(parent, index)
	if err != nil {
		return 0, err
	}
	moved, err := a.Move(child, dst)
	if err != nil {
		return 0, err
	}
	writeChildren(a.buf, int(a.offsets[parent]), n16)
	a.parents[child] = int32(parent) //nolint:gosec // parent < maxIdentifiers <= MaxInt32
	return moved, nil
}

// Detach parks child at the trash end and drops it from its parent's child
// count. The parent edge retain stays with child. It returns the number of
// bytes rotated.
func (a *Arena) Detach(child int) (int, error) {
	if !a.Has(child) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidIdentifier, child)
	}
	parent := int(a.parents[child])
	if parent < 0 {
		return 0, fmt.Errorf("%w: %d has no parent", ErrInvalidDestination, child)
	}
	moved, err := a.Move(child, a.cursor)
	if err != nil {
		return 0, err
	}
	off := int(a.offsets[parent])
	writeChildren(a.buf, off, uint16(readChildren(a.buf, off)-1)) //nolint:gosec // parent has child
	a.parents[child] = -1
	return moved, nil
}

// DeepCopy duplicates the subtree of id at the trash end with fresh
// identifiers. The copied root has retain count 1 (owned by the caller);
// every copied descendant has retain count 1 (its parent edge). Nothing
// changes when the copy does not fit.
func (a *Arena) DeepCopy(id int) (int, error) {
	src, err := a.offset(id)
	if err != nil {
		return -1, err
	}
	end := a.subtreeEnd(src)
	n := end - src

	if free := a.free(a.stats.Capacity); n > free {
		a.stats.FailedAllocations++
		return -1, &CapacityError{Requested: n, Available: free}
	}
	nodes := 0
	for off := src; off < end; off += readSize(a.buf, off) {
		nodes++
	}
	if avail := a.ids.available(); uint64(nodes) > avail { //nolint:gosec // nodes > 0
		a.stats.FailedAllocations++
		availInt, _ := conv.Uint64ToInt(avail)
		return -1, &CapacityError{Requested: nodes, Available: availInt, Identifiers: true}
	}

	dst := a.cursor
	copy(a.buf[dst:dst+n], a.buf[src:end])
	root := -1
	var open []pending // copied ancestors still missing children
	for off := dst; off < dst+n; off += readSize(a.buf, off) {
		newID, _ := a.ids.take()
		parent := -1
		if k := len(open); k > 0 {
			parent = open[k-1].id
			if open[k-1].left--; open[k-1].left == 0 {
				open = open[:k-1]
			}
		}
		if root < 0 {
			root = newID
		}
		writeID(a.buf, off, int32(newID)) //nolint:gosec // id < maxIdentifiers <= MaxInt32
		writeRetain(a.buf, off, 1)
		a.offsets[newID] = int32(off) //nolint:gosec // off < capacity <= MaxInt32
		a.parents[newID] = int32(parent) //nolint:gosec // parent < maxIdentifiers <= MaxInt32
		if c := readChildren(a.buf, off); c > 0 {
			open = append(open, pending{id: newID, left: c})
		}
	}
	a.cursor += n
	a.live += nodes
	a.stats.Allocations += uint64(nodes) //nolint:gosec // nodes > 0
	a.notePeak()
	return root, nil
}

// SetChildCount overwrites the child count of id.
func (a *Arena) SetChildCount(id, n int) error {
	off, err := a.offset(id)
	if err != nil {
		return err
	}
	n16, err := conv.IntToUint16(n)
	if err != nil {
		return err
	}
	writeChildren(a.buf, off, n16)
	return nil
}

// SetRetainCount overwrites the retain count of id.
func (a *Arena) SetRetainCount(id, n int) error {
	off, err := a.offset(id)
	if err != nil {
		return err
	}
	n32, err := conv.IntToUint32(n)
	if err != nil {
		return err
	}
	writeRetain(a.buf, off, n32)
	return nil
}

func (a *Arena) notePeak() {
	if a.cursor > a.stats.PeakBytesUsed {
		a.stats.PeakBytesUsed = a.cursor
	}
}

// Stats returns the current arena statistics.
func (a *Arena) Stats() Stats {
	s := a.stats
	s.BytesUsed = a.cursor
	s.LiveNodes = a.live
	return s
}

// Usage returns BytesUsed as a percentage of Capacity. It exceeds 100 while
// the reserve is in use.
func (a *Arena) Usage() float64 {
	if a.stats.Capacity == 0 {
		return 0
	}
	return float64(a.cursor) / float64(a.stats.Capacity) * 100
}

func (a *Arena) String() string {
	stats := a.Stats()
	return fmt.Sprintf(
		"Arena{capacity: %d B, reserve: %d B, used: %d B, peak: %d B, usage: %.1f%%, nodes: %d, allocs: %d, failed: %d, moves: %d, moved: %d B}",
		stats.Capacity,
		stats.Reserve,
		stats.BytesUsed,
		stats.PeakBytesUsed,
		a.Usage(),
		stats.LiveNodes,
		stats.Allocations,
		stats.FailedAllocations,
		stats.Moves,
		stats.BytesMoved,
	)
}
