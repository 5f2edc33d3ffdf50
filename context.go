package treepool

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/hupe1980/treepool/internal/arena"
	"github.com/hupe1980/treepool/resource"
	"golang.org/x/time/rate"
)

// Stats is a snapshot of a context's arena.
type Stats struct {
	Capacity          int    // bytes available to ordinary allocations
	Reserve           int    // extra bytes only failure sentinels in trees may use
	BytesUsed         int    // bytes holding live records
	PeakBytesUsed     int    // high-water mark of BytesUsed
	LiveNodes         int    // live records, canonical sentinels included
	MaxIdentifiers    int    // size of the identifier space
	Allocations       uint64 // records created
	FailedAllocations uint64 // allocations and deep copies that did not fit
	Moves             uint64 // moves that relocated bytes
	BytesMoved        uint64 // bytes rotated by moves
	Destroyed         uint64 // records reclaimed
	Substitutions     uint64 // subtrees replaced by failure sentinels
}

// Context owns one arena and every tree stored in it. All handles of a
// context must be used from one goroutine at a time; distinct contexts are
// independent and may run in parallel.
type Context struct {
	id       uuid.UUID
	arena    *arena.Arena
	registry *Registry
	types    []*NodeType // by tag

	// canonical sentinel identifier per failure type, indexed by tag; -1 for
	// non-failure tags
	sentinels []int

	logger     *Logger
	metrics    MetricsCollector
	limiter    *rate.Limiter
	suppressed int

	resources *resource.Controller
	reserved  int64
	offHeap   bool

	substitutions uint64
	closed        bool
}

// NewContext creates a context with a fresh arena for the types of reg.
// A nil reg uses NewRegistry(). The registry is sealed afterwards.
//
// One canonical sentinel per failure type is allocated up front, so the
// capacity must at least hold those records.
func NewContext(reg *Registry, optFns ...Option) (*Context, error) {
	o := applyOptions(optFns)
	if reg == nil {
		reg = NewRegistry()
	}

	if err := o.resources.TryAcquireContext(); err != nil {
		return nil, fmt.Errorf("treepool: %w", err)
	}
	// the arena rounds its capacity down to alignment and adds one header of
	// reserve for failure sentinels
	reserved := int64(max(o.capacity, 0)&^(arena.RecordAlignment-1)) + arena.HeaderSize
	if err := o.resources.TryAcquireMemory(reserved); err != nil {
		o.resources.ReleaseContext()
		return nil, fmt.Errorf("treepool: reserving %d bytes: %w", reserved, err)
	}

	a, err := arena.New(o.capacity,
		arena.WithMaxIdentifiers(o.maxIdentifiers),
		arena.WithOffHeap(o.offHeap),
		arena.WithReserve(arena.HeaderSize),
	)
	if err != nil {
		o.resources.ReleaseMemory(reserved)
		o.resources.ReleaseContext()
		return nil, fmt.Errorf("treepool: %w", err)
	}

	c := &Context{
		id:        uuid.New(),
		arena:     a,
		registry:  reg,
		types:     reg.seal(),
		metrics:   o.metricsCollector,
		limiter:   rate.NewLimiter(o.failureLogRate, o.failureLogBurst),
		resources: o.resources,
		reserved:  reserved,
		offHeap:   o.offHeap,
	}
	c.logger = o.logger.WithContextID(c.id)

	c.sentinels = make([]int, len(c.types))
	for tag, t := range c.types {
		c.sentinels[tag] = -1
		if !t.IsFailure() {
			continue
		}
		id, err := a.Allocate(t.tag, 0)
		if err != nil {
			_ = a.Close()
			o.resources.ReleaseMemory(reserved)
			o.resources.ReleaseContext()
			return nil, fmt.Errorf("treepool: capacity too small for the %s sentinel: %w", t, err)
		}
		c.sentinels[tag] = id
	}

	stats := a.Stats()
	c.logger.LogContextOpen(stats.Capacity, stats.MaxIdentifiers, o.offHeap)
	return c, nil
}

// ID returns the unique ID of the context.
func (c *Context) ID() uuid.UUID { return c.id }

// Registry returns the registry of the context.
func (c *Context) Registry() *Registry { return c.registry }

// Closed reports whether Close was called.
func (c *Context) Closed() bool { return c.closed }

// Close releases the arena and the reserved resources. Every handle of the
// context becomes undefined. Close is idempotent.
func (c *Context) Close() error {
	if c.closed {
		return nil
	}
	stats := c.Stats()
	c.closed = true

	err := c.arena.Close()
	c.resources.ReleaseMemory(c.reserved)
	c.resources.ReleaseContext()
	c.logger.LogContextClose(stats, err)
	return err
}

// Stats returns a snapshot of the arena statistics.
func (c *Context) Stats() Stats {
	s := c.arena.Stats()
	return Stats{
		Capacity:          s.Capacity,
		Reserve:           s.Reserve,
		BytesUsed:         s.BytesUsed,
		PeakBytesUsed:     s.PeakBytesUsed,
		LiveNodes:         s.LiveNodes,
		MaxIdentifiers:    s.MaxIdentifiers,
		Allocations:       s.Allocations,
		FailedAllocations: s.FailedAllocations,
		Moves:             s.Moves,
		BytesMoved:        s.BytesMoved,
		Destroyed:         s.Destroyed,
		Substitutions:     c.substitutions,
	}
}

// Check verifies the arena layout and that every canonical sentinel is a
// live, childless root.
func (c *Context) Check() error {
	if c.closed {
		return ErrContextClosed
	}
	if err := c.arena.Check(); err != nil {
		return err
	}
	for tag, id := range c.sentinels {
		if id < 0 {
			continue
		}
		r, err := c.arena.RecordAt(id)
		if err != nil {
			return fmt.Errorf("%w: %s sentinel: %w", arena.ErrCorrupt, c.types[tag], err)
		}
		if r.ChildCount() != 0 {
			return fmt.Errorf("%w: %s sentinel has %d children", arena.ErrCorrupt, c.types[tag], r.ChildCount())
		}
		if p := must1(c.arena.Parent(id)); p >= 0 {
			return fmt.Errorf("%w: %s sentinel is a child of %d", arena.ErrCorrupt, c.types[tag], p)
		}
	}
	return nil
}

// New allocates a childless node of type t with a zeroed payload. When the
// arena cannot hold it, New returns a failure sentinel of t's failure
// prototype instead: a fresh one if that still fits, otherwise the canonical
// sentinel of the context.
func (c *Context) New(t *NodeType) *Tree {
	c.mustOpen()
	c.mustKnow(t)

	id, err := c.arena.Allocate(t.tag, t.payloadSize)
	c.metrics.RecordAllocation(t.RecordSize(), err)
	if err == nil {
		return &Tree{ctx: c, id: id}
	}
	c.logAllocationFailure(t, err)
	return c.newFailure(t.failure)
}

// Lookup returns a new handle on the live node id.
func (c *Context) Lookup(id int) *Tree {
	c.mustOpen()
	must(c.arena.Retain(id))
	return &Tree{ctx: c, id: id}
}

// Undefined returns a handle that refers to no node.
func (c *Context) Undefined() *Tree {
	return &Tree{ctx: c, id: -1}
}

// Sentinel returns a new handle on the canonical sentinel of the failure type ft.
func (c *Context) Sentinel(ft *NodeType) *Tree {
	c.mustOpen()
	c.mustKnow(ft)
	if !ft.IsFailure() {
		panic(fmt.Errorf("%w: %s", ErrNotFailureType, ft))
	}
	return c.canonical(ft)
}

func (c *Context) String() string {
	return fmt.Sprintf("Context{id: %s, %s}", c.id, c.arena)
}

func (c *Context) mustOpen() {
	if c.closed {
		panic(ErrContextClosed)
	}
}

func (c *Context) mustKnow(t *NodeType) {
	if t == nil || int(t.tag) >= len(c.types) || c.types[t.tag] != t {
		panic(fmt.Errorf("%w: %v", ErrUnknownType, t))
	}
}

func (c *Context) typeOf(id int) *NodeType {
	return c.types[must1(c.arena.RecordAt(id)).Tag()]
}

func (c *Context) isFailure(id int) bool {
	return c.typeOf(id).IsFailure()
}

func (c *Context) isCanonical(id int) bool {
	s := c.sentinels[must1(c.arena.RecordAt(id)).Tag()]
	return s >= 0 && s == id
}

// canonical returns a retained handle on the canonical sentinel of ft.
func (c *Context) canonical(ft *NodeType) *Tree {
	id := c.sentinels[ft.tag]
	must(c.arena.Retain(id))
	return &Tree{ctx: c, id: id}
}

// newFailure allocates a fresh sentinel of ft, falling back to the canonical one.
func (c *Context) newFailure(ft *NodeType) *Tree {
	if id, ok := c.allocateFailure(ft, false); ok {
		return &Tree{ctx: c, id: id}
	}
	return c.canonical(ft)
}

// allocateFailure places a fresh sentinel of ft. Sentinels that stand in for
// a child may use the arena reserve.
func (c *Context) allocateFailure(ft *NodeType, reserved bool) (int, bool) {
	allocate := c.arena.Allocate
	if reserved {
		allocate = c.arena.AllocateReserved
	}
	id, err := allocate(ft.tag, 0)
	c.metrics.RecordAllocation(ft.RecordSize(), err)
	if err != nil {
		c.logAllocationFailure(ft, err)
		return -1, false
	}
	return id, true
}

// logAllocationFailure emits a warning unless the rate limiter drops it.
func (c *Context) logAllocationFailure(t *NodeType, err error) {
	if !c.limiter.Allow() {
		c.suppressed++
		return
	}
	c.logger.LogAllocationFailure(t.name, err, c.suppressed)
	c.suppressed = 0
}

// move wraps arena.Move for paths where the destination is known to be valid.
func (c *Context) move(id, dst int) {
	c.recordMove(must1(c.arena.Move(id, dst)))
}

func (c *Context) recordMove(n int) {
	if n > 0 {
		c.metrics.RecordMove(n)
	}
}

// release drops one retain of id and reports the reclaimed records.
func (c *Context) release(id int) {
	reclaimed := must1(c.arena.Release(id))
	c.metrics.RecordRelease(reclaimed)
}
