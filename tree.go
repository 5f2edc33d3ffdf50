package treepool

import (
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/treepool/internal/arena"
	"github.com/hupe1980/treepool/internal/hash"
)

// Fingerprint is a structural digest of a subtree. See Tree.Fingerprint.
type Fingerprint [hash.Size]byte

func (f Fingerprint) String() string {
	return hash.Fingerprint(f).String()
}

// Tree is an owning handle on a node. A defined handle holds exactly one
// retain on its node, so the node (and its subtree) stays alive until the
// handle is released.
//
// Handles returned by queries such as Parent and ChildAt are new owners and
// must be released too.
type Tree struct {
	ctx *Context
	id  int
}

// Context returns the context the handle belongs to.
func (t *Tree) Context() *Context { return t.ctx }

// Identifier returns the node identifier, or -1 for an undefined handle.
func (t *Tree) Identifier() int { return t.id }

// IsDefined reports whether the handle refers to a live node.
func (t *Tree) IsDefined() bool {
	return t != nil && t.id >= 0 && t.ctx != nil && !t.ctx.closed && t.ctx.arena.Has(t.id)
}

// mustID returns the identifier of a defined handle or panics.
func (t *Tree) mustID() int {
	if t == nil || t.ctx == nil || t.id < 0 {
		panic(ErrUndefinedHandle)
	}
	t.ctx.mustOpen()
	if !t.ctx.arena.Has(t.id) {
		panic(fmt.Errorf("%w: %d", ErrInvalidIdentifier, t.id))
	}
	return t.id
}

// peer returns the identifier of other, which must be a defined handle of
// the same context.
func (t *Tree) peer(other *Tree) int {
	id := other.mustID()
	if other.ctx != t.ctx {
		panic(ErrForeignContext)
	}
	return id
}

// Copy returns a new handle on the same node.
func (t *Tree) Copy() *Tree {
	if t.id < 0 {
		return &Tree{ctx: t.ctx, id: -1}
	}
	id := t.mustID()
	must(t.ctx.arena.Retain(id))
	return &Tree{ctx: t.ctx, id: id}
}

// Move transfers ownership to a new handle. t becomes undefined.
func (t *Tree) Move() *Tree {
	n := &Tree{ctx: t.ctx, id: t.id}
	t.id = -1
	return n
}

// Set makes t refer to the node of other, releasing its previous node.
func (t *Tree) Set(other *Tree) {
	if other.id >= 0 {
		must(other.ctx.arena.Retain(other.mustID()))
	}
	t.Release()
	t.ctx = other.ctx
	t.id = other.id
}

// Release drops the handle's retain. The node is destroyed when no other
// owner remains. The handle becomes undefined; releasing it again is a no-op.
func (t *Tree) Release() {
	if t == nil || t.id < 0 {
		return
	}
	id := t.id
	t.id = -1
	if t.ctx.closed {
		return
	}
	t.ctx.release(id)
}

// Clone deep-copies the subtree. The copy has fresh identifiers and no
// parent. A failure sentinel clones to its canonical sentinel, and so does
// a clone that does not fit.
func (t *Tree) Clone() *Tree {
	id := t.mustID()
	c := t.ctx
	nt := c.typeOf(id)
	if nt.IsFailure() {
		return c.canonical(nt)
	}

	start := time.Now()
	cp, err := c.arena.DeepCopy(id)
	c.metrics.RecordClone(time.Since(start), err)
	if err != nil {
		c.logAllocationFailure(nt, err)
		return c.newFailure(nt.failure)
	}
	return &Tree{ctx: c, id: cp}
}

// Type returns the node type.
func (t *Tree) Type() *NodeType {
	return t.ctx.typeOf(t.mustID())
}

// IsAllocationFailure reports whether the node is a failure sentinel.
func (t *Tree) IsAllocationFailure() bool {
	return t.ctx.isFailure(t.mustID())
}

// Payload returns the node payload in place. The slice is invalidated by
// the next structural edit of the context.
func (t *Tree) Payload() []byte {
	r := must1(t.ctx.arena.RecordAt(t.mustID()))
	return r.Payload()[:t.ctx.types[r.Tag()].payloadSize]
}

// RetainCount returns the number of owners of the node.
func (t *Tree) RetainCount() int {
	return must1(t.ctx.arena.RecordAt(t.mustID())).RetainCount()
}

// NumberOfChildren returns the number of immediate children.
func (t *Tree) NumberOfChildren() int {
	return must1(t.ctx.arena.ChildCount(t.mustID()))
}

// Parent returns a handle on the parent node, or an undefined handle for a root.
func (t *Tree) Parent() *Tree {
	p := must1(t.ctx.arena.Parent(t.mustID()))
	if p < 0 {
		return t.ctx.Undefined()
	}
	return t.ctx.Lookup(p)
}

// ChildAt returns a handle on the i-th child.
// It panics with an *IndexError if i is not in [0, NumberOfChildren()).
func (t *Tree) ChildAt(i int) *Tree {
	id := t.mustID()
	if n := must1(t.ctx.arena.ChildCount(id)); i < 0 || i >= n {
		panic(&IndexError{Index: i, Count: n})
	}
	return t.ctx.Lookup(must1(t.ctx.arena.ChildAt(id, i)))
}

// IndexOfChild returns the index of child among the children of t, or -1.
func (t *Tree) IndexOfChild(child *Tree) int {
	return must1(t.ctx.arena.IndexOfChild(t.mustID(), t.peer(child)))
}

// Equal reports whether both handles refer to the same node.
func (t *Tree) Equal(other *Tree) bool {
	return t.ctx == other.ctx && t.id == other.id
}

// Fingerprint returns the BLAKE3 digest of the pre-order sequence of type
// tags, child counts and payloads of the subtree. It is stable across moves
// and equal for a subtree and its clones.
func (t *Tree) Fingerprint() Fingerprint {
	c := t.ctx
	h := hash.NewTreeHasher()
	must(c.arena.Walk(t.mustID(), func(r arena.Record) bool {
		h.WriteNode(r.Tag(), r.ChildCount(), r.Payload()[:c.types[r.Tag()].payloadSize])
		return true
	}))
	return Fingerprint(h.Sum())
}

// String renders the subtree with type names, e.g. "Add(Integer,Integer)".
func (t *Tree) String() string {
	if !t.IsDefined() {
		return "<undefined>"
	}
	c := t.ctx

	var (
		b       strings.Builder
		pending []int // children left to render per open node
	)
	must(c.arena.Walk(t.id, func(r arena.Record) bool {
		b.WriteString(c.types[r.Tag()].name)
		if n := r.ChildCount(); n > 0 {
			b.WriteByte('(')
			pending = append(pending, n)
			return true
		}
		for len(pending) > 0 {
			top := len(pending) - 1
			pending[top]--
			if pending[top] > 0 {
				b.WriteByte(',')
				break
			}
			pending = pending[:top]
			b.WriteByte(')')
		}
		return true
	}))
	return b.String()
}
