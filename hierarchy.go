package treepool

import (
	"fmt"

	"github.com/hupe1980/treepool/internal/arena"
)

// Every edit below is a sequence of arena moves plus retain count and child
// count bookkeeping. Edits on a failure sentinel are no-ops.

// AddChild inserts child as the first child of t.
func (t *Tree) AddChild(child *Tree) {
	t.AddChildAtIndex(child, 0)
}

// AddChildAtIndex inserts child so that it becomes the index-th child of t.
// A child that already has a parent is detached from it first, and the
// parent edge moves with it. It panics with an *IndexError if index is not
// in [0, NumberOfChildren()], and with ErrInvalidDestination if child is t
// or one of its ancestors.
//
// A canonical sentinel is never shared into a tree: a fresh sentinel of the
// same type is inserted instead. It may use the arena reserve, which refills
// once usage drops below the capacity again. Only when the reserve is spent
// as well is t itself replaced by an allocation failure.
func (t *Tree) AddChildAtIndex(child *Tree, index int) {
	self := t.mustID()
	cid := t.peer(child)
	c := t.ctx
	if c.isFailure(self) {
		return
	}

	n := must1(c.arena.ChildCount(self))
	if index < 0 || index > n {
		panic(&IndexError{Index: index, Count: n, Insert: true})
	}

	if c.isCanonical(cid) {
		fresh, ok := c.allocateFailure(c.typeOf(cid), true)
		if !ok {
			c.replaceWithAllocationFailure(self)
			return
		}
		c.insert(self, fresh, index, false)
		return
	}
	c.addChild(self, cid, index)
}

// addChild inserts cid under parent, detaching it from its current parent.
func (c *Context) addChild(parent, cid, index int) {
	if must1(c.arena.Contains(cid, parent)) {
		panic(fmt.Errorf("%w: %d is an ancestor of %d", arena.ErrInvalidDestination, cid, parent))
	}

	if must1(c.arena.Parent(cid)) < 0 {
		c.insert(parent, cid, index, true)
		return
	}
	c.detach(cid)
	// Re-adding a child of parent shifts the later indices down by one.
	index = min(index, must1(c.arena.ChildCount(parent)))
	c.insert(parent, cid, index, false)
}

// insert moves the parentless cid into the index-th child slot of parent.
// The parent edge takes a new retain when retain is set; otherwise the
// caller's retain is transferred to it.
func (c *Context) insert(parent, cid, index int, retain bool) {
	n := must1(c.arena.ChildCount(parent))
	if n >= arena.MaxChildren {
		panic(fmt.Errorf("%w: %d already has %d", ErrTooManyChildren, parent, n))
	}
	if retain {
		must(c.arena.Retain(cid))
	}
	c.recordMove(must1(c.arena.Attach(parent, cid, index)))
}

// detach parks the child cid at the trash end and drops it from its parent's
// child count. The parent edge retain stays with cid for the caller to
// transfer or release.
func (c *Context) detach(cid int) {
	c.recordMove(must1(c.arena.Detach(cid)))
}

// RemoveChild detaches child from t and releases the parent edge; the child
// is destroyed unless another owner remains. It panics with ErrNotChild if
// child is not a child of t.
func (t *Tree) RemoveChild(child *Tree) {
	self := t.mustID()
	cid := t.peer(child)
	c := t.ctx
	if c.isFailure(self) {
		return
	}
	if must1(c.arena.Parent(cid)) != self {
		panic(fmt.Errorf("%w: %d under %d", ErrNotChild, cid, self))
	}
	c.detach(cid)
	c.release(cid)
}

// RemoveChildAtIndex removes the i-th child of t.
func (t *Tree) RemoveChildAtIndex(i int) {
	self := t.mustID()
	c := t.ctx
	if c.isFailure(self) {
		return
	}
	if n := must1(c.arena.ChildCount(self)); i < 0 || i >= n {
		panic(&IndexError{Index: i, Count: n})
	}
	cid := must1(c.arena.ChildAt(self, i))
	c.detach(cid)
	c.release(cid)
}

// ReplaceChildAtIndex puts newChild in place of the i-th child of t and
// releases the old child. If newChild has a parent it is detached from it
// first. If newChild is a failure sentinel, t itself is replaced by an
// allocation failure instead, so that the failure propagates upwards.
func (t *Tree) ReplaceChildAtIndex(i int, newChild *Tree) {
	self := t.mustID()
	nid := t.peer(newChild)
	t.ctx.replaceChildAtIndex(self, i, nid)
}

func (c *Context) replaceChildAtIndex(self, i, nid int) {
	if c.isFailure(self) {
		return
	}
	if c.isFailure(nid) {
		c.replaceWithAllocationFailure(self)
		return
	}

	n := must1(c.arena.ChildCount(self))
	if i < 0 || i >= n {
		panic(&IndexError{Index: i, Count: n})
	}
	old := must1(c.arena.ChildAt(self, i))
	if old == nid {
		return
	}
	if must1(c.arena.Contains(nid, self)) {
		panic(fmt.Errorf("%w: %d is an ancestor of %d", arena.ErrInvalidDestination, nid, self))
	}

	if must1(c.arena.Parent(nid)) >= 0 {
		c.detach(nid)
	} else {
		must(c.arena.Retain(nid))
	}
	// Detaching nid from self may shift the old child's index.
	i = must1(c.arena.IndexOfChild(self, old))
	c.detach(old)
	c.insert(self, nid, i, false)
	c.release(old)
}

// ReplaceWith puts newNode in place of t under t's parent. It does nothing
// when t is a root. t stays alive as long as the handle holds it.
func (t *Tree) ReplaceWith(newNode *Tree) {
	self := t.mustID()
	nid := t.peer(newNode)
	c := t.ctx

	p := must1(c.arena.Parent(self))
	if p < 0 {
		return
	}
	c.replaceChildAtIndex(p, must1(c.arena.IndexOfChild(p, self)), nid)
}

// SwapChildren exchanges the i-th and j-th children of t. Applying it twice
// restores the original order. It panics with an *IndexError if i or j is
// not in [0, NumberOfChildren()).
func (t *Tree) SwapChildren(i, j int) {
	self := t.mustID()
	c := t.ctx
	if c.isFailure(self) {
		return
	}

	n := must1(c.arena.ChildCount(self))
	for _, k := range []int{i, j} {
		if k < 0 || k >= n {
			panic(&IndexError{Index: k, Count: n})
		}
	}
	if i == j {
		return
	}

	first := must1(c.arena.ChildAt(self, min(i, j)))
	second := must1(c.arena.ChildAt(self, max(i, j)))
	firstOff := must1(c.arena.RecordAt(first)).Offset()

	c.move(first, must1(c.arena.SubtreeEnd(second)))
	c.move(second, firstOff)
}
