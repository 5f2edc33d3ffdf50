package arena

import "fmt"

// pending is a node on a pre-order walk whose remaining children are still
// to come.
type pending struct {
	id   int
	left int
}

// subtreeEnd returns the offset right after the last descendant of the record at off.
func (a *Arena) subtreeEnd(off int) int {
	for pending := 1; pending > 0; {
		pending += readChildren(a.buf, off) - 1
		off += readSize(a.buf, off)
	}
	return off
}

// SubtreeEnd returns the offset of the next sibling position of id, i.e. the
// first byte after its last descendant.
func (a *Arena) SubtreeEnd(id int) (int, error) {
	off, err := a.offset(id)
	if err != nil {
		return 0, err
	}
	return a.subtreeEnd(off), nil
}

// SubtreeSize returns the byte length of the span of id (record plus descendants).
func (a *Arena) SubtreeSize(id int) (int, error) {
	off, err := a.offset(id)
	if err != nil {
		return 0, err
	}
	return a.subtreeEnd(off) - off, nil
}

// FirstChildOffset returns the position right after the record of id: its
// first child if it has one, otherwise where its next sibling begins.
func (a *Arena) FirstChildOffset(id int) (int, error) {
	off, err := a.offset(id)
	if err != nil {
		return 0, err
	}
	return off + readSize(a.buf, off), nil
}

// ChildOffset returns the insertion offset for a child at index i of id,
// walking i sibling spans forward from the first-child position. i may equal
// the child count, in which case the offset is the end of the subtree.
func (a *Arena) ChildOffset(id, i int) (int, error) {
	off, err := a.offset(id)
	if err != nil {
		return 0, err
	}
	if n := readChildren(a.buf, off); i < 0 || i > n {
		return 0, fmt.Errorf("arena: child index %d outside [0, %d]", i, n)
	}
	pos := off + readSize(a.buf, off)
	for ; i > 0; i-- {
		pos = a.subtreeEnd(pos)
	}
	return pos, nil
}

// ChildCount returns the number of immediate children of id.
func (a *Arena) ChildCount(id int) (int, error) {
	off, err := a.offset(id)
	if err != nil {
		return 0, err
	}
	return readChildren(a.buf, off), nil
}

// ChildAt returns the identifier of the i-th child of id.
func (a *Arena) ChildAt(id, i int) (int, error) {
	off, err := a.offset(id)
	if err != nil {
		return -1, err
	}
	if n := readChildren(a.buf, off); i < 0 || i >= n {
		return -1, fmt.Errorf("arena: child index %d outside [0, %d)", i, n)
	}
	pos := off + readSize(a.buf, off)
	for ; i > 0; i-- {
		pos = a.subtreeEnd(pos)
	}
	return readID(a.buf, pos), nil
}

// IndexOfChild returns the index of child under parent, or -1.
func (a *Arena) IndexOfChild(parent, child int) (int, error) {
	off, err := a.offset(parent)
	if err != nil {
		return -1, err
	}
	pos := off + readSize(a.buf, off)
	for i := range readChildren(a.buf, off) {
		if readID(a.buf, pos) == child {
			return i, nil
		}
		pos = a.subtreeEnd(pos)
	}
	return -1, nil
}

// Parent returns the identifier of the node whose subtree directly contains
// id, or -1 when id is a root. Parents are kept in a table indexed by
// identifier, maintained by Attach, Detach, DeepCopy and destruction, so the
// lookup does not depend on where id sits in the buffer.
func (a *Arena) Parent(id int) (int, error) {
	if !a.Has(id) {
		return -1, fmt.Errorf("%w: %d", ErrInvalidIdentifier, id)
	}
	return int(a.parents[id]), nil
}

// Contains reports whether the subtree of ancestor includes id (or is id).
func (a *Arena) Contains(ancestor, id int) (bool, error) {
	lo, err := a.offset(ancestor)
	if err != nil {
		return false, err
	}
	off, err := a.offset(id)
	if err != nil {
		return false, err
	}
	return off >= lo && off < a.subtreeEnd(lo), nil
}

// Walk calls fn for every record of the subtree of id in pre-order until fn
// returns false. The arena must not be modified during the walk.
func (a *Arena) Walk(id int, fn func(r Record) bool) error {
	off, err := a.offset(id)
	if err != nil {
		return err
	}
	end := a.subtreeEnd(off)
	for off < end {
		r := a.record(off)
		if !fn(r) {
			return nil
		}
		off += r.Size()
	}
	return nil
}

// Roots returns the identifiers of all parentless nodes in layout order.
func (a *Arena) Roots() []int {
	var roots []int
	for pos := 0; pos < a.cursor; pos = a.subtreeEnd(pos) {
		roots = append(roots, readID(a.buf, pos))
	}
	return roots
}
