package arena

import (
	"fmt"
	"math"
)

// Retain adds an owner to id.
func (a *Arena) Retain(id int) error {
	off, err := a.offset(id)
	if err != nil {
		return err
	}
	n := readRetain(a.buf, off)
	if n == math.MaxUint32 {
		panic(fmt.Sprintf("unexpected retain count during Retain: id %d at %d", id, n))
	}
	writeRetain(a.buf, off, n+1)
	return nil
}

// Release drops an owner of id. When the last owner goes away the node is
// destroyed immediately: its span is parked at the trash end, every child is
// detached and released in turn (children owned elsewhere survive as roots),
// then the record is reclaimed and its identifier freed. Release returns the
// number of records reclaimed.
//
// Releasing a node whose retain count is already zero panics with an error
// wrapping ErrRetainUnderflow.
func (a *Arena) Release(id int) (int, error) {
	off, err := a.offset(id)
	if err != nil {
		return 0, err
	}
	n := readRetain(a.buf, off)
	if n == 0 {
		panic(fmt.Errorf("%w: id %d", ErrRetainUnderflow, id))
	}
	writeRetain(a.buf, off, n-1)
	if n > 1 {
		return 0, nil
	}
	return a.destroy(id)
}

func (a *Arena) destroy(id int) (int, error) {
	if _, err := a.Move(id, a.cursor); err != nil {
		return 0, err
	}
	reclaimed, err := a.releaseChildren(id)
	if err != nil {
		return reclaimed, err
	}
	if err := a.discard(id, true); err != nil {
		return reclaimed, err
	}
	return reclaimed + 1, nil
}

// releaseChildren detaches every child of id to the trash end and releases it.
func (a *Arena) releaseChildren(id int) (int, error) {
	reclaimed := 0
	for {
		off, err := a.offset(id)
		if err != nil {
			return reclaimed, err
		}
		if readChildren(a.buf, off) == 0 {
			return reclaimed, nil
		}
		child := readID(a.buf, off+readSize(a.buf, off))
		if _, err := a.Detach(child); err != nil {
			return reclaimed, err
		}
		r, err := a.Release(child)
		reclaimed += r
		if err != nil {
			return reclaimed, err
		}
	}
}

// discard removes the childless record id from the buffer and closes the gap.
// The identifier is returned to the free set when free is set; otherwise it
// stays reserved for AllocateAs.
func (a *Arena) discard(id int, free bool) error {
	off, err := a.offset(id)
	if err != nil {
		return err
	}
	if readChildren(a.buf, off) != 0 {
		return fmt.Errorf("%w: id %d", ErrHasChildren, id)
	}
	size := readSize(a.buf, off)
	copy(a.buf[off:], a.buf[off+size:a.cursor])
	a.cursor -= size
	clear(a.buf[a.cursor : a.cursor+size])
	a.offsets[id] = -1
	a.parents[id] = -1
	a.reindex(off, a.cursor)
	if free {
		a.ids.put(id)
	}
	a.live--
	a.stats.Destroyed++
	return nil
}

// Reclaim releases every child of id, then removes its record while keeping
// the identifier reserved, so that AllocateAs can place a replacement record
// under the same identifier. The caller owns the retain count bookkeeping of
// the replacement.
func (a *Arena) Reclaim(id int) (int, error) {
	reclaimed, err := a.releaseChildren(id)
	if err != nil {
		return reclaimed, err
	}
	if err := a.discard(id, false); err != nil {
		return reclaimed, err
	}
	return reclaimed + 1, nil
}
