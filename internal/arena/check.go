package arena

import "fmt"

// Check walks the whole used region and verifies the layout invariants:
// every record is well-formed and aligned, every subtree span ends inside the
// used region, the identifier and parent tables agree with the buffer, every
// live record has a positive retain count, and the live count matches.
func (a *Arena) Check() error {
	if a.cursor > len(a.buf) {
		return fmt.Errorf("%w: trash end %d beyond buffer of %d", ErrCorrupt, a.cursor, len(a.buf))
	}

	records := 0
	var open []pending
	for off := 0; off < a.cursor; off += readSize(a.buf, off) {
		if err := a.checkRecord(off); err != nil {
			return err
		}
		records++

		id := readID(a.buf, off)
		parent := -1
		if k := len(open); k > 0 {
			parent = open[k-1].id
			if open[k-1].left--; open[k-1].left == 0 {
				open = open[:k-1]
			}
		}
		if got := int(a.parents[id]); got != parent {
			return fmt.Errorf("%w: identifier %d has parent %d, recorded %d", ErrCorrupt, id, parent, got)
		}
		if c := readChildren(a.buf, off); c > 0 {
			open = append(open, pending{id: id, left: c})
		}
	}
	if len(open) > 0 {
		return fmt.Errorf("%w: subtree of %d runs past the trash end %d", ErrCorrupt, open[0].id, a.cursor)
	}
	if records != a.live {
		return fmt.Errorf("%w: %d records in buffer, %d live", ErrCorrupt, records, a.live)
	}
	return nil
}

func (a *Arena) checkRecord(off int) error {
	if off+HeaderSize > a.cursor {
		return fmt.Errorf("%w: truncated header at %d", ErrCorrupt, off)
	}
	size := readSize(a.buf, off)
	if size < HeaderSize || size%RecordAlignment != 0 || off+size > a.cursor {
		return fmt.Errorf("%w: bad record size %d at %d", ErrCorrupt, size, off)
	}
	id := readID(a.buf, off)
	if id < 0 || id >= len(a.offsets) {
		return fmt.Errorf("%w: identifier %d out of range at %d", ErrCorrupt, id, off)
	}
	if int(a.offsets[id]) != off {
		return fmt.Errorf("%w: identifier %d indexed at %d, found at %d", ErrCorrupt, id, a.offsets[id], off)
	}
	if a.ids.isFree(id) {
		return fmt.Errorf("%w: identifier %d at %d is marked free", ErrCorrupt, id, off)
	}
	if readRetain(a.buf, off) == 0 {
		return fmt.Errorf("%w: identifier %d at %d has retain count 0", ErrCorrupt, id, off)
	}
	return nil
}
