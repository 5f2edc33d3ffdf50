package treepool

// ReplaceWithAllocationFailure replaces the subtree of t by a sentinel of its
// type's failure prototype, in place and under the same identifier: every
// handle on the node observes the substitution without re-resolving it.
// It does nothing when t already is a failure sentinel.
//
// The sentinel record is never larger than the record it replaces, so the
// substitution itself cannot run out of space.
func (t *Tree) ReplaceWithAllocationFailure() {
	t.ctx.replaceWithAllocationFailure(t.mustID())
}

func (c *Context) replaceWithAllocationFailure(id int) {
	nt := c.typeOf(id)
	if nt.IsFailure() {
		return
	}

	// Capture
	parent := must1(c.arena.Parent(id))
	index := -1
	if parent >= 0 {
		index = must1(c.arena.IndexOfChild(parent, id))
	}
	retained := must1(c.arena.RecordAt(id)).RetainCount()

	// Detach
	if parent >= 0 {
		c.detach(id)
	} else {
		c.move(id, c.arena.TrashEnd())
	}

	// Reclaim, keeping the identifier reserved
	reclaimed := must1(c.arena.Reclaim(id))

	// Substitute
	must(c.arena.AllocateAs(id, nt.failure.tag, 0))

	// Restore the retain count and reattach; the parent edge retain is
	// added back by the insertion.
	if parent >= 0 {
		must(c.arena.SetRetainCount(id, retained-1))
		c.insert(parent, id, index, true)
	} else {
		must(c.arena.SetRetainCount(id, retained))
	}

	c.substitutions++
	c.metrics.RecordSubstitution(reclaimed)
	if c.limiter.Allow() {
		c.logger.WithIdentifier(id).LogSubstitution(nt.name, nt.failure.name, reclaimed)
	} else {
		c.suppressed++
	}
}
