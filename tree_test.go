package treepool

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTree_New(t *testing.T) {
	ctx, cat := newTestContext(t)

	n := ctx.New(cat.integer)
	defer n.Release()

	assert.True(t, n.IsDefined())
	assert.GreaterOrEqual(t, n.Identifier(), 0)
	assert.Equal(t, 1, n.RetainCount())
	assert.Equal(t, cat.integer, n.Type())
	assert.False(t, n.IsAllocationFailure())
	assert.Equal(t, 0, n.NumberOfChildren())
	assert.Equal(t, make([]byte, 8), n.Payload())
	assert.Equal(t, "Integer", n.String())
	assert.Same(t, ctx, n.Context())

	p := n.Parent()
	assert.False(t, p.IsDefined())
	assert.Equal(t, -1, p.Identifier())
}

func TestTree_Ownership(t *testing.T) {
	ctx, cat := newTestContext(t)
	baseline := ctx.Stats().LiveNodes

	t.Run("copy and release", func(t *testing.T) {
		a := ctx.New(cat.symbol)
		b := a.Copy()
		assert.True(t, a.Equal(b))
		assert.Equal(t, 2, a.RetainCount())

		a.Release()
		assert.False(t, a.IsDefined())
		assert.Equal(t, 1, b.RetainCount())

		a.Release() // no-op
		assert.Equal(t, 1, b.RetainCount())

		b.Release()
		assert.Equal(t, baseline, ctx.Stats().LiveNodes)
	})

	t.Run("move", func(t *testing.T) {
		a := ctx.New(cat.symbol)
		id := a.Identifier()

		b := a.Move()
		assert.False(t, a.IsDefined())
		assert.Equal(t, id, b.Identifier())
		assert.Equal(t, 1, b.RetainCount())

		b.Release()
		assert.Equal(t, baseline, ctx.Stats().LiveNodes)
	})

	t.Run("set", func(t *testing.T) {
		a := ctx.New(cat.symbol)
		b := ctx.New(cat.integer)
		bid := b.Identifier()

		a.Set(b)
		assert.True(t, a.Equal(b))
		assert.Equal(t, 2, b.RetainCount())
		assert.Equal(t, baseline+1, ctx.Stats().LiveNodes)

		a.Set(a)
		assert.Equal(t, 2, b.RetainCount())

		a.Set(ctx.Undefined())
		assert.False(t, a.IsDefined())
		assert.Equal(t, 1, b.RetainCount())

		b.Release()
		assert.Equal(t, baseline, ctx.Stats().LiveNodes)
		assert.False(t, ctx.arena.Has(bid))
	})

	t.Run("lookup", func(t *testing.T) {
		a := ctx.New(cat.symbol)
		defer a.Release()

		b := ctx.Lookup(a.Identifier())
		defer b.Release()
		assert.True(t, a.Equal(b))
		assert.Equal(t, 2, a.RetainCount())

		requirePanicIs(t, ErrInvalidIdentifier, func() {
			ctx.Lookup(1 << 20)
		})
	})
}

func TestTree_Undefined(t *testing.T) {
	ctx, cat := newTestContext(t)

	u := ctx.Undefined()
	assert.False(t, u.IsDefined())
	assert.Equal(t, "<undefined>", u.String())
	u.Release()

	c := u.Copy()
	assert.False(t, c.IsDefined())

	requirePanicIs(t, ErrUndefinedHandle, func() { u.NumberOfChildren() })
	requirePanicIs(t, ErrUndefinedHandle, func() { u.IsAllocationFailure() })
	requirePanicIs(t, ErrUndefinedHandle, func() { u.Clone() })

	n := ctx.New(cat.add)
	defer n.Release()
	requirePanicIs(t, ErrUndefinedHandle, func() { n.AddChild(u) })
}

func TestTree_ChildAtOutOfRange(t *testing.T) {
	ctx, cat := newTestContext(t)

	n := build(ctx, cat.add, ctx.New(cat.integer))
	defer n.Release()

	for _, i := range []int{-1, 1, 5} {
		requirePanicIs(t, ErrIndexOutOfRange, func() { n.ChildAt(i) })
	}

	defer func() {
		var ie *IndexError
		require.ErrorAs(t, recover().(error), &ie)
		assert.Equal(t, 3, ie.Index)
		assert.Equal(t, 1, ie.Count)
		assert.True(t, ie.Insert)
	}()
	n.AddChildAtIndex(ctx.New(cat.integer), 3)
}

func TestTree_ForeignContext(t *testing.T) {
	ctx1, cat1 := newTestContext(t)
	ctx2, cat2 := newTestContext(t)

	a := ctx1.New(cat1.add)
	defer a.Release()
	b := ctx2.New(cat2.integer)
	defer b.Release()

	requirePanicIs(t, ErrForeignContext, func() { a.AddChild(b) })
	requirePanicIs(t, ErrUnknownType, func() { ctx1.New(cat2.integer) })
	assert.False(t, a.Equal(b))
}

func TestTree_Payload(t *testing.T) {
	ctx, cat := newTestContext(t)

	x := ctx.New(cat.integer)
	binary.LittleEndian.PutUint64(x.Payload(), 42)
	y := ctx.New(cat.integer)
	binary.LittleEndian.PutUint64(y.Payload(), 7)

	sum := build(ctx, cat.add, x.Copy(), y.Copy())
	defer sum.Release()
	defer x.Release()
	defer y.Release()

	// Moving the subtree around keeps payloads.
	sum.SwapChildren(0, 1)
	assert.Equal(t, uint64(42), binary.LittleEndian.Uint64(x.Payload()))
	assert.Equal(t, uint64(7), binary.LittleEndian.Uint64(y.Payload()))

	first := sum.ChildAt(0)
	defer first.Release()
	assert.True(t, first.Equal(y))
	assert.Len(t, first.Payload(), 8)
}

func TestTree_String(t *testing.T) {
	ctx, cat := newTestContext(t)

	tree := build(ctx, cat.add,
		build(ctx, cat.add, ctx.New(cat.integer), ctx.New(cat.symbol)),
		ctx.New(cat.integer),
		build(ctx, cat.add, build(ctx, cat.add, ctx.New(cat.symbol))),
	)
	defer tree.Release()

	assert.Equal(t, "Add(Add(Integer,Symbol),Integer,Add(Add(Symbol)))", tree.String())
}

func TestTree_Clone(t *testing.T) {
	ctx, cat := newTestContext(t)

	x := ctx.New(cat.integer)
	binary.LittleEndian.PutUint64(x.Payload(), 99)
	tree := build(ctx, cat.add, x, build(ctx, cat.add, ctx.New(cat.symbol)))
	defer tree.Release()

	clone := tree.Clone()
	defer clone.Release()

	assert.Equal(t, tree.String(), clone.String())
	assert.Equal(t, tree.Fingerprint(), clone.Fingerprint())
	assert.Equal(t, 1, clone.RetainCount())
	assert.False(t, clone.Parent().IsDefined())

	orig := subtreeIDs(t, tree)
	copied := subtreeIDs(t, clone)
	require.Len(t, copied, len(orig))
	for _, id := range copied {
		assert.NotContains(t, orig, id)
	}

	// The copy is independent.
	cx := clone.ChildAt(0)
	defer cx.Release()
	assert.Equal(t, uint64(99), binary.LittleEndian.Uint64(cx.Payload()))
	binary.LittleEndian.PutUint64(cx.Payload(), 1)
	assert.NotEqual(t, tree.Fingerprint(), clone.Fingerprint())
}

func TestTree_Fingerprint(t *testing.T) {
	ctx, cat := newTestContext(t)

	a := build(ctx, cat.add, ctx.New(cat.integer), ctx.New(cat.symbol))
	defer a.Release()
	b := build(ctx, cat.add, ctx.New(cat.symbol), ctx.New(cat.integer))
	defer b.Release()

	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
	assert.Len(t, a.Fingerprint().String(), 64)

	b.SwapChildren(0, 1)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}
