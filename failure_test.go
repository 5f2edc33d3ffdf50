package treepool

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestFailure_ReplaceWithAllocationFailure(t *testing.T) {
	metrics := &BasicMetricsCollector{}
	ctx, cat := newTestContext(t, WithMetricsCollector(metrics))

	sym := ctx.New(cat.symbol)
	defer sym.Release()
	root := build(ctx, cat.add,
		build(ctx, cat.add, ctx.New(cat.integer), sym.Copy()),
		ctx.New(cat.integer),
	)
	defer root.Release()

	mid := root.ChildAt(0)
	defer mid.Release()
	id := mid.Identifier()
	other := ctx.Lookup(id)
	defer other.Release()
	require.Equal(t, 3, mid.RetainCount())
	lost := must1(ctx.arena.ChildAt(id, 0))

	mid.ReplaceWithAllocationFailure()

	assert.True(t, other.IsAllocationFailure())
	assert.Equal(t, id, other.Identifier())
	assert.Equal(t, cat.af, other.Type())
	assert.Equal(t, 3, other.RetainCount())
	assert.Equal(t, 0, other.NumberOfChildren())
	assert.Equal(t, "Add(AllocationFailure,Integer)", root.String())
	assert.Equal(t, 0, root.IndexOfChild(other))
	assert.False(t, root.IsAllocationFailure())

	// Unowned descendants are reclaimed, owned ones survive as roots.
	assert.False(t, ctx.arena.Has(lost))
	assert.Equal(t, 1, sym.RetainCount())
	assert.False(t, sym.Parent().IsDefined())

	assert.Equal(t, uint64(1), ctx.Stats().Substitutions)
	assert.Equal(t, int64(1), metrics.GetStats().SubstitutionCount)
	assert.Equal(t, int64(2), metrics.GetStats().SubstitutedNodes) // Integer and mid

	// Already a sentinel.
	mid.ReplaceWithAllocationFailure()
	assert.Equal(t, uint64(1), ctx.Stats().Substitutions)
	require.NoError(t, ctx.Check())
}

func TestFailure_ReplaceRoot(t *testing.T) {
	ctx, cat := newTestContext(t)

	n := build(ctx, cat.add, ctx.New(cat.integer))
	defer n.Release()
	c := n.Copy()
	defer c.Release()

	n.ReplaceWithAllocationFailure()
	assert.True(t, c.IsAllocationFailure())
	assert.Equal(t, 2, c.RetainCount())
	assert.False(t, c.Parent().IsDefined())
	require.NoError(t, ctx.Check())
}

// Adding a third child to P(X, Y) when the arena cannot hold it yields
// P(X, Y, AllocationFailure).
func TestFailure_AddChildWhenFull(t *testing.T) {
	// canonical sentinel 16 + Add 16 + 2 * Integer 24 = 80 bytes
	ctx, cat := newTestContext(t, WithCapacity(96))

	p := build(ctx, cat.add, ctx.New(cat.integer), ctx.New(cat.integer))
	defer p.Release()
	require.Equal(t, 80, ctx.Stats().BytesUsed)

	z := ctx.New(cat.integer)
	defer z.Release()
	require.True(t, z.IsAllocationFailure())
	canonical := ctx.Sentinel(cat.af)
	defer canonical.Release()
	assert.False(t, z.Equal(canonical))

	p.AddChildAtIndex(z, 2)

	assert.False(t, p.IsAllocationFailure())
	assert.Equal(t, 3, p.NumberOfChildren())
	third := p.ChildAt(2)
	defer third.Release()
	assert.True(t, third.IsAllocationFailure())
	assert.Equal(t, "Add(Integer,Integer,AllocationFailure)", p.String())
	require.NoError(t, ctx.Check())
}

func TestFailure_CanonicalSentinel(t *testing.T) {
	// No room left after P(X, Y).
	ctx, cat := newTestContext(t, WithCapacity(80))

	x := ctx.New(cat.integer)
	defer x.Release()
	p := build(ctx, cat.add, x.Copy(), ctx.New(cat.integer))
	defer p.Release()
	pid := p.Identifier()

	z := ctx.New(cat.integer)
	defer z.Release()
	canonical := ctx.Sentinel(cat.af)
	defer canonical.Release()
	require.True(t, z.Equal(canonical))

	t.Run("clone shares it", func(t *testing.T) {
		c := z.Clone()
		defer c.Release()
		assert.True(t, c.Equal(canonical))
	})

	t.Run("fresh copy from the reserve", func(t *testing.T) {
		p.AddChildAtIndex(z, 2)

		assert.False(t, p.IsAllocationFailure())
		assert.Equal(t, "Add(Integer,Integer,AllocationFailure)", p.String())
		third := p.ChildAt(2)
		defer third.Release()
		assert.True(t, third.IsAllocationFailure())
		assert.False(t, third.Equal(canonical))
		assert.False(t, z.Parent().IsDefined())

		stats := ctx.Stats()
		assert.Equal(t, 80, stats.Capacity)
		assert.Equal(t, 16, stats.Reserve)
		assert.Equal(t, 96, stats.BytesUsed)
		require.NoError(t, ctx.Check())
	})

	t.Run("reserve refills after release", func(t *testing.T) {
		p.RemoveChildAtIndex(1)
		require.Equal(t, 72, ctx.Stats().BytesUsed)

		p.AddChildAtIndex(z, 0)

		assert.False(t, p.IsAllocationFailure())
		assert.Equal(t, "Add(AllocationFailure,Integer,AllocationFailure)", p.String())
		assert.Equal(t, 88, ctx.Stats().BytesUsed)
		require.NoError(t, ctx.Check())
	})

	t.Run("parent degrades when the reserve is spent", func(t *testing.T) {
		p.AddChildAtIndex(z, 0)

		assert.True(t, p.IsAllocationFailure())
		assert.Equal(t, pid, p.Identifier())
		assert.Equal(t, 0, p.NumberOfChildren())
		assert.False(t, z.Parent().IsDefined())
		assert.Equal(t, 1, x.RetainCount())
		assert.False(t, x.Parent().IsDefined())
		require.NoError(t, ctx.Check())
	})
}

func TestFailure_CanonicalSentinelGetsFreshCopy(t *testing.T) {
	ctx, cat := newTestContext(t)

	s := ctx.Sentinel(cat.af)
	defer s.Release()
	p := ctx.New(cat.add)
	defer p.Release()

	p.AddChild(s)
	assert.False(t, p.IsAllocationFailure())
	c := p.ChildAt(0)
	defer c.Release()
	assert.True(t, c.IsAllocationFailure())
	assert.False(t, c.Equal(s))
	assert.Equal(t, 2, c.RetainCount())
}

func TestFailure_Propagation(t *testing.T) {
	ctx, cat := newTestContext(t)

	t.Run("replace child", func(t *testing.T) {
		p := build(ctx, cat.add, ctx.New(cat.integer), ctx.New(cat.symbol))
		g := build(ctx, cat.add, p.Copy(), ctx.New(cat.integer))
		defer g.Release()
		defer p.Release()

		f := ctx.New(cat.af)
		defer f.Release()
		require.True(t, f.IsAllocationFailure())

		p.ReplaceChildAtIndex(1, f)
		assert.True(t, p.IsAllocationFailure())
		assert.Equal(t, "Add(AllocationFailure,Integer)", g.String())
		assert.False(t, f.Parent().IsDefined())
	})

	t.Run("replace with", func(t *testing.T) {
		x := ctx.New(cat.integer)
		defer x.Release()
		p := build(ctx, cat.add, x.Copy())
		defer p.Release()

		f := ctx.New(cat.af)
		defer f.Release()

		x.ReplaceWith(f)
		assert.True(t, p.IsAllocationFailure())
		assert.False(t, x.IsAllocationFailure())
		assert.False(t, x.Parent().IsDefined())
	})

	require.NoError(t, ctx.Check())
}

func TestFailure_SentinelIsInert(t *testing.T) {
	ctx, cat := newTestContext(t)

	s := ctx.New(cat.af)
	defer s.Release()
	x := ctx.New(cat.integer)
	defer x.Release()

	s.AddChild(x)
	s.AddChildAtIndex(x, 5)
	s.RemoveChildAtIndex(0)
	s.SwapChildren(0, 1)
	s.ReplaceChildAtIndex(0, x)
	s.ReplaceWithAllocationFailure()

	assert.Equal(t, 0, s.NumberOfChildren())
	assert.Equal(t, 1, x.RetainCount())
	assert.Equal(t, 1, s.RetainCount())
	assert.Empty(t, s.Payload())
}

func TestFailure_Clone(t *testing.T) {
	// canonical 16 + Add(Integer, Integer) 64 = 80 bytes, 16 left
	ctx, cat := newTestContext(t, WithCapacity(96))

	p := build(ctx, cat.add, ctx.New(cat.integer), ctx.New(cat.integer))
	defer p.Release()

	c := p.Clone()
	defer c.Release()
	assert.True(t, c.IsAllocationFailure())
	assert.Equal(t, 96, ctx.Stats().BytesUsed)

	d := c.Clone()
	defer d.Release()
	canonical := ctx.Sentinel(cat.af)
	defer canonical.Release()
	assert.True(t, d.Equal(canonical))
}

func TestFailure_CustomPrototype(t *testing.T) {
	reg := NewRegistry()
	lf := reg.MustRegisterFailure("LayoutFailure")
	hl := reg.MustRegister("HorizontalLayout", 4, WithFailurePrototype(lf))
	glyph := reg.MustRegister("Glyph", 8, WithFailurePrototype(lf))

	// two canonical sentinels (32 bytes) + HorizontalLayout 20 + Glyph 24
	ctx, err := NewContext(reg, WithCapacity(92))
	require.NoError(t, err)
	defer ctx.Close()

	row := build(ctx, hl, ctx.New(glyph))
	defer row.Release()
	require.False(t, row.IsAllocationFailure())

	g := ctx.New(glyph)
	defer g.Release()
	assert.Equal(t, lf, g.Type())

	row.ReplaceWithAllocationFailure()
	assert.Equal(t, lf, row.Type())
	assert.Equal(t, "LayoutFailure", row.String())
	require.NoError(t, ctx.Check())
}

func TestFailure_Logging(t *testing.T) {
	newLogged := func(t *testing.T, r rate.Limit) (*Context, *catalog, *bytes.Buffer) {
		t.Helper()
		var buf bytes.Buffer
		logger := NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		// Only the canonical sentinel and one more sentinel fit.
		ctx, cat := newTestContext(t,
			WithCapacity(32),
			WithLogger(logger),
			WithFailureLogRate(r, 1),
		)
		return ctx, cat, &buf
	}
	fail := func(ctx *Context, cat *catalog) {
		var held []*Tree
		for range 3 {
			held = append(held, ctx.New(cat.integer))
		}
		for _, h := range held {
			h.Release()
		}
	}

	t.Run("every failure", func(t *testing.T) {
		ctx, cat, buf := newLogged(t, rate.Inf)
		fail(ctx, cat)

		out := buf.String()
		assert.Contains(t, out, `"msg":"context opened"`)
		assert.Contains(t, out, ctx.ID().String())
		// The first call still gets a fresh sentinel; the others fall back
		// to the canonical one after a second failure.
		assert.Equal(t, 5, strings.Count(out, `"msg":"allocation failed"`))
	})

	t.Run("rate limited", func(t *testing.T) {
		ctx, cat, buf := newLogged(t, 0)
		fail(ctx, cat)
		assert.Equal(t, 1, strings.Count(buf.String(), `"msg":"allocation failed"`))
	})
}
