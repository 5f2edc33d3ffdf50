package treepool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// catalog is a small node catalog used across tests.
type catalog struct {
	reg     *Registry
	af      *NodeType
	add     *NodeType // payload 0
	integer *NodeType // payload 8
	symbol  *NodeType // payload 4
}

func newCatalog(t *testing.T) *catalog {
	t.Helper()

	reg := NewRegistry()
	return &catalog{
		reg:     reg,
		af:      reg.AllocationFailure(),
		add:     reg.MustRegister("Add", 0),
		integer: reg.MustRegister("Integer", 8),
		symbol:  reg.MustRegister("Symbol", 4),
	}
}

// newTestContext creates a context that is checked and closed when the test ends.
func newTestContext(t *testing.T, opts ...Option) (*Context, *catalog) {
	t.Helper()

	cat := newCatalog(t)
	ctx, err := NewContext(cat.reg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		if !ctx.Closed() {
			assert.NoError(t, ctx.Check())
		}
		assert.NoError(t, ctx.Close())
	})
	return ctx, cat
}

// build creates a node of typ with the given children, handing their
// ownership to the tree.
func build(ctx *Context, typ *NodeType, children ...*Tree) *Tree {
	n := ctx.New(typ)
	for i, c := range children {
		n.AddChildAtIndex(c, i)
		c.Release()
	}
	return n
}

func requirePanicIs(t *testing.T, target error, fn func()) {
	t.Helper()

	defer func() {
		t.Helper()
		r := recover()
		require.NotNil(t, r, "expected a panic")
		err, ok := r.(error)
		require.True(t, ok, "panic value %v is not an error", r)
		assert.ErrorIs(t, err, target)
	}()
	fn()
}

// childIDs returns the identifiers of the children of n.
func childIDs(t *testing.T, n *Tree) []int {
	t.Helper()

	ids := make([]int, 0, n.NumberOfChildren())
	for i := range n.NumberOfChildren() {
		c := n.ChildAt(i)
		ids = append(ids, c.Identifier())
		c.Release()
	}
	return ids
}

// subtreeIDs returns the identifiers of the subtree of n in pre-order.
func subtreeIDs(t *testing.T, n *Tree) []int {
	t.Helper()

	ids := []int{n.Identifier()}
	for i := range n.NumberOfChildren() {
		c := n.ChildAt(i)
		ids = append(ids, subtreeIDs(t, c)...)
		c.Release()
	}
	return ids
}
