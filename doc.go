// Package treepool stores many trees in one fixed-capacity arena and lets
// callers build and edit them through reference-counted handles.
//
// Trees have no pointers. Every context owns one contiguous buffer holding
// all of its nodes in depth-first pre-order, so a node's descendants are the
// bytes right after it. Edits relocate whole subtrees inside the buffer, and
// node identifiers stay stable across those moves.
//
// # Quick Start
//
//	reg := treepool.NewRegistry()
//	add := reg.MustRegister("Add", 0)
//	integer := reg.MustRegister("Integer", 8)
//
//	ctx, _ := treepool.NewContext(reg, treepool.WithCapacity(64<<10))
//	defer ctx.Close()
//
//	sum := ctx.New(add)
//	defer sum.Release()
//
//	one := ctx.New(integer)
//	binary.LittleEndian.PutUint64(one.Payload(), 1)
//	sum.AddChildAtIndex(one, 0)
//	one.Release() // the tree keeps it alive
//
//	fmt.Println(sum) // Add(Integer)
//
// # Ownership
//
// A handle owns one retain on its node; every parent edge owns another.
// Copy adds an owner, Move transfers ownership to a new handle and Release
// drops it. A node is destroyed as soon as its last owner goes away: its
// children are detached and released in turn, so subtrees that are still
// owned elsewhere survive as standalone roots.
//
// Handles returned by Parent, ChildAt and Lookup are owners too and must be
// released.
//
// # Running out of space
//
// The arena never grows. When a node or a clone does not fit, the operation
// does not fail: it yields a failure sentinel instead, a payload-free node of
// the type's failure prototype (AllocationFailure unless configured with
// WithFailurePrototype). ReplaceWithAllocationFailure substitutes such a
// sentinel for a whole subtree under the same identifier, so existing handles
// see the failure without learning a new identifier. Callers detect degraded
// values with IsAllocationFailure.
//
// Each arena keeps one header of reserve past its capacity for sentinels
// that stand in for a child, so adding a failure to a full tree still
// succeeds. The reserve refills once usage drops below the capacity.
//
// # Errors
//
// Misuse is a programming error and panics with an error wrapping one of the
// sentinel errors (ErrIndexOutOfRange, ErrUndefinedHandle, ErrForeignContext,
// ErrInvalidIdentifier, ErrInvalidDestination, ErrRetainUnderflow). Only
// NewContext and Close return errors.
//
// # Concurrency
//
// A context and its handles must be used by one goroutine at a time.
// Independent contexts may run in parallel and can share a memory budget
// through WithResourceController.
package treepool
