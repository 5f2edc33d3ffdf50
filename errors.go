package treepool

import (
	"errors"
	"fmt"

	"github.com/hupe1980/treepool/internal/arena"
)

var (
	// ErrIndexOutOfRange is the panic value (wrapped) for a child index outside its valid range.
	ErrIndexOutOfRange = errors.New("child index out of range")
	// ErrUndefinedHandle is the panic value (wrapped) when an undefined handle is used.
	ErrUndefinedHandle = errors.New("undefined tree handle")
	// ErrForeignContext is the panic value (wrapped) when handles of different contexts are mixed.
	ErrForeignContext = errors.New("tree belongs to another context")
	// ErrNotChild is the panic value (wrapped) when removing a node that is not a child.
	ErrNotChild = errors.New("tree is not a child")
	// ErrTooManyChildren is the panic value (wrapped) when a child count would overflow.
	ErrTooManyChildren = errors.New("too many children")
	// ErrUnknownType is the panic value (wrapped) for a node type of another registry.
	ErrUnknownType = errors.New("node type not registered")
	// ErrContextClosed is the panic value (wrapped) when a closed context is used.
	ErrContextClosed = errors.New("context closed")

	// ErrInvalidIdentifier is the panic value (wrapped) when an identifier is not live.
	ErrInvalidIdentifier = arena.ErrInvalidIdentifier
	// ErrInvalidDestination is the panic value (wrapped) when a subtree would move into itself.
	ErrInvalidDestination = arena.ErrInvalidDestination
	// ErrRetainUnderflow is the panic value (wrapped) for a release without a matching retain.
	ErrRetainUnderflow = arena.ErrRetainUnderflow
	// ErrCapacityExhausted is reported to loggers and metrics when the arena is full.
	// Handle operations never return it: they substitute failure sentinels instead.
	ErrCapacityExhausted = arena.ErrCapacityExhausted
	// ErrInvalidCapacity is returned by NewContext for unusable capacities.
	ErrInvalidCapacity = arena.ErrInvalidCapacity
)

// CapacityError describes an allocation the arena could not satisfy.
type CapacityError = arena.CapacityError

// IndexError describes an out-of-range child index.
type IndexError struct {
	Index int
	Count int
	// Insert is set for insertion indices, which may equal Count.
	Insert bool
}

func (e *IndexError) Error() string {
	if e.Insert {
		return fmt.Sprintf("child index out of range: %d not in [0, %d]", e.Index, e.Count)
	}
	return fmt.Sprintf("child index out of range: %d not in [0, %d)", e.Index, e.Count)
}

func (e *IndexError) Unwrap() error { return ErrIndexOutOfRange }

// must turns an arena error on a path that cannot fail for a valid tree into a panic.
func must(err error) {
	if err != nil {
		panic(err)
	}
}

func must1[T any](v T, err error) T {
	must(err)
	return v
}
