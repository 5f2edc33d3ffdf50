package treepool

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/hupe1980/treepool/internal/arena"
)

// AllocationFailureName is the name of the default failure type.
const AllocationFailureName = "AllocationFailure"

var (
	// ErrDuplicateType is returned when a type name is registered twice.
	ErrDuplicateType = errors.New("node type already registered")
	// ErrInvalidTypeName is returned for an empty type name.
	ErrInvalidTypeName = errors.New("invalid node type name")
	// ErrInvalidPayloadSize is returned for negative or oversized payloads.
	ErrInvalidPayloadSize = errors.New("invalid payload size")
	// ErrNotFailureType is returned when a failure prototype is not a failure type of the registry.
	ErrNotFailureType = errors.New("not a failure type")
	// ErrTooManyTypes is returned when the tag space is exhausted.
	ErrTooManyTypes = errors.New("too many node types")
	// ErrRegistrySealed is returned when registering into a registry that a context already uses.
	ErrRegistrySealed = errors.New("registry sealed")
)

// maxPayloadSize keeps record sizes representable in the header.
const maxPayloadSize = math.MaxInt32 - arena.HeaderSize - arena.RecordAlignment

// NodeType describes one kind of node: its tag, its fixed payload size and
// the failure type whose sentinel replaces it when the arena is full.
type NodeType struct {
	name        string
	tag         uint16
	payloadSize int
	failure     *NodeType
	registry    *Registry
}

// Name returns the type name.
func (t *NodeType) Name() string { return t.name }

// Tag returns the tag stored in record headers.
func (t *NodeType) Tag() uint16 { return t.tag }

// PayloadSize returns the payload size in bytes.
func (t *NodeType) PayloadSize() int { return t.payloadSize }

// RecordSize returns the size of one record of this type in the arena.
func (t *NodeType) RecordSize() int { return arena.RecordSize(t.payloadSize) }

// IsFailure reports whether t is a failure type.
func (t *NodeType) IsFailure() bool { return t.failure == t }

// FailurePrototype returns the failure type substituted for nodes of t.
// A failure type is its own prototype.
func (t *NodeType) FailurePrototype() *NodeType { return t.failure }

func (t *NodeType) String() string { return t.name }

// TypeOption configures Register.
type TypeOption func(*NodeType)

// WithFailurePrototype selects the failure type substituted for nodes of the
// registered type. It must come from RegisterFailure on the same registry.
func WithFailurePrototype(ft *NodeType) TypeOption {
	return func(t *NodeType) {
		t.failure = ft
	}
}

// Registry maps tags to node types. Registration must complete before the
// registry is handed to NewContext; the first context seals it.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	types  []*NodeType
	byName map[string]*NodeType
	sealed bool
}

// NewRegistry creates a registry holding the default failure type
// AllocationFailure under tag 0.
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]*NodeType)}
	if _, err := r.RegisterFailure(AllocationFailureName); err != nil {
		panic(err)
	}
	return r
}

// AllocationFailure returns the default failure type.
func (r *Registry) AllocationFailure() *NodeType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.types[0]
}

// Register adds a node type with a fixed payload size. Without
// WithFailurePrototype, the default AllocationFailure type is used.
func (r *Registry) Register(name string, payloadSize int, opts ...TypeOption) (*NodeType, error) {
	if payloadSize < 0 || payloadSize > maxPayloadSize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPayloadSize, payloadSize)
	}

	t := &NodeType{name: name, payloadSize: payloadSize}
	for _, opt := range opts {
		opt(t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if t.failure == nil {
		t.failure = r.types[0]
	} else if t.failure.registry != r || !t.failure.IsFailure() {
		return nil, fmt.Errorf("%w: %s", ErrNotFailureType, t.failure)
	}
	return t, r.addLocked(t)
}

// RegisterFailure adds a failure type. Failure records have no payload, so
// they are never larger than a record of any other type.
func (r *Registry) RegisterFailure(name string) (*NodeType, error) {
	t := &NodeType{name: name}
	t.failure = t

	r.mu.Lock()
	defer r.mu.Unlock()
	return t, r.addLocked(t)
}

func (r *Registry) addLocked(t *NodeType) error {
	if r.sealed {
		return fmt.Errorf("%w: cannot register %q", ErrRegistrySealed, t.name)
	}
	if t.name == "" {
		return ErrInvalidTypeName
	}
	if _, ok := r.byName[t.name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateType, t.name)
	}
	if len(r.types) > arena.MaxTag {
		return fmt.Errorf("%w: %d", ErrTooManyTypes, len(r.types))
	}

	t.tag = uint16(len(r.types)) //nolint:gosec // checked against MaxTag
	t.registry = r
	r.types = append(r.types, t)
	r.byName[t.name] = t
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(name string, payloadSize int, opts ...TypeOption) *NodeType {
	t, err := r.Register(name, payloadSize, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

// MustRegisterFailure is like RegisterFailure but panics on error.
func (r *Registry) MustRegisterFailure(name string) *NodeType {
	t, err := r.RegisterFailure(name)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup returns the type registered under tag.
func (r *Registry) Lookup(tag uint16) (*NodeType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(tag) >= len(r.types) {
		return nil, false
	}
	return r.types[tag], true
}

// ByName returns the type registered under name.
func (r *Registry) ByName(name string) (*NodeType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types)
}

// Sealed reports whether a context uses the registry.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// seal freezes the registry and returns its types indexed by tag.
func (r *Registry) seal() []*NodeType {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
	return r.types[:len(r.types):len(r.types)]
}
