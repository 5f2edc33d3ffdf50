package hash

import (
	"encoding/binary"
	"encoding/hex"

	"lukechampine.com/blake3"
)

// Size is the fingerprint length in bytes.
const Size = 32

// Fingerprint is a BLAKE3-256 digest of a subtree.
type Fingerprint [Size]byte

// String returns the hex encoding of f.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// TreeHasher accumulates nodes in pre-order.
type TreeHasher struct {
	h     *blake3.Hasher
	frame [10]byte
}

// NewTreeHasher returns an empty TreeHasher.
func NewTreeHasher() *TreeHasher {
	return &TreeHasher{h: blake3.New(Size, nil)}
}

// WriteNode adds one node to the digest.
func (t *TreeHasher) WriteNode(tag uint16, children int, payload []byte) {
	binary.LittleEndian.PutUint16(t.frame[0:], tag)
	binary.LittleEndian.PutUint32(t.frame[2:], uint32(children))     //nolint:gosec // child counts fit in uint16
	binary.LittleEndian.PutUint32(t.frame[6:], uint32(len(payload))) //nolint:gosec // payloads are bounded by the arena capacity
	_, _ = t.h.Write(t.frame[:])
	_, _ = t.h.Write(payload)
}

// Sum returns the digest of the nodes written so far.
func (t *TreeHasher) Sum() Fingerprint {
	var f Fingerprint
	copy(f[:], t.h.Sum(nil))
	return f
}
