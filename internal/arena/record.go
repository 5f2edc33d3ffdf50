package arena

import (
	"encoding/binary"
	"math"
)

// Record header layout (little-endian):
//
//	┌──────────┬──────────┬──────────┬──────────┬──────────┐
//	│ id int32 │ retain   │ size     │ children │ tag      │
//	│          │ uint32   │ uint32   │ uint16   │ uint16   │
//	└──────────┴──────────┴──────────┴──────────┴──────────┘
//	  0          4          8          12         14
//
// The payload follows the header and is padded to RecordAlignment.
const (
	// HeaderSize is the size of a record header and the size of the smallest record.
	HeaderSize = 16
	// RecordAlignment is the alignment of every record offset and size.
	RecordAlignment = 4
	// MaxChildren is the largest child count a record can hold.
	MaxChildren = math.MaxUint16
	// MaxTag is the largest type tag a record can hold.
	MaxTag = math.MaxUint16

	offID       = 0
	offRetain   = 4
	offSize     = 8
	offChildren = 12
	offTag      = 14
)

// RecordSize returns the byte size of a record with the given payload size.
func RecordSize(payloadSize int) int {
	return HeaderSize + (payloadSize+RecordAlignment-1)&^(RecordAlignment-1)
}

// Record is a read view of one node record at its current position.
// It is invalidated by the next structural change of the arena.
type Record struct {
	buf []byte // header + payload
	off int
}

// ID returns the identifier of the record.
func (r Record) ID() int { return int(int32(binary.LittleEndian.Uint32(r.buf[offID:]))) }

// RetainCount returns the number of owners of the record.
func (r Record) RetainCount() int { return int(binary.LittleEndian.Uint32(r.buf[offRetain:])) }

// Size returns the byte size of the record (header + padded payload).
func (r Record) Size() int { return int(binary.LittleEndian.Uint32(r.buf[offSize:])) }

// ChildCount returns the number of immediate children.
func (r Record) ChildCount() int { return int(binary.LittleEndian.Uint16(r.buf[offChildren:])) }

// Tag returns the type tag of the record.
func (r Record) Tag() uint16 { return binary.LittleEndian.Uint16(r.buf[offTag:]) }

// Offset returns the current position of the record in the arena buffer.
func (r Record) Offset() int { return r.off }

// Payload returns the type-specific bytes of the record.
// Writes through the returned slice modify the record in place.
func (r Record) Payload() []byte { return r.buf[HeaderSize:] }

// header accessors on the raw buffer, used on hot paths where building a
// Record view is unnecessary.

func readID(buf []byte, off int) int {
	return int(int32(binary.LittleEndian.Uint32(buf[off+offID:])))
}

func readRetain(buf []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(buf[off+offRetain:])
}

func readSize(buf []byte, off int) int {
	return int(binary.LittleEndian.Uint32(buf[off+offSize:]))
}

func readChildren(buf []byte, off int) int {
	return int(binary.LittleEndian.Uint16(buf[off+offChildren:]))
}

func writeID(buf []byte, off int, id int32) {
	binary.LittleEndian.PutUint32(buf[off+offID:], uint32(id))
}

func writeRetain(buf []byte, off int, n uint32) {
	binary.LittleEndian.PutUint32(buf[off+offRetain:], n)
}

func writeChildren(buf []byte, off int, n uint16) {
	binary.LittleEndian.PutUint16(buf[off+offChildren:], n)
}

func writeHeader(buf []byte, off int, id int32, size uint32, tag uint16) {
	binary.LittleEndian.PutUint32(buf[off+offID:], uint32(id))
	binary.LittleEndian.PutUint32(buf[off+offRetain:], 1)
	binary.LittleEndian.PutUint32(buf[off+offSize:], size)
	binary.LittleEndian.PutUint16(buf[off+offChildren:], 0)
	binary.LittleEndian.PutUint16(buf[off+offTag:], tag)
}
