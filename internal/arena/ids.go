package arena

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// idAllocator hands out node identifiers. Free identifiers live in a roaring
// bitmap; the smallest free identifier is always handed out first so the
// identifier space stays dense.
type idAllocator struct {
	free *roaring.Bitmap
	max  uint64
}

func newIDAllocator(max uint64) *idAllocator {
	free := roaring.New()
	free.AddRange(0, max)
	return &idAllocator{free: free, max: max}
}

// take returns the smallest free identifier.
func (a *idAllocator) take() (int, bool) {
	if a.free.IsEmpty() {
		return -1, false
	}
	id := a.free.Minimum()
	a.free.Remove(id)
	return int(id), true
}

// put returns id to the free set.
func (a *idAllocator) put(id int) {
	a.free.Add(uint32(id)) //nolint:gosec // id < max <= MaxInt32
}

func (a *idAllocator) isFree(id int) bool {
	return a.free.Contains(uint32(id)) //nolint:gosec // callers check id range
}

// available returns the number of free identifiers.
func (a *idAllocator) available() uint64 {
	return a.free.GetCardinality()
}
