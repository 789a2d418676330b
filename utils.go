package arenamap

import (
	"math"
	"math/bits"
	"unsafe"
)

// Returns the next power of 2 for the given value `v`.
func NextPowerOf2(v uint32) uint32 {
	return uint32(1) << min(bits.Len32(v-1), 31)
}

// Estimates capacity (number of slots) from the given memory size in bytes,
// counting the slot descriptor and one arena cell per slot.
func CapacityFromSize(size uintptr, keySize, valSize int) int {
	perSlot := unsafe.Sizeof(slot{}) + uintptr(keySize) + uintptr(valSize)

	return int(size / perSlot)
}

// capacityFor returns the smallest slot count that holds items live entries
// below the growth threshold, rounded up to a power of two. Counts that do
// not fit an int saturate to math.MaxInt.
func capacityFor(items int) int {
	if items > (math.MaxInt-growNum)/growDen {
		return math.MaxInt
	}

	need := items*growDen/growNum + 1
	if need < BaseCapacity {
		return BaseCapacity
	}

	shift := bits.Len(uint(need - 1))
	if shift >= bits.UintSize-1 {
		return math.MaxInt
	}

	return 1 << shift
}
